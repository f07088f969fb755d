// Copyright 2024 The Solaris Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package chunkfs

import (
	"fmt"
	"os"

	"github.com/solarisdb/solaris/golibs/files"
)

// newUnmanagedBuffer returns a memory-mapped region of at least size bytes
// that is not visible anywhere in the filesystem namespace: the backing file
// is created, mapped, and unlinked before this function returns, so the only
// reference to its storage is the *files.MMFile handle itself (the classic
// POSIX create-then-unlink trick for an off-heap allocation that still goes
// through the page cache like any mmap'd region).
func newUnmanagedBuffer(size int64, dir string) (*files.MMFile, error) {
	tmp, err := os.CreateTemp(dir, "chunkfs-mirror-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("could not create mirror backing file: %w", err)
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("could not close mirror backing file: %w", err)
	}

	mmf, err := files.NewMMFile(name, roundUpBlockSize(size))
	os.Remove(name)
	if err != nil {
		return nil, fmt.Errorf("could not map mirror backing file: %w", err)
	}
	return mmf, nil
}

// roundUpBlockSize rounds size up to the next multiple of files.BlockSize,
// which is the granularity MMFile requires.
func roundUpBlockSize(size int64) int64 {
	if size <= 0 {
		return files.BlockSize
	}
	if rem := size % files.BlockSize; rem != 0 {
		return size + (files.BlockSize - rem)
	}
	return size
}
