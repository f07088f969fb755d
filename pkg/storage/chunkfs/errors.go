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

	"github.com/solarisdb/solaris/golibs/errors"
)

// CorruptChunkError is raised by chunk opens (FromCompletedFile, FromOngoingFile)
// when the on-disk layout does not match what the header/footer describe.
type CorruptChunkError struct {
	Path    string
	Message string
}

func (e *CorruptChunkError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("chunk %s corrupted: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("chunk corrupted: %s", e.Message)
}

func (e *CorruptChunkError) Unwrap() error {
	return errors.ErrDataLoss
}

// ChunkWriteError reports an invariant violation detected while serialising
// an append (an empty or oversized record, a fixed-mode record of the wrong
// size, writing to a completed chunk).
type ChunkWriteError struct {
	Chunk   string
	Message string
}

func (e *ChunkWriteError) Error() string {
	return fmt.Sprintf("chunk %s write error: %s", e.Chunk, e.Message)
}

func (e *ChunkWriteError) Unwrap() error {
	return errors.ErrInvalid
}

// ChunkCompleteError is raised by Complete when a fixed-mode chunk's
// data_position does not equal its declared capacity.
type ChunkCompleteError struct {
	Chunk   string
	Message string
}

func (e *ChunkCompleteError) Error() string {
	return fmt.Sprintf("chunk %s complete error: %s", e.Chunk, e.Message)
}

func (e *ChunkCompleteError) Unwrap() error {
	return errors.ErrConflict
}

// InvalidReadError reports any read-time inconsistency: out-of-range position,
// prefix/suffix mismatch, a nil record from the caller's read_record, or a
// read attempted against a chunk that is being deleted.
type InvalidReadError struct {
	Chunk   string
	Message string
}

func (e *InvalidReadError) Error() string {
	return fmt.Sprintf("chunk %s invalid read: %s", e.Chunk, e.Message)
}

func (e *InvalidReadError) Unwrap() error {
	return errors.ErrInvalid
}
