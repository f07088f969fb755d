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
	"io"
	"os"
	"time"

	"github.com/solarisdb/solaris/golibs/errors"
	"github.com/solarisdb/solaris/golibs/files"
	"github.com/solarisdb/solaris/golibs/logging"
)

const readerPoolDrainTimeout = 30 * time.Second

type (
	// chunkReadHandle is one seekable read cursor against a chunk, either a
	// real file descriptor or a view over the shared memory-mirror buffer.
	chunkReadHandle interface {
		io.Reader
		io.Seeker
		Close() error
	}

	// readerPool is the bounded set of read handles shared among reader
	// goroutines. It is filled once at construction; acquire/release pass
	// handles through a buffered channel, which gives blocking backpressure
	// without busy-waiting — the same "park on a channel until someone signals"
	// idiom this package's chunk-state machine used historically.
	readerPool struct {
		handles chan chunkReadHandle
		size    int
		logger  logging.Logger
	}

	// fileReadHandle is a reader-pool slot backed by its own independently
	// opened file descriptor on the chunk's path, so concurrent readers never
	// share a seek position.
	fileReadHandle struct {
		f *os.File
	}

	// memReadHandle is a reader-pool slot backed by a cursor into the shared
	// memory-mirror buffer. Multiple handles may read disjoint regions of the
	// same buffer concurrently; each handle only ever advances its own cursor.
	memReadHandle struct {
		mmf *files.MMFile
		pos int64
	}
)

func newFileReadHandle(path string) (chunkReadHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open reader handle on %s: %w", path, err)
	}
	return &fileReadHandle{f: f}, nil
}

func (h *fileReadHandle) Read(p []byte) (int, error) { return h.f.Read(p) }

func (h *fileReadHandle) Seek(offset int64, whence int) (int64, error) { return h.f.Seek(offset, whence) }

func (h *fileReadHandle) Close() error { return h.f.Close() }

func newMemReadHandle(mmf *files.MMFile) chunkReadHandle {
	return &memReadHandle{mmf: mmf}
}

func (h *memReadHandle) Read(p []byte) (int, error) {
	if h.pos < 0 || h.pos >= h.mmf.Size() {
		return 0, io.EOF
	}
	buf, err := h.mmf.Buffer(h.pos, len(p))
	if err != nil {
		return 0, fmt.Errorf("mirror read at %d: %w", h.pos, err)
	}
	n := copy(p, buf)
	h.pos += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (h *memReadHandle) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = h.pos + offset
	case io.SeekEnd:
		newPos = h.mmf.Size() + offset
	default:
		return 0, fmt.Errorf("invalid whence %d: %w", whence, errors.ErrInvalid)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("negative seek position %d: %w", newPos, errors.ErrInvalid)
	}
	h.pos = newPos
	return newPos, nil
}

func (h *memReadHandle) Close() error { return nil }

func newReaderPool(n int, factory func() (chunkReadHandle, error), logger logging.Logger) (*readerPool, error) {
	p := &readerPool{handles: make(chan chunkReadHandle, n), size: n, logger: logger}
	for i := 0; i < n; i++ {
		h, err := factory()
		if err != nil {
			p.closeAll()
			return nil, err
		}
		p.handles <- h
	}
	return p, nil
}

// acquire blocks until a handle is available.
func (p *readerPool) acquire() chunkReadHandle {
	return <-p.handles
}

// release returns a handle to the pool.
func (p *readerPool) release(h chunkReadHandle) {
	p.handles <- h
}

// closeAll drains and closes every handle. If fewer than size handles are
// reclaimed within 30 seconds, it logs and returns anyway: the pool is
// considered drained and any handle still checked out is the OS's problem
// to reclaim on process exit.
func (p *readerPool) closeAll() {
	deadline := time.NewTimer(readerPoolDrainTimeout)
	defer deadline.Stop()
	reclaimed := 0
	for reclaimed < p.size {
		select {
		case h := <-p.handles:
			if err := h.Close(); err != nil && p.logger != nil {
				p.logger.Warnf("error closing reader handle: %v", err)
			}
			reclaimed++
		case <-deadline.C:
			if p.logger != nil {
				p.logger.Warnf("reader pool drain timed out after %s: reclaimed %d/%d handles, remainder considered leaked", readerPoolDrainTimeout, reclaimed, p.size)
			}
			return
		}
	}
}
