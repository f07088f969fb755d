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

type (
	// writeStream is the single append-only destination a writerContext
	// drives. It is implemented once for real files and once for the
	// memory-mirror's mapped buffer.
	writeStream interface {
		// AppendData writes p at the current end of the stream and advances it.
		AppendData(p []byte) error
		// FlushToDisk syncs durably; a no-op for the in-memory implementation.
		FlushToDisk() error
		// ResizeStream truncates the stream to exactly n bytes.
		ResizeStream(n int64) error
		// Close releases any resource the stream owns.
		Close() error
	}

	// writerContext is the single-owner append path of a Chunk: it holds the
	// working stream and a reusable scratch buffer for record framing. All
	// mutation goes through the chunk's write_sync mutex; writerContext
	// itself assumes single-threaded use.
	writerContext struct {
		stream  writeStream
		scratch []byte
	}

	fileStream struct {
		f      *os.File
		cursor int64
	}

	mmapStream struct {
		mmf    *files.MMFile
		base   int64
		cursor int64
	}
)

func newWriterContext(stream writeStream, scratchCap int) *writerContext {
	return &writerContext{stream: stream, scratch: make([]byte, 0, scratchCap)}
}

// AppendData delegates to the underlying stream.
func (w *writerContext) AppendData(p []byte) error {
	return w.stream.AppendData(p)
}

// FlushToDisk delegates to the underlying stream.
func (w *writerContext) FlushToDisk() error {
	return w.stream.FlushToDisk()
}

// ResizeStream delegates to the underlying stream.
func (w *writerContext) ResizeStream(n int64) error {
	return w.stream.ResizeStream(n)
}

// Close delegates to the underlying stream.
func (w *writerContext) Close() error {
	return w.stream.Close()
}

func newFileStream(f *os.File, startCursor int64) *fileStream {
	return &fileStream{f: f, cursor: startCursor}
}

func (s *fileStream) AppendData(p []byte) error {
	n, err := s.f.WriteAt(p, s.cursor)
	s.cursor += int64(n)
	return err
}

func (s *fileStream) FlushToDisk() error {
	return s.f.Sync()
}

func (s *fileStream) ResizeStream(n int64) error {
	return s.f.Truncate(n)
}

func (s *fileStream) Close() error {
	return s.f.Close()
}

func newMMapStream(mmf *files.MMFile, base, startCursor int64) *mmapStream {
	return &mmapStream{mmf: mmf, base: base, cursor: startCursor}
}

func (s *mmapStream) AppendData(p []byte) error {
	buf, err := s.mmf.Buffer(s.base+s.cursor, len(p))
	if err != nil {
		return err
	}
	if len(buf) < len(p) {
		return fmt.Errorf("mirror backing buffer too small for %d bytes at offset %d", len(p), s.base+s.cursor)
	}
	copy(buf, p)
	s.cursor += int64(len(p))
	return nil
}

// FlushToDisk is a no-op: the mirror is an unmanaged buffer, not a durable store.
func (s *mmapStream) FlushToDisk() error {
	return nil
}

// ResizeStream is a no-op: the mirror's allocation is sized once at construction.
func (s *mmapStream) ResizeStream(int64) error {
	return nil
}

func (s *mmapStream) Close() error {
	return nil
}
