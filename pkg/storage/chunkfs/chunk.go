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
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/solarisdb/solaris/golibs/errors"
	"github.com/solarisdb/solaris/golibs/files"
	"github.com/solarisdb/solaris/golibs/logging"
	"github.com/solarisdb/solaris/golibs/timeout"
)

// Chunk is the atomic unit of the append-only log: a header-framed data
// region on disk (or, for a memory mirror, in an unmanaged mmap'd buffer),
// an optional footer once sealed, and the machinery around it — a bounded
// reader pool, a single writer context, and an optional in-memory twin.
type Chunk struct {
	path       string
	cfg        ChunkConfig
	fixedMode  bool
	isMemory   bool
	header     ChunkHeader
	readRecord ReadRecordFunc
	memInfo    MemoryInfo
	logger     logging.Logger

	dataPosition       int64 // atomic; data bytes written, excluding header
	isCompleted        int32 // atomic bool
	isDeleting         int32 // atomic bool
	cachingInProgress  int32 // atomic CAS flag, single-flight for opportunistic caching
	lastActiveTimeNano int64 // atomic unix nanoseconds

	writeSync sync.Mutex
	cacheSync sync.Mutex

	writer *writerContext
	pool   *readerPool

	file *os.File      // file-backed chunks only; nil once Complete or Close has closed it
	mmf  *files.MMFile // set iff isMemory

	mirror *Chunk // child memory mirror; nil unless one is attached
}

func newChunk(path string, cfg ChunkConfig, header ChunkHeader, isMemory bool, readRecord ReadRecordFunc) *Chunk {
	return &Chunk{
		path:       path,
		cfg:        cfg,
		fixedMode:  cfg.FixedMode(),
		isMemory:   isMemory,
		header:     header,
		readRecord: readRecord,
		memInfo:    NewMemoryInfo(),
		logger:     logging.NewLogger(fmt.Sprintf("chunkfs.Chunk.%d", header.ChunkNumber)),
	}
}

func (c *Chunk) scratchCap() int {
	if c.fixedMode {
		return int(c.cfg.ChunkDataUnitSize)
	}
	return int(4 + c.cfg.MaxLogRecordSize + 4)
}

// CreateNew starts a brand-new chunk. If isMemory is true, nothing is written
// at path: the chunk lives entirely in an unmanaged mmap'd buffer whose
// backing temp file in path's directory is unlinked as soon as it is mapped.
// Otherwise path is populated via the sibling-temp-file-then-rename pattern
// so a reader never observes a partially written chunk file.
func CreateNew(path string, chunkNumber int64, cfg ChunkConfig, isMemory bool, readRecord ReadRecordFunc) (*Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	header := ChunkHeader{ChunkNumber: chunkNumber, ChunkDataTotalSize: cfg.DataTotalSize()}
	c := newChunk(path, cfg, header, isMemory, readRecord)

	if isMemory {
		if err := c.initMemoryBacking(mirrorBufSize(header), 0); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := c.initFileBacking(header); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chunk) initFileBacking(header ChunkHeader) error {
	tmpPath := fmt.Sprintf("%s.%s.tmp", c.path, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("could not create chunk temp file %s: %w", tmpPath, err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(tmpPath)
	}
	if err := writeHeader(f, header); err != nil {
		cleanup()
		return fmt.Errorf("could not write header to %s: %w", tmpPath, err)
	}
	if err := f.Truncate(headerSize + header.ChunkDataTotalSize); err != nil {
		cleanup()
		return fmt.Errorf("could not preallocate chunk capacity for %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("could not flush new chunk file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		cleanup()
		return fmt.Errorf("could not publish chunk file %s: %w", c.path, err)
	}

	c.file = f
	c.writer = newWriterContext(newFileStream(f, headerSize), c.scratchCap())
	pool, err := newReaderPool(c.cfg.ChunkReaderCount, func() (chunkReadHandle, error) { return newFileReadHandle(c.path) }, c.logger)
	if err != nil {
		f.Close()
		return err
	}
	c.pool = pool
	return nil
}

func (c *Chunk) initMemoryBacking(bufSize, startCursor int64) error {
	mmf, err := newUnmanagedBuffer(bufSize, filepath.Dir(c.path))
	if err != nil {
		return err
	}
	if err := writeHeaderToMMFile(mmf, c.header); err != nil {
		mmf.Close()
		return err
	}
	c.mmf = mmf
	c.writer = newWriterContext(newMMapStream(mmf, headerSize, startCursor), c.scratchCap())
	atomic.StoreInt64(&c.dataPosition, startCursor)
	pool, err := newReaderPool(c.cfg.ChunkReaderCount, func() (chunkReadHandle, error) { return newMemReadHandle(mmf), nil }, c.logger)
	if err != nil {
		mmf.Close()
		return err
	}
	c.pool = pool
	return nil
}

// mirrorBufSize is the allocation size reserved for any memory mirror:
// header, full data capacity and footer, even before the footer is written,
// so Complete can append it in place without reallocating.
func mirrorBufSize(h ChunkHeader) int64 {
	return headerSize + h.ChunkDataTotalSize + footerSize
}

func writeHeaderToMMFile(mmf *files.MMFile, h ChunkHeader) error {
	buf, err := mmf.Buffer(0, headerSize)
	if err != nil {
		return err
	}
	enc := encodeHeader(h)
	copy(buf, enc[:])
	return nil
}

// FromCompletedFile reopens a sealed chunk. It validates header/footer
// consistency against the file's actual length before trusting anything in it.
func FromCompletedFile(path string, cfg ChunkConfig, isMemory bool, readRecord ReadRecordFunc) (*Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open completed chunk %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat %s: %w", path, err)
	}
	flen := fi.Size()

	header, err := readHeaderAt(f, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	footer, err := readFooterAt(f, flen-footerSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	if flen != headerSize+footer.ChunkDataTotalSize+footerSize {
		f.Close()
		return nil, &CorruptChunkError{Path: path, Message: fmt.Sprintf("file length %d does not match header(%d)+footer.total(%d)+footer(%d)", flen, headerSize, footer.ChunkDataTotalSize, footerSize)}
	}
	if cfg.FixedMode() && footer.ChunkDataTotalSize != header.ChunkDataTotalSize {
		f.Close()
		return nil, &CorruptChunkError{Path: path, Message: "fixed-mode footer total size does not match header capacity"}
	}

	c := newChunk(path, cfg, header, isMemory, readRecord)
	atomic.StoreInt64(&c.dataPosition, footer.ChunkDataTotalSize)
	atomic.StoreInt32(&c.isCompleted, 1)

	if isMemory {
		mmf, err := newUnmanagedBuffer(flen, filepath.Dir(path))
		if err != nil {
			f.Close()
			return nil, err
		}
		buf, err := mmf.Buffer(0, int(flen))
		if err != nil {
			mmf.Close()
			f.Close()
			return nil, err
		}
		if _, err := io.ReadFull(io.NewSectionReader(f, 0, flen), buf); err != nil {
			mmf.Close()
			f.Close()
			return nil, fmt.Errorf("could not load %s into memory mirror: %w", path, err)
		}
		f.Close()
		c.mmf = mmf
		pool, err := newReaderPool(cfg.ChunkReaderCount, func() (chunkReadHandle, error) { return newMemReadHandle(mmf), nil }, c.logger)
		if err != nil {
			mmf.Close()
			return nil, err
		}
		c.pool = pool
		return c, nil
	}

	c.file = f
	pool, err := newReaderPool(cfg.ChunkReaderCount, func() (chunkReadHandle, error) { return newFileReadHandle(path) }, c.logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.pool = pool
	return c, nil
}

// FromOngoingFile reopens a chunk file that had no footer written — the
// process that owned it stopped mid-write. It recovers data_position by
// scanning forward, probing one record at a time with the same framing
// rules TryReadAt uses, and stops at the first probe that fails.
func FromOngoingFile(path string, cfg ChunkConfig, isMemory bool, readRecord ReadRecordFunc) (*Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open ongoing chunk %s: %w", path, err)
	}
	header, err := readHeaderAt(f, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat %s: %w", path, err)
	}
	// An ongoing file was preallocated to headerSize+capacity with no footer
	// reserved (see initFileBacking), so the whole file past the header is
	// scannable — unlike a completed file, which always carries a footer.
	limit := fi.Size()
	if limit < headerSize {
		limit = headerSize
	}

	fixedMode := cfg.FixedMode()
	pos := int64(headerSize)
	for pos < limit {
		newPos, ok := probeRecord(f, pos, limit, fixedMode, cfg, readRecord)
		if !ok {
			break
		}
		pos = newPos
	}
	dataPosition := pos - headerSize

	c := newChunk(path, cfg, header, isMemory, readRecord)
	atomic.StoreInt64(&c.dataPosition, dataPosition)

	if isMemory {
		mmf, err := newUnmanagedBuffer(mirrorBufSize(header), filepath.Dir(path))
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := writeHeaderToMMFile(mmf, header); err != nil {
			mmf.Close()
			f.Close()
			return nil, err
		}
		if dataPosition > 0 {
			buf, err := mmf.Buffer(headerSize, int(dataPosition))
			if err != nil {
				mmf.Close()
				f.Close()
				return nil, err
			}
			if _, err := io.ReadFull(io.NewSectionReader(f, headerSize, dataPosition), buf); err != nil {
				mmf.Close()
				f.Close()
				return nil, fmt.Errorf("could not copy recovered data into memory mirror: %w", err)
			}
		}
		f.Close()
		c.mmf = mmf
		c.writer = newWriterContext(newMMapStream(mmf, headerSize, dataPosition), c.scratchCap())
		pool, err := newReaderPool(cfg.ChunkReaderCount, func() (chunkReadHandle, error) { return newMemReadHandle(mmf), nil }, c.logger)
		if err != nil {
			mmf.Close()
			return nil, err
		}
		c.pool = pool
		return c, nil
	}

	c.file = f
	c.writer = newWriterContext(newFileStream(f, headerSize+dataPosition), c.scratchCap())
	pool, err := newReaderPool(cfg.ChunkReaderCount, func() (chunkReadHandle, error) { return newFileReadHandle(path) }, c.logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.pool = pool
	return c, nil
}

// probeRecord is a guarded single-record read during ongoing-file recovery:
// any inconsistency just stops the scan rather than propagating an error.
func probeRecord(f *os.File, pos, limit int64, fixedMode bool, cfg ChunkConfig, readRecord ReadRecordFunc) (int64, bool) {
	if fixedMode {
		unit := cfg.ChunkDataUnitSize
		if pos+unit > limit {
			return pos, false
		}
		cr := &countingReader{r: io.NewSectionReader(f, pos, unit)}
		rec, err := readRecord(int(unit), cr)
		if err != nil || rec == nil || cr.n != unit {
			return pos, false
		}
		return pos + unit, true
	}

	if pos+8 > limit {
		return pos, false
	}
	var lb [4]byte
	if _, err := f.ReadAt(lb[:], pos); err != nil {
		return pos, false
	}
	length := int64(binary.LittleEndian.Uint32(lb[:]))
	if length <= 0 || length > cfg.MaxLogRecordSize {
		return pos, false
	}
	if pos+4+length+4 > limit {
		return pos, false
	}
	rec, err := readRecord(int(length), io.NewSectionReader(f, pos+4, length))
	if err != nil || rec == nil {
		return pos, false
	}
	var sb [4]byte
	if _, err := f.ReadAt(sb[:], pos+4+length); err != nil {
		return pos, false
	}
	if binary.LittleEndian.Uint32(sb[:]) != uint32(length) {
		return pos, false
	}
	return pos + 4 + length + 4, true
}

// TryAppend serialises record and, under write_sync, commits it at the end
// of the chunk's data region. It returns NotEnoughSpace rather than an error
// when the record does not fit.
func (c *Chunk) TryAppend(record LogRecord) (RecordWriteResult, error) {
	if c.IsCompleted() {
		return RecordWriteResult{}, &ChunkWriteError{Chunk: c.path, Message: "write to a completed chunk"}
	}

	c.writeSync.Lock()
	defer c.writeSync.Unlock()

	if c.IsCompleted() {
		return RecordWriteResult{}, &ChunkWriteError{Chunk: c.path, Message: "write to a completed chunk"}
	}

	start := atomic.LoadInt64(&c.dataPosition)
	globalPos := c.header.ChunkDataStartPosition() + start

	var toWrite []byte
	if c.fixedMode {
		if start+c.cfg.ChunkDataUnitSize > c.header.ChunkDataTotalSize {
			return notEnoughSpaceResult, nil
		}
		buf := &limitedBuffer{buf: c.writer.scratch[:0]}
		if err := record.WriteTo(globalPos, buf); err != nil {
			c.writer.scratch = buf.buf[:0]
			return RecordWriteResult{}, fmt.Errorf("could not frame record for chunk %s: %w", c.path, err)
		}
		if int64(buf.Len()) != c.cfg.ChunkDataUnitSize {
			c.writer.scratch = buf.buf[:0]
			return RecordWriteResult{}, &ChunkWriteError{Chunk: c.path, Message: fmt.Sprintf("fixed-mode record framed to %d bytes, want %d", buf.Len(), c.cfg.ChunkDataUnitSize)}
		}
		c.writer.scratch = buf.buf[:0]
		toWrite = buf.Bytes()
	} else {
		buf := &limitedBuffer{buf: append(c.writer.scratch[:0], 0, 0, 0, 0)}
		if err := record.WriteTo(globalPos, buf); err != nil {
			c.writer.scratch = buf.buf[:0]
			return RecordWriteResult{}, fmt.Errorf("could not frame record for chunk %s: %w", c.path, err)
		}
		length := int64(buf.Len() - 4)
		if length <= 0 || length > c.cfg.MaxLogRecordSize {
			c.writer.scratch = buf.buf[:0]
			return RecordWriteResult{}, &ChunkWriteError{Chunk: c.path, Message: fmt.Sprintf("record length %d outside (0..%d] (MaxLogRecordSize)", length, c.cfg.MaxLogRecordSize)}
		}
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(length))
		buf.buf = append(buf.buf, lb[:]...)
		copy(buf.buf[0:4], lb[:])
		c.writer.scratch = buf.buf[:0]
		if start+length+8 > c.header.ChunkDataTotalSize {
			return notEnoughSpaceResult, nil
		}
		toWrite = buf.Bytes()
	}

	if err := c.writer.AppendData(toWrite); err != nil {
		return RecordWriteResult{}, fmt.Errorf("could not append to chunk %s: %w", c.path, err)
	}
	newPos := start + int64(len(toWrite))
	atomic.StoreInt64(&c.dataPosition, newPos)

	// A mirror is only ever attached by TryCacheInMemory to an already
	// completed chunk, and the IsCompleted checks above already reject
	// writes by then, so c.mirror is always nil on this path.

	c.touch()
	return successResult(globalPos), nil
}

// TryReadAt reconstructs the record committed at dataPosition. If a memory
// mirror is attached, the read never touches the file.
func (c *Chunk) TryReadAt(dataPosition int64, readRecord ReadRecordFunc) (LogRecord, error) {
	if c.mirror != nil {
		return c.mirror.TryReadAt(dataPosition, readRecord)
	}
	if c.IsDeleting() {
		return nil, &InvalidReadError{Chunk: c.path, Message: "chunk is being deleted"}
	}

	if !c.isMemory && c.IsCompleted() && atomic.CompareAndSwapInt32(&c.cachingInProgress, 0, 1) {
		timeout.Call(func() { c.TryCacheInMemory() }, 0)
	}

	h := c.pool.acquire()
	defer c.pool.release(h)

	current := atomic.LoadInt64(&c.dataPosition)
	if dataPosition < 0 || dataPosition >= current {
		return nil, &InvalidReadError{Chunk: c.path, Message: fmt.Sprintf("position %d out of range [0..%d)", dataPosition, current)}
	}
	if _, err := h.Seek(headerSize+dataPosition, io.SeekStart); err != nil {
		return nil, &InvalidReadError{Chunk: c.path, Message: fmt.Sprintf("seek failed: %v", err)}
	}

	var rec LogRecord
	if c.fixedMode {
		unit := c.cfg.ChunkDataUnitSize
		if dataPosition+unit > current {
			return nil, &InvalidReadError{Chunk: c.path, Message: "record extends past committed data"}
		}
		cr := &countingReader{r: h}
		var err error
		rec, err = readRecord(int(unit), cr)
		if err != nil {
			return nil, &InvalidReadError{Chunk: c.path, Message: err.Error()}
		}
		if rec == nil {
			return nil, &InvalidReadError{Chunk: c.path, Message: "read_record returned nil"}
		}
		if cr.n != unit {
			return nil, &InvalidReadError{Chunk: c.path, Message: fmt.Sprintf("read_record consumed %d bytes, want %d", cr.n, unit)}
		}
	} else {
		var lb [4]byte
		if _, err := io.ReadFull(h, lb[:]); err != nil {
			return nil, &InvalidReadError{Chunk: c.path, Message: fmt.Sprintf("could not read length prefix: %v", err)}
		}
		length := int64(binary.LittleEndian.Uint32(lb[:]))
		if length <= 0 || length > c.cfg.MaxLogRecordSize {
			return nil, &InvalidReadError{Chunk: c.path, Message: fmt.Sprintf("invalid record length %d", length)}
		}
		if dataPosition+length+8 > current {
			return nil, &InvalidReadError{Chunk: c.path, Message: "record extends past committed data"}
		}
		var err error
		rec, err = readRecord(int(length), io.LimitReader(h, length))
		if err != nil {
			return nil, &InvalidReadError{Chunk: c.path, Message: err.Error()}
		}
		if rec == nil {
			return nil, &InvalidReadError{Chunk: c.path, Message: "read_record returned nil"}
		}
		// Reposition explicitly: read_record is not required to consume
		// exactly length bytes, but the suffix always lives at a fixed offset.
		if _, err := h.Seek(headerSize+dataPosition+4+length, io.SeekStart); err != nil {
			return nil, &InvalidReadError{Chunk: c.path, Message: fmt.Sprintf("seek to suffix failed: %v", err)}
		}
		var sb [4]byte
		if _, err := io.ReadFull(h, sb[:]); err != nil {
			return nil, &InvalidReadError{Chunk: c.path, Message: fmt.Sprintf("could not read length suffix: %v", err)}
		}
		if binary.LittleEndian.Uint32(sb[:]) != uint32(length) {
			return nil, &InvalidReadError{Chunk: c.path, Message: "length prefix/suffix mismatch"}
		}
	}

	c.touch()
	return rec, nil
}

// Flush syncs the writer durably; a no-op for a memory-backed chunk.
func (c *Chunk) Flush() error {
	c.writeSync.Lock()
	defer c.writeSync.Unlock()
	if c.writer == nil {
		return nil
	}
	return c.writer.FlushToDisk()
}

// Complete seals the chunk: it appends the footer, flushes, marks the chunk
// read-only, and completes the memory mirror if one is attached. Idempotent.
func (c *Chunk) Complete() error {
	c.writeSync.Lock()
	defer c.writeSync.Unlock()
	if c.IsCompleted() {
		return nil
	}

	dataPos := atomic.LoadInt64(&c.dataPosition)
	if c.fixedMode && dataPos != c.header.ChunkDataTotalSize {
		return &ChunkCompleteError{Chunk: c.path, Message: fmt.Sprintf("data_position=%d does not equal capacity=%d", dataPos, c.header.ChunkDataTotalSize)}
	}

	footer := ChunkFooter{ChunkDataTotalSize: dataPos}
	enc := encodeFooter(footer)
	if err := c.writer.AppendData(enc[:]); err != nil {
		return fmt.Errorf("could not append footer to chunk %s: %w", c.path, err)
	}
	if err := c.writer.FlushToDisk(); err != nil {
		return fmt.Errorf("could not flush chunk %s at completion: %w", c.path, err)
	}
	atomic.StoreInt32(&c.isCompleted, 1)

	if !c.isMemory {
		wantLen := headerSize + dataPos + footerSize
		if fi, err := c.file.Stat(); err == nil && fi.Size() != wantLen {
			if err := c.file.Truncate(wantLen); err != nil {
				c.logger.Warnf("could not truncate completed chunk %s to %d bytes: %v", c.path, wantLen, err)
			}
		}
	}

	if err := c.writer.Close(); err != nil {
		c.logger.Warnf("error closing writer for chunk %s: %v", c.path, err)
	}
	c.writer = nil
	// the writer above already closed c.file (fileStream.Close delegates to
	// it); nil it out so Delete/disposeBacking don't close it a second time.
	c.file = nil

	if !c.isMemory {
		if err := os.Chmod(c.path, 0444); err != nil {
			c.logger.Warnf("could not set read-only attribute on %s: %v", c.path, err)
		}
	}

	if c.mirror != nil {
		if err := c.mirror.Complete(); err != nil {
			return fmt.Errorf("could not complete memory mirror of %s: %w", c.path, err)
		}
	}
	return nil
}

// TryCacheInMemory admits this completed, file-backed chunk into memory if
// the configured budget allows it. Failures are logged, not returned: this
// is meant to be safe to call opportunistically from any goroutine.
func (c *Chunk) TryCacheInMemory() {
	c.cacheSync.Lock()
	defer c.cacheSync.Unlock()
	defer atomic.StoreInt32(&c.cachingInProgress, 0)

	if c.isMemory || !c.IsCompleted() || c.mirror != nil {
		return
	}

	dataPos := atomic.LoadInt64(&c.dataPosition)
	chunkSizeMB := float64(headerSize+dataPos+footerSize) / (1024 * 1024)
	totalMB := float64(c.memInfo.TotalPhysicalMB())
	usedMB := c.memInfo.UsedPercent() / 100 * totalMB

	if !c.cfg.ForceCacheChunk {
		if totalMB <= 0 || usedMB+chunkSizeMB > totalMB*float64(c.cfg.MessageChunkCacheMaxPercent)/100 {
			return
		}
	}

	mirror, err := FromCompletedFile(c.path, c.cfg, true, c.readRecord)
	if err != nil {
		c.logger.Warnf("could not build memory mirror for %s: %v", c.path, err)
		return
	}
	c.mirror = mirror
}

// UnCacheFromMemory detaches and disposes this chunk's memory mirror, if any.
func (c *Chunk) UnCacheFromMemory() error {
	c.cacheSync.Lock()
	defer c.cacheSync.Unlock()
	if c.isMemory {
		return fmt.Errorf("cannot uncache a memory chunk: %w", errors.ErrInvalid)
	}
	if c.mirror == nil {
		return nil
	}
	m := c.mirror
	c.mirror = nil
	return m.disposeBacking()
}

// Delete removes a completed, file-backed chunk. Readers in flight observe
// is_deleting and fail on their next acquire; readers already holding a
// handle either finish cleanly or fail, but never corrupt state.
func (c *Chunk) Delete() error {
	if c.isMemory {
		return fmt.Errorf("cannot delete a memory chunk: %w", errors.ErrInvalid)
	}
	if !c.IsCompleted() {
		return fmt.Errorf("cannot delete a chunk that is not completed: %w", errors.ErrConflict)
	}
	atomic.StoreInt32(&c.isDeleting, 1)

	c.cacheSync.Lock()
	if c.mirror != nil {
		m := c.mirror
		c.mirror = nil
		if err := m.disposeBacking(); err != nil {
			c.logger.Warnf("error releasing memory mirror during delete of %s: %v", c.path, err)
		}
	}
	c.cacheSync.Unlock()

	if c.pool != nil {
		c.pool.closeAll()
	}
	if err := os.Chmod(c.path, 0644); err != nil {
		c.logger.Warnf("could not clear read-only attribute on %s before delete: %v", c.path, err)
	}
	if c.file != nil {
		if err := c.file.Close(); err != nil {
			c.logger.Warnf("error closing file handle for %s: %v", c.path, err)
		}
		c.file = nil
	}
	return os.Remove(c.path)
}

// Close disposes this chunk's local resources (writer, reader pool, backing
// file or buffer) without touching the chunk file on disk. An attached memory
// mirror is detached and its resources are released as well.
func (c *Chunk) Close() error {
	c.writeSync.Lock()
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.logger.Warnf("error closing writer for %s: %v", c.path, err)
		}
		c.writer = nil
		// the writer above already closed c.file for a file-backed chunk
		// (fileStream.Close delegates to it); nil it out so disposeBacking
		// doesn't close it a second time.
		c.file = nil
	}
	c.writeSync.Unlock()

	c.cacheSync.Lock()
	if c.mirror != nil {
		m := c.mirror
		c.mirror = nil
		if err := m.disposeBacking(); err != nil {
			c.logger.Warnf("error releasing memory mirror of %s: %v", c.path, err)
		}
	}
	c.cacheSync.Unlock()

	return c.disposeBacking()
}

func (c *Chunk) disposeBacking() error {
	if c.pool != nil {
		c.pool.closeAll()
		c.pool = nil
	}
	var err error
	if c.file != nil {
		err = c.file.Close()
		c.file = nil
	}
	if c.mmf != nil {
		if e := c.mmf.Close(); e != nil && err == nil {
			err = e
		}
		c.mmf = nil
	}
	return err
}

// Path returns the chunk's file path (meaningful even for a memory chunk,
// which uses it only for naming and logging).
func (c *Chunk) Path() string { return c.path }

// Header returns the chunk's header.
func (c *Chunk) Header() ChunkHeader { return c.header }

// DataPosition returns the number of data bytes committed so far.
func (c *Chunk) DataPosition() int64 { return atomic.LoadInt64(&c.dataPosition) }

// IsCompleted reports whether the chunk has been sealed with a footer.
func (c *Chunk) IsCompleted() bool { return atomic.LoadInt32(&c.isCompleted) == 1 }

// IsDeleting reports whether Delete has been called on this chunk.
func (c *Chunk) IsDeleting() bool { return atomic.LoadInt32(&c.isDeleting) == 1 }

// IsMemory reports whether this chunk is a memory mirror.
func (c *Chunk) IsMemory() bool { return c.isMemory }

// LastActiveTime returns the time of the most recent append or read.
func (c *Chunk) LastActiveTime() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActiveTimeNano))
}

func (c *Chunk) touch() {
	atomic.StoreInt64(&c.lastActiveTimeNano, time.Now().UnixNano())
}

// countingReader wraps an io.Reader to track exactly how many bytes were
// consumed from it, used to verify fixed-mode records advance the reader by
// exactly one unit.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// limitedBuffer is the writerContext scratch buffer viewed as an io.Writer:
// LogRecord.WriteTo appends its payload bytes to it.
type limitedBuffer struct {
	buf []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte { return b.buf }
func (b *limitedBuffer) Len() int      { return len(b.buf) }
