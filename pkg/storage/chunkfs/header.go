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
)

// ChunkHeader is the fixed-width record written at offset 0 of every chunk file.
// Its on-disk layout never changes: 4-byte magic, 4-byte version, then two
// little-endian int64 fields.
type ChunkHeader struct {
	// ChunkNumber is the monotonic identifier assigned by the caller.
	ChunkNumber int64
	// ChunkDataTotalSize is the planned capacity of the data region, in bytes.
	ChunkDataTotalSize int64
}

// ChunkFooter is the fixed-width record appended once a chunk is completed.
type ChunkFooter struct {
	// ChunkDataTotalSize is the actual number of bytes written at completion.
	ChunkDataTotalSize int64
}

const (
	headerMagic uint32 = 0x534F4C43 // "SOLC"
	footerMagic uint32 = 0x534F4C46 // "SOLF"

	// headerSize (H) and footerSize (F) are implementation-chosen constants.
	// They must remain stable forever: every existing chunk file on disk
	// depends on these exact offsets.
	headerSize = 24
	footerSize = 16
)

// ChunkDataStartPosition returns the logical global-log address of the first
// byte of this chunk's data region.
func (h ChunkHeader) ChunkDataStartPosition() int64 {
	return h.ChunkNumber * h.ChunkDataTotalSize
}

// ChunkDataEndPosition returns the logical global-log address just past the
// last byte of this chunk's data region.
func (h ChunkHeader) ChunkDataEndPosition() int64 {
	return h.ChunkDataStartPosition() + h.ChunkDataTotalSize
}

func encodeHeader(h ChunkHeader) [headerSize]byte {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], headerMagic)
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.ChunkNumber))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.ChunkDataTotalSize))
	return buf
}

func decodeHeader(buf []byte) (ChunkHeader, error) {
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != headerMagic {
		return ChunkHeader{}, &CorruptChunkError{Message: fmt.Sprintf("bad header magic %x", magic)}
	}
	return ChunkHeader{
		ChunkNumber:        int64(binary.LittleEndian.Uint64(buf[8:16])),
		ChunkDataTotalSize: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}

func encodeFooter(f ChunkFooter) [footerSize]byte {
	var buf [footerSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], footerMagic)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(f.ChunkDataTotalSize))
	return buf
}

func decodeFooter(buf []byte) (ChunkFooter, error) {
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != footerMagic {
		return ChunkFooter{}, &CorruptChunkError{Message: fmt.Sprintf("bad footer magic %x", magic)}
	}
	return ChunkFooter{ChunkDataTotalSize: int64(binary.LittleEndian.Uint64(buf[4:12]))}, nil
}

func writeHeader(w io.Writer, h ChunkHeader) error {
	buf := encodeHeader(h)
	_, err := w.Write(buf[:])
	return err
}

func readHeader(r io.Reader) (ChunkHeader, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ChunkHeader{}, &CorruptChunkError{Message: fmt.Sprintf("could not read %d-byte header: %v", headerSize, err)}
	}
	return decodeHeader(buf[:])
}

func writeFooter(w io.Writer, f ChunkFooter) error {
	buf := encodeFooter(f)
	_, err := w.Write(buf[:])
	return err
}

func readFooter(r io.Reader) (ChunkFooter, error) {
	var buf [footerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ChunkFooter{}, &CorruptChunkError{Message: fmt.Sprintf("could not read %d-byte footer: %v", footerSize, err)}
	}
	return decodeFooter(buf[:])
}

// readHeaderAt and readFooterAt read the fixed-width structures from an
// io.ReaderAt without disturbing any other reader's cursor.
func readHeaderAt(r io.ReaderAt, off int64) (ChunkHeader, error) {
	return readHeader(io.NewSectionReader(r, off, headerSize))
}

func readFooterAt(r io.ReaderAt, off int64) (ChunkFooter, error) {
	return readFooter(io.NewSectionReader(r, off, footerSize))
}
