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

// ChunkConfig is immutable after construction and shared by every Chunk
// opened against the same log. Exactly one of the two sizing schemes must
// be specified: ChunkDataSize for variable-length records, or
// ChunkDataUnitSize+ChunkDataCount for fixed-size records.
type ChunkConfig struct {
	// ChunkDataSize is the data region capacity for variable-record chunks.
	ChunkDataSize int64
	// ChunkDataUnitSize is the size of one record in fixed-record mode.
	ChunkDataUnitSize int64
	// ChunkDataCount is the number of records the chunk holds in fixed-record mode.
	ChunkDataCount int64
	// MaxLogRecordSize bounds a single record's payload in variable-record mode.
	MaxLogRecordSize int64
	// ChunkReaderCount is the number of concurrent reader handles the pool keeps open.
	ChunkReaderCount int
	// MessageChunkCacheMaxPercent is the percentage of total physical memory that
	// the host's used memory plus the chunk's size must stay within for
	// TryCacheInMemory to admit the chunk, absent ForceCacheChunk.
	MessageChunkCacheMaxPercent int
	// ForceCacheChunk bypasses the memory budget check in TryCacheInMemory.
	ForceCacheChunk bool
}

// GetDefaultConfig returns reasonable defaults for variable-record chunks.
func GetDefaultConfig() ChunkConfig {
	return ChunkConfig{
		ChunkDataSize:               64 * 1024 * 1024,
		MaxLogRecordSize:            1024 * 1024,
		ChunkReaderCount:            4,
		MessageChunkCacheMaxPercent: 50,
	}
}

// FixedMode reports whether the config selects fixed-size record layout.
func (c ChunkConfig) FixedMode() bool {
	return c.ChunkDataUnitSize > 0 && c.ChunkDataCount > 0
}

// DataTotalSize returns the planned data-region capacity implied by the config.
func (c ChunkConfig) DataTotalSize() int64 {
	if c.FixedMode() {
		return c.ChunkDataUnitSize * c.ChunkDataCount
	}
	return c.ChunkDataSize
}

// Validate checks the config is self-consistent.
func (c ChunkConfig) Validate() error {
	if c.FixedMode() {
		if c.ChunkDataSize > 0 {
			return fmt.Errorf("chunk config must not mix fixed and variable sizing: %w", errors.ErrInvalid)
		}
	} else if c.ChunkDataSize <= 0 {
		return fmt.Errorf("chunk config must specify either ChunkDataSize or ChunkDataUnitSize+ChunkDataCount: %w", errors.ErrInvalid)
	}
	if !c.FixedMode() && c.MaxLogRecordSize <= 0 {
		return fmt.Errorf("MaxLogRecordSize must be positive in variable-record mode: %w", errors.ErrInvalid)
	}
	if c.ChunkReaderCount < 1 {
		return fmt.Errorf("ChunkReaderCount must be at least 1: %w", errors.ErrInvalid)
	}
	if c.MessageChunkCacheMaxPercent < 0 || c.MessageChunkCacheMaxPercent > 100 {
		return fmt.Errorf("MessageChunkCacheMaxPercent must be in [0..100]: %w", errors.ErrInvalid)
	}
	return nil
}
