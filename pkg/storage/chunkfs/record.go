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
	"io"

	"github.com/shirou/gopsutil/v4/mem"
)

type (
	// LogRecord is the external payload contract. A record knows how to
	// write its own bytes once it is told the logical address it will
	// occupy; record encoding itself is the caller's concern.
	LogRecord interface {
		WriteTo(globalPosition int64, w io.Writer) error
	}

	// ReadRecordFunc reconstructs a LogRecord from exactly length bytes
	// (variable mode) or cfg.ChunkDataUnitSize bytes (fixed mode) read from
	// r. Returning a nil record with a nil error signals corruption, exactly
	// like returning a non-nil error.
	ReadRecordFunc func(length int, r io.Reader) (LogRecord, error)

	// RecordWriteResult is the outcome of TryAppend: either the record was
	// committed at Position, or the chunk did not have enough remaining
	// capacity and nothing was written.
	RecordWriteResult struct {
		Position       int64
		NotEnoughSpace bool
	}

	// MemoryInfo is queried by TryCacheInMemory's admission check.
	MemoryInfo interface {
		TotalPhysicalMB() uint64
		UsedPercent() float64
	}

	gopsutilMemoryInfo struct{}
)

// successResult reports a record committed at the given global position.
func successResult(position int64) RecordWriteResult {
	return RecordWriteResult{Position: position}
}

// notEnoughSpaceResult reports that a chunk lacked the capacity for the record.
var notEnoughSpaceResult = RecordWriteResult{NotEnoughSpace: true}

// NewMemoryInfo returns a MemoryInfo backed by the host's real physical memory.
func NewMemoryInfo() MemoryInfo {
	return gopsutilMemoryInfo{}
}

func (gopsutilMemoryInfo) TotalPhysicalMB() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Total / (1024 * 1024)
}

func (gopsutilMemoryInfo) UsedPercent() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 100
	}
	return vm.UsedPercent
}
