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
	"errors"
	"testing"

	solarisErrors "github.com/solarisdb/solaris/golibs/errors"
	"github.com/stretchr/testify/assert"
)

func TestCorruptChunkErrorUnwrap(t *testing.T) {
	err := &CorruptChunkError{Path: "c.log", Message: "bad magic"}
	assert.ErrorIs(t, err, solarisErrors.ErrDataLoss)
	assert.Contains(t, err.Error(), "c.log")
}

func TestChunkWriteErrorUnwrap(t *testing.T) {
	err := &ChunkWriteError{Chunk: "c.log", Message: "too large"}
	assert.ErrorIs(t, err, solarisErrors.ErrInvalid)
}

func TestChunkCompleteErrorUnwrap(t *testing.T) {
	err := &ChunkCompleteError{Chunk: "c.log", Message: "short"}
	assert.ErrorIs(t, err, solarisErrors.ErrConflict)
}

func TestInvalidReadErrorUnwrap(t *testing.T) {
	err := &InvalidReadError{Chunk: "c.log", Message: "oob"}
	assert.ErrorIs(t, err, solarisErrors.ErrInvalid)
}

func TestErrorsAsChunkWriteError(t *testing.T) {
	var wrapped error = &ChunkWriteError{Chunk: "c.log", Message: "x"}
	var target *ChunkWriteError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "c.log", target.Chunk)
}
