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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variableCfg(dataSize int64) ChunkConfig {
	return ChunkConfig{
		ChunkDataSize:    dataSize,
		MaxLogRecordSize: 1024,
		ChunkReaderCount: 2,
	}
}

func fixedCfg(unitSize, count int64) ChunkConfig {
	return ChunkConfig{
		ChunkDataUnitSize: unitSize,
		ChunkDataCount:    count,
		ChunkReaderCount:  2,
	}
}

func TestChunk_VariableMode_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.chunk")
	c, err := CreateNew(path, 0, variableCfg(4096), false, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	var positions []int64
	payloads := []string{"one", "two", "three"}
	for _, p := range payloads {
		res, err := c.TryAppend(newTextRecord(p))
		require.NoError(t, err)
		require.False(t, res.NotEnoughSpace)
		positions = append(positions, res.Position)
	}

	for i, pos := range positions {
		rec, err := c.TryReadAt(pos, readTextRecord)
		require.NoError(t, err)
		tr, ok := rec.(textRecord)
		require.True(t, ok)
		assert.Equal(t, payloads[i], tr.Payload)
	}
}

func TestChunk_VariableMode_ExactByteLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v2.chunk")
	c, err := CreateNew(path, 0, variableCfg(4096), false, readTextRecord)
	require.NoError(t, err)

	rec := newTextRecord("hi")
	res, err := c.TryAppend(rec)
	require.NoError(t, err)
	require.NoError(t, c.Flush())

	wantPayload := fmt.Sprintf("%s|%s", rec.ID.String(), rec.Payload)
	wantLen := uint32(len(wantPayload))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	frame := make([]byte, 4+len(wantPayload)+4)
	_, err = f.ReadAt(frame, headerSize+res.Position)
	require.NoError(t, err)

	assert.Equal(t, wantLen, binary.LittleEndian.Uint32(frame[0:4]))
	assert.Equal(t, wantPayload, string(frame[4:4+len(wantPayload)]))
	assert.Equal(t, wantLen, binary.LittleEndian.Uint32(frame[4+len(wantPayload):]))

	require.NoError(t, c.Close())
}

func TestChunk_VariableMode_NotEnoughSpace(t *testing.T) {
	// Capacity for the 4+4 length prefix/suffix plus roughly one record only.
	path := filepath.Join(t.TempDir(), "v3.chunk")
	c, err := CreateNew(path, 0, variableCfg(40), false, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	var gotOverflow bool
	for i := 0; i < 10; i++ {
		res, err := c.TryAppend(newTextRecord("x"))
		require.NoError(t, err)
		if res.NotEnoughSpace {
			gotOverflow = true
			break
		}
	}
	assert.True(t, gotOverflow, "expected a NotEnoughSpace result before capacity was exceeded")
}

func TestChunk_FixedMode_RoundTripAndOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f1.chunk")
	c, err := CreateNew(path, 0, fixedCfg(16, 3), false, fixedRecordReader(16))
	require.NoError(t, err)
	defer c.Close()

	var positions []int64
	for i := int64(0); i < 3; i++ {
		res, err := c.TryAppend(fixedRecord{width: 16, value: i * 10})
		require.NoError(t, err)
		require.False(t, res.NotEnoughSpace)
		positions = append(positions, res.Position)
	}

	res, err := c.TryAppend(fixedRecord{width: 16, value: 999})
	require.NoError(t, err)
	assert.True(t, res.NotEnoughSpace)

	for i, pos := range positions {
		rec, err := c.TryReadAt(pos, fixedRecordReader(16))
		require.NoError(t, err)
		fr := rec.(fixedRecord)
		assert.Equal(t, i*10, int(fr.value))
	}
}

func TestChunk_Complete_RequiresFullFixedChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f2.chunk")
	c, err := CreateNew(path, 0, fixedCfg(16, 3), false, fixedRecordReader(16))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.TryAppend(fixedRecord{width: 16, value: 1})
	require.NoError(t, err)

	err = c.Complete()
	var completeErr *ChunkCompleteError
	assert.ErrorAs(t, err, &completeErr)
}

func TestChunk_Complete_SealsAndRejectsFurtherWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v4.chunk")
	c, err := CreateNew(path, 0, variableCfg(4096), false, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.TryAppend(newTextRecord("a"))
	require.NoError(t, err)
	require.NoError(t, c.Complete())
	assert.True(t, c.IsCompleted())

	_, err = c.TryAppend(newTextRecord("b"))
	var writeErr *ChunkWriteError
	assert.ErrorAs(t, err, &writeErr)
}

func TestChunk_FromCompletedFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v5.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)

	var positions []int64
	for _, p := range []string{"alpha", "beta", "gamma"} {
		res, err := c.TryAppend(newTextRecord(p))
		require.NoError(t, err)
		positions = append(positions, res.Position)
	}
	require.NoError(t, c.Complete())
	require.NoError(t, c.Close())

	reopened, err := FromCompletedFile(path, cfg, false, readTextRecord)
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.IsCompleted())
	assert.Equal(t, int64(0), reopened.Header().ChunkNumber)

	for i, pos := range positions {
		rec, err := reopened.TryReadAt(pos, readTextRecord)
		require.NoError(t, err)
		tr := rec.(textRecord)
		assert.Equal(t, []string{"alpha", "beta", "gamma"}[i], tr.Payload)
	}
}

func TestChunk_FromCompletedFile_DetectsLengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v6.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)
	_, err = c.TryAppend(newTextRecord("x"))
	require.NoError(t, err)
	require.NoError(t, c.Complete())
	require.NoError(t, c.Close())

	require.NoError(t, os.Chmod(path, 0644))
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(20))
	require.NoError(t, f.Close())

	_, err = FromCompletedFile(path, cfg, false, readTextRecord)
	var corrupt *CorruptChunkError
	assert.ErrorAs(t, err, &corrupt)
}

func TestChunk_FromOngoingFile_RecoversDataPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v7.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)

	var lastGoodPos int64
	for _, p := range []string{"r1", "r2", "r3"} {
		res, err := c.TryAppend(newTextRecord(p))
		require.NoError(t, err)
		lastGoodPos = res.Position
	}
	require.NoError(t, c.Flush())
	// Close without Complete: simulates the owning process stopping mid-write.
	require.NoError(t, c.Close())

	recovered, err := FromOngoingFile(path, cfg, false, readTextRecord)
	require.NoError(t, err)
	defer recovered.Close()

	assert.False(t, recovered.IsCompleted())
	assert.Greater(t, recovered.DataPosition(), lastGoodPos)

	rec, err := recovered.TryReadAt(lastGoodPos, readTextRecord)
	require.NoError(t, err)
	assert.Equal(t, "r3", rec.(textRecord).Payload)

	// The recovered chunk must still be writable.
	res, err := recovered.TryAppend(newTextRecord("r4"))
	require.NoError(t, err)
	assert.False(t, res.NotEnoughSpace)
}

func TestChunk_FromOngoingFile_StopsAtCorruptSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v8.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)

	res1, err := c.TryAppend(newTextRecord("good"))
	require.NoError(t, err)
	rec2 := newTextRecord("corrupted")
	res2, err := c.TryAppend(rec2)
	require.NoError(t, err)
	require.NoError(t, c.Flush())
	require.NoError(t, c.Close())

	payload2 := fmt.Sprintf("%s|%s", rec2.ID.String(), rec2.Payload)

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	var bad [4]byte
	binary.LittleEndian.PutUint32(bad[:], 0xFFFFFFFF)
	_, err = f.WriteAt(bad[:], headerSize+res2.Position+4+int64(len(payload2)))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recovered, err := FromOngoingFile(path, cfg, false, readTextRecord)
	require.NoError(t, err)
	defer recovered.Close()

	assert.Equal(t, res2.Position, recovered.DataPosition())
	rec, err := recovered.TryReadAt(res1.Position, readTextRecord)
	require.NoError(t, err)
	assert.Equal(t, "good", rec.(textRecord).Payload)
}

func TestChunk_MemoryMirror_ParityAcrossManyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v9.chunk")
	cfg := variableCfg(1 << 20)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	var positions []int64
	var payloads []string
	for i := 0; i < 100; i++ {
		payload := fmt.Sprintf("record-%d", i)
		res, err := c.TryAppend(newTextRecord(payload))
		require.NoError(t, err)
		positions = append(positions, res.Position)
		payloads = append(payloads, payload)
	}
	require.NoError(t, c.Complete())

	c.cfg.ForceCacheChunk = true
	c.TryCacheInMemory()
	require.NotNil(t, c.mirror)

	for i, pos := range positions {
		rec, err := c.TryReadAt(pos, readTextRecord)
		require.NoError(t, err)
		assert.Equal(t, payloads[i], rec.(textRecord).Payload)
	}
}

func TestChunk_UnCacheFromMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v10.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.TryAppend(newTextRecord("x"))
	require.NoError(t, err)
	require.NoError(t, c.Complete())

	c.cfg.ForceCacheChunk = true
	c.TryCacheInMemory()
	require.NotNil(t, c.mirror)

	require.NoError(t, c.UnCacheFromMemory())
	assert.Nil(t, c.mirror)
}

func TestChunk_Delete_MarksDeletingAndRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v11.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)

	res, err := c.TryAppend(newTextRecord("gone soon"))
	require.NoError(t, err)
	require.NoError(t, c.Complete())

	require.NoError(t, c.Delete())
	assert.True(t, c.IsDeleting())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	_, err = c.TryReadAt(res.Position, readTextRecord)
	var readErr *InvalidReadError
	assert.ErrorAs(t, err, &readErr)
}

func TestChunk_Delete_RejectsIncompleteAndMemoryChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v12.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	err = c.Delete()
	assert.Error(t, err)

	mc, err := CreateNew(filepath.Join(t.TempDir(), "mem.chunk"), 0, cfg, true, readTextRecord)
	require.NoError(t, err)
	defer mc.Close()
	err = mc.Delete()
	assert.Error(t, err)
}

func TestChunk_ReadOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v13.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, false, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.TryAppend(newTextRecord("only"))
	require.NoError(t, err)

	_, err = c.TryReadAt(9999, readTextRecord)
	var readErr *InvalidReadError
	assert.ErrorAs(t, err, &readErr)

	_, err = c.TryReadAt(-1, readTextRecord)
	assert.ErrorAs(t, err, &readErr)
}

func TestChunk_MemoryChunk_CreateAppendReadComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem2.chunk")
	cfg := variableCfg(4096)
	c, err := CreateNew(path, 0, cfg, true, readTextRecord)
	require.NoError(t, err)
	defer c.Close()

	res, err := c.TryAppend(newTextRecord("in memory"))
	require.NoError(t, err)
	rec, err := c.TryReadAt(res.Position, readTextRecord)
	require.NoError(t, err)
	assert.Equal(t, "in memory", rec.(textRecord).Payload)

	require.NoError(t, c.Complete())
	assert.True(t, c.IsCompleted())

	// A memory chunk never creates a file at its path.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
