// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/tierkv/lib/clock"
	"github.com/bureau-foundation/tierkv/lib/compress"
	"github.com/bureau-foundation/tierkv/lib/heat"
)

func allNoneConfig() Config {
	var tiers [5]compress.Algorithm
	return Config{
		TierAlgorithms:    tiers, // AlgorithmNone everywhere
		ChunkSize:         16,
		HeatDecayStrategy: heat.DecayLinear,
		HeatDecayAmount:   50,
	}
}

func newTestStore(t *testing.T, config Config) *ChunkStore {
	t.Helper()
	dir := t.TempDir()
	cs, err := New(filepath.Join(dir, "chunks"), filepath.Join(dir, "chunk_metadata.db"), config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cs
}

func repeatBytes(pattern byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = pattern + byte(i%7)
	}
	return out
}

func TestInsertGetRoundtrip(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	data := repeatBytes('a', 100) // 100 bytes / 16-byte chunks = 7 chunks

	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := cs.Get("doc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip mismatch: got %v want %v", got, data)
	}
}

func TestInsertGetRoundtripCompressed(t *testing.T) {
	config := allNoneConfig()
	config.TierAlgorithms[heat.T4] = compress.AlgorithmZstdMax
	config.Encode = compress.Encode
	config.Decode = compress.Decode
	cs := newTestStore(t, config)

	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 20)
	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := cs.Get("doc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip mismatch after compression")
	}
}

func TestInsertEmptyValueProducesSingleEmptyChunk(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	if err := cs.Insert("empty", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := cs.Get("empty")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty value, got %d bytes", len(got))
	}

	file := cs.files["empty"]
	if file.NumChunks != 1 {
		t.Fatalf("expected 1 chunk for an empty value, got %d", file.NumChunks)
	}
}

func TestGetRangeReturnsOnlyRequestedChunks(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	data := repeatBytes('b', 64) // exactly 4 chunks of 16 bytes

	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := cs.GetRange("doc", 1, 2)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	want := data[16:48]
	if !bytes.Equal(got, want) {
		t.Fatalf("GetRange(1,2) = %v, want %v", got, want)
	}
}

func TestGetRangeOutOfBoundsIsRejected(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	data := repeatBytes('c', 64)
	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := cs.GetRange("doc", 0, 10); err != ErrOutOfRange {
		t.Fatalf("GetRange(0,10) error = %v, want ErrOutOfRange", err)
	}
	if _, err := cs.GetRange("doc", 2, 1); err != ErrOutOfRange {
		t.Fatalf("GetRange(2,1) error = %v, want ErrOutOfRange", err)
	}
}

func TestGetRangeMissingKeyIsAbsentNotError(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	if _, err := cs.GetRange("missing", 0, 0); err != ErrNotFound {
		t.Fatalf("GetRange on missing key error = %v, want ErrNotFound", err)
	}
}

func TestGetRangeOnlyTouchesRequestedChunkHeat(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	data := repeatBytes('d', 64)
	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	file := cs.files["doc"]
	initialHeat := file.Chunks[0].Heat

	if _, err := cs.GetRange("doc", 2, 3); err != nil {
		t.Fatalf("GetRange: %v", err)
	}

	if file.Chunks[0].Heat != initialHeat {
		t.Fatalf("chunk 0 heat changed from a range read that did not touch it: %d -> %d",
			initialHeat, file.Chunks[0].Heat)
	}
	if file.Chunks[2].Heat <= initialHeat {
		t.Fatalf("chunk 2 heat did not bump after being read: %d", file.Chunks[2].Heat)
	}
}

func TestRemoveDeletesKeyAndChunkFiles(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	data := repeatBytes('e', 48)
	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if !cs.Remove("doc") {
		t.Fatalf("Remove returned false for a present key")
	}
	if cs.Remove("doc") {
		t.Fatalf("Remove returned true the second time for an already-removed key")
	}
	if cs.Has("doc") {
		t.Fatalf("key still present after Remove")
	}
	if _, err := cs.Get("doc"); err != ErrNotFound {
		t.Fatalf("Get after Remove error = %v, want ErrNotFound", err)
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "chunks")
	metaPath := filepath.Join(dir, "chunk_metadata.db")
	config := allNoneConfig()

	cs, err := New(chunkDir, metaPath, config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := repeatBytes('f', 80)
	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := cs.GetRange("doc", 0, 0); err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if err := cs.SaveMetadata(); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	reopened, err := New(chunkDir, metaPath, config)
	if err != nil {
		t.Fatalf("reopen New: %v", err)
	}

	// Compare heat before reading: Get bumps the heat of every chunk.
	file := reopened.files["doc"]
	if file.Chunks[0].Heat != cs.files["doc"].Chunks[0].Heat {
		t.Fatalf("chunk heat not preserved across reopen: got %d want %d",
			file.Chunks[0].Heat, cs.files["doc"].Chunks[0].Heat)
	}

	got, err := reopened.Get("doc")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip after reopen mismatch")
	}
}

func TestDecayDefersTierUpdateUntilRecompressionSucceeds(t *testing.T) {
	config := allNoneConfig()
	config.TierAlgorithms[heat.T4] = compress.AlgorithmZstdMax
	config.Encode = compress.Encode
	config.Decode = compress.Decode
	config.HeatDecayStrategy = heat.DecayLinear
	config.HeatDecayAmount = heat.Max // one decay pass drives heat straight to 0 (T4)

	fake := clock.Fake(time.Unix(1000, 0))
	config.Clock = fake

	cs := newTestStore(t, config)
	data := bytes.Repeat([]byte("recompress me please "), 10)
	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	file := cs.files["doc"]
	meta := file.Chunks[0]

	// Simulate a chunk that had previously migrated to T0 (stored
	// uncompressed, since config's T0 algorithm is AlgorithmNone) so
	// the file on disk matches the metadata before decay runs.
	plaintext, err := cs.readChunkFile("doc", 0, meta)
	if err != nil {
		t.Fatalf("reading chunk for test setup: %v", err)
	}
	if err := cs.writeChunkFile("doc", 0, plaintext, plaintext); err != nil {
		t.Fatalf("rewriting chunk for test setup: %v", err)
	}
	meta.Tier = heat.T0
	meta.algorithm = compress.AlgorithmNone
	meta.CompressedSize = uint64(len(plaintext))

	fake.Advance(time.Hour)
	cs.Decay()

	if meta.Tier != heat.T4 {
		t.Fatalf("expected successful recompression to update tier to T4, got %v", meta.Tier)
	}

	got, err := cs.Get("doc")
	if err != nil {
		t.Fatalf("Get after decay: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("value corrupted by decay recompression")
	}
}

func TestVerifyChunkDetectsCorruption(t *testing.T) {
	cs := newTestStore(t, allNoneConfig())
	data := repeatBytes('g', 32)
	if err := cs.Insert("doc", data); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ok, err := cs.VerifyChunk("doc", 0)
	if err != nil {
		t.Fatalf("VerifyChunk: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyChunk reported corruption on an untouched chunk")
	}

	// Corrupt the chunk file's ciphertext directly, leaving the stored
	// hash untouched.
	path := cs.chunkFilePath("doc", 0)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading chunk file: %v", err)
	}
	if len(raw) <= chunkHashSize {
		t.Fatalf("chunk file too short to corrupt meaningfully")
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing corrupted chunk file: %v", err)
	}

	ok, err = cs.VerifyChunk("doc", 0)
	if err != nil {
		t.Fatalf("VerifyChunk after corruption: %v", err)
	}
	if ok {
		t.Fatalf("VerifyChunk did not detect corruption")
	}
}
