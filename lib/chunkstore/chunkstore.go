// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/tierkv/lib/clock"
	"github.com/bureau-foundation/tierkv/lib/compress"
	"github.com/bureau-foundation/tierkv/lib/heat"
)

// ChunkMetadata describes one chunk of a chunked key: the same shape
// as kvstore.NodeMetadata, scoped to a single chunk, plus the chunk's
// id and its byte offset within the original value.
type ChunkMetadata struct {
	ChunkID        uint32
	Heat           uint32
	CompressedSize uint64
	OriginalSize   uint64
	FileOffset     uint64
	Tier           heat.Tier
	LastAccess     int64

	algorithm compress.Algorithm // not persisted in chunk_metadata.db; re-derived from Tier via Config
}

// ChunkedFileMetadata describes one chunked key.
type ChunkedFileMetadata struct {
	TotalSize uint64
	ChunkSize uint64
	NumChunks uint32
	Chunks    map[uint32]*ChunkMetadata
}

// Config configures a ChunkStore.
type Config struct {
	TierAlgorithms [5]compress.Algorithm
	ChunkSize      uint64

	EnableHeatDecay   bool
	HeatDecayStrategy heat.DecayStrategy
	HeatDecayFactor   int
	HeatDecayAmount   int

	Encode EncodeFunc
	Decode DecodeFunc

	Clock  clock.Clock
	Logger *slog.Logger
}

type EncodeFunc func(algo compress.Algorithm, plaintext []byte) ([]byte, error)
type DecodeFunc func(algo compress.Algorithm, ciphertext []byte, originalSize int) ([]byte, error)

func (c *Config) algorithmForTier(t heat.Tier) compress.Algorithm {
	return c.TierAlgorithms[t]
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Encode == nil {
		out.Encode = compress.Encode
	}
	if out.Decode == nil {
		out.Decode = compress.Decode
	}
	if out.Clock == nil {
		out.Clock = clock.Real()
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return out
}

// ChunkStore splits large values into fixed-size, independently
// compressed and heat-tracked chunk files, one per-key subdirectory
// under root.
type ChunkStore struct {
	root         string // chunks/ directory
	metadataPath string // chunk_metadata.db path
	config       Config

	files map[string]*ChunkedFileMetadata
}

// New constructs a ChunkStore rooted at root, loading an existing
// chunk_metadata.db from metadataPath if present.
func New(root, metadataPath string, config Config) (*ChunkStore, error) {
	cs := &ChunkStore{
		root:         root,
		metadataPath: metadataPath,
		config:       config.withDefaults(),
		files:        make(map[string]*ChunkedFileMetadata),
	}

	if err := cs.loadMetadata(); err != nil {
		return nil, fmt.Errorf("chunkstore: loading chunk metadata: %w", err)
	}
	return cs, nil
}

// Has reports whether key has a chunked entry.
func (cs *ChunkStore) Has(key string) bool {
	_, ok := cs.files[key]
	return ok
}

// Len returns the number of chunked keys currently tracked.
func (cs *ChunkStore) Len() int {
	return len(cs.files)
}

// Insert splits data into fixed-size chunks under key, each encoded
// at tier T4 (coldest), and installs the resulting index entry.
func (cs *ChunkStore) Insert(key string, data []byte) error {
	chunkSize := cs.config.ChunkSize
	if chunkSize == 0 {
		return fmt.Errorf("chunkstore: chunk size is zero")
	}

	numChunks := uint32((uint64(len(data)) + chunkSize - 1) / chunkSize)
	if numChunks == 0 {
		numChunks = 1 // an empty value still occupies a single empty chunk
	}

	dir := cs.keyDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("chunkstore: creating chunk directory for %q: %w", key, err)
	}

	algo := cs.config.algorithmForTier(heat.T4)
	chunks := make(map[uint32]*ChunkMetadata, numChunks)

	for i := uint32(0); i < numChunks; i++ {
		start := uint64(i) * chunkSize
		end := start + chunkSize
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		plaintext := data[start:end]

		ciphertext, err := cs.config.Encode(algo, plaintext)
		if err != nil {
			cs.config.Logger.Warn("chunkstore: encode failed on insert, storing uncompressed",
				"key", key, "chunk_id", i, "error", err)
			ciphertext = plaintext
			algo = compress.AlgorithmNone
		}

		if err := cs.writeChunkFile(key, i, plaintext, ciphertext); err != nil {
			return fmt.Errorf("chunkstore: writing chunk %d of %q: %w", i, key, err)
		}

		chunks[i] = &ChunkMetadata{
			ChunkID:        i,
			Heat:           uint32(heat.DefaultInsertHeat()),
			CompressedSize: uint64(len(ciphertext)),
			OriginalSize:   uint64(len(plaintext)),
			FileOffset:     start,
			Tier:           heat.T4,
			LastAccess:     0,
			algorithm:      algo,
		}
	}

	cs.files[key] = &ChunkedFileMetadata{
		TotalSize: uint64(len(data)),
		ChunkSize: chunkSize,
		NumChunks: numChunks,
		Chunks:    chunks,
	}
	return nil
}

// GetRange reads chunks [start, end] of key and returns their
// concatenated plaintext. Returns ErrNotFound if key has no chunked
// entry, ErrOutOfRange if 0 ≤ start ≤ end < num_chunks is violated.
func (cs *ChunkStore) GetRange(key string, start, end uint32) ([]byte, error) {
	file, ok := cs.files[key]
	if !ok {
		return nil, ErrNotFound
	}
	if start > end || end >= file.NumChunks {
		return nil, ErrOutOfRange
	}

	now := cs.config.Clock.Now().Unix()
	var out []byte

	for i := start; i <= end; i++ {
		meta, ok := file.Chunks[i]
		if !ok {
			cs.config.Logger.Warn("chunkstore: chunk metadata missing, treating range read as absent",
				"key", key, "chunk_id", i)
			return nil, ErrNotFound
		}

		plaintext, err := cs.readChunkFile(key, i, meta)
		if err != nil {
			cs.config.Logger.Warn("chunkstore: chunk read failed, treating range read as absent",
				"key", key, "chunk_id", i, "error", err)
			return nil, ErrNotFound
		}

		out = append(out, plaintext...)

		meta.Heat = uint32(heat.UpdateOnRead(int(meta.Heat)))
		meta.LastAccess = now
	}

	return out, nil
}

// Get reads the whole value stored under key, equivalent to
// GetRange(key, 0, num_chunks-1).
func (cs *ChunkStore) Get(key string) ([]byte, error) {
	file, ok := cs.files[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cs.GetRange(key, 0, file.NumChunks-1)
}

// Remove deletes the per-key chunk subdirectory and drops the index
// entry. Filesystem removal errors are logged but do not block the
// index drop — the next save persists the smaller index regardless.
func (cs *ChunkStore) Remove(key string) bool {
	if _, ok := cs.files[key]; !ok {
		return false
	}

	if err := os.RemoveAll(cs.keyDir(key)); err != nil {
		cs.config.Logger.Warn("chunkstore: removing chunk directory failed", "key", key, "error", err)
	}
	delete(cs.files, key)
	return true
}

// Decay applies one decay pass to every chunk's heat. When a chunk's
// target tier differs from its current tier, the chunk is
// recompressed under the same decode-then-encode discipline as
// inline reorganization; the tier update is deferred until that
// recompression succeeds (§9, O3), so a failed recompression leaves
// the chunk's tier, algorithm, and on-disk bytes untouched even though
// its heat has already decayed.
func (cs *ChunkStore) Decay() {
	now := cs.config.Clock.Now().Unix()

	for key, file := range cs.files {
		for _, meta := range file.Chunks {
			meta.Heat = uint32(heat.Decay(cs.config.HeatDecayStrategy, int(meta.Heat),
				cs.config.HeatDecayFactor, cs.config.HeatDecayAmount, meta.LastAccess, now))

			targetTier := heat.TierForHeat(int(meta.Heat))
			if targetTier == meta.Tier {
				continue
			}

			if err := cs.recompressChunk(key, meta, targetTier); err != nil {
				cs.config.Logger.Warn("chunkstore: decay recompression failed, deferring tier update",
					"key", key, "chunk_id", meta.ChunkID, "error", err)
			}
		}
	}
}

func (cs *ChunkStore) recompressChunk(key string, meta *ChunkMetadata, targetTier heat.Tier) error {
	plaintext, err := cs.readChunkFile(key, meta.ChunkID, meta)
	if err != nil {
		return fmt.Errorf("decoding current chunk: %w", err)
	}

	targetAlgo := cs.config.algorithmForTier(targetTier)
	ciphertext, err := cs.config.Encode(targetAlgo, plaintext)
	if err != nil {
		return fmt.Errorf("encoding at target tier: %w", err)
	}

	if err := cs.writeChunkFile(key, meta.ChunkID, plaintext, ciphertext); err != nil {
		return fmt.Errorf("rewriting chunk file: %w", err)
	}

	meta.Tier = targetTier
	meta.algorithm = targetAlgo
	meta.CompressedSize = uint64(len(ciphertext))
	return nil
}

func (cs *ChunkStore) keyDir(key string) string {
	return filepath.Join(cs.root, key)
}

func (cs *ChunkStore) chunkFilePath(key string, chunkID uint32) string {
	return filepath.Join(cs.keyDir(key), fmt.Sprintf("chunk_%03d.bin", chunkID))
}

func (cs *ChunkStore) writeChunkFile(key string, chunkID uint32, plaintext, ciphertext []byte) error {
	digest := hashChunk(plaintext)

	buf := make([]byte, chunkHashSize+len(ciphertext))
	copy(buf, digest[:])
	copy(buf[chunkHashSize:], ciphertext)

	return atomicWriteFile(cs.chunkFilePath(key, chunkID), buf)
}

// readChunkFile reads, verifies, and decodes a chunk's file. A hash
// mismatch is logged but does not block the read — corruption
// degrades to a warning, per the store's failure-handling policy;
// callers that need a hard integrity guarantee should use VerifyChunk.
func (cs *ChunkStore) readChunkFile(key string, chunkID uint32, meta *ChunkMetadata) ([]byte, error) {
	raw, err := os.ReadFile(cs.chunkFilePath(key, chunkID))
	if err != nil {
		return nil, err
	}
	if len(raw) < chunkHashSize {
		return nil, fmt.Errorf("chunk file shorter than its integrity hash prefix")
	}

	storedHash := raw[:chunkHashSize]
	ciphertext := raw[chunkHashSize:]

	algorithm := meta.algorithm
	if algorithm == 0 && meta.Tier != heat.T0 {
		// algorithm is not persisted in chunk_metadata.db; re-derive
		// it from the chunk's tier when it was not carried in memory
		// (e.g. immediately after loading an index from disk).
		algorithm = cs.config.algorithmForTier(meta.Tier)
	}

	plaintext, err := cs.config.Decode(algorithm, ciphertext, int(meta.OriginalSize))
	if err != nil {
		return nil, err
	}

	actualHash := hashChunk(plaintext)
	if string(actualHash[:]) != string(storedHash) {
		cs.config.Logger.Warn("chunkstore: chunk integrity hash mismatch",
			"key", key, "chunk_id", chunkID)
	}

	return plaintext, nil
}

// VerifyChunk reports whether the on-disk chunk's integrity hash
// matches its decoded plaintext, without updating heat or access
// time. It is a supplemental check beyond the store's core contract.
func (cs *ChunkStore) VerifyChunk(key string, chunkID uint32) (bool, error) {
	file, ok := cs.files[key]
	if !ok {
		return false, ErrNotFound
	}
	meta, ok := file.Chunks[chunkID]
	if !ok {
		return false, ErrNotFound
	}

	raw, err := os.ReadFile(cs.chunkFilePath(key, chunkID))
	if err != nil {
		return false, err
	}
	if len(raw) < chunkHashSize {
		return false, fmt.Errorf("chunk file shorter than its integrity hash prefix")
	}

	storedHash := raw[:chunkHashSize]
	ciphertext := raw[chunkHashSize:]

	algorithm := meta.algorithm
	if algorithm == 0 && meta.Tier != heat.T0 {
		algorithm = cs.config.algorithmForTier(meta.Tier)
	}

	plaintext, err := cs.config.Decode(algorithm, ciphertext, int(meta.OriginalSize))
	if err != nil {
		return false, err
	}

	actualHash := hashChunk(plaintext)
	return string(actualHash[:]) == string(storedHash), nil
}
