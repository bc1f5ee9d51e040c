// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"log/slog"
	"os"
	"sort"

	"github.com/bureau-foundation/tierkv/lib/clock"
	"github.com/bureau-foundation/tierkv/lib/compress"
	"github.com/bureau-foundation/tierkv/lib/heat"
)

// NodeMetadata describes one inline key's compression state and
// access history. The invariant `Algorithm == config.TierAlgorithms[Tier]`
// holds after every successful insert and reorganization.
type NodeMetadata struct {
	AccessCount    uint64
	LastAccess     int64
	Tier           heat.Tier
	Algorithm      compress.Algorithm
	OriginalSize   uint64
	CompressedSize uint64
	Heat           uint32

	// legacy marks a record loaded from a pre-v3 metadata.db image
	// that had no heat field. Its heat was defaulted rather than
	// measured, so the first reorganization pass should re-derive
	// its tier from AccessCount instead of trusting Heat.
	legacy bool
}

// EncodeFunc compresses plaintext under algo. The default is
// compress.Encode; Config.Encode lets a caller install per-tier codec
// hooks with an identical contract.
type EncodeFunc func(algo compress.Algorithm, plaintext []byte) ([]byte, error)

// DecodeFunc decompresses ciphertext under algo, given the exact
// original plaintext length.
type DecodeFunc func(algo compress.Algorithm, ciphertext []byte, originalSize int) ([]byte, error)

// Config configures a Store. All fields are immutable once passed to
// New; callers who want to change behavior at runtime construct a new
// Store.
type Config struct {
	// TierAlgorithms maps each of the five tiers to the codec
	// algorithm it is encoded with.
	TierAlgorithms [5]compress.Algorithm

	EnableHeatDecay   bool
	HeatDecayStrategy heat.DecayStrategy
	HeatDecayFactor   int
	HeatDecayAmount   int
	HeatDecayInterval int64 // seconds

	ReorgStrategy  heat.ReorgTrigger
	ReorgThreshold int64

	AllowDeletion   bool
	MaxSizeBytes    int64
	LazyPersistence bool
	WriteBufferSize int

	Encode EncodeFunc
	Decode DecodeFunc

	Clock  clock.Clock
	Logger *slog.Logger
}

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

// Store is the inline-key component: a key-to-blob map, its metadata,
// a write buffer, and the flat binary persistence image. It makes no
// attempt at internal locking — per the store's single-threaded
// cooperative model, callers serialize access externally.
type Store struct {
	dataPath     string
	metadataPath string
	config       Config

	data     map[string][]byte
	metadata map[string]*NodeMetadata

	writeBuffer      map[string][]byte
	writeBufferBytes int

	totalAccesses uint64
	opsSinceReorg uint64
	lastReorgTime int64
	lastDecayTime int64

	// footprintBytes tracks the on-disk footprint estimate
	// (sum of CompressedSize across all tracked keys) that
	// checkSizeLimit compares against MaxSizeBytes.
	footprintBytes int64
}

// New constructs a Store backed by dataPath and metadataPath, loading
// any existing images. Missing files are treated as an empty store,
// not an error — a store directory is created fresh the first time a
// Facade opens it.
func New(dataPath, metadataPath string, config Config) (*Store, error) {
	s := &Store{
		dataPath:     dataPath,
		metadataPath: metadataPath,
		config:       config.withDefaults(),
		data:         make(map[string][]byte),
		metadata:     make(map[string]*NodeMetadata),
		writeBuffer:  make(map[string][]byte),
	}

	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	return s, nil
}

// Insert stores bytes under key. New items always start at tier T4
// (coldest): the engine pays the one-time compression cost on the
// cold path rather than heating then immediately recompressing.
func (s *Store) Insert(key string, value []byte) error {
	tier := heat.T4
	algo := s.config.algorithmForTier(tier)

	ciphertext, err := s.config.Encode(algo, value)
	if err != nil {
		// CodecError on encode: degrade by storing the plaintext
		// uncompressed, but keep algorithm == NONE so the
		// tier-to-algorithm invariant still reads true for NONE's
		// binding rather than lying about which codec was used.
		s.config.Logger.Warn("kvstore: encode failed on insert, storing uncompressed",
			"key", key, "algorithm", algo, "error", err)
		ciphertext = value
		algo = compress.AlgorithmNone
	}

	now := s.config.Clock.Now().Unix()
	meta := &NodeMetadata{
		AccessCount:    0,
		LastAccess:     now,
		Tier:           tier,
		Algorithm:      algo,
		OriginalSize:   uint64(len(value)),
		CompressedSize: uint64(len(ciphertext)),
		Heat:           uint32(heat.DefaultInsertHeat()),
	}

	if previous, ok := s.metadata[key]; ok {
		s.footprintBytes -= int64(previous.CompressedSize)
	}

	if s.config.LazyPersistence {
		s.writeBuffer[key] = ciphertext
		s.writeBufferBytes += len(ciphertext)
		if s.writeBufferBytes >= s.config.WriteBufferSize && s.config.WriteBufferSize > 0 {
			s.Flush()
		}
	} else {
		s.data[key] = ciphertext
	}

	s.metadata[key] = meta
	s.footprintBytes += int64(meta.CompressedSize)

	s.checkSizeLimit()
	return nil
}

// Get looks up key, decoding its stored bytes. ok is false if key is
// absent — a miss is reported as an absent result, not an error, per
// the store's degrade-rather-than-abort policy.
func (s *Store) Get(key string) (value []byte, ok bool) {
	if _, buffered := s.writeBuffer[key]; buffered {
		s.Flush()
	}

	ciphertext, present := s.data[key]
	if !present {
		return nil, false
	}

	meta, present := s.metadata[key]
	if !present {
		// An orphaned blob with no metadata is a bug (invariant 1);
		// treat it as absent rather than crash the caller.
		s.config.Logger.Warn("kvstore: blob present with no metadata", "key", key)
		return nil, false
	}

	plaintext, err := s.config.Decode(meta.Algorithm, ciphertext, int(meta.OriginalSize))
	if err != nil {
		s.config.Logger.Warn("kvstore: decode failed, treating key as absent",
			"key", key, "algorithm", meta.Algorithm, "error", err)
		return nil, false
	}

	now := s.config.Clock.Now().Unix()
	meta.Heat = uint32(heat.UpdateOnRead(int(meta.Heat)))
	meta.AccessCount++
	meta.LastAccess = now
	s.totalAccesses++

	return plaintext, true
}

// Remove drops key from the map, metadata, and write buffer. Returns
// whether a mapping existed. Idempotent: a second call on the same
// key returns false.
func (s *Store) Remove(key string) bool {
	_, inBuffer := s.writeBuffer[key]
	_, inData := s.data[key]
	meta, inMetadata := s.metadata[key]

	if !inBuffer && !inData && !inMetadata {
		return false
	}

	if inMetadata {
		s.footprintBytes -= int64(meta.CompressedSize)
	}
	delete(s.writeBuffer, key)
	delete(s.data, key)
	delete(s.metadata, key)
	return true
}

// Metadata returns the NodeMetadata tracked for key, if any. The
// returned pointer aliases the store's internal record; callers must
// not mutate it.
func (s *Store) Metadata(key string) (*NodeMetadata, bool) {
	meta, ok := s.metadata[key]
	return meta, ok
}

// Has reports whether key exists in the inline namespace, checking
// the write buffer without forcing a flush.
func (s *Store) Has(key string) bool {
	if _, ok := s.writeBuffer[key]; ok {
		return true
	}
	_, ok := s.metadata[key]
	return ok
}

// Flush moves every entry from the write buffer into the primary map
// and resets the buffer. It does not persist to disk — that happens
// on SaveToDisk.
func (s *Store) Flush() {
	for key, ciphertext := range s.writeBuffer {
		s.data[key] = ciphertext
	}
	s.writeBuffer = make(map[string][]byte)
	s.writeBufferBytes = 0
}

// Len returns the number of inline keys currently tracked (buffered
// or committed).
func (s *Store) Len() int {
	return len(s.metadata)
}

// checkSizeLimit evicts the coldest keys if the tracked footprint
// exceeds MaxSizeBytes. With AllowDeletion false it only logs — the
// store may exceed its limit, which is an intentional user contract.
func (s *Store) checkSizeLimit() {
	if s.config.MaxSizeBytes <= 0 || s.footprintBytes <= s.config.MaxSizeBytes {
		return
	}

	if !s.config.AllowDeletion {
		s.config.Logger.Warn("kvstore: size limit exceeded and deletion is disallowed",
			"footprint_bytes", s.footprintBytes, "max_size_bytes", s.config.MaxSizeBytes)
		return
	}

	s.evictColdest()
}

// evictColdest deletes the coldest max(1, |keys|/10) keys, sorted by
// ascending AccessCount, ties broken by LastAccess ascending then key
// lexicographically for determinism.
func (s *Store) evictColdest() {
	keys := make([]string, 0, len(s.metadata))
	for key := range s.metadata {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := s.metadata[keys[i]], s.metadata[keys[j]]
		if a.AccessCount != b.AccessCount {
			return a.AccessCount < b.AccessCount
		}
		if a.LastAccess != b.LastAccess {
			return a.LastAccess < b.LastAccess
		}
		return keys[i] < keys[j]
	})

	count := len(keys) / 10
	if count < 1 {
		count = 1
	}
	if count > len(keys) {
		count = len(keys)
	}

	for _, key := range keys[:count] {
		s.Remove(key)
	}
	s.config.Logger.Info("kvstore: evicted coldest keys", "count", count)
}

// Reorganize rewrites every inline node whose target tier (computed
// from its current heat, or from AccessCount for a record still marked
// legacy) differs from its stored tier. Failures on
// individual nodes are logged and skipped — never fatal to the whole
// pass.
func (s *Store) Reorganize() {
	now := s.config.Clock.Now().Unix()

	for key, meta := range s.metadata {
		var targetTier heat.Tier
		if meta.legacy {
			targetTier = tierForLegacyAccessCount(meta.AccessCount)
		} else {
			targetTier = heat.TierForHeat(int(meta.Heat))
		}

		if targetTier == meta.Tier {
			meta.legacy = false
			continue
		}

		ciphertext, ok := s.data[key]
		if !ok {
			if buffered, inBuffer := s.writeBuffer[key]; inBuffer {
				ciphertext = buffered
			} else {
				continue
			}
		}

		plaintext, err := s.config.Decode(meta.Algorithm, ciphertext, int(meta.OriginalSize))
		if err != nil {
			s.config.Logger.Warn("kvstore: reorganize decode failed, skipping key",
				"key", key, "error", err)
			continue
		}

		targetAlgo := s.config.algorithmForTier(targetTier)
		recoded, err := s.config.Encode(targetAlgo, plaintext)
		if err != nil {
			s.config.Logger.Warn("kvstore: reorganize encode failed, skipping key",
				"key", key, "error", err)
			continue
		}

		s.footprintBytes -= int64(meta.CompressedSize)
		s.data[key] = recoded
		delete(s.writeBuffer, key)
		meta.Tier = targetTier
		meta.Algorithm = targetAlgo
		meta.CompressedSize = uint64(len(recoded))
		meta.legacy = false
		s.footprintBytes += int64(meta.CompressedSize)
	}

	s.opsSinceReorg = 0
	s.lastReorgTime = now
}

// tierForLegacyAccessCount maps an access count to a tier for records
// loaded from a v2 metadata.db image, used by their first
// reorganization after load. The thresholds are authored stand-ins
// scaled to access-count magnitudes, not a recovered rule. Buckets are
// chosen so that the hottest handful of keys in a typical workload
// land in T0 without requiring the full heat history a v3 image
// would have accumulated.
func tierForLegacyAccessCount(accessCount uint64) heat.Tier {
	switch {
	case accessCount >= 100:
		return heat.T0
	case accessCount >= 20:
		return heat.T1
	case accessCount >= 5:
		return heat.T2
	case accessCount >= 1:
		return heat.T3
	default:
		return heat.T4
	}
}

// Decay applies one decay pass to every inline node's heat.
// LastDecayTime is stamped at the start of the run rather than the
// end, so two calls issued back-to-back within the same
// heat_decay_interval are distinguishable by a caller consulting
// ShouldDecay before the second call — decay itself does not
// self-throttle.
func (s *Store) Decay() {
	now := s.config.Clock.Now().Unix()
	s.lastDecayTime = now
	for _, meta := range s.metadata {
		meta.Heat = uint32(heat.Decay(s.config.HeatDecayStrategy, int(meta.Heat),
			s.config.HeatDecayFactor, s.config.HeatDecayAmount, meta.LastAccess, now))
	}
}

// TotalAccesses returns the cumulative count of successful reads
// across the life of the Store, persisted in the metadata.db header.
func (s *Store) TotalAccesses() uint64 { return s.totalAccesses }

// IncrementOps bumps the op counter the post-op hook consults; it is
// the Facade's responsibility to call this after every operation.
func (s *Store) IncrementOps() { s.opsSinceReorg++ }

// OpsSinceReorg returns the current op counter, reset to zero by
// Reorganize.
func (s *Store) OpsSinceReorg() uint64 { return s.opsSinceReorg }

// LastReorgTime returns the wall-clock seconds of the most recent
// Reorganize call, or zero if none has run yet.
func (s *Store) LastReorgTime() int64 { return s.lastReorgTime }

// LastDecayTime returns the wall-clock seconds at which the most
// recent Decay run started, or zero if none has run yet.
func (s *Store) LastDecayTime() int64 { return s.lastDecayTime }
