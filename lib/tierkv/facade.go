// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierkv

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/tierkv/lib/chunkstore"
	"github.com/bureau-foundation/tierkv/lib/clock"
	"github.com/bureau-foundation/tierkv/lib/compress"
	"github.com/bureau-foundation/tierkv/lib/heat"
	"github.com/bureau-foundation/tierkv/lib/kvstore"
)

// State is the facade's lifecycle state. Reads and writes fail with
// ErrNotOpen outside Open; Close moves Open → Draining → Closed.
type State uint8

const (
	Uninitialized State = iota
	Open
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Open:
		return "open"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// EncodeFunc and DecodeFunc mirror kvstore's codec hook contract; the
// same hooks, when set, are shared by both the Store and the
// ChunkStore so a custom per-tier codec behaves identically regardless
// of which namespace a key lives in.
type EncodeFunc = kvstore.EncodeFunc
type DecodeFunc = kvstore.DecodeFunc

// Config configures a facade and everything it owns.
type Config struct {
	TierAlgorithms [5]compress.Algorithm

	EnableChunking    bool
	ChunkingThreshold int
	ChunkSize         uint64

	EnableHeatDecay   bool
	HeatDecayStrategy heat.DecayStrategy
	HeatDecayFactor   int
	HeatDecayAmount   int
	HeatDecayInterval int64

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

func (c *Config) storeConfig() kvstore.Config {
	return kvstore.Config{
		TierAlgorithms:    c.TierAlgorithms,
		EnableHeatDecay:   c.EnableHeatDecay,
		HeatDecayStrategy: c.HeatDecayStrategy,
		HeatDecayFactor:   c.HeatDecayFactor,
		HeatDecayAmount:   c.HeatDecayAmount,
		HeatDecayInterval: c.HeatDecayInterval,
		ReorgStrategy:     c.ReorgStrategy,
		ReorgThreshold:    c.ReorgThreshold,
		AllowDeletion:     c.AllowDeletion,
		MaxSizeBytes:      c.MaxSizeBytes,
		LazyPersistence:   c.LazyPersistence,
		WriteBufferSize:   c.WriteBufferSize,
		Encode:            c.Encode,
		Decode:            c.Decode,
		Clock:             c.Clock,
		Logger:            c.Logger,
	}
}

func (c *Config) chunkStoreConfig() chunkstore.Config {
	return chunkstore.Config{
		TierAlgorithms:    c.TierAlgorithms,
		ChunkSize:         c.ChunkSize,
		EnableHeatDecay:   c.EnableHeatDecay,
		HeatDecayStrategy: c.HeatDecayStrategy,
		HeatDecayFactor:   c.HeatDecayFactor,
		HeatDecayAmount:   c.HeatDecayAmount,
		Encode:            chunkstore.EncodeFunc(c.Encode),
		Decode:            chunkstore.DecodeFunc(c.Decode),
		Clock:             c.Clock,
		Logger:            c.Logger,
	}
}

// Facade is the store's single public entry point. It owns a Store,
// optionally a ChunkStore, an exclusive directory lockfile, and the
// lifecycle and post-op bookkeeping the spec assigns to this layer
// rather than to either subsystem.
type Facade struct {
	dir    string
	config Config
	state  State

	store     *kvstore.Store
	chunks    *chunkstore.ChunkStore
	lock      *lockfile
	opCount   int64
	lastDecay int64
}

// OpenStore creates or opens a store directory at dir. It acquires an
// exclusive lockfile under dir before touching any other file, so a
// second process attempting to open the same directory concurrently
// fails with ErrAlreadyLocked rather than corrupting the image.
func OpenStore(dir string, config Config) (*Facade, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tierkv: creating store directory %s: %w", dir, err)
	}

	lock, err := acquireLockfile(filepath.Join(dir, "tierkv.lock"))
	if err != nil {
		return nil, err
	}

	resolved := config.withDefaults()

	store, err := kvstore.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "metadata.db"), resolved.storeConfig())
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("tierkv: opening inline store: %w", err)
	}

	f := &Facade{
		dir:       dir,
		config:    resolved,
		state:     Open,
		store:     store,
		lock:      lock,
		lastDecay: resolved.Clock.Now().Unix(),
	}

	if resolved.EnableChunking {
		chunksRoot := filepath.Join(dir, "chunks")
		chunks, err := chunkstore.New(chunksRoot, filepath.Join(chunksRoot, "chunk_metadata.db"), resolved.chunkStoreConfig())
		if err != nil {
			lock.release()
			return nil, fmt.Errorf("tierkv: opening chunk store: %w", err)
		}
		f.chunks = chunks
	}

	return f, nil
}

// routesToChunkStore reports whether a value of valueLen bytes is
// routed to the chunked namespace, given the facade's configured
// threshold.
func (f *Facade) routesToChunkStore(valueLen int) bool {
	return f.config.EnableChunking && valueLen >= f.config.ChunkingThreshold
}

// Insert stores value under key, routing to the inline Store or the
// ChunkStore by size. A key already present in the other namespace is
// rejected with ErrKeyKindMismatch rather than silently dual-inserted
// (§9, O1).
func (f *Facade) Insert(key string, value []byte) error {
	if f.state != Open {
		return ErrNotOpen
	}

	toChunkStore := f.routesToChunkStore(len(value))

	if toChunkStore {
		if f.store.Has(key) {
			return ErrKeyKindMismatch
		}
		if err := f.chunks.Insert(key, value); err != nil {
			return fmt.Errorf("tierkv: chunked insert: %w", err)
		}
	} else {
		if f.chunks != nil && f.chunks.Has(key) {
			return ErrKeyKindMismatch
		}
		if err := f.store.Insert(key, value); err != nil {
			return fmt.Errorf("tierkv: inline insert: %w", err)
		}
	}

	f.afterOp()
	return nil
}

// Get returns the full value stored under key. ok is false if key is
// absent in both namespaces.
func (f *Facade) Get(key string) (value []byte, ok bool, err error) {
	if f.state != Open {
		return nil, false, ErrNotOpen
	}

	if f.chunks != nil && f.chunks.Has(key) {
		data, getErr := f.chunks.Get(key)
		f.afterOp()
		if getErr != nil {
			return nil, false, nil
		}
		return data, true, nil
	}

	data, present := f.store.Get(key)
	f.afterOp()
	return data, present, nil
}

// GetRange returns chunks [start, end] of a chunked key's value. It
// returns ErrNotChunked if key exists only inline (or not at all).
func (f *Facade) GetRange(key string, start, end uint32) ([]byte, error) {
	if f.state != Open {
		return nil, ErrNotOpen
	}
	if f.chunks == nil || !f.chunks.Has(key) {
		f.afterOp()
		return nil, ErrNotChunked
	}

	data, err := f.chunks.GetRange(key, start, end)
	f.afterOp()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Remove deletes key from whichever namespace holds it. Returns true
// if either namespace removed a mapping.
func (f *Facade) Remove(key string) (bool, error) {
	if f.state != Open {
		return false, ErrNotOpen
	}

	removed := f.store.Remove(key)
	if f.chunks != nil && f.chunks.Remove(key) {
		removed = true
	}

	f.afterOp()
	return removed, nil
}

// Has reports whether key exists in either namespace.
func (f *Facade) Has(key string) bool {
	if f.store.Has(key) {
		return true
	}
	return f.chunks != nil && f.chunks.Has(key)
}

// InlineMetadata returns the inline Store's tracked metadata for key —
// its tier, heat, and access counters — for tools that need to observe
// tier placement without going through the public data surface. It
// reports ok=false for chunked or absent keys; chunk-level metadata
// has no equivalent single-key summary since a chunked value's chunks
// can each sit in a different tier.
func (f *Facade) InlineMetadata(key string) (*kvstore.NodeMetadata, bool) {
	return f.store.Metadata(key)
}

// afterOp runs the post-op hooks every public call triggers: bump the
// op counter, maybe reorganize, maybe decay. Reorganization only
// touches the inline Store (the spec's "reorganization procedure" is
// scoped to inline nodes); decay runs over both namespaces, since
// chunks are heat-tracked the same way inline values are.
func (f *Facade) afterOp() {
	f.opCount++
	f.store.IncrementOps()

	now := f.config.Clock.Now().Unix()

	if heat.ShouldReorganize(f.config.ReorgStrategy, int64(f.store.OpsSinceReorg()), f.config.ReorgThreshold,
		f.store.LastReorgTime(), now, f.store.Len()) {
		f.store.Reorganize()
	}

	if f.config.EnableHeatDecay && heat.ShouldDecay(f.lastDecay, now, f.config.HeatDecayInterval) {
		f.lastDecay = now
		f.store.Decay()
		if f.chunks != nil {
			f.chunks.Decay()
		}
	}
}

// Close flushes and persists both namespaces and releases the
// directory lockfile. Order matters: the data image, then inline
// metadata, then the chunk index — metadata written last so a crash
// mid-shutdown still leaves a parseable data image behind, and a
// missing metadata file loads as empty rather than as corruption.
func (f *Facade) Close() error {
	if f.state != Open {
		return ErrNotOpen
	}
	f.state = Draining

	var firstErr error
	if err := f.store.SaveToDisk(); err != nil {
		firstErr = fmt.Errorf("tierkv: saving inline store: %w", err)
	}
	if f.chunks != nil {
		if err := f.chunks.SaveMetadata(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tierkv: saving chunk index: %w", err)
		}
	}
	if err := f.lock.release(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("tierkv: releasing lockfile: %w", err)
	}

	f.state = Closed
	return firstErr
}

// State returns the facade's current lifecycle state.
func (f *Facade) State() State { return f.state }
