// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/tierkv/lib/compress"
	"github.com/bureau-foundation/tierkv/lib/heat"
	"github.com/bureau-foundation/tierkv/lib/tierkv"
)

// Config is the on-disk shape of a tierkv configuration file. Its
// string-keyed fields (tier algorithm names, decay strategy, reorg
// trigger) are resolved into lib/tierkv's typed enums by
// ToTierKVConfig, so this package is the only place in the module that
// parses configuration text.
type Config struct {
	Directory string `yaml:"directory"`

	Tiers TierConfig `yaml:"tiers"`

	Chunking ChunkingConfig `yaml:"chunking"`
	Decay    DecayConfig    `yaml:"decay"`
	Reorg    ReorgConfig    `yaml:"reorg"`

	AllowDeletion   bool  `yaml:"allow_deletion"`
	MaxSizeBytes    int64 `yaml:"max_size_bytes"`
	LazyPersistence bool  `yaml:"lazy_persistence"`
	WriteBufferSize int   `yaml:"write_buffer_size"`
}

// TierConfig names the codec algorithm bound to each of the five
// tiers, by the names compress.ParseAlgorithm accepts.
type TierConfig struct {
	T0 string `yaml:"t0"`
	T1 string `yaml:"t1"`
	T2 string `yaml:"t2"`
	T3 string `yaml:"t3"`
	T4 string `yaml:"t4"`
}

// ChunkingConfig configures the facade's routing threshold between the
// inline store and the chunked store.
type ChunkingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ThresholdBytes int    `yaml:"threshold_bytes"`
	ChunkSizeBytes uint64 `yaml:"chunk_size_bytes"`
}

// DecayConfig configures heat decay, by the strategy names
// heat.ParseDecayStrategy accepts.
type DecayConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Strategy        string `yaml:"strategy"`
	Factor          int    `yaml:"factor"`
	Amount          int    `yaml:"amount"`
	IntervalSeconds int64  `yaml:"interval_seconds"`
}

// ReorgConfig configures the reorganization trigger, by the names
// heat.ParseReorgTrigger accepts.
type ReorgConfig struct {
	Strategy  string `yaml:"strategy"`
	Threshold int64  `yaml:"threshold"`
}

// Default returns a conservative baseline configuration: chunking and
// heat decay both disabled, reorganization driven by an op count, and
// tiers bound to a NONE-through-ZSTD_MAX compression ladder. It exists
// to ensure every field has a sensible zero-value when a caller builds
// up a Config with the With* methods rather than loading one from a
// file.
func Default() Config {
	return Config{
		Directory: "",
		Tiers: TierConfig{
			T0: "none",
			T1: "lz4_fast",
			T2: "lz4_high",
			T3: "zstd_fast",
			T4: "zstd_max",
		},
		Chunking: ChunkingConfig{
			Enabled:        false,
			ThresholdBytes: 1 << 20, // 1 MiB
			ChunkSizeBytes: 256 << 10,
		},
		Decay: DecayConfig{
			Enabled:  false,
			Strategy: "linear",
			Amount:   heat.Max / 20,
		},
		Reorg: ReorgConfig{
			Strategy:  "every_n_ops",
			Threshold: 1000,
		},
		AllowDeletion:   true,
		MaxSizeBytes:    0, // unlimited
		LazyPersistence: false,
		WriteBufferSize: 0,
	}
}

// ConfigForImages tunes the store for JPEG/PNG-sized blobs that are
// already compressed: chunking kicks in early for anything over 256
// KiB and the two coldest tiers fall back to LZ4's high-compression
// mode rather than paying zstd's CPU cost on data that will not shrink
// further.
func ConfigForImages() Config {
	c := Default()
	c.Chunking.Enabled = true
	c.Chunking.ThresholdBytes = 256 << 10
	c.Chunking.ChunkSizeBytes = 128 << 10
	c.Tiers.T3 = "lz4_high"
	c.Tiers.T4 = "lz4_high"
	return c
}

// ConfigForVideos tunes the store for large, already-compressed
// video blobs: chunking at a coarser granularity (range reads matter
// more than compression here) and every tier left effectively
// uncompressed, since re-compressing video containers rarely pays for
// itself.
func ConfigForVideos() Config {
	c := Default()
	c.Chunking.Enabled = true
	c.Chunking.ThresholdBytes = 4 << 20
	c.Chunking.ChunkSizeBytes = 4 << 20
	c.Tiers.T1 = "none"
	c.Tiers.T2 = "none"
	c.Tiers.T3 = "lz4_fast"
	c.Tiers.T4 = "lz4_fast"
	return c
}

// ConfigForText tunes the store for small, highly-compressible text
// records: chunking stays disabled (most values are well under a
// typical chunking threshold) and the coldest tier uses maximum zstd
// compression since text compresses aggressively.
func ConfigForText() Config {
	c := Default()
	c.Chunking.Enabled = false
	c.Tiers.T1 = "zstd_fast"
	c.Tiers.T2 = "zstd_medium"
	c.Tiers.T3 = "zstd_medium"
	c.Tiers.T4 = "zstd_max"
	c.Decay.Enabled = true
	c.Decay.Strategy = "exponential"
	c.Decay.Factor = 950
	c.Decay.IntervalSeconds = 60
	return c
}

// ConfigForEmbedded tunes the store for fixed-width embedding vectors:
// values are small and numerous, heat decay is disabled since
// embedding access patterns tend to be batch-uniform rather than
// skewed, and reorganization runs adaptively so a sudden shift in
// which vectors are hot gets picked up quickly.
func ConfigForEmbedded() Config {
	c := Default()
	c.Chunking.Enabled = false
	c.Tiers.T1 = "none"
	c.Tiers.T2 = "lz4_fast"
	c.Tiers.T3 = "lz4_fast"
	c.Tiers.T4 = "lz4_high"
	c.Reorg.Strategy = "adaptive"
	c.Reorg.Threshold = 10 // a Scale-denominated fraction, per heat.ShouldReorganize
	return c
}

// ConfigForCCTV tunes the store for continuous surveillance footage:
// chunking at a large granularity for efficient range reads over long
// recordings, aggressive eviction under a size cap (CCTV retention is
// inherently a rolling window), and time-based decay so footage nobody
// has reviewed recently cools off on a predictable schedule regardless
// of how often it was initially watched.
func ConfigForCCTV() Config {
	c := Default()
	c.Chunking.Enabled = true
	c.Chunking.ThresholdBytes = 8 << 20
	c.Chunking.ChunkSizeBytes = 8 << 20
	c.Tiers.T2 = "lz4_fast"
	c.Tiers.T3 = "lz4_high"
	c.Tiers.T4 = "lz4_high"
	c.Decay.Enabled = true
	c.Decay.Strategy = "time_based"
	c.Decay.IntervalSeconds = 3600
	c.AllowDeletion = true
	c.MaxSizeBytes = 500 << 30 // 500 GiB rolling window
	return c
}

// WithDirectory sets the store directory and returns the updated
// Config, mirroring the fluent builder chain used elsewhere in the
// retrieval pack (e.g. gravel.Options.WithDirname).
func (c Config) WithDirectory(dir string) Config {
	c.Directory = dir
	return c
}

// WithMaxSizeBytes sets the eviction size cap.
func (c Config) WithMaxSizeBytes(n int64) Config {
	c.MaxSizeBytes = n
	return c
}

// WithAllowDeletion sets whether eviction is permitted to delete keys
// when the size cap is exceeded.
func (c Config) WithAllowDeletion(allow bool) Config {
	c.AllowDeletion = allow
	return c
}

// WithLazyPersistence enables or disables the write buffer.
func (c Config) WithLazyPersistence(lazy bool, writeBufferSize int) Config {
	c.LazyPersistence = lazy
	c.WriteBufferSize = writeBufferSize
	return c
}

// WithChunking sets the chunking threshold and chunk size, enabling
// chunking.
func (c Config) WithChunking(thresholdBytes int, chunkSizeBytes uint64) Config {
	c.Chunking.Enabled = true
	c.Chunking.ThresholdBytes = thresholdBytes
	c.Chunking.ChunkSizeBytes = chunkSizeBytes
	return c
}

// WithDecay sets the heat decay strategy and its parameters, enabling
// decay.
func (c Config) WithDecay(strategy string, factor, amount int, intervalSeconds int64) Config {
	c.Decay.Enabled = true
	c.Decay.Strategy = strategy
	c.Decay.Factor = factor
	c.Decay.Amount = amount
	c.Decay.IntervalSeconds = intervalSeconds
	return c
}

// WithReorg sets the reorganization trigger and its threshold.
func (c Config) WithReorg(strategy string, threshold int64) Config {
	c.Reorg.Strategy = strategy
	c.Reorg.Threshold = threshold
	return c
}

// Load loads configuration from the TIERKV_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There is no fallback — if TIERKV_CONFIG is not set, this
// fails, the same determinism tradeoff the teacher's config package
// makes for BUREAU_CONFIG.
func Load() (Config, error) {
	path := os.Getenv("TIERKV_CONFIG")
	if path == "" {
		return Config{}, fmt.Errorf("TIERKV_CONFIG environment variable not set; " +
			"set it to the path of your tierkv.yaml config file")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over Default so every field not present in the file still has a
// sensible zero-value.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that every field ToTierKVConfig depends on actually
// parses, returning every problem found rather than stopping at the
// first one.
func (c Config) Validate() error {
	var errs []error

	if c.Directory == "" {
		errs = append(errs, fmt.Errorf("directory is required"))
	}

	for name, value := range map[string]string{
		"tiers.t0": c.Tiers.T0, "tiers.t1": c.Tiers.T1, "tiers.t2": c.Tiers.T2,
		"tiers.t3": c.Tiers.T3, "tiers.t4": c.Tiers.T4,
	} {
		if _, err := compress.ParseAlgorithm(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Decay.Enabled {
		if _, err := heat.ParseDecayStrategy(c.Decay.Strategy); err != nil {
			errs = append(errs, fmt.Errorf("decay.strategy: %w", err))
		}
	}

	if _, err := heat.ParseReorgTrigger(c.Reorg.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("reorg.strategy: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}

	joined := errs[0]
	for _, err := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, err)
	}
	return joined
}

// ToTierKVConfig resolves this Config's string-keyed fields into
// lib/tierkv's typed Config, ready to pass to tierkv.OpenStore.
func (c Config) ToTierKVConfig() (tierkv.Config, error) {
	if err := c.Validate(); err != nil {
		return tierkv.Config{}, err
	}

	var tiers [5]compress.Algorithm
	names := [5]string{c.Tiers.T0, c.Tiers.T1, c.Tiers.T2, c.Tiers.T3, c.Tiers.T4}
	for i, name := range names {
		algo, err := compress.ParseAlgorithm(name)
		if err != nil {
			return tierkv.Config{}, fmt.Errorf("config: tier %d: %w", i, err)
		}
		tiers[i] = algo
	}

	out := tierkv.Config{
		TierAlgorithms:    tiers,
		EnableChunking:    c.Chunking.Enabled,
		ChunkingThreshold: c.Chunking.ThresholdBytes,
		ChunkSize:         c.Chunking.ChunkSizeBytes,
		EnableHeatDecay:   c.Decay.Enabled,
		HeatDecayFactor:   c.Decay.Factor,
		HeatDecayAmount:   c.Decay.Amount,
		HeatDecayInterval: c.Decay.IntervalSeconds,
		ReorgThreshold:    c.Reorg.Threshold,
		AllowDeletion:     c.AllowDeletion,
		MaxSizeBytes:      c.MaxSizeBytes,
		LazyPersistence:   c.LazyPersistence,
		WriteBufferSize:   c.WriteBufferSize,
	}

	if c.Decay.Enabled {
		strategy, err := heat.ParseDecayStrategy(c.Decay.Strategy)
		if err != nil {
			return tierkv.Config{}, fmt.Errorf("config: decay.strategy: %w", err)
		}
		out.HeatDecayStrategy = strategy
	}

	reorg, err := heat.ParseReorgTrigger(c.Reorg.Strategy)
	if err != nil {
		return tierkv.Config{}, fmt.Errorf("config: reorg.strategy: %w", err)
	}
	out.ReorgStrategy = reorg

	return out, nil
}
