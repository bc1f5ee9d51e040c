// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// tierkv-bench is a standalone workload runner for a tierkv store.
// It opens (or creates) a store directory, drives a configurable
// insert/get workload against it with a Zipf-skewed key popularity
// (so a minority of keys stay hot while the rest cool toward T4), and
// prints the resulting tier occupancy. It is a demo and load-testing
// tool, not part of the core library surface.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tierkv/lib/config"
	"github.com/bureau-foundation/tierkv/lib/tierkv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dir        string
		preset     string
		keyCount   int
		valueSize  int
		operations int
		zipfS      float64
		reorgEvery int64
		printEvery int
		quiet      bool
	)

	flagSet := pflag.NewFlagSet("tierkv-bench", pflag.ContinueOnError)
	flagSet.StringVar(&dir, "dir", "", "store directory (default: a temporary directory, removed on exit)")
	flagSet.StringVar(&preset, "preset", "text", "workload preset: images, videos, text, embedded, cctv")
	flagSet.IntVar(&keyCount, "keys", 1000, "number of distinct keys to populate")
	flagSet.IntVar(&valueSize, "value-size", 512, "size in bytes of each value")
	flagSet.IntVar(&operations, "ops", 20000, "number of get operations to perform after populating")
	flagSet.Float64Var(&zipfS, "zipf-s", 1.2, "Zipf distribution skew parameter (higher = more skewed toward a few hot keys)")
	flagSet.Int64Var(&reorgEvery, "reorg-every", 500, "reorganize after this many operations")
	flagSet.IntVar(&printEvery, "print-every", 0, "print tier occupancy every N operations (0: only at the end)")
	flagSet.BoolVar(&quiet, "quiet", false, "suppress progress output, print only the final tier occupancy table")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := presetConfig(preset)
	if err != nil {
		return err
	}

	if dir == "" {
		tmp, err := os.MkdirTemp("", "tierkv-bench-*")
		if err != nil {
			return fmt.Errorf("creating temp directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = filepath.Join(tmp, "store.db")
	}
	cfg = cfg.WithDirectory(dir).WithReorg("every_n_ops", reorgEvery)

	tierKVConfig, err := cfg.ToTierKVConfig()
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	tierKVConfig.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	facade, err := tierkv.OpenStore(dir, tierKVConfig)
	if err != nil {
		return fmt.Errorf("opening store at %s: %w", dir, err)
	}
	defer facade.Close()

	keys := make([]string, keyCount)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%08d", i)
	}

	value := make([]byte, valueSize)
	rand.New(rand.NewSource(1)).Read(value)

	if !quiet {
		fmt.Printf("populating %d keys (%d bytes each) under %s\n", keyCount, valueSize, dir)
	}
	for _, key := range keys {
		if err := facade.Insert(key, value); err != nil {
			return fmt.Errorf("inserting %s: %w", key, err)
		}
	}

	zipf := rand.NewZipf(rand.New(rand.NewSource(2)), zipfS, 1, uint64(keyCount-1))
	if !quiet {
		fmt.Printf("running %d gets with Zipf skew s=%.2f\n", operations, zipfS)
	}

	for i := 1; i <= operations; i++ {
		key := keys[zipf.Uint64()]
		if _, _, err := facade.Get(key); err != nil {
			return fmt.Errorf("getting %s: %w", key, err)
		}
		if printEvery > 0 && i%printEvery == 0 {
			printOccupancy(facade, keys, fmt.Sprintf("after %d ops", i))
		}
	}

	printOccupancy(facade, keys, "final")
	return nil
}

func presetConfig(name string) (config.Config, error) {
	switch name {
	case "images":
		return config.ConfigForImages(), nil
	case "videos":
		return config.ConfigForVideos(), nil
	case "text":
		return config.ConfigForText(), nil
	case "embedded":
		return config.ConfigForEmbedded(), nil
	case "cctv":
		return config.ConfigForCCTV(), nil
	default:
		return config.Config{}, fmt.Errorf("unknown preset %q (want images, videos, text, embedded, or cctv)", name)
	}
}

func printOccupancy(facade *tierkv.Facade, keys []string, label string) {
	counts := map[string]int{"T0": 0, "T1": 0, "T2": 0, "T3": 0, "T4": 0, "missing": 0}
	for _, key := range keys {
		meta, ok := facade.InlineMetadata(key)
		if !ok {
			counts["missing"]++
			continue
		}
		counts[meta.Tier.String()]++
	}

	fmt.Printf("tier occupancy (%s):\n", label)
	for _, name := range []string{"T0", "T1", "T2", "T3", "T4", "missing"} {
		fmt.Printf("  %-8s %d\n", name, counts[name])
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tierkv-bench — workload runner and tier-occupancy reporter for a tierkv store.

Populates a store with a configurable number of fixed-size keys, then
drives a Zipf-skewed read workload against them (most reads land on a
small hot set) and prints how many keys ended up in each compression
tier.

Usage:
  tierkv-bench [flags]

Examples:
  # Default text-preset run against a scratch directory
  tierkv-bench

  # Larger workload tuned for the images preset, printed every 5000 ops
  tierkv-bench --preset images --keys 5000 --ops 100000 --print-every 5000

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
