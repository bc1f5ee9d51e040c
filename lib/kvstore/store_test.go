// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/tierkv/lib/clock"
	"github.com/bureau-foundation/tierkv/lib/compress"
	"github.com/bureau-foundation/tierkv/lib/heat"
)

func allNoneConfig() Config {
	var tiers [5]compress.Algorithm
	for i := range tiers {
		tiers[i] = compress.AlgorithmNone
	}
	return Config{TierAlgorithms: tiers}
}

func newTestStore(t *testing.T, config Config) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data.db"), filepath.Join(dir, "metadata.db"), config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestInsertGetRoundtrip(t *testing.T) {
	s := newTestStore(t, allNoneConfig())

	value := []byte("the value stored under this key")
	if err := s.Insert("k", value); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok := s.Get("k")
	if !ok {
		t.Fatal("Get returned a miss for a key that was just inserted")
	}
	if !bytes.Equal(got, value) {
		t.Errorf("roundtrip mismatch: got %q, want %q", got, value)
	}
}

func TestInsertGetRoundtripAllAlgorithms(t *testing.T) {
	algorithms := []compress.Algorithm{
		compress.AlgorithmNone, compress.AlgorithmLZ4Fast, compress.AlgorithmLZ4High,
		compress.AlgorithmZstdFast, compress.AlgorithmZstdMedium, compress.AlgorithmZstdMax,
	}

	for _, algo := range algorithms {
		t.Run(algo.String(), func(t *testing.T) {
			var tiers [5]compress.Algorithm
			for i := range tiers {
				tiers[i] = algo
			}
			s := newTestStore(t, Config{TierAlgorithms: tiers})

			value := []byte(strings.Repeat("payload ", 100))
			if err := s.Insert("k", value); err != nil {
				t.Fatalf("Insert: %v", err)
			}

			got, ok := s.Get("k")
			if !ok {
				t.Fatal("Get miss")
			}
			if !bytes.Equal(got, value) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestInsertEmptyValue(t *testing.T) {
	s := newTestStore(t, allNoneConfig())

	if err := s.Insert("empty", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok := s.Get("empty")
	if !ok {
		t.Fatal("Get returned a miss for an empty value")
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d bytes", len(got))
	}

	meta := s.metadata["empty"]
	if meta.OriginalSize != 0 {
		t.Errorf("OriginalSize = %d, want 0", meta.OriginalSize)
	}
}

func TestInsertSetsOriginalSize(t *testing.T) {
	s := newTestStore(t, allNoneConfig())

	value := []byte("exactly seventeen")
	if err := s.Insert("k", value); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if s.metadata["k"].OriginalSize != uint64(len(value)) {
		t.Errorf("OriginalSize = %d, want %d", s.metadata["k"].OriginalSize, len(value))
	}
}

func TestGetMissingKeyIsAbsentNotError(t *testing.T) {
	s := newTestStore(t, allNoneConfig())

	_, ok := s.Get("nope")
	if ok {
		t.Error("Get of a missing key should report a miss")
	}
}

func TestGetBumpsAccessCountAndLastAccess(t *testing.T) {
	fake := clock.Fake(time.Unix(1000, 0))
	config := allNoneConfig()
	config.Clock = fake
	s := newTestStore(t, config)

	if err := s.Insert("k", []byte("v")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	before := s.metadata["k"].AccessCount
	fake.Advance(5 * time.Second)

	if _, ok := s.Get("k"); !ok {
		t.Fatal("Get miss")
	}

	meta := s.metadata["k"]
	if meta.AccessCount != before+1 {
		t.Errorf("AccessCount = %d, want %d", meta.AccessCount, before+1)
	}
	if meta.LastAccess != 1005 {
		t.Errorf("LastAccess = %d, want 1005", meta.LastAccess)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t, allNoneConfig())
	s.Insert("k", []byte("v"))

	if !s.Remove("k") {
		t.Error("first Remove should report the key existed")
	}
	if s.Remove("k") {
		t.Error("second Remove should report the key no longer existed")
	}
}

func TestLazyPersistenceBuffersUntilThreshold(t *testing.T) {
	config := allNoneConfig()
	config.LazyPersistence = true
	config.WriteBufferSize = 1024
	s := newTestStore(t, config)

	s.Insert("k", []byte("small"))
	if _, buffered := s.writeBuffer["k"]; !buffered {
		t.Error("expected the value to sit in the write buffer below the threshold")
	}

	got, ok := s.Get("k")
	if !ok || string(got) != "small" {
		t.Error("Get should flush the write buffer before looking up a key")
	}
	if _, buffered := s.writeBuffer["k"]; buffered {
		t.Error("Get should have flushed the write buffer")
	}
}

func TestHotColdMigration(t *testing.T) {
	// Mirrors the spec's hot-cold migration scenario: EVERY_N_OPS at
	// threshold 10, heat disabled (decay off, but heat still accrues
	// on read since UpdateOnRead is unconditional).
	config := allNoneConfig()
	s := newTestStore(t, config)

	s.Insert("a", bytes.Repeat([]byte("A"), 256))
	s.Insert("b", bytes.Repeat([]byte("B"), 256))

	for i := 0; i < 20; i++ {
		s.Get("a")
	}

	s.Reorganize()

	if s.metadata["a"].Tier != heat.T0 {
		t.Errorf("metadata[a].Tier = %s, want T0", s.metadata["a"].Tier)
	}
	if s.metadata["b"].Tier != heat.T4 {
		t.Errorf("metadata[b].Tier = %s, want T4", s.metadata["b"].Tier)
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	metadataPath := filepath.Join(dir, "metadata.db")

	s, err := New(dataPath, metadataPath, allNoneConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := make(map[string][]byte)
	for i := 0; i < 10; i++ {
		key := strings.Repeat(string(rune('a'+i)), 3)
		value := bytes.Repeat([]byte{byte(i)}, 64)
		want[key] = value
		if err := s.Insert(key, value); err != nil {
			t.Fatalf("Insert(%s): %v", key, err)
		}
		for j := 0; j < i; j++ {
			s.Get(key)
		}
	}

	accessCounts := make(map[string]uint64)
	for key, meta := range s.metadata {
		accessCounts[key] = meta.AccessCount
	}

	if err := s.SaveToDisk(); err != nil {
		t.Fatalf("SaveToDisk: %v", err)
	}

	reopened, err := New(dataPath, metadataPath, allNoneConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	for key, value := range want {
		got, ok := reopened.data[key]
		if !ok {
			t.Fatalf("key %q missing after reopen", key)
		}
		if !bytes.Equal(got, value) {
			t.Errorf("key %q: data mismatch after reopen", key)
		}
		if reopened.metadata[key].AccessCount != accessCounts[key] {
			t.Errorf("key %q: AccessCount = %d, want %d", key,
				reopened.metadata[key].AccessCount, accessCounts[key])
		}
	}
}

func TestEvictionRemovesColdestTenPercent(t *testing.T) {
	config := allNoneConfig()
	config.AllowDeletion = true
	config.MaxSizeBytes = 1 // force eviction on the 101st insert
	s := newTestStore(t, config)

	value := bytes.Repeat([]byte{0xAB}, 1024)

	for i := 0; i < 100; i++ {
		key := keyForIndex(i)
		s.config.MaxSizeBytes = 1 << 62 // avoid evicting mid-seed
		if err := s.Insert(key, value); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		for j := 0; j < i; j++ {
			s.Get(key)
		}
	}

	s.config.MaxSizeBytes = 1
	s.Insert(keyForIndex(100), value)

	if s.Len() != 91 {
		t.Fatalf("after eviction, Len() = %d, want 91 (101 inserted, 10 evicted)", s.Len())
	}

	// The ten coldest keys by access count are key0..key8 (counts
	// 0..8) and key100 (count 0, tying key0) — together the ten
	// lowest access counts among the 101 inserted keys.
	for i := 0; i < 9; i++ {
		if s.Has(keyForIndex(i)) {
			t.Errorf("expected key %d (coldest) to have been evicted", i)
		}
	}
	if s.Has(keyForIndex(100)) {
		t.Error("expected key 100 (access count 0, tied for coldest) to have been evicted")
	}
	for i := 9; i < 100; i++ {
		if !s.Has(keyForIndex(i)) {
			t.Errorf("expected key %d to survive eviction", i)
		}
	}
}

func keyForIndex(i int) string {
	return strings.Repeat("k", 1) + string(rune('A'+i%26)) + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}
