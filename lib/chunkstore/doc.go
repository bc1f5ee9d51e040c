// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkstore implements the store's chunked-blob component:
// splitting a large value into fixed-size chunks, one file per chunk,
// each independently compressed and heat-tracked, plus partial range
// reads that touch only the chunks a caller actually asked for.
//
// Unlike the teacher's content-defined chunking (GearHash rolling
// boundaries sized for deduplication), chunkstore splits at fixed
// byte offsets: the store's chunking exists for range-read locality
// and per-chunk heat propagation, not cross-value dedup, so a
// predictable chunk_id ↔ byte-offset mapping matters more than
// content-addressed chunk boundaries.
package chunkstore
