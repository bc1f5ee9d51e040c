// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore implements the store's inline-key component: a
// key-to-blob map, its per-key NodeMetadata, a write buffer for lazy
// persistence, size-bound eviction, and the flat binary image format
// (data.db, metadata.db) the store rewrites on every SaveToDisk.
//
// kvstore has no opinion about chunking or key-kind routing — that is
// package tierkv's job. It assumes every key handed to it belongs in
// the inline namespace.
package kvstore
