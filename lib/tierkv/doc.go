// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tierkv is the store's single outward-facing entry point: it
// owns a kvstore.Store, optionally a chunkstore.ChunkStore, the
// lifecycle state machine, an exclusive on-disk lockfile, and the
// post-op hooks (reorganization and heat decay) that fire after every
// public call.
//
// Routing is by value size at insert time and by which namespace a
// key already lives in thereafter: small values go to the inline
// Store, large ones to the ChunkStore, and a key is rejected with
// ErrKeyKindMismatch if an insert would place it in the namespace it
// does not already occupy.
package tierkv
