// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvindex is the store's external secondary-index
// collaborator: a single-column equality (HASH) index over rows
// persisted through a tierkv facade's binary Get/Insert/Remove
// surface.
//
// kvindex does not touch tierkv's internal formats. A row is just a
// CBOR-encoded map stored under an opaque key; the index itself
// — which row IDs currently hold which value in an indexed column —
// lives in two files beside the facade's own store directory:
// schemas.db (table and index definitions) and indexes.db (the
// posting lists). Both are plain CBOR records via lib/codec, not the
// fixed little-endian layouts the core store uses, since this layer
// has no on-disk format stability requirement as strict as the core's.
//
// Only HASH (equality) indexes are supported — no ORDERED index, no
// range queries, no query planning. Each posting list entry tracks a
// heat score via lib/heat, bumped on every QueryEqual lookup and
// reduced by Index.Decay the same way the core store decays data
// heat, so a second call site exercises the decay machinery without
// granting the index any additional query capability.
package kvindex
