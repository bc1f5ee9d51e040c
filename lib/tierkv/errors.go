// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierkv

import (
	"errors"

	"github.com/bureau-foundation/tierkv/lib/chunkstore"
)

// ErrNotChunked is returned by GetRange when key exists but is not a
// chunked entry.
var ErrNotChunked = errors.New("tierkv: key is not chunked")

// ErrKeyKindMismatch is returned by Insert when key currently lives in
// the other namespace (inline vs chunked). The spec's reference
// implementation silently dual-inserts in this situation; this is a
// known bug the facade is required to reject instead (§9, O1).
var ErrKeyKindMismatch = errors.New("tierkv: key already exists in the other namespace")

// ErrNotOpen is returned by Insert, Get, GetRange, Remove and Close
// when the facade is not in the Open state. Unlike the other sentinels, this is a
// programmer-contract violation rather than a data-level condition —
// callers are expected to check Open/Close discipline, not retry.
var ErrNotOpen = errors.New("tierkv: facade is not open")

// ErrOutOfRange re-exports chunkstore.ErrOutOfRange so callers of this
// package never need to import lib/chunkstore directly.
var ErrOutOfRange = chunkstore.ErrOutOfRange

// ErrAlreadyLocked is returned by Open when another process already
// holds the store directory's exclusive lockfile.
var ErrAlreadyLocked = errors.New("tierkv: store directory is locked by another process")
