// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import "errors"

// ErrNotFound is returned when a range read targets a key that has no
// chunked entry.
var ErrNotFound = errors.New("chunkstore: key not found")

// ErrOutOfRange is returned when a range read violates
// 0 ≤ start ≤ end < num_chunks.
var ErrOutOfRange = errors.New("chunkstore: chunk range out of bounds")
