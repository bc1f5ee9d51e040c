// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package heat implements the store's heat/tiering accounting: the
// heat-to-tier mapping, the heat bump applied on a successful read,
// the three decay strategies, and the predicates that decide when a
// reorganization or decay pass should fire. It holds no state of its
// own — every function here is a pure transform over the caller's
// metadata, which lives in package kvstore and package chunkstore.
package heat
