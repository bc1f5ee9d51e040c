// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the store's codec: a pure byte-in,
// byte-out compression and decompression pair keyed by a tagged
// algorithm enum. It has no notion of tiers, heat, or keys — those
// belong to package heat and package kvstore, which call Encode and
// Decode with whatever algorithm their tier configuration names.
//
// Six algorithms are supported: Algorithm NONE is the identity.
// AlgorithmLZ4Fast and AlgorithmLZ4High are pierrec/lz4 block
// compression at two effort levels. AlgorithmZstdFast,
// AlgorithmZstdMedium, and AlgorithmZstdMax are klauspost/compress/zstd
// at increasing effort levels. None of the five non-identity codecs
// frame their output with a length prefix, so Decode must always be
// given the exact original plaintext length.
package compress
