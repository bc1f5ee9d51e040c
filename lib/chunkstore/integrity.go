// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import "github.com/zeebo/blake3"

// chunkHashSize is the width of the integrity hash prefixed to every
// on-disk chunk file.
const chunkHashSize = 32

// chunkDomainKey domain-separates chunkstore's integrity hashes from
// any other BLAKE3 keyed domain in the process — in particular from
// the artifact store's own chunk/container/file domains, so that two
// components hashing superficially similar byte ranges never produce
// hashes that mean the same thing.
var chunkDomainKey = [32]byte{
	't', 'i', 'e', 'r', 'k', 'v', '.', 'c', 'h', 'u', 'n', 'k', 's', 't', 'o', 'r', 'e',
	'.', 'c', 'h', 'u', 'n', 'k', 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashChunk computes the keyed BLAKE3 hash of a chunk's plaintext
// bytes, stored as a prefix on the chunk file so a later read can
// detect silent corruption independent of the codec's own framing.
func hashChunk(plaintext []byte) [chunkHashSize]byte {
	hasher, err := blake3.NewKeyed(chunkDomainKey[:])
	if err != nil {
		// NewKeyed only fails on a key of the wrong length; ours is
		// a fixed 32-byte array, so this is unreachable.
		panic("chunkstore: blake3.NewKeyed: " + err.Error())
	}
	hasher.Write(plaintext)

	var out [chunkHashSize]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
