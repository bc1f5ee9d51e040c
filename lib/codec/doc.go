// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration used by
// tierkv's external-collaborator persistence: the secondary-index
// layer's schemas.db and indexes.db (package kvindex). The core
// store's own on-disk streams (data.db, metadata.db,
// chunk_metadata.db) use the fixed little-endian binary layouts the
// store format documents directly and never go through this package
// — CBOR is reserved for the shallow, self-describing external
// collaborator, which has no format stability requirement as strict
// as the core streams.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec
