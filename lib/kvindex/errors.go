// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvindex

import "errors"

// ErrTableExists is returned by CreateTable when the table is already
// defined.
var ErrTableExists = errors.New("kvindex: table already exists")

// ErrUnknownTable is returned whenever a table name does not match a
// prior CreateTable call.
var ErrUnknownTable = errors.New("kvindex: unknown table")

// ErrUnknownColumn is returned when an operation names a column the
// table's schema does not define.
var ErrUnknownColumn = errors.New("kvindex: unknown column")

// ErrIndexExists is returned by CreateIndex when the column already
// has a HASH index.
var ErrIndexExists = errors.New("kvindex: index already exists")

// ErrNotIndexed is returned by QueryEqual when the named column has no
// HASH index.
var ErrNotIndexed = errors.New("kvindex: column is not indexed")

// ErrRowNotFound is returned by Get and Remove when the row ID does
// not exist in the named table.
var ErrRowNotFound = errors.New("kvindex: row not found")
