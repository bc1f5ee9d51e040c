// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvindex

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/bureau-foundation/tierkv/lib/clock"
	"github.com/bureau-foundation/tierkv/lib/codec"
	"github.com/bureau-foundation/tierkv/lib/heat"
	"github.com/bureau-foundation/tierkv/lib/tierkv"
)

// Table is a table's schema: its column names and which of them carry
// a HASH index. RowIDs is the manifest of every row ID ever inserted
// into the table (removed rows are dropped from it); it exists so
// CreateIndex can backfill postings for rows inserted before the
// index existed, without kvindex needing to scan the facade itself.
type Table struct {
	Name    string          `cbor:"name"`
	Columns []string        `cbor:"columns"`
	Indexed map[string]bool `cbor:"indexed"`
	RowIDs  []string        `cbor:"row_ids"`
}

func (t *Table) hasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// postingKey identifies one (table, column, value) posting list.
type postingKey struct {
	Table  string
	Column string
	Value  string
}

// posting is one indexed value's row-ID set plus its heat score,
// tracked the same way §4.2 tracks heat for inline data.
type posting struct {
	RowIDs     map[string]struct{}
	Heat       int
	LastAccess int64
}

// Config configures an Index. Decay timing (when Decay should be
// called) is the caller's responsibility, the same way tierkv.Facade
// leaves the decay interval check to its own post-op hook rather than
// to this package.
type Config struct {
	DecayStrategy heat.DecayStrategy
	DecayFactor   int
	DecayAmount   int

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Clock == nil {
		out.Clock = clock.Real()
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return out
}

// Index is the secondary-index collaborator. It stores rows through a
// tierkv facade's opaque binary surface and keeps its own schema and
// posting-list files (schemas.db, indexes.db) beside the facade's
// store directory.
type Index struct {
	schemasPath string
	indexesPath string
	facade      *tierkv.Facade
	config      Config

	tables   map[string]*Table
	postings map[postingKey]*posting
}

// New opens (or creates) an index collaborator rooted at dir, storing
// rows through facade. dir is typically a sibling of the facade's own
// store directory (e.g. "<parent>/index" beside "<parent>/store.db").
func New(dir string, facade *tierkv.Facade, config Config) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvindex: creating index directory %s: %w", dir, err)
	}

	idx := &Index{
		schemasPath: dir + "/schemas.db",
		indexesPath: dir + "/indexes.db",
		facade:      facade,
		config:      config.withDefaults(),
		tables:      make(map[string]*Table),
		postings:    make(map[postingKey]*posting),
	}

	if err := idx.loadSchemas(); err != nil {
		return nil, fmt.Errorf("kvindex: loading schemas.db: %w", err)
	}
	if err := idx.loadIndexes(); err != nil {
		return nil, fmt.Errorf("kvindex: loading indexes.db: %w", err)
	}

	return idx, nil
}

// CreateTable defines a new table with the given columns.
func (idx *Index) CreateTable(name string, columns []string) error {
	if _, exists := idx.tables[name]; exists {
		return ErrTableExists
	}
	idx.tables[name] = &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
		Indexed: make(map[string]bool),
	}
	return nil
}

// CreateIndex adds a HASH index on column, backfilling postings for
// every row already inserted into the table.
func (idx *Index) CreateIndex(table, column string) error {
	t, ok := idx.tables[table]
	if !ok {
		return ErrUnknownTable
	}
	if !t.hasColumn(column) {
		return ErrUnknownColumn
	}
	if t.Indexed[column] {
		return ErrIndexExists
	}

	for _, rowID := range t.RowIDs {
		row, ok, err := idx.getRow(table, rowID)
		if err != nil {
			return fmt.Errorf("kvindex: backfilling %s.%s for row %s: %w", table, column, rowID, err)
		}
		if !ok {
			continue // row manifested but no longer present; tolerate, consistent with the facade's degrade-not-abort stance
		}
		if value, present := row[column]; present {
			idx.addPosting(table, column, value, rowID)
		}
	}

	t.Indexed[column] = true
	return nil
}

// Insert stores row under rowID in table, updating every indexed
// column's posting lists. A row already present under rowID is
// replaced; its stale postings are removed first.
func (idx *Index) Insert(table, rowID string, row map[string]any) error {
	t, ok := idx.tables[table]
	if !ok {
		return ErrUnknownTable
	}
	for column := range row {
		if !t.hasColumn(column) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, column)
		}
	}

	if old, existed, err := idx.getRow(table, rowID); err != nil {
		return err
	} else if existed {
		idx.removePostingsForRow(t, old, rowID)
	} else {
		t.RowIDs = append(t.RowIDs, rowID)
	}

	data, err := codec.Marshal(row)
	if err != nil {
		return fmt.Errorf("kvindex: encoding row %s/%s: %w", table, rowID, err)
	}
	if err := idx.facade.Insert(rowKey(table, rowID), data); err != nil {
		return fmt.Errorf("kvindex: storing row %s/%s: %w", table, rowID, err)
	}

	for column := range t.Indexed {
		if value, present := row[column]; present {
			idx.addPosting(table, column, value, rowID)
		}
	}

	return nil
}

// Get returns the row stored under rowID in table.
func (idx *Index) Get(table, rowID string) (map[string]any, error) {
	if _, ok := idx.tables[table]; !ok {
		return nil, ErrUnknownTable
	}
	row, ok, err := idx.getRow(table, rowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRowNotFound
	}
	return row, nil
}

// Remove deletes rowID from table and its postings.
func (idx *Index) Remove(table, rowID string) error {
	t, ok := idx.tables[table]
	if !ok {
		return ErrUnknownTable
	}

	row, existed, err := idx.getRow(table, rowID)
	if err != nil {
		return err
	}
	if !existed {
		return ErrRowNotFound
	}

	if _, err := idx.facade.Remove(rowKey(table, rowID)); err != nil {
		return fmt.Errorf("kvindex: removing row %s/%s: %w", table, rowID, err)
	}
	idx.removePostingsForRow(t, row, rowID)

	for i, id := range t.RowIDs {
		if id == rowID {
			t.RowIDs = append(t.RowIDs[:i], t.RowIDs[i+1:]...)
			break
		}
	}

	return nil
}

// QueryEqual returns the row IDs whose value in column equals value,
// sorted for determinism. Every successful lookup bumps the matched
// posting's heat the same way a data read bumps §4.2's node heat.
func (idx *Index) QueryEqual(table, column string, value any) ([]string, error) {
	t, ok := idx.tables[table]
	if !ok {
		return nil, ErrUnknownTable
	}
	if !t.hasColumn(column) {
		return nil, ErrUnknownColumn
	}
	if !t.Indexed[column] {
		return nil, ErrNotIndexed
	}

	key := postingKey{Table: table, Column: column, Value: indexValueKey(value)}
	p, ok := idx.postings[key]
	if !ok {
		return nil, nil
	}

	p.Heat = heat.UpdateOnRead(p.Heat)
	p.LastAccess = idx.config.Clock.Now().Unix()

	ids := make([]string, 0, len(p.RowIDs))
	for id := range p.RowIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Decay applies one decay pass to every posting's heat, the same
// decay strategies §4.2 applies to data.
func (idx *Index) Decay() {
	if idx.config.DecayStrategy == heat.DecayNone {
		return
	}
	now := idx.config.Clock.Now().Unix()
	for _, p := range idx.postings {
		p.Heat = heat.Decay(idx.config.DecayStrategy, p.Heat, idx.config.DecayFactor, idx.config.DecayAmount, p.LastAccess, now)
	}
}

func (idx *Index) getRow(table, rowID string) (map[string]any, bool, error) {
	data, ok, err := idx.facade.Get(rowKey(table, rowID))
	if err != nil {
		return nil, false, fmt.Errorf("kvindex: reading row %s/%s: %w", table, rowID, err)
	}
	if !ok {
		return nil, false, nil
	}
	var row map[string]any
	if err := codec.Unmarshal(data, &row); err != nil {
		return nil, false, fmt.Errorf("kvindex: decoding row %s/%s: %w", table, rowID, err)
	}
	return row, true, nil
}

func (idx *Index) addPosting(table, column string, value any, rowID string) {
	key := postingKey{Table: table, Column: column, Value: indexValueKey(value)}
	p, ok := idx.postings[key]
	if !ok {
		p = &posting{
			RowIDs:     make(map[string]struct{}),
			Heat:       heat.DefaultInsertHeat(),
			LastAccess: idx.config.Clock.Now().Unix(),
		}
		idx.postings[key] = p
	}
	p.RowIDs[rowID] = struct{}{}
}

func (idx *Index) removePostingsForRow(t *Table, row map[string]any, rowID string) {
	for column := range t.Indexed {
		value, present := row[column]
		if !present {
			continue
		}
		key := postingKey{Table: t.Name, Column: column, Value: indexValueKey(value)}
		p, ok := idx.postings[key]
		if !ok {
			continue
		}
		delete(p.RowIDs, rowID)
		if len(p.RowIDs) == 0 {
			delete(idx.postings, key)
		}
	}
}

func rowKey(table, rowID string) string {
	return "kvindex\x00" + table + "\x00" + rowID
}

// indexValueKey renders an indexed column value to a string suitable
// as a map key, tagging it with its Go type so the string "1" and the
// int 1 never collide. The value is first round-tripped through the
// row codec, so a caller's int and the uint64 that a stored row
// decodes to map to the same key.
func indexValueKey(value any) string {
	if data, err := codec.Marshal(value); err == nil {
		var decoded any
		if codec.Unmarshal(data, &decoded) == nil {
			value = decoded
		}
	}
	return fmt.Sprintf("%T:%v", value, value)
}
