// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvindex

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/tierkv/lib/codec"
)

// postingRecord is the on-disk shape of one posting list in
// indexes.db. Unlike the core store's fixed binary layouts, this is a
// self-describing CBOR record — the external collaborator has no
// format-stability requirement as strict as data.db/metadata.db.
type postingRecord struct {
	Table      string   `cbor:"table"`
	Column     string   `cbor:"column"`
	Value      string   `cbor:"value"`
	RowIDs     []string `cbor:"row_ids"`
	Heat       int      `cbor:"heat"`
	LastAccess int64    `cbor:"last_access"`
}

// SaveToDisk persists both schemas.db and indexes.db atomically.
func (idx *Index) SaveToDisk() error {
	if err := idx.saveSchemas(); err != nil {
		return err
	}
	return idx.saveIndexes()
}

func (idx *Index) saveSchemas() error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	for _, t := range idx.tables {
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	return atomicWriteFile(idx.schemasPath, buf.Bytes())
}

func (idx *Index) saveIndexes() error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	for key, p := range idx.postings {
		rec := postingRecord{
			Table:      key.Table,
			Column:     key.Column,
			Value:      key.Value,
			RowIDs:     make([]string, 0, len(p.RowIDs)),
			Heat:       p.Heat,
			LastAccess: p.LastAccess,
		}
		for id := range p.RowIDs {
			rec.RowIDs = append(rec.RowIDs, id)
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return atomicWriteFile(idx.indexesPath, buf.Bytes())
}

func (idx *Index) loadSchemas() error {
	data, err := os.ReadFile(idx.schemasPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	dec := codec.NewDecoder(bytes.NewReader(data))
	for {
		var t Table
		if err := dec.Decode(&t); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if t.Indexed == nil {
			t.Indexed = make(map[string]bool)
		}
		idx.tables[t.Name] = &t
	}
	return nil
}

func (idx *Index) loadIndexes() error {
	data, err := os.ReadFile(idx.indexesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	dec := codec.NewDecoder(bytes.NewReader(data))
	for {
		var rec postingRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		p := &posting{
			RowIDs:     make(map[string]struct{}, len(rec.RowIDs)),
			Heat:       rec.Heat,
			LastAccess: rec.LastAccess,
		}
		for _, id := range rec.RowIDs {
			p.RowIDs[id] = struct{}{}
		}
		idx.postings[postingKey{Table: rec.Table, Column: rec.Column, Value: rec.Value}] = p
	}
	return nil
}

// atomicWriteFile writes data to path via a temp file plus rename, the
// same discipline kvstore and chunkstore use for their own binary
// streams.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
