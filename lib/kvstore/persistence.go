// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/tierkv/lib/compress"
	"github.com/bureau-foundation/tierkv/lib/heat"
)

// SaveToDisk rewrites both data.db and metadata.db in full, each via
// a temp-file-then-rename so a crash mid-write never leaves a
// corrupted file in place of a prior good image (§9, O2).
func (s *Store) SaveToDisk() error {
	s.Flush()

	if err := s.saveData(); err != nil {
		return fmt.Errorf("kvstore: saving data image: %w", err)
	}
	if err := s.saveMetadata(); err != nil {
		return fmt.Errorf("kvstore: saving metadata image: %w", err)
	}
	return nil
}

func (s *Store) saveData() error {
	var buf bytes.Buffer
	for key, value := range s.data {
		writeRecordBytes(&buf, []byte(key))
		writeRecordBytes(&buf, value)
	}
	return atomicWriteFile(s.dataPath, buf.Bytes())
}

func (s *Store) saveMetadata() error {
	var buf bytes.Buffer

	var header [28]byte
	binary.LittleEndian.PutUint64(header[0:8], s.totalAccesses)
	binary.LittleEndian.PutUint64(header[8:16], s.opsSinceReorg)
	binary.LittleEndian.PutUint64(header[16:24], uint64(s.lastReorgTime))
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(s.metadata)))
	buf.Write(header[:])

	for key, meta := range s.metadata {
		writeRecordBytes(&buf, []byte(key))

		var fixed [34]byte
		binary.LittleEndian.PutUint64(fixed[0:8], meta.AccessCount)
		binary.LittleEndian.PutUint64(fixed[8:16], uint64(meta.LastAccess))
		fixed[16] = byte(meta.Tier)
		fixed[17] = byte(meta.Algorithm)
		binary.LittleEndian.PutUint64(fixed[18:26], meta.OriginalSize)
		binary.LittleEndian.PutUint64(fixed[26:34], meta.CompressedSize)
		buf.Write(fixed[:])

		var heatField [4]byte
		binary.LittleEndian.PutUint32(heatField[:], meta.Heat)
		buf.Write(heatField[:])
	}

	return atomicWriteFile(s.metadataPath, buf.Bytes())
}

func writeRecordBytes(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}

	success = true
	return nil
}

// loadFromDisk loads both images, tolerating either file's absence as
// an empty store.
func (s *Store) loadFromDisk() error {
	if err := s.loadData(); err != nil {
		return fmt.Errorf("kvstore: loading data image: %w", err)
	}
	if err := s.loadMetadata(); err != nil {
		return fmt.Errorf("kvstore: loading metadata image: %w", err)
	}

	s.footprintBytes = 0
	for _, meta := range s.metadata {
		s.footprintBytes += int64(meta.CompressedSize)
	}
	return nil
}

func (s *Store) loadData() error {
	raw, err := os.ReadFile(s.dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	r := bytes.NewReader(raw)
	for {
		key, err := readRecordBytes(r)
		if err != nil {
			break // truncated tail record discarded, per §6
		}
		value, err := readRecordBytes(r)
		if err != nil {
			break
		}
		s.data[string(key)] = value
	}
	return nil
}

func readRecordBytes(r *bytes.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(length[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// loadMetadata parses metadata.db. The on-disk format has no version
// byte: whether the trailing per-record heat field is present is a
// whole-file property, not a per-record one (pre-v3 images never
// wrote it). We first try the v3 layout; if that does not exactly
// consume the file for the declared record count, we retry under the
// v2 layout (no heat field), defaulting heat to a low value and
// marking each record legacy so Reorganize re-derives its tier from
// AccessCount on the next pass. If neither layout cleanly accounts
// for the file, we keep whichever layout parsed further and discard
// the truncated tail (§7, Corruption).
func (s *Store) loadMetadata() error {
	raw, err := os.ReadFile(s.metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(raw) < 28 {
		return nil // too short even for a header; treat as empty
	}

	s.totalAccesses = binary.LittleEndian.Uint64(raw[0:8])
	s.opsSinceReorg = binary.LittleEndian.Uint64(raw[8:16])
	s.lastReorgTime = int64(binary.LittleEndian.Uint64(raw[16:24]))
	count := binary.LittleEndian.Uint32(raw[24:28])
	body := raw[28:]

	v3Records, v3Consumed, v3Err := parseMetadataRecords(body, count, true)
	if v3Err == nil && v3Consumed == len(body) {
		for _, rec := range v3Records {
			s.metadata[rec.key] = rec.meta
		}
		return nil
	}

	v2Records, _, v2Err := parseMetadataRecords(body, count, false)
	if v2Err == nil {
		for _, rec := range v2Records {
			rec.meta.Heat = uint32(heat.DefaultInsertHeat())
			rec.meta.legacy = true
			s.metadata[rec.key] = rec.meta
		}
		return nil
	}

	// Both layouts hit truncation before the declared count — keep
	// whichever parse got further and move on; the loss of the tail
	// since the last clean shutdown is the documented fragility.
	best := v3Records
	if len(v2Records) > len(v3Records) {
		best = v2Records
	}
	for _, rec := range best {
		if rec.legacy {
			rec.meta.Heat = uint32(heat.DefaultInsertHeat())
			rec.meta.legacy = true
		}
		s.metadata[rec.key] = rec.meta
	}
	return nil
}

type metadataRecord struct {
	key    string
	meta   *NodeMetadata
	legacy bool
}

// parseMetadataRecords parses up to count records from body. It
// returns every record parsed before either hitting count or running
// out of bytes, the number of bytes consumed, and an error if it
// stopped short of count.
func parseMetadataRecords(body []byte, count uint32, withHeat bool) ([]metadataRecord, int, error) {
	r := bytes.NewReader(body)
	records := make([]metadataRecord, 0, count)

	for i := uint32(0); i < count; i++ {
		key, err := readRecordBytes(r)
		if err != nil {
			return records, len(body) - r.Len(), err
		}

		fixedLen := 34
		fixed := make([]byte, fixedLen)
		if _, err := io.ReadFull(r, fixed); err != nil {
			return records, len(body) - r.Len(), err
		}

		meta := &NodeMetadata{
			AccessCount:    binary.LittleEndian.Uint64(fixed[0:8]),
			LastAccess:     int64(binary.LittleEndian.Uint64(fixed[8:16])),
			Tier:           heat.Tier(fixed[16]),
			Algorithm:      compress.Algorithm(fixed[17]),
			OriginalSize:   binary.LittleEndian.Uint64(fixed[18:26]),
			CompressedSize: binary.LittleEndian.Uint64(fixed[26:34]),
		}

		if withHeat {
			var heatField [4]byte
			if _, err := io.ReadFull(r, heatField[:]); err != nil {
				return records, len(body) - r.Len(), err
			}
			meta.Heat = binary.LittleEndian.Uint32(heatField[:])
		}

		records = append(records, metadataRecord{key: string(key), meta: meta, legacy: !withHeat})
	}

	return records, len(body) - r.Len(), nil
}
