// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/tierkv/lib/heat"
)

// SaveMetadata rewrites chunk_metadata.db in full via temp-file-then-
// rename, mirroring kvstore's atomic save discipline (§9, O2). Chunk
// file bodies themselves are already durable the moment Insert or a
// Decay recompression returns — only the index needs a separate save.
func (cs *ChunkStore) SaveMetadata() error {
	var buf bytes.Buffer

	var numFiles [4]byte
	binary.LittleEndian.PutUint32(numFiles[:], uint32(len(cs.files)))
	buf.Write(numFiles[:])

	for key, file := range cs.files {
		writeRecordBytes(&buf, []byte(key))

		var fixed [24]byte
		binary.LittleEndian.PutUint64(fixed[0:8], file.TotalSize)
		binary.LittleEndian.PutUint64(fixed[8:16], file.ChunkSize)
		binary.LittleEndian.PutUint32(fixed[16:20], file.NumChunks)
		binary.LittleEndian.PutUint32(fixed[20:24], uint32(len(file.Chunks)))
		buf.Write(fixed[:])

		for _, meta := range file.Chunks {
			var chunkFixed [41]byte
			binary.LittleEndian.PutUint32(chunkFixed[0:4], meta.ChunkID)
			binary.LittleEndian.PutUint32(chunkFixed[4:8], meta.Heat)
			binary.LittleEndian.PutUint64(chunkFixed[8:16], meta.CompressedSize)
			binary.LittleEndian.PutUint64(chunkFixed[16:24], meta.OriginalSize)
			binary.LittleEndian.PutUint64(chunkFixed[24:32], meta.FileOffset)
			chunkFixed[32] = byte(meta.Tier)
			binary.LittleEndian.PutUint64(chunkFixed[33:41], uint64(meta.LastAccess))
			buf.Write(chunkFixed[:])
		}
	}

	return atomicWriteFile(cs.metadataPath, buf.Bytes())
}

// loadMetadata parses chunk_metadata.db, tolerating its absence as an
// empty index. A chunk record's algorithm is not persisted — it is
// re-derived from the chunk's tier on first use after load, the same
// way a freshly-inserted chunk's algorithm follows its tier.
func (cs *ChunkStore) loadMetadata() error {
	raw, err := os.ReadFile(cs.metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(raw) < 4 {
		return nil
	}

	numFiles := binary.LittleEndian.Uint32(raw[0:4])
	r := bytes.NewReader(raw[4:])

	for i := uint32(0); i < numFiles; i++ {
		key, err := readRecordBytes(r)
		if err != nil {
			cs.config.Logger.Warn("chunkstore: chunk index truncated, stopping load", "error", err)
			return nil
		}

		var fixed [24]byte
		if _, err := io.ReadFull(r, fixed[:]); err != nil {
			cs.config.Logger.Warn("chunkstore: chunk index truncated mid-record, stopping load", "error", err)
			return nil
		}

		file := &ChunkedFileMetadata{
			TotalSize: binary.LittleEndian.Uint64(fixed[0:8]),
			ChunkSize: binary.LittleEndian.Uint64(fixed[8:16]),
			NumChunks: binary.LittleEndian.Uint32(fixed[16:20]),
			Chunks:    make(map[uint32]*ChunkMetadata),
		}
		numChunkMeta := binary.LittleEndian.Uint32(fixed[20:24])

		for j := uint32(0); j < numChunkMeta; j++ {
			var chunkFixed [41]byte
			if _, err := io.ReadFull(r, chunkFixed[:]); err != nil {
				cs.config.Logger.Warn("chunkstore: chunk metadata truncated mid-record, stopping load", "error", err)
				return nil
			}

			meta := &ChunkMetadata{
				ChunkID:        binary.LittleEndian.Uint32(chunkFixed[0:4]),
				Heat:           binary.LittleEndian.Uint32(chunkFixed[4:8]),
				CompressedSize: binary.LittleEndian.Uint64(chunkFixed[8:16]),
				OriginalSize:   binary.LittleEndian.Uint64(chunkFixed[16:24]),
				FileOffset:     binary.LittleEndian.Uint64(chunkFixed[24:32]),
				Tier:           heat.Tier(chunkFixed[32]),
				LastAccess:     int64(binary.LittleEndian.Uint64(chunkFixed[33:41])),
			}
			file.Chunks[meta.ChunkID] = meta
		}

		cs.files[string(key)] = file
	}

	return nil
}

func writeRecordBytes(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
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
