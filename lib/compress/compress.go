// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a codec binding. Values are persisted in
// metadata.db (§6) as a single byte — changing the numbering breaks
// on-disk compatibility with existing stores.
type Algorithm uint8

const (
	// AlgorithmNone stores the plaintext unchanged. Encode and
	// decode are both the identity function.
	AlgorithmNone Algorithm = iota

	// AlgorithmLZ4Fast is pierrec/lz4 block compression with no
	// extra effort: the library's default fast match finder.
	AlgorithmLZ4Fast

	// AlgorithmLZ4High is pierrec/lz4 block compression using the
	// high-compression match finder at a fixed high effort level.
	// Slower to encode than AlgorithmLZ4Fast, same decode cost.
	AlgorithmLZ4High

	// AlgorithmZstdFast is klauspost/compress/zstd at
	// zstd.SpeedFastest.
	AlgorithmZstdFast

	// AlgorithmZstdMedium is klauspost/compress/zstd at
	// zstd.SpeedDefault.
	AlgorithmZstdMedium

	// AlgorithmZstdMax is klauspost/compress/zstd at
	// zstd.SpeedBestCompression.
	AlgorithmZstdMax
)

// String returns the human-readable name of an algorithm, used in
// config files and log lines.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmLZ4Fast:
		return "lz4_fast"
	case AlgorithmLZ4High:
		return "lz4_high"
	case AlgorithmZstdFast:
		return "zstd_fast"
	case AlgorithmZstdMedium:
		return "zstd_medium"
	case AlgorithmZstdMax:
		return "zstd_max"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses an algorithm from its string representation,
// as found in a tier-config file.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "none":
		return AlgorithmNone, nil
	case "lz4_fast":
		return AlgorithmLZ4Fast, nil
	case "lz4_high":
		return AlgorithmLZ4High, nil
	case "zstd_fast":
		return AlgorithmZstdFast, nil
	case "zstd_medium":
		return AlgorithmZstdMedium, nil
	case "zstd_max":
		return AlgorithmZstdMax, nil
	default:
		return 0, fmt.Errorf("compress: unknown algorithm %q", name)
	}
}

// CodecError reports that an algorithm's decoder rejected its input.
// It carries the algorithm that was asked to decode and the number of
// plaintext bytes the underlying library managed to produce before
// giving up, which callers may use for partial-recovery diagnostics
// even though the decode as a whole is considered failed.
type CodecError struct {
	Algorithm    Algorithm
	DecodedBytes int
	Err          error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("compress: %s decode failed after %d bytes: %v", e.Algorithm, e.DecodedBytes, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// Encode compresses plaintext under algo. For every supported
// algorithm Encode is total: any input yields ciphertext. An
// unsupported algorithm value returns an error. The resulting
// ciphertext carries no plaintext length prefix — decoding it requires
// knowing both algo and len(plaintext) ahead of time.
func Encode(algo Algorithm, plaintext []byte) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		return plaintext, nil
	case AlgorithmLZ4Fast:
		return encodeLZ4Fast(plaintext)
	case AlgorithmLZ4High:
		return encodeLZ4High(plaintext)
	case AlgorithmZstdFast:
		return encodeZstd(zstdFastEncoder, plaintext)
	case AlgorithmZstdMedium:
		return encodeZstd(zstdMediumEncoder, plaintext)
	case AlgorithmZstdMax:
		return encodeZstd(zstdMaxEncoder, plaintext)
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", algo)
	}
}

// Decode decompresses ciphertext that was produced by Encode(algo,
// …), given the exact length of the original plaintext. On failure it
// returns a *CodecError.
func Decode(algo Algorithm, ciphertext []byte, originalSize int) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		if len(ciphertext) != originalSize {
			return nil, &CodecError{Algorithm: algo, DecodedBytes: len(ciphertext),
				Err: fmt.Errorf("uncompressed size %d does not match expected %d", len(ciphertext), originalSize)}
		}
		return ciphertext, nil
	case AlgorithmLZ4Fast, AlgorithmLZ4High:
		return decodeLZ4(algo, ciphertext, originalSize)
	case AlgorithmZstdFast, AlgorithmZstdMedium, AlgorithmZstdMax:
		return decodeZstd(algo, ciphertext, originalSize)
	default:
		return nil, &CodecError{Algorithm: algo, Err: fmt.Errorf("unsupported algorithm")}
	}
}

// LZ4 framing: CompressBlock (and CompressBlockHC) report a write
// count of 0 when the match finder decides the input will not shrink.
// Encode must still be total, so a single marker byte distinguishes a
// literal copy (lz4Stored) from a genuine LZ4 block (lz4Compressed).
// This framing is private to this package — Decode strips it before
// returning plaintext to the caller.
const (
	lz4Stored     byte = 0
	lz4Compressed byte = 1
)

func encodeLZ4Fast(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, 1+bound)
	destination[0] = lz4Compressed

	var compressor lz4.Compressor
	written, err := compressor.CompressBlock(data, destination[1:])
	if err != nil {
		return nil, fmt.Errorf("compress: lz4_fast encode: %w", err)
	}
	if written == 0 || written >= len(data) {
		return storeLZ4Literal(data), nil
	}
	return destination[:1+written], nil
}

func encodeLZ4High(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, 1+bound)
	destination[0] = lz4Compressed

	written, err := lz4.CompressBlockHC(data, destination[1:], lz4.Level9, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4_high encode: %w", err)
	}
	if written == 0 || written >= len(data) {
		return storeLZ4Literal(data), nil
	}
	return destination[:1+written], nil
}

func storeLZ4Literal(data []byte) []byte {
	out := make([]byte, 1+len(data))
	out[0] = lz4Stored
	copy(out[1:], data)
	return out
}

func decodeLZ4(algo Algorithm, ciphertext []byte, originalSize int) ([]byte, error) {
	if len(ciphertext) == 0 {
		if originalSize != 0 {
			return nil, &CodecError{Algorithm: algo, Err: fmt.Errorf("empty ciphertext for non-empty plaintext")}
		}
		return nil, nil
	}

	marker, payload := ciphertext[0], ciphertext[1:]
	switch marker {
	case lz4Stored:
		if len(payload) != originalSize {
			return nil, &CodecError{Algorithm: algo, DecodedBytes: len(payload),
				Err: fmt.Errorf("stored size %d does not match expected %d", len(payload), originalSize)}
		}
		return payload, nil
	case lz4Compressed:
		destination := make([]byte, originalSize)
		read, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, &CodecError{Algorithm: algo, DecodedBytes: read, Err: err}
		}
		if read != originalSize {
			return nil, &CodecError{Algorithm: algo, DecodedBytes: read,
				Err: fmt.Errorf("decoded %d bytes, expected %d", read, originalSize)}
		}
		return destination, nil
	default:
		return nil, &CodecError{Algorithm: algo, Err: fmt.Errorf("unrecognized lz4 frame marker %d", marker)}
	}
}

// Zstd encoders are reused across calls — zstd.Encoder and
// zstd.Decoder are safe for concurrent use, and construction carries
// real setup cost (dictionary tables per level).
var (
	zstdFastEncoder   *zstd.Encoder
	zstdMediumEncoder *zstd.Encoder
	zstdMaxEncoder    *zstd.Encoder
	zstdDecoder       *zstd.Decoder
)

func init() {
	var err error

	zstdFastEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("compress: zstd fast encoder initialization failed: " + err.Error())
	}
	zstdMediumEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd medium encoder initialization failed: " + err.Error())
	}
	zstdMaxEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic("compress: zstd max encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeZstd(encoder *zstd.Encoder, data []byte) ([]byte, error) {
	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func decodeZstd(algo Algorithm, ciphertext []byte, originalSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(ciphertext, make([]byte, 0, originalSize))
	if err != nil {
		return nil, &CodecError{Algorithm: algo, DecodedBytes: len(result), Err: err}
	}
	if len(result) != originalSize {
		return nil, &CodecError{Algorithm: algo, DecodedBytes: len(result),
			Err: fmt.Errorf("decoded %d bytes, expected %d", len(result), originalSize)}
	}
	return result, nil
}
