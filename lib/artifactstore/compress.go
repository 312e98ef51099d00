// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to a payload
// before encryption. Recorded per artifact in the metadata record.
type CompressionTag uint8

const (
	// CompressionNone stores the payload uncompressed. Also the
	// fallback when the selected algorithm does not shrink the
	// payload.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is the fast option for large, already-dense
	// build outputs.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is the default.
	CompressionZstd CompressionTag = 2
)

// String returns the tag name used in config files and reports.
func (t CompressionTag) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseCompressionTag converts a config-file name to a tag. The empty
// string selects the default.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want zstd, lz4, or none)", name)
	}
}

// Shared zstd coders. Both are safe for concurrent use via
// EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("artifactstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifactstore: zstd decoder initialization failed: " + err.Error())
	}
}

// compress applies the selected algorithm. When the output would not
// be smaller than the input, the payload is stored uncompressed and
// the returned tag says so.
func compress(selected CompressionTag, payload []byte) (CompressionTag, []byte, error) {
	var compressed []byte
	switch selected {
	case CompressionNone:
		return CompressionNone, payload, nil
	case CompressionZstd:
		compressed = zstdEncoder.EncodeAll(payload, nil)
	case CompressionLZ4:
		buffer := make([]byte, lz4.CompressBlockBound(len(payload)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(payload, buffer)
		if err != nil {
			return 0, nil, fmt.Errorf("lz4 compression: %w", err)
		}
		if n == 0 {
			// Incompressible input.
			return CompressionNone, payload, nil
		}
		compressed = buffer[:n]
	default:
		return 0, nil, fmt.Errorf("unknown compression tag %d", selected)
	}

	if len(compressed) >= len(payload) {
		return CompressionNone, payload, nil
	}
	return selected, compressed, nil
}

// decompress reverses compress. plainSize is the recorded uncompressed
// size, needed to size the LZ4 destination buffer.
func decompress(tag CompressionTag, data []byte, plainSize int64) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		payload, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompression: %w", err)
		}
		return payload, nil
	case CompressionLZ4:
		payload := make([]byte, plainSize)
		n, err := lz4.UncompressBlock(data, payload)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression: %w", err)
		}
		return payload[:n], nil
	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}
