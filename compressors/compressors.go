// Package compressors implements core.Compressor for the algorithms the
// file-backed property store can persist with.
package compressors

import (
	"fmt"
	"strings"

	"github.com/INLOpen/areas/core"
)

// ForType returns the compressor recorded in a file header.
func ForType(t core.CompressionType) (core.Compressor, error) {
	switch t {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("unsupported compression type %d", byte(t))
	}
}

// FromName maps the configuration spelling ("none", "snappy", "lz4", "zstd").
// An empty name selects snappy.
func FromName(name string) (core.Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return NewSnappyCompressor(), nil
	case "none":
		return &NoCompressionCompressor{}, nil
	case "lz4":
		return NewLz4Compressor(), nil
	case "zstd":
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("invalid compression %q", name)
	}
}
