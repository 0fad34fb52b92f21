package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const (
	// PropertyStoreMagicNumber identifies a persisted property bag snapshot.
	PropertyStoreMagicNumber uint32 = 0x41524541 // "AREA"
	// FormatVersion is the current version for all persistent file formats.
	FormatVersion uint8 = 1
)

// FileHeader is a standard header for all persistent files.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CreatedAt      int64 // UnixNano timestamp
	CompressorType CompressionType
}

func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader creates a new header with the current time and specified magic number.
func NewFileHeader(magic uint32, compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          magic,
		Version:        FormatVersion,
		CreatedAt:      time.Now().UnixNano(),
		CompressorType: compressorType,
	}
}

// WriteTo writes the header little-endian.
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return 0, fmt.Errorf("write file header: %w", err)
	}
	return int64(h.Size()), nil
}

// ReadFileHeader reads a header and checks its magic number and version.
func ReadFileHeader(r io.Reader, magic uint32) (FileHeader, error) {
	var h FileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("read file header: %w", err)
	}
	if h.Magic != magic {
		return h, &DecodeError{Field: "header", Value: fmt.Sprintf("%#x", h.Magic), Message: "magic number mismatch"}
	}
	if h.Version != FormatVersion {
		return h, &DecodeError{Field: "header", Value: fmt.Sprintf("%d", h.Version), Message: "unsupported format version"}
	}
	return h, nil
}
