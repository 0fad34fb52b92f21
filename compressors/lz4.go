package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/INLOpen/areas/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor uses the lz4 frame format. Frames carry their own content
// size and handle incompressible input, which the raw block API rejects.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.CompressTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	zw := lz4.NewWriter(dst)
	if _, err := zw.Write(src); err != nil {
		_ = zw.Close()
		return fmt.Errorf("lz4 compress write error: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("lz4 compress close error: %w", err)
	}
	return nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	return &plainReadCloser{Reader: bytes.NewReader(out)}, nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
