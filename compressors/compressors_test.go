package compressors

import (
	"bytes"
	"io"
	"testing"

	"github.com/INLOpen/areas/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allCompressors() []core.Compressor {
	return []core.Compressor{
		&NoCompressionCompressor{},
		NewSnappyCompressor(),
		NewLz4Compressor(),
		NewZstdCompressor(),
	}
}

func TestCompressors_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"event keys": []byte("bl.0.1.2.3.minecraft:overworld=4,minecraft:stone,0,-,-,0\n"),
		"repetitive": bytes.Repeat([]byte("bl.Z9x.-1.40.7.minecraft:overworld"), 512),
		"empty":      {},
	}
	for _, c := range allCompressors() {
		for name, data := range payloads {
			t.Run(c.Type().String()+"/"+name, func(t *testing.T) {
				compressed, err := c.Compress(data)
				require.NoError(t, err)

				rc, err := c.Decompress(compressed)
				require.NoError(t, err)
				defer rc.Close()
				got, err := io.ReadAll(rc)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(got))
				assert.True(t, bytes.Equal(data, got))

				var dst bytes.Buffer
				dst.WriteString("stale")
				require.NoError(t, c.CompressTo(&dst, data))
				rc2, err := c.Decompress(dst.Bytes())
				require.NoError(t, err)
				defer rc2.Close()
				got2, err := io.ReadAll(rc2)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, got2))
			})
		}
	}
}

func TestForTypeAndFromName(t *testing.T) {
	for _, c := range allCompressors() {
		byType, err := ForType(c.Type())
		require.NoError(t, err)
		assert.Equal(t, c.Type(), byType.Type())

		byName, err := FromName(c.Type().String())
		require.NoError(t, err)
		assert.Equal(t, c.Type(), byName.Type())
	}

	def, err := FromName("")
	require.NoError(t, err)
	assert.Equal(t, core.CompressionSnappy, def.Type())

	_, err = FromName("gzip")
	assert.Error(t, err)
	_, err = ForType(core.CompressionType(99))
	assert.Error(t, err)
}
