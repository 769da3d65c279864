package star

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4Codec implements STAR_COMPRESS_LZ4 via the block compressor the
// original C tree links as libyuv's sibling embedded-friendly codec; the
// Go stack reaches for the equivalent streaming frame writer instead of
// hand-rolling LZ4's token format.
type lz4Codec struct{}

func (lz4Codec) Type() uint8 { return CompressLZ4 }

func (lz4Codec) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if level > 0 {
		_ = w.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(level)))
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out := make([]byte, 0, uncompressedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
