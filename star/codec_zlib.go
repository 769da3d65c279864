package star

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlibCodec implements STAR_COMPRESS_ZLIB using klauspost/compress's
// drop-in zlib, which the embedded squashfs/diskfs pack repos already pull
// in for the same DEFLATE-family concern.
type zlibCodec struct{}

func (zlibCodec) Type() uint8 { return CompressZlib }

func (zlibCodec) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	if level <= 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := bytes.NewBuffer(make([]byte, 0, uncompressedSize))
	if _, err := io.Copy(out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
