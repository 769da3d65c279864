package star

import "fmt"

// Codec compresses and decompresses one member's payload. Every
// implementation must round-trip exactly: Decompress(Compress(data)) ==
// data, since archive_verify_integrity re-derives the checksum from the
// decompressed bytes.
type Codec interface {
	Type() uint8
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte, uncompressedSize int) ([]byte, error)
}

var codecs = map[uint8]Codec{
	CompressNone: noneCodec{},
	CompressLZ4:  lz4Codec{},
	CompressZlib: zlibCodec{},
	CompressLZMA: lzmaCodec{},
}

// CodecFor returns the registered codec for a compression selector, or an
// error if the archive names one this build does not implement.
func CodecFor(compression uint8) (Codec, error) {
	c, ok := codecs[compression]
	if !ok {
		return nil, fmt.Errorf("unknown compression algorithm %d", compression)
	}
	return c, nil
}

// noneCodec is the identity codec: STAR_COMPRESS_NONE, the archive format's
// no-op algorithm slot, always available regardless of which optional
// third-party codecs a build links in.
type noneCodec struct{}

func (noneCodec) Type() uint8 { return CompressNone }

func (noneCodec) Compress(data []byte, _ int) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (noneCodec) Decompress(data []byte, _ int) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
