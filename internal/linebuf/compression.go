package linebuf

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/DataDog/zstd"
)

// Compression identifies the framing sniffed from a source's leading
// bytes at attach time.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// sniffCompression inspects up to constants.SniffLength leading bytes and
// reports the compression kind they indicate.
func sniffCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(head, bzip2Magic):
		return CompressionBzip2
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// decompressorFor wraps a raw byte source with the decompressor matching
// c, or returns raw unchanged for CompressionNone. The returned reader
// presents the logical (decompressed) stream that LineBuffer offsets are
// relative to.
func decompressorFor(c Compression, raw io.Reader) (io.Reader, error) {
	switch c {
	case CompressionGzip:
		return gzip.NewReader(raw)
	case CompressionBzip2:
		return bzip2.NewReader(raw), nil
	case CompressionZstd:
		return zstd.NewReader(raw), nil
	default:
		return raw, nil
	}
}
