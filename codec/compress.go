package codec

import (
	"bytes"
	"compress/gzip"
	"compress/lzw"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies the scheme applied to chunk plaintext before
// encryption. The scheme travels inside the ciphertext as a one-byte tag.
type Compression uint8

const (
	CompressNone Compression = iota
	CompressGzip
	CompressLZW
	CompressSnappy
	CompressZstd
	CompressXZ
)

var compressionNames = map[Compression]string{
	CompressNone:   "none",
	CompressGzip:   "gzip",
	CompressLZW:    "lzw",
	CompressSnappy: "snappy",
	CompressZstd:   "zstd",
	CompressXZ:     "xz",
}

// String returns the scheme name used in configuration files.
func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Compression(%d)", c)
}

// Valid reports whether c is a known scheme.
func (c Compression) Valid() bool {
	_, ok := compressionNames[c]
	return ok
}

// ParseCompression maps a configuration name to a scheme. An empty name is none.
func ParseCompression(name string) (Compression, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CompressNone, nil
	}
	for c, n := range compressionNames {
		if n == name {
			return c, nil
		}
	}
	return CompressNone, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
}

// Compress compresses data using the specified scheme.
func Compress(data []byte, scheme Compression) ([]byte, error) {
	switch scheme {
	case CompressNone:
		return data, nil
	case CompressGzip:
		return compressGzip(data)
	case CompressLZW:
		return compressLZW(data)
	case CompressSnappy:
		return snappy.Encode(nil, data), nil
	case CompressZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(data, nil), nil
	case CompressXZ:
		return compressXZ(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, scheme)
	}
}

// Decompress reverses Compress. Output longer than limit bytes is rejected
// with ErrDecompressedTooLarge.
func Decompress(data []byte, scheme Compression, limit int64) ([]byte, error) {
	switch scheme {
	case CompressNone:
		if int64(len(data)) > limit {
			return nil, ErrDecompressedTooLarge
		}
		return data, nil
	case CompressGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r, limit)
	case CompressLZW:
		r := lzw.NewReader(bytes.NewReader(data), lzw.LSB, 8)
		defer r.Close()
		return readLimited(r, limit)
	case CompressSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if int64(n) > limit {
			return nil, ErrDecompressedTooLarge
		}
		return snappy.Decode(nil, data)
	case CompressZstd:
		return decompressZstd(data, limit)
	case CompressXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return readLimited(r, limit)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, scheme)
	}
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrDecompressedTooLarge
	}
	return out, nil
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressLZW(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.LSB, 8)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressXZ(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
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

// The zstd encoder is expensive to build and safe for concurrent EncodeAll,
// so one is shared.
var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdErr  error
)

func zstdEncoder() (*zstd.Encoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
	})
	return zstdEnc, zstdErr
}

// decompressZstd streams the frame through readLimited like the other
// schemes. The decoder also refuses frames whose declared size or window
// exceeds limit.
func decompressZstd(data []byte, limit int64) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(limit)+1),
	)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	out, err := readLimited(dec, limit)
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrDecompressedTooLarge, err)
	}
	return out, err
}
