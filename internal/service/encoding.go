package service

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// DecoderFunc wraps a compressed stream with its decoder.
type DecoderFunc func(io.Reader) (io.Reader, error)

// DecoderTable maps a Content-Encoding token to its decoder. Encodings with
// no entry (notably zstd) are relayed compressed and left for the browser to
// decode.
type DecoderTable map[string]DecoderFunc

// NewDecoderTable returns the encodings this proxy can decode itself.
func NewDecoderTable() DecoderTable {
	return DecoderTable{
		"gzip": func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		},
		"deflate": decodeDeflate,
		"br": func(r io.Reader) (io.Reader, error) {
			return brotli.NewReader(r), nil
		},
	}
}

// CanDecode reports whether the encoding has a decoder. Composite encoding
// chains ("gzip, br") are not decoded.
func (t DecoderTable) CanDecode(encoding string) bool {
	_, ok := t[normalizeEncoding(encoding)]
	return ok
}

// Decode decompresses data according to encoding. Callers fall back to
// relaying the original compressed bytes when an error is returned.
func (t DecoderTable) Decode(encoding string, data []byte) ([]byte, error) {
	dec, ok := t[normalizeEncoding(encoding)]
	if !ok {
		return nil, fmt.Errorf("no decoder for encoding %q", encoding)
	}

	r, err := dec(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", encoding, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", encoding, err)
	}
	return out, nil
}

// decodeDeflate handles both RFC 1950 zlib-wrapped deflate (what servers
// send) and raw DEFLATE streams (what some misbehaving ones send), the same
// tolerance browsers apply.
func decodeDeflate(r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		return zr, nil
	}
	return flate.NewReader(bytes.NewReader(data)), nil
}

func normalizeEncoding(encoding string) string {
	return strings.ToLower(strings.TrimSpace(encoding))
}
