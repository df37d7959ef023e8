package service

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"testing"

	"github.com/andybalholm/brotli"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecoderTable_CanDecode(t *testing.T) {
	table := NewDecoderTable()

	tests := []struct {
		encoding string
		want     bool
	}{
		{"gzip", true},
		{"deflate", true},
		{"br", true},
		{"GZIP", true},
		{" gzip ", true},
		{"zstd", false},
		{"gzip, br", false},
		{"identity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			if got := table.CanDecode(tt.encoding); got != tt.want {
				t.Errorf("CanDecode(%q) = %v, want %v", tt.encoding, got, tt.want)
			}
		})
	}
}

func TestDecoderTable_Gzip(t *testing.T) {
	table := NewDecoderTable()
	got, err := table.Decode("gzip", gzipBytes(t, "hello world"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("Decode() = %q, want %q", got, "hello world")
	}
}

func TestDecoderTable_DeflateZlibWrapped(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write([]byte("zlib payload"))
	_ = w.Close()

	table := NewDecoderTable()
	got, err := table.Decode("deflate", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "zlib payload" {
		t.Errorf("Decode() = %q", got)
	}
}

func TestDecoderTable_DeflateRaw(t *testing.T) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("raw deflate payload"))
	_ = w.Close()

	table := NewDecoderTable()
	got, err := table.Decode("deflate", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "raw deflate payload" {
		t.Errorf("Decode() = %q", got)
	}
}

func TestDecoderTable_Brotli(t *testing.T) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, _ = w.Write([]byte("brotli payload"))
	_ = w.Close()

	table := NewDecoderTable()
	got, err := table.Decode("br", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "brotli payload" {
		t.Errorf("Decode() = %q", got)
	}
}

func TestDecoderTable_CorruptGzip(t *testing.T) {
	table := NewDecoderTable()
	if _, err := table.Decode("gzip", []byte("definitely not gzip")); err == nil {
		t.Error("Decode() expected error for corrupt stream, got nil")
	}
}

func TestDecoderTable_UnknownEncoding(t *testing.T) {
	table := NewDecoderTable()
	if _, err := table.Decode("zstd", []byte{0x28, 0xb5, 0x2f, 0xfd}); err == nil {
		t.Error("Decode() expected error for zstd (deliberately unsupported), got nil")
	}
}
