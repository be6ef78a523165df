package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// writeFile writes data to path, compressed according to its extension.
func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	w, err := createOutput(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCompressedFiles(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	dir := t.TempDir()

	tests := []struct {
		name   string
		file   string
		decode func(r io.Reader) (io.Reader, error)
	}{
		{"plain", "image.bin", func(r io.Reader) (io.Reader, error) { return r, nil }},
		{"zstd", "image.bin.zst", func(r io.Reader) (io.Reader, error) { return zstd.NewReader(r) }},
		{"lz4", "image.bin.LZ4", func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, data)

			got, err := readInput(path)
			if err != nil {
				t.Fatalf("readInput() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Error("round trip differs")
			}

			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			r, err := tt.decode(f)
			if err != nil {
				t.Fatal(err)
			}
			raw, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("decode with the library reader: %v", err)
			}
			if !bytes.Equal(raw, data) {
				t.Error("file is not in the expected format")
			}
		})
	}
}

func TestOpenInputMissing(t *testing.T) {
	if _, err := openInput(filepath.Join(t.TempDir(), "missing.zst")); !os.IsNotExist(err) {
		t.Errorf("openInput() error = %v, want not exist", err)
	}
}
