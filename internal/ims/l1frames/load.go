package l1frames

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ZstdExt is the extension of zstd-compressed input documents.
const ZstdExt = ".zst"

// zstdReadCloser closes both the decoder and the underlying file.
type zstdReadCloser struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// OpenInput opens path for reading, transparently decompressing files
// ending in ".zst".
func OpenInput(path string) (io.ReadCloser, error) {
	cleanPath := filepath.Clean(path)
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(cleanPath), ZstdExt) {
		return f, nil
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open zstd input: %w", err)
	}
	return &zstdReadCloser{Decoder: dec, f: f}, nil
}

// DecodeRawFile reads a JSON raw file document from r and validates it.
func DecodeRawFile(r io.Reader) (*RawFile, error) {
	var raw RawFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode raw file: %w", err)
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	return &raw, nil
}

// LoadRawFile loads a raw file document from path (.json or .json.zst).
func LoadRawFile(path string) (*RawFile, error) {
	rc, err := OpenInput(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return DecodeRawFile(rc)
}
