// Package compress wraps the zlib stream used for migration payloads.
package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

const (
	NoCompression      = zlib.NoCompression
	BestSpeed          = zlib.BestSpeed
	BestCompression    = zlib.BestCompression
	DefaultCompression = zlib.DefaultCompression
)

// Compress deflates data into a zlib stream at the given level.
func Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid compression level %d", level)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to deflate payload")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to flush deflate stream")
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream produced by Compress.
func Decompress(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open inflate stream")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to inflate payload")
	}
	return out, nil
}
