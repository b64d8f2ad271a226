// Package wire implements the fixed-width big-endian encoding shared by every
// binary payload exchanged between members.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/pg-sharding/partmig/pkg/models/migrerror"
)

type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// Write appends raw bytes. It never fails and satisfies io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

// WriteBytes writes an int32 length followed by the bytes.
func (w *Writer) WriteBytes(p []byte) {
	w.WriteInt32(int32(len(p)))
	w.buf = append(w.buf, p...)
}

func (w *Writer) WriteString(s string) {
	w.WriteInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

type Reader struct {
	buf []byte
	off int
}

func NewReader(p []byte) *Reader {
	return &Reader{buf: p}
}

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR,
			"unexpected end of payload: need %d bytes at offset %d, have %d", n, r.off, r.Remaining())
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p, nil
}

func (r *Reader) ReadBool() (bool, error) {
	p, err := r.next(1)
	if err != nil {
		return false, err
	}
	switch p[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "invalid bool byte 0x%02x", p[0])
	}
}

func (r *Reader) ReadInt32() (int32, error) {
	p, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	p, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p)), nil
}

func (r *Reader) readLen() (int, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "negative length %d", n)
	}
	return int(n), nil
}

// ReadFull reads exactly n bytes into a fresh slice.
func (r *Reader) ReadFull(n int) ([]byte, error) {
	p, err := r.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.readLen()
	if err != nil {
		return nil, err
	}
	return r.ReadFull(n)
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.readLen()
	if err != nil {
		return "", err
	}
	p, err := r.next(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// CheckInt32Len guards length prefixes on the write side.
func CheckInt32Len(n int) error {
	if n > math.MaxInt32 {
		return migrerror.Newf(migrerror.MIG_CODEC_ERROR, "length %d overflows int32", n)
	}
	return nil
}
