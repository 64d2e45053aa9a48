// Package codec implements the fixed little-endian binary layout used for
// instruction payloads and account records.
//
// Integers are little-endian, byte strings and vectors carry a u32 length
// prefix. A Reader must be fully consumed; Finish reports trailing bytes.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedEOF is returned when the input ends before a value is complete.
	ErrUnexpectedEOF = errors.New("unexpected end of input")

	// ErrTrailingBytes is returned by Finish when input is left unread.
	ErrTrailingBytes = errors.New("not all bytes read")

	// ErrLengthTooLarge is returned when a length prefix exceeds the remaining input.
	ErrLengthTooLarge = errors.New("length prefix exceeds input")
)

// Writer accumulates encoded values.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity preallocated for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// WriteU8 appends a single byte.
func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteBool appends a bool as one byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
		return
	}
	w.WriteU8(0)
}

// WriteU32 appends v in little-endian order.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteU64 appends v in little-endian order.
func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteFixed appends b without a length prefix.
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteBytes appends b with a u32 length prefix.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteBytesVec appends a length-prefixed vector of length-prefixed byte strings.
func (w *Writer) WriteBytesVec(v [][]byte) {
	w.WriteU32(uint32(len(v)))
	for _, b := range v {
		w.WriteBytes(b)
	}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader decodes values from a byte slice.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrUnexpectedEOF, n, r.off, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a bool; any value other than 0 or 1 is rejected.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool value %d", v)
	}
}

// ReadU32 reads a little-endian u32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian u64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadFixed reads exactly n bytes. The result is a copy.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadBytes reads a u32 length-prefixed byte string.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: %d > %d", ErrLengthTooLarge, n, r.Remaining())
	}
	return r.ReadFixed(int(n))
}

// ReadBytesVec reads a length-prefixed vector of byte strings.
func (r *Reader) ReadBytesVec() ([][]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	// every element needs at least its own 4 byte prefix
	if uint64(n)*4 > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: %d elements in %d bytes", ErrLengthTooLarge, n, r.Remaining())
	}
	out := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		b, err := r.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Finish returns ErrTrailingBytes if the input was not fully consumed.
func (r *Reader) Finish() error {
	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d left", ErrTrailingBytes, r.Remaining())
	}
	return nil
}
