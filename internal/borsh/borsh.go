// Package borsh implements the subset of Borsh used for request arguments and
// account payloads: little-endian integers, bool as one byte, fixed 32-byte
// arrays, u32 length-prefixed byte strings, and Option as a one-byte tag.
package borsh

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortBuffer is returned when a read runs past the end of the input.
	ErrShortBuffer = errors.New("borsh: unexpected end of input")

	// ErrTrailingBytes is returned by Finish when input remains unread.
	ErrTrailingBytes = errors.New("borsh: trailing bytes")
)

// maxBytesLen bounds length prefixes so corrupt input cannot force huge allocations.
const maxBytesLen = 1 << 20

// Writer appends Borsh-encoded values to a buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// U8 appends a byte.
func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// Bool appends a bool as 0 or 1.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

// Fixed32 appends a [32]byte without a length prefix.
func (w *Writer) Fixed32(v [32]byte) *Writer {
	w.buf = append(w.buf, v[:]...)
	return w
}

// Raw appends bytes without a length prefix.
func (w *Writer) Raw(v []byte) *Writer {
	w.buf = append(w.buf, v...)
	return w
}

// Bytes appends a Vec<u8>: u32 length prefix followed by the bytes.
func (w *Writer) Bytes(v []byte) *Writer {
	w.U32(uint32(len(v)))
	w.buf = append(w.buf, v...)
	return w
}

// String appends a string with the same layout as Bytes.
func (w *Writer) String(v string) *Writer {
	w.U32(uint32(len(v)))
	w.buf = append(w.buf, v...)
	return w
}

// Option appends the Option tag; the caller writes the value when present is true.
func (w *Writer) Option(present bool) *Writer {
	return w.Bool(present)
}

// Finish returns the encoded bytes.
func (w *Writer) Finish() []byte {
	return w.buf
}

// Reader decodes Borsh values. The first failure is sticky: later reads
// return zero values and Err reports the original failure.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// take returns the next n bytes or records ErrShortBuffer.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}

	if n < 0 || len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, len(r.data)-r.off)
		return nil
	}

	b := r.data[r.off : r.off+n]
	r.off += n

	return b
}

// U8 reads a byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads a bool; any value other than 0 or 1 is an error.
func (r *Reader) Bool() bool {
	v := r.U8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("borsh: invalid bool %d at offset %d", v, r.off-1)
	}
	return v == 1
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Fixed32 reads a [32]byte.
func (r *Reader) Fixed32() [32]byte {
	var v [32]byte
	if b := r.take(32); b != nil {
		copy(v[:], b)
	}
	return v
}

// Bytes reads a length-prefixed byte string. The result is a copy.
func (r *Reader) Bytes() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}

	if n > maxBytesLen {
		r.err = fmt.Errorf("borsh: length %d exceeds limit", n)
		return nil
	}

	b := r.take(int(n))
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}

// String reads a length-prefixed string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Option reads an Option tag.
func (r *Reader) Option() bool {
	return r.Bool()
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first decoding failure.
func (r *Reader) Err() error {
	return r.err
}

// Finish returns the first decoding failure, or ErrTrailingBytes if input remains.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}

	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d unread", ErrTrailingBytes, len(r.data)-r.off)
	}

	return nil
}

// Marshaler is implemented by types with a Borsh encoding.
type Marshaler interface {
	MarshalBorsh(w *Writer)
}

// Unmarshaler is implemented by types that decode themselves from Borsh.
type Unmarshaler interface {
	UnmarshalBorsh(r *Reader)
}

// Marshal encodes v.
func Marshal(v Marshaler) []byte {
	w := NewWriter(64)
	v.MarshalBorsh(w)
	return w.Finish()
}

// Unmarshal decodes data into v. The whole input must be consumed.
func Unmarshal(data []byte, v Unmarshaler) error {
	r := NewReader(data)
	v.UnmarshalBorsh(r)
	return r.Finish()
}
