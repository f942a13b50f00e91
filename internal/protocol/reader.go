package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
)

// PayloadReader reads big-endian fields from a payload body.
type PayloadReader struct {
	r *bytes.Reader
}

// NewPayloadReader wraps body. The reader does not copy it.
func NewPayloadReader(body []byte) *PayloadReader {
	return &PayloadReader{r: bytes.NewReader(body)}
}

// Remaining returns the number of unread bytes.
func (p *PayloadReader) Remaining() int {
	return p.r.Len()
}

func (p *PayloadReader) read(v any, field string) error {
	if err := binary.Read(p.r, binary.BigEndian, v); err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", ErrMalformed, field, err)
	}
	return nil
}

// Uint8 reads one byte.
func (p *PayloadReader) Uint8(field string) (uint8, error) {
	var v uint8
	err := p.read(&v, field)
	return v, err
}

// Bool reads one byte and reports whether it is non-zero.
func (p *PayloadReader) Bool(field string) (bool, error) {
	v, err := p.Uint8(field)
	return v != 0, err
}

// Uint16 reads a big-endian uint16.
func (p *PayloadReader) Uint16(field string) (uint16, error) {
	var v uint16
	err := p.read(&v, field)
	return v, err
}

// Int16 reads a big-endian int16.
func (p *PayloadReader) Int16(field string) (int16, error) {
	var v int16
	err := p.read(&v, field)
	return v, err
}

// Uint32 reads a big-endian uint32.
func (p *PayloadReader) Uint32(field string) (uint32, error) {
	var v uint32
	err := p.read(&v, field)
	return v, err
}

// Int32 reads a big-endian int32.
func (p *PayloadReader) Int32(field string) (int32, error) {
	var v int32
	err := p.read(&v, field)
	return v, err
}

// Uint64 reads a big-endian uint64.
func (p *PayloadReader) Uint64(field string) (uint64, error) {
	var v uint64
	err := p.read(&v, field)
	return v, err
}

// Int64 reads a big-endian int64.
func (p *PayloadReader) Int64(field string) (int64, error) {
	var v int64
	err := p.read(&v, field)
	return v, err
}

// Float32 reads a big-endian IEEE 754 float32.
func (p *PayloadReader) Float32(field string) (float32, error) {
	v, err := p.Uint32(field)
	return math.Float32frombits(v), err
}

// String reads a u16 length-prefixed byte string.
func (p *PayloadReader) String(field string) (string, error) {
	n, err := p.Uint16(field + " length")
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return "", fmt.Errorf("%w: failed to read %s (%d bytes): %v", ErrMalformed, field, n, err)
	}
	return string(buf), nil
}

// UTF16 reads a u16 code-unit count followed by UTF-16BE code units.
func (p *PayloadReader) UTF16(field string) (string, error) {
	n, err := p.Uint16(field + " length")
	if err != nil {
		return "", err
	}
	if int(n)*2 > p.r.Len() {
		return "", fmt.Errorf("%w: %s declares %d code units, %d bytes left", ErrMalformed, field, n, p.r.Len())
	}
	units := make([]uint16, n)
	if err := p.read(units, field); err != nil {
		return "", err
	}
	return string(utf16.Decode(units)), nil
}

// Rest returns all unread bytes.
func (p *PayloadReader) Rest() []byte {
	out := make([]byte, p.r.Len())
	_, _ = io.ReadFull(p.r, out)
	return out
}
