package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// PacketBuilder constructs big-endian payload bodies.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}

// WriteByte writes a single byte.
func (b *PacketBuilder) WriteByte(v byte) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteBool writes 1 for true and 0 for false.
func (b *PacketBuilder) WriteBool(v bool) *PacketBuilder {
	if v {
		return b.WriteByte(1)
	}
	return b.WriteByte(0)
}

// WriteUint16 writes a uint16 in big-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	b.buf.Write(binary.BigEndian.AppendUint16(nil, v))
	return b
}

// WriteInt16 writes an int16 in big-endian order.
func (b *PacketBuilder) WriteInt16(v int16) *PacketBuilder {
	return b.WriteUint16(uint16(v))
}

// WriteUint32 writes a uint32 in big-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	b.buf.Write(binary.BigEndian.AppendUint32(nil, v))
	return b
}

// WriteInt32 writes an int32 in big-endian order.
func (b *PacketBuilder) WriteInt32(v int32) *PacketBuilder {
	return b.WriteUint32(uint32(v))
}

// WriteUint64 writes a uint64 in big-endian order.
func (b *PacketBuilder) WriteUint64(v uint64) *PacketBuilder {
	b.buf.Write(binary.BigEndian.AppendUint64(nil, v))
	return b
}

// WriteInt64 writes an int64 in big-endian order.
func (b *PacketBuilder) WriteInt64(v int64) *PacketBuilder {
	return b.WriteUint64(uint64(v))
}

// WriteFloat32 writes an IEEE 754 float32 in big-endian order.
func (b *PacketBuilder) WriteFloat32(v float32) *PacketBuilder {
	return b.WriteUint32(math.Float32bits(v))
}

// WriteString writes a length-prefixed string.
// Format: [length:2][string bytes...]
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	data := []byte(s)
	if len(data) > math.MaxUint16 {
		data = data[:math.MaxUint16]
	}
	b.WriteUint16(uint16(len(data)))
	b.buf.Write(data)
	return b
}

// WriteUTF16 writes a string as UTF-16BE code units.
// Format: [code_unit_count:2][code units...]
func (b *PacketBuilder) WriteUTF16(s string) *PacketBuilder {
	units := utf16.Encode([]rune(s))
	if len(units) > math.MaxUint16 {
		units = units[:math.MaxUint16]
	}
	b.WriteUint16(uint16(len(units)))
	for _, u := range units {
		b.WriteUint16(u)
	}
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed body bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the body being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current body for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}
