package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var be = binary.BigEndian

var (
	// ErrMalformed reports a datagram that cannot be decoded.
	ErrMalformed = errors.New("malformed packet")

	// ErrUnsupported reports a recognized frame this client does not handle.
	ErrUnsupported = errors.New("unsupported packet")
)

// Packet is one decoded datagram.
type Packet struct {
	PeerID  uint16
	Channel uint8
	Kind    Kind

	// Seqnum is set for KindReliable (and KindSplit).
	Seqnum uint16

	// Control is set for KindControl.
	Control ControlType

	// PayloadType is set for KindOriginal and KindReliable.
	PayloadType uint16

	// Body is the payload body, or the control body for control frames.
	Body []byte
}

// IsReliable reports whether the packet carries a seqnum that must be acked.
func (p Packet) IsReliable() bool { return p.Kind == KindReliable }

// String returns a short description for logging.
func (p Packet) String() string {
	switch p.Kind {
	case KindControl:
		return fmt.Sprintf("control/%s ch=%d", p.Control, p.Channel)
	case KindReliable:
		return fmt.Sprintf("reliable seq=%d type=0x%02x ch=%d len=%d", p.Seqnum, p.PayloadType, p.Channel, len(p.Body))
	case KindOriginal:
		return fmt.Sprintf("unreliable type=0x%02x ch=%d len=%d", p.PayloadType, p.Channel, len(p.Body))
	default:
		return fmt.Sprintf("%s ch=%d len=%d", p.Kind, p.Channel, len(p.Body))
	}
}

// NewReliable creates a reliable application packet.
func NewReliable(peerID uint16, channel uint8, seq, payloadType uint16, body []byte) Packet {
	return Packet{PeerID: peerID, Channel: channel, Kind: KindReliable, Seqnum: seq, PayloadType: payloadType, Body: body}
}

// NewUnreliable creates an unreliable application packet.
func NewUnreliable(peerID uint16, channel uint8, payloadType uint16, body []byte) Packet {
	return Packet{PeerID: peerID, Channel: channel, Kind: KindOriginal, PayloadType: payloadType, Body: body}
}

// NewControl creates a control frame.
func NewControl(peerID uint16, channel uint8, ct ControlType, body []byte) Packet {
	return Packet{PeerID: peerID, Channel: channel, Kind: KindControl, Control: ct, Body: body}
}

// NewAck acknowledges the reliable packet seq received on channel.
func NewAck(peerID uint16, channel uint8, seq uint16) Packet {
	body := make([]byte, 2)
	be.PutUint16(body, seq)
	return NewControl(peerID, channel, ControlAck, body)
}

// NewSetPeerID tells the receiver which peer id to use from now on.
func NewSetPeerID(peerID, assigned uint16) Packet {
	body := make([]byte, 2)
	be.PutUint16(body, assigned)
	return NewControl(peerID, ChannelDefault, ControlSetPeerID, body)
}

// NewPing creates a ping control frame.
func NewPing(peerID uint16) Packet {
	return NewControl(peerID, ChannelDefault, ControlPing, nil)
}

// NewDisco creates a disconnect control frame.
func NewDisco(peerID uint16) Packet {
	return NewControl(peerID, ChannelDefault, ControlDisco, nil)
}

// AckSeqnum returns the acknowledged seqnum of a control/ack frame.
func (p Packet) AckSeqnum() uint16 {
	if len(p.Body) < 2 {
		return 0
	}
	return be.Uint16(p.Body)
}

// AssignedPeerID returns the peer id carried by a control/set_peer_id frame.
func (p Packet) AssignedPeerID() uint16 {
	if len(p.Body) < 2 {
		return PeerIDNil
	}
	return be.Uint16(p.Body)
}

// Encode serializes p. The caller guarantees field ranges.
//
//	[protocol_id u32][peer_id u16][channel u8][type u8]
//	reliable:   [seqnum u16][payload_type u16][body]
//	unreliable: [payload_type u16][body]
//	control:    [subtype u8][body]
func Encode(p Packet) []byte {
	size := HeaderSize + len(p.Body)
	switch p.Kind {
	case KindReliable:
		size += 4
	case KindOriginal:
		size += 2
	case KindControl:
		size++
	case KindSplit:
		size += 2
	}

	buf := make([]byte, size)
	be.PutUint32(buf[0:4], ProtocolID)
	be.PutUint16(buf[4:6], p.PeerID)
	buf[6] = p.Channel
	buf[7] = uint8(p.Kind)

	off := HeaderSize
	switch p.Kind {
	case KindReliable:
		be.PutUint16(buf[off:], p.Seqnum)
		be.PutUint16(buf[off+2:], p.PayloadType)
		off += 4
	case KindOriginal:
		be.PutUint16(buf[off:], p.PayloadType)
		off += 2
	case KindControl:
		buf[off] = uint8(p.Control)
		off++
	case KindSplit:
		be.PutUint16(buf[off:], p.Seqnum)
		off += 2
	}
	copy(buf[off:], p.Body)

	return buf
}

// Decode parses one datagram. Errors wrap ErrMalformed, except split frames,
// which are returned together with an error wrapping ErrUnsupported.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrMalformed, len(data), HeaderSize)
	}

	if id := be.Uint32(data[0:4]); id != ProtocolID {
		return Packet{}, fmt.Errorf("%w: protocol id 0x%08x", ErrMalformed, id)
	}

	p := Packet{
		PeerID:  be.Uint16(data[4:6]),
		Channel: data[6],
		Kind:    Kind(data[7]),
	}
	if p.Channel >= ChannelCount {
		return Packet{}, fmt.Errorf("%w: channel %d >= %d", ErrMalformed, p.Channel, ChannelCount)
	}

	rest := data[HeaderSize:]

	switch p.Kind {
	case KindControl:
		if len(rest) < 1 {
			return Packet{}, fmt.Errorf("%w: control frame without subtype", ErrMalformed)
		}
		p.Control = ControlType(rest[0])
		rest = rest[1:]

		switch p.Control {
		case ControlAck, ControlSetPeerID:
			if len(rest) < 2 {
				return Packet{}, fmt.Errorf("%w: %s needs 2 bytes, got %d", ErrMalformed, p.Control, len(rest))
			}
		case ControlPing, ControlDisco:
		default:
			return Packet{}, fmt.Errorf("%w: control subtype %d", ErrMalformed, p.Control)
		}
	case KindOriginal:
		if len(rest) < 2 {
			return Packet{}, fmt.Errorf("%w: unreliable frame without payload type", ErrMalformed)
		}
		p.PayloadType = be.Uint16(rest)
		rest = rest[2:]
	case KindReliable:
		if len(rest) < 4 {
			return Packet{}, fmt.Errorf("%w: reliable frame needs seqnum and payload type, got %d bytes", ErrMalformed, len(rest))
		}
		p.Seqnum = be.Uint16(rest)
		p.PayloadType = be.Uint16(rest[2:])
		rest = rest[4:]
	case KindSplit:
		if len(rest) >= 2 {
			p.Seqnum = be.Uint16(rest)
			rest = rest[2:]
		}
		p.Body = clone(rest)
		return p, fmt.Errorf("%w: split packet seq=%d (reassembly not implemented)", ErrUnsupported, p.Seqnum)
	default:
		return Packet{}, fmt.Errorf("%w: type indicator %d", ErrMalformed, p.Kind)
	}

	p.Body = clone(rest)
	return p, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
