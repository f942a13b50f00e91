// Package protocol implements the wire format of the reliable-UDP voxel game
// protocol: the fixed datagram header, the control/original/split/reliable
// frame kinds, and the handful of application payloads the agent exchanges
// with the server. All multi-byte fields are big-endian.
package protocol

// ProtocolID must be at the start of every datagram.
const ProtocolID uint32 = 0x4f457403

// HeaderSize is protocol id + peer id + channel + type indicator.
const HeaderSize = 4 + 2 + 1 + 1

// PeerIDs identify the sender of a datagram.
const (
	// PeerIDNil is used by clients before the server assigns an id.
	PeerIDNil uint16 = 0

	// PeerIDServer is the id the server always uses.
	PeerIDServer uint16 = 1
)

// ChannelCount is the highest channel number + 1.
const ChannelCount = 3

// Channels used by the client.
const (
	ChannelDefault uint8 = 0
	ChannelInit    uint8 = 1
)

// SeqnumInitial is the first reliable sequence number on every channel.
const SeqnumInitial uint16 = 65500

// Kind is the frame type indicator following the header.
type Kind uint8

const (
	KindControl  Kind = 0x00
	KindOriginal Kind = 0x01 // unreliable
	KindSplit    Kind = 0x02 // not supported
	KindReliable Kind = 0x03
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindOriginal:
		return "unreliable"
	case KindSplit:
		return "split"
	case KindReliable:
		return "reliable"
	default:
		return "unknown"
	}
}

// ControlType is the subtype of a control frame.
type ControlType uint8

const (
	ControlAck       ControlType = 0x00 // seqnum u16
	ControlSetPeerID ControlType = 0x01 // peer id u16
	ControlPing      ControlType = 0x02
	ControlDisco     ControlType = 0x03
)

// String returns the string representation of ControlType.
func (c ControlType) String() string {
	switch c {
	case ControlAck:
		return "ack"
	case ControlSetPeerID:
		return "set_peer_id"
	case ControlPing:
		return "ping"
	case ControlDisco:
		return "disco"
	default:
		return "unknown"
	}
}

// Client -> server payload types.
const (
	ToServerInit           uint16 = 0x02 // Serialization + protocol range + player name
	ToServerInit2          uint16 = 0x11 // Sent after HELLO
	ToServerPlayerPos      uint16 = 0x23 // Position, pitch, yaw as floats
	ToServerChatMessage    uint16 = 0x32 // UTF-16BE chat line
	ToServerPasswordLegacy uint16 = 0x36 // Legacy auth response
	ToServerInteract       uint16 = 0x39 // Dig / place
)

// Server -> client payload types.
const (
	ToClientHello         uint16 = 0x02 // Response to INIT
	ToClientAuthAccept    uint16 = 0x03 // Authentication succeeded
	ToClientAccessDenied  uint16 = 0x0A // Authentication refused
	ToClientInitLegacy    uint16 = 0x10 // Legacy servers' accept
	ToClientBlockData     uint16 = 0x20 // Map block (not decompressed)
	ToClientTimeOfDay     uint16 = 0x29 // Game time
	ToClientChatMessage   uint16 = 0x2f // Chat line from server or player
	ToClientAuthMechanism uint16 = 0x60 // Server asks for credentials
)

// Interaction actions for TOSERVER_INTERACT.
const (
	ActionDig   uint8 = 0
	ActionPlace uint8 = 3
)

// Defaults sent in TOSERVER_INIT.
const (
	SerializationVersion uint8  = 0x1c
	ProtoVersionMin      uint16 = 37
	ProtoVersionMax      uint16 = 41
)

// Auth mechanism bits advertised in HELLO / AUTH_MECHANISM.
const (
	AuthMechLegacyPassword uint32 = 0x00000001
	AuthMechSRP            uint32 = 0x00000002
	AuthMechFirstSRP       uint32 = 0x00000004
)

// ToServerName returns a readable name for a client -> server payload type.
func ToServerName(t uint16) string {
	switch t {
	case ToServerInit:
		return "TOSERVER_INIT"
	case ToServerInit2:
		return "TOSERVER_INIT2"
	case ToServerPlayerPos:
		return "TOSERVER_PLAYERPOS"
	case ToServerChatMessage:
		return "TOSERVER_CHAT_MESSAGE"
	case ToServerPasswordLegacy:
		return "TOSERVER_PASSWORD_LEGACY"
	case ToServerInteract:
		return "TOSERVER_INTERACT"
	default:
		return "TOSERVER_UNKNOWN"
	}
}

// ToClientName returns a readable name for a server -> client payload type.
func ToClientName(t uint16) string {
	switch t {
	case ToClientHello:
		return "TOCLIENT_HELLO"
	case ToClientAuthAccept:
		return "TOCLIENT_AUTH_ACCEPT"
	case ToClientAccessDenied:
		return "TOCLIENT_ACCESS_DENIED"
	case ToClientInitLegacy:
		return "TOCLIENT_INIT_LEGACY"
	case ToClientBlockData:
		return "TOCLIENT_BLOCKDATA"
	case ToClientTimeOfDay:
		return "TOCLIENT_TIME_OF_DAY"
	case ToClientChatMessage:
		return "TOCLIENT_CHAT_MESSAGE"
	case ToClientAuthMechanism:
		return "TOCLIENT_AUTH_MECHANISM"
	default:
		return "TOCLIENT_UNKNOWN"
	}
}
