package protocol

import (
	"fmt"
)

// ---- Client -> server ----

// Init opens the handshake (TOSERVER_INIT).
// Format: [ser_ver:1][compression:2][min_proto:2][max_proto:2][player_name:str]
type Init struct {
	SerializationVersion uint8
	Compression          uint16
	MinProto             uint16
	MaxProto             uint16
	PlayerName           string
}

// NewInit returns an Init with the client's supported version range.
func NewInit(playerName string) Init {
	return Init{
		SerializationVersion: SerializationVersion,
		MinProto:             ProtoVersionMin,
		MaxProto:             ProtoVersionMax,
		PlayerName:           playerName,
	}
}

// Encode serializes the payload body.
func (m Init) Encode() []byte {
	return NewPacketBuilder().
		WriteByte(m.SerializationVersion).
		WriteUint16(m.Compression).
		WriteUint16(m.MinProto).
		WriteUint16(m.MaxProto).
		WriteString(m.PlayerName).
		Build()
}

// DecodeInit parses a TOSERVER_INIT body.
func DecodeInit(body []byte) (Init, error) {
	r := NewPayloadReader(body)
	var m Init
	var err error
	if m.SerializationVersion, err = r.Uint8("serialization version"); err != nil {
		return Init{}, err
	}
	if m.Compression, err = r.Uint16("compression"); err != nil {
		return Init{}, err
	}
	if m.MinProto, err = r.Uint16("min proto"); err != nil {
		return Init{}, err
	}
	if m.MaxProto, err = r.Uint16("max proto"); err != nil {
		return Init{}, err
	}
	if m.PlayerName, err = r.String("player name"); err != nil {
		return Init{}, err
	}
	return m, nil
}

// Init2 confirms the HELLO (TOSERVER_INIT2).
// Format: [lang:str]
type Init2 struct {
	Lang string
}

// Encode serializes the payload body.
func (m Init2) Encode() []byte {
	return NewPacketBuilder().WriteString(m.Lang).Build()
}

// DecodeInit2 parses a TOSERVER_INIT2 body. An empty body means no language.
func DecodeInit2(body []byte) (Init2, error) {
	if len(body) == 0 {
		return Init2{}, nil
	}
	lang, err := NewPayloadReader(body).String("lang")
	if err != nil {
		return Init2{}, err
	}
	return Init2{Lang: lang}, nil
}

// PlayerPos reports the player's position and look direction (TOSERVER_PLAYERPOS).
// Format: [x:f32][y:f32][z:f32][pitch:f32][yaw:f32]
type PlayerPos struct {
	Pos   [3]float32
	Pitch float32
	Yaw   float32
}

// Encode serializes the payload body.
func (m PlayerPos) Encode() []byte {
	return NewPacketBuilder().
		WriteFloat32(m.Pos[0]).
		WriteFloat32(m.Pos[1]).
		WriteFloat32(m.Pos[2]).
		WriteFloat32(m.Pitch).
		WriteFloat32(m.Yaw).
		Build()
}

// DecodePlayerPos parses a TOSERVER_PLAYERPOS body.
func DecodePlayerPos(body []byte) (PlayerPos, error) {
	r := NewPayloadReader(body)
	var m PlayerPos
	var err error
	for i, name := range []string{"x", "y", "z"} {
		if m.Pos[i], err = r.Float32(name); err != nil {
			return PlayerPos{}, err
		}
	}
	if m.Pitch, err = r.Float32("pitch"); err != nil {
		return PlayerPos{}, err
	}
	if m.Yaw, err = r.Float32("yaw"); err != nil {
		return PlayerPos{}, err
	}
	return m, nil
}

// ChatMessage is a chat line typed by the agent (TOSERVER_CHAT_MESSAGE).
// Format: [code_units:2][utf16be...]
type ChatMessage struct {
	Text string
}

// Encode serializes the payload body.
func (m ChatMessage) Encode() []byte {
	return NewPacketBuilder().WriteUTF16(m.Text).Build()
}

// DecodeChatMessage parses a TOSERVER_CHAT_MESSAGE body.
func DecodeChatMessage(body []byte) (ChatMessage, error) {
	text, err := NewPayloadReader(body).UTF16("chat text")
	if err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{Text: text}, nil
}

// Interact digs or places a block (TOSERVER_INTERACT).
// Format: [action:1][x:i32][y:i32][z:i32] and [item:2] for ActionPlace.
type Interact struct {
	Action uint8
	Pos    [3]int32
	Item   uint16
}

// Encode serializes the payload body.
func (m Interact) Encode() []byte {
	b := NewPacketBuilder().
		WriteByte(m.Action).
		WriteInt32(m.Pos[0]).
		WriteInt32(m.Pos[1]).
		WriteInt32(m.Pos[2])
	if m.Action == ActionPlace {
		b.WriteUint16(m.Item)
	}
	return b.Build()
}

// DecodeInteract parses a TOSERVER_INTERACT body.
func DecodeInteract(body []byte) (Interact, error) {
	r := NewPayloadReader(body)
	var m Interact
	var err error
	if m.Action, err = r.Uint8("action"); err != nil {
		return Interact{}, err
	}
	for i, name := range []string{"x", "y", "z"} {
		if m.Pos[i], err = r.Int32(name); err != nil {
			return Interact{}, err
		}
	}
	if m.Action == ActionPlace {
		if m.Item, err = r.Uint16("item"); err != nil {
			return Interact{}, err
		}
	}
	return m, nil
}

// PasswordLegacy answers AUTH_MECHANISM with plain credentials (TOSERVER_PASSWORD_LEGACY).
// Format: [username:str][password:str]
type PasswordLegacy struct {
	Username string
	Password string
}

// Encode serializes the payload body.
func (m PasswordLegacy) Encode() []byte {
	return NewPacketBuilder().
		WriteString(m.Username).
		WriteString(m.Password).
		Build()
}

// DecodePasswordLegacy parses a TOSERVER_PASSWORD_LEGACY body.
func DecodePasswordLegacy(body []byte) (PasswordLegacy, error) {
	r := NewPayloadReader(body)
	var m PasswordLegacy
	var err error
	if m.Username, err = r.String("username"); err != nil {
		return PasswordLegacy{}, err
	}
	if m.Password, err = r.String("password"); err != nil {
		return PasswordLegacy{}, err
	}
	return m, nil
}

// ---- Server -> client ----

// Hello answers TOSERVER_INIT (TOCLIENT_HELLO).
// Format: [ser_ver:1][compression:2][proto:2][auth_mechs:4][username:str]([peer_id:2])
type Hello struct {
	SerializationVersion uint8
	Compression          uint16
	ProtoVersion         uint16
	AuthMechanisms       uint32
	Username             string

	// HasPeerID is set when the server appended the assigned peer id.
	HasPeerID bool
	PeerID    uint16
}

// Encode serializes the payload body.
func (m Hello) Encode() []byte {
	b := NewPacketBuilder().
		WriteByte(m.SerializationVersion).
		WriteUint16(m.Compression).
		WriteUint16(m.ProtoVersion).
		WriteUint32(m.AuthMechanisms).
		WriteString(m.Username)
	if m.HasPeerID {
		b.WriteUint16(m.PeerID)
	}
	return b.Build()
}

// DecodeHello parses a TOCLIENT_HELLO body.
func DecodeHello(body []byte) (Hello, error) {
	r := NewPayloadReader(body)
	var m Hello
	var err error
	if m.SerializationVersion, err = r.Uint8("serialization version"); err != nil {
		return Hello{}, err
	}
	if m.Compression, err = r.Uint16("compression"); err != nil {
		return Hello{}, err
	}
	if m.ProtoVersion, err = r.Uint16("proto version"); err != nil {
		return Hello{}, err
	}
	if m.AuthMechanisms, err = r.Uint32("auth mechanisms"); err != nil {
		return Hello{}, err
	}
	if m.Username, err = r.String("username"); err != nil {
		return Hello{}, err
	}
	if r.Remaining() >= 2 {
		if m.PeerID, err = r.Uint16("peer id"); err != nil {
			return Hello{}, err
		}
		m.HasPeerID = true
	}
	return m, nil
}

// AuthAccept reports successful authentication (TOCLIENT_AUTH_ACCEPT).
// Format: [x:f32][y:f32][z:f32][map_seed:8][send_interval:f32], or empty.
type AuthAccept struct {
	PlayerPos    [3]float32
	MapSeed      uint64
	SendInterval float32
}

// Encode serializes the payload body.
func (m AuthAccept) Encode() []byte {
	return NewPacketBuilder().
		WriteFloat32(m.PlayerPos[0]).
		WriteFloat32(m.PlayerPos[1]).
		WriteFloat32(m.PlayerPos[2]).
		WriteUint64(m.MapSeed).
		WriteFloat32(m.SendInterval).
		Build()
}

// DecodeAuthAccept parses a TOCLIENT_AUTH_ACCEPT body. An empty body is a
// bare acceptance.
func DecodeAuthAccept(body []byte) (AuthAccept, error) {
	if len(body) == 0 {
		return AuthAccept{}, nil
	}
	r := NewPayloadReader(body)
	var m AuthAccept
	var err error
	for i, name := range []string{"x", "y", "z"} {
		if m.PlayerPos[i], err = r.Float32(name); err != nil {
			return AuthAccept{}, err
		}
	}
	if m.MapSeed, err = r.Uint64("map seed"); err != nil {
		return AuthAccept{}, err
	}
	if m.SendInterval, err = r.Float32("send interval"); err != nil {
		return AuthAccept{}, err
	}
	return m, nil
}

// Access denied codes.
const (
	DeniedWrongPassword uint8 = iota
	DeniedUnexpectedData
	DeniedSingleplayer
	DeniedWrongVersion
	DeniedWrongCharsInName
	DeniedWrongName
	DeniedTooManyUsers
	DeniedEmptyPassword
	DeniedAlreadyConnected
	DeniedServerFail
	DeniedCustomString
	DeniedShutdown
	DeniedCrash
)

var deniedReasons = map[uint8]string{
	DeniedWrongPassword:    "wrong password",
	DeniedUnexpectedData:   "unexpected data",
	DeniedSingleplayer:     "server is singleplayer",
	DeniedWrongVersion:     "unsupported client version",
	DeniedWrongCharsInName: "disallowed character(s) in player name",
	DeniedWrongName:        "disallowed player name",
	DeniedTooManyUsers:     "too many clients",
	DeniedEmptyPassword:    "empty password",
	DeniedAlreadyConnected: "another client is already connected with the same name",
	DeniedServerFail:       "server error",
	DeniedShutdown:         "server shutdown",
	DeniedCrash:            "server crash",
}

// AccessDenied refuses authentication (TOCLIENT_ACCESS_DENIED).
// Format: [code:1]([custom:str]([reconnect:1]))
type AccessDenied struct {
	Code      uint8
	Custom    string
	Reconnect bool
}

// Encode serializes the payload body.
func (m AccessDenied) Encode() []byte {
	b := NewPacketBuilder().WriteByte(m.Code)
	if m.Custom != "" || m.Reconnect {
		b.WriteString(m.Custom)
	}
	if m.Reconnect {
		b.WriteBool(true)
	}
	return b.Build()
}

// Reason returns a human readable denial reason.
func (m AccessDenied) Reason() string {
	if m.Code == DeniedCustomString {
		if m.Custom == "" {
			return "access denied"
		}
		return m.Custom
	}
	msg, ok := deniedReasons[m.Code]
	if !ok {
		msg = fmt.Sprintf("access denied (code %d)", m.Code)
	}
	if m.Custom != "" {
		msg += ": " + m.Custom
	}
	return msg
}

// DecodeAccessDenied parses a TOCLIENT_ACCESS_DENIED body.
func DecodeAccessDenied(body []byte) (AccessDenied, error) {
	r := NewPayloadReader(body)
	var m AccessDenied
	var err error
	if m.Code, err = r.Uint8("code"); err != nil {
		return AccessDenied{}, err
	}
	if r.Remaining() >= 2 {
		if m.Custom, err = r.String("custom reason"); err != nil {
			return AccessDenied{}, err
		}
	}
	if r.Remaining() >= 1 {
		if m.Reconnect, err = r.Bool("reconnect"); err != nil {
			return AccessDenied{}, err
		}
	}
	return m, nil
}

// BlockData carries a map block (TOCLIENT_BLOCKDATA). Only the position is
// decoded; the block contents are left compressed.
// Format: [x:i16][y:i16][z:i16][block data...]
type BlockData struct {
	Pos  [3]int16
	Data []byte
}

// Encode serializes the payload body.
func (m BlockData) Encode() []byte {
	return NewPacketBuilder().
		WriteInt16(m.Pos[0]).
		WriteInt16(m.Pos[1]).
		WriteInt16(m.Pos[2]).
		WriteBytes(m.Data).
		Build()
}

// DecodeBlockData parses a TOCLIENT_BLOCKDATA body.
func DecodeBlockData(body []byte) (BlockData, error) {
	r := NewPayloadReader(body)
	var m BlockData
	var err error
	for i, name := range []string{"x", "y", "z"} {
		if m.Pos[i], err = r.Int16(name); err != nil {
			return BlockData{}, err
		}
	}
	m.Data = r.Rest()
	return m, nil
}

// TimeOfDay updates the in-game time (TOCLIENT_TIME_OF_DAY).
// Format: [time:2][speed:f32]
type TimeOfDay struct {
	Time  uint16 // 0..23999
	Speed float32
}

// Encode serializes the payload body.
func (m TimeOfDay) Encode() []byte {
	return NewPacketBuilder().
		WriteUint16(m.Time).
		WriteFloat32(m.Speed).
		Build()
}

// DecodeTimeOfDay parses a TOCLIENT_TIME_OF_DAY body. Speed is optional.
func DecodeTimeOfDay(body []byte) (TimeOfDay, error) {
	r := NewPayloadReader(body)
	var m TimeOfDay
	var err error
	if m.Time, err = r.Uint16("time"); err != nil {
		return TimeOfDay{}, err
	}
	if r.Remaining() >= 4 {
		if m.Speed, err = r.Float32("speed"); err != nil {
			return TimeOfDay{}, err
		}
	}
	return m, nil
}

// Chat message types in TOCLIENT_CHAT_MESSAGE.
const (
	ChatTypeRaw uint8 = iota
	ChatTypeNormal
	ChatTypeAnnounce
	ChatTypeSystem
)

// ChatTypeName returns the name of a chat message type.
func ChatTypeName(t uint8) string {
	switch t {
	case ChatTypeRaw:
		return "raw"
	case ChatTypeNormal:
		return "normal"
	case ChatTypeAnnounce:
		return "announce"
	case ChatTypeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ServerChatMessage is a chat line from the server or another player
// (TOCLIENT_CHAT_MESSAGE).
// Format: [version:1][type:1][sender:utf16][message:utf16]([timestamp:i64])
type ServerChatMessage struct {
	Version   uint8
	Type      uint8
	Sender    string
	Message   string
	Timestamp int64 // Unix seconds, 0 when absent
}

// Encode serializes the payload body.
func (m ServerChatMessage) Encode() []byte {
	b := NewPacketBuilder().
		WriteByte(m.Version).
		WriteByte(m.Type).
		WriteUTF16(m.Sender).
		WriteUTF16(m.Message)
	if m.Timestamp != 0 {
		b.WriteInt64(m.Timestamp)
	}
	return b.Build()
}

// DecodeServerChatMessage parses a TOCLIENT_CHAT_MESSAGE body.
func DecodeServerChatMessage(body []byte) (ServerChatMessage, error) {
	r := NewPayloadReader(body)
	var m ServerChatMessage
	var err error
	if m.Version, err = r.Uint8("version"); err != nil {
		return ServerChatMessage{}, err
	}
	if m.Type, err = r.Uint8("type"); err != nil {
		return ServerChatMessage{}, err
	}
	if m.Sender, err = r.UTF16("sender"); err != nil {
		return ServerChatMessage{}, err
	}
	if m.Message, err = r.UTF16("message"); err != nil {
		return ServerChatMessage{}, err
	}
	if r.Remaining() >= 8 {
		if m.Timestamp, err = r.Int64("timestamp"); err != nil {
			return ServerChatMessage{}, err
		}
	}
	return m, nil
}

// AuthMechanism asks the client to authenticate (TOCLIENT_AUTH_MECHANISM).
// Format: [mechanisms:4]
type AuthMechanism struct {
	Mechanisms uint32
}

// Encode serializes the payload body.
func (m AuthMechanism) Encode() []byte {
	return NewPacketBuilder().WriteUint32(m.Mechanisms).Build()
}

// DecodeAuthMechanism parses a TOCLIENT_AUTH_MECHANISM body.
func DecodeAuthMechanism(body []byte) (AuthMechanism, error) {
	v, err := NewPayloadReader(body).Uint32("mechanisms")
	if err != nil {
		return AuthMechanism{}, err
	}
	return AuthMechanism{Mechanisms: v}, nil
}
