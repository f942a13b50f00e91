package protocol

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestChatMessage_Layout(t *testing.T) {
	got := ChatMessage{Text: "hi"}.Encode()
	want := []byte{0x00, 0x02, 0x00, 'h', 0x00, 'i'}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected layout: got %x want %x", got, want)
	}
}

func TestChatMessage_RoundTrip(t *testing.T) {
	cases := []string{
		"",
		"hello world",
		"grüße",
		"pick \U0001F4A9 up", // surrogate pair
		strings.Repeat("x", 4000),
	}

	for _, text := range cases {
		got, err := DecodeChatMessage(ChatMessage{Text: text}.Encode())
		if err != nil {
			t.Fatalf("DecodeChatMessage(%q) returned error: %v", text, err)
		}
		if got.Text != text {
			t.Fatalf("round trip mismatch: got %q want %q", got.Text, text)
		}
	}
}

func TestChatMessage_LengthCountsCodeUnits(t *testing.T) {
	body := ChatMessage{Text: "\U0001F4A9"}.Encode()
	if n := int(body[0])<<8 | int(body[1]); n != 2 {
		t.Fatalf("expected 2 code units for a non-BMP rune, got %d", n)
	}
	if len(body) != 6 {
		t.Fatalf("expected 6 byte body, got %d", len(body))
	}
}

func TestInteract_RoundTripBoundaries(t *testing.T) {
	positions := [][3]int32{
		{0, 0, 0},
		{-1, -64, -30000},
		{math.MaxInt32, math.MinInt32, 1},
	}

	for _, pos := range positions {
		for _, m := range []Interact{
			{Action: ActionDig, Pos: pos},
			{Action: ActionPlace, Pos: pos, Item: 0xBEEF},
		} {
			got, err := DecodeInteract(m.Encode())
			if err != nil {
				t.Fatalf("DecodeInteract(%+v) returned error: %v", m, err)
			}
			if got != m {
				t.Fatalf("round trip mismatch: got %+v want %+v", got, m)
			}
		}
	}
}

func TestInteract_DigOmitsItem(t *testing.T) {
	if n := len((Interact{Action: ActionDig, Item: 5}).Encode()); n != 13 {
		t.Fatalf("dig body should be 13 bytes, got %d", n)
	}
	if n := len((Interact{Action: ActionPlace, Item: 5}).Encode()); n != 15 {
		t.Fatalf("place body should be 15 bytes, got %d", n)
	}
}

func TestPayloads_RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		in     interface{ Encode() []byte }
		decode func([]byte) (any, error)
	}{
		{"init", NewInit("agent"), func(b []byte) (any, error) { return DecodeInit(b) }},
		{"init2", Init2{Lang: "en"}, func(b []byte) (any, error) { return DecodeInit2(b) }},
		{"player pos", PlayerPos{Pos: [3]float32{-1.5, 0, 1e6}, Pitch: -90, Yaw: 359.5}, func(b []byte) (any, error) { return DecodePlayerPos(b) }},
		{"password", PasswordLegacy{Username: "agent", Password: "s3cret"}, func(b []byte) (any, error) { return DecodePasswordLegacy(b) }},
		{"hello", Hello{SerializationVersion: 28, ProtoVersion: 39, AuthMechanisms: AuthMechLegacyPassword, Username: "agent"}, func(b []byte) (any, error) { return DecodeHello(b) }},
		{"hello with peer id", Hello{SerializationVersion: 28, ProtoVersion: 39, Username: "agent", HasPeerID: true, PeerID: 7}, func(b []byte) (any, error) { return DecodeHello(b) }},
		{"auth accept", AuthAccept{PlayerPos: [3]float32{1, 2, 3}, MapSeed: math.MaxUint64, SendInterval: 0.09}, func(b []byte) (any, error) { return DecodeAuthAccept(b) }},
		{"access denied", AccessDenied{Code: DeniedWrongPassword}, func(b []byte) (any, error) { return DecodeAccessDenied(b) }},
		{"access denied custom", AccessDenied{Code: DeniedShutdown, Custom: "restart", Reconnect: true}, func(b []byte) (any, error) { return DecodeAccessDenied(b) }},
		{"time of day", TimeOfDay{Time: 23999, Speed: 72}, func(b []byte) (any, error) { return DecodeTimeOfDay(b) }},
		{"server chat", ServerChatMessage{Version: 1, Type: ChatTypeNormal, Sender: "alice", Message: "hi \U0001F600", Timestamp: 1700000000}, func(b []byte) (any, error) { return DecodeServerChatMessage(b) }},
		{"auth mechanism", AuthMechanism{Mechanisms: AuthMechLegacyPassword | AuthMechSRP}, func(b []byte) (any, error) { return DecodeAuthMechanism(b) }},
		{"block data", BlockData{Pos: [3]int16{-2048, 0, 2047}, Data: []byte{1, 2, 3}}, func(b []byte) (any, error) { return DecodeBlockData(b) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.decode(tc.in.Encode())
			if err != nil {
				t.Fatalf("decode returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.in) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, tc.in)
			}
		})
	}
}

func TestDecodeAuthAccept_EmptyBody(t *testing.T) {
	got, err := DecodeAuthAccept(nil)
	if err != nil {
		t.Fatalf("empty AUTH_ACCEPT should be accepted, got %v", err)
	}
	if got != (AuthAccept{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestAccessDenied_Reason(t *testing.T) {
	cases := []struct {
		in   AccessDenied
		want string
	}{
		{AccessDenied{Code: DeniedWrongPassword}, "wrong password"},
		{AccessDenied{Code: DeniedCustomString, Custom: "banned"}, "banned"},
		{AccessDenied{Code: DeniedShutdown, Custom: "maintenance"}, "server shutdown: maintenance"},
		{AccessDenied{Code: 200}, "access denied (code 200)"},
	}

	for _, tc := range cases {
		if got := tc.in.Reason(); got != tc.want {
			t.Fatalf("Reason(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodePayloads_Truncated(t *testing.T) {
	cases := []struct {
		name   string
		decode func([]byte) error
		body   []byte
	}{
		{"hello", func(b []byte) error { _, err := DecodeHello(b); return err }, []byte{28, 0}},
		{"hello username", func(b []byte) error { _, err := DecodeHello(b); return err }, []byte{28, 0, 0, 0, 39, 0, 0, 0, 1, 0, 9, 'a'}},
		{"chat", func(b []byte) error { _, err := DecodeChatMessage(b); return err }, []byte{0, 5, 0, 'a'}},
		{"interact", func(b []byte) error { _, err := DecodeInteract(b); return err }, []byte{ActionPlace, 0, 0, 0, 1}},
		{"access denied", func(b []byte) error { _, err := DecodeAccessDenied(b); return err }, nil},
		{"auth accept", func(b []byte) error { _, err := DecodeAuthAccept(b); return err }, []byte{0, 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.decode(tc.body); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}
