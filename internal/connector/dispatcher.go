package connector

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/protocol"
)

// PacketHandler receives decoded server packets from a Dispatcher.
type PacketHandler interface {
	HandleSetPeerID(peerID uint16)
	HandleDisco()
	HandleHello(m protocol.Hello)
	HandleAuthMechanism(m protocol.AuthMechanism)
	HandleAuthAccept(m protocol.AuthAccept)
	HandleInitLegacy()
	HandleAccessDenied(m protocol.AccessDenied)
	HandleBlockData(m protocol.BlockData)
	HandleTimeOfDay(m protocol.TimeOfDay)
	HandleChatMessage(m protocol.ServerChatMessage)
}

// Dispatcher routes packets by kind, control subtype and payload type.
type Dispatcher struct {
	handler PacketHandler
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher delivering to h.
func NewDispatcher(h PacketHandler) *Dispatcher {
	return &Dispatcher{
		handler: h,
		logger:  log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch handles one packet. Packets that fail to decode and unknown
// payload types are logged and dropped.
func (d *Dispatcher) Dispatch(p protocol.Packet) {
	switch p.Kind {
	case protocol.KindControl:
		d.dispatchControl(p)
	case protocol.KindOriginal, protocol.KindReliable:
		d.dispatchPayload(p)
	case protocol.KindSplit:
		d.logger.Warn().Uint16("seqnum", p.Seqnum).Msg("split packet dropped")
	}
}

func (d *Dispatcher) dispatchControl(p protocol.Packet) {
	switch p.Control {
	case protocol.ControlAck:
		// Outbound packets are never retransmitted, so acks need no bookkeeping.
		d.logger.Trace().Uint16("seqnum", p.AckSeqnum()).Uint8("channel", p.Channel).Msg("ack received")
	case protocol.ControlSetPeerID:
		d.handler.HandleSetPeerID(p.AssignedPeerID())
	case protocol.ControlPing:
		d.logger.Trace().Msg("ping received")
	case protocol.ControlDisco:
		d.handler.HandleDisco()
	}
}

func (d *Dispatcher) dispatchPayload(p protocol.Packet) {
	var err error

	switch p.PayloadType {
	case protocol.ToClientHello:
		var m protocol.Hello
		if m, err = protocol.DecodeHello(p.Body); err == nil {
			d.handler.HandleHello(m)
		}
	case protocol.ToClientAuthMechanism:
		var m protocol.AuthMechanism
		if m, err = protocol.DecodeAuthMechanism(p.Body); err == nil {
			d.handler.HandleAuthMechanism(m)
		}
	case protocol.ToClientAuthAccept:
		var m protocol.AuthAccept
		if m, err = protocol.DecodeAuthAccept(p.Body); err == nil {
			d.handler.HandleAuthAccept(m)
		}
	case protocol.ToClientInitLegacy:
		d.handler.HandleInitLegacy()
	case protocol.ToClientAccessDenied:
		var m protocol.AccessDenied
		if m, err = protocol.DecodeAccessDenied(p.Body); err == nil {
			d.handler.HandleAccessDenied(m)
		}
	case protocol.ToClientBlockData:
		var m protocol.BlockData
		if m, err = protocol.DecodeBlockData(p.Body); err == nil {
			d.handler.HandleBlockData(m)
		}
	case protocol.ToClientTimeOfDay:
		var m protocol.TimeOfDay
		if m, err = protocol.DecodeTimeOfDay(p.Body); err == nil {
			d.handler.HandleTimeOfDay(m)
		}
	case protocol.ToClientChatMessage:
		var m protocol.ServerChatMessage
		if m, err = protocol.DecodeServerChatMessage(p.Body); err == nil {
			d.handler.HandleChatMessage(m)
		}
	default:
		d.logger.Debug().
			Uint16("payload_type", p.PayloadType).
			Int("len", len(p.Body)).
			Msg("unknown payload type dropped")
		return
	}

	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("payload", protocol.ToClientName(p.PayloadType)).
			Msg("failed to decode payload")
	}
}
