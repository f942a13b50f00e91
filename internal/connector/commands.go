package connector

import (
	"time"

	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/protocol"
)

// Commander is the high-level command surface used by the agent, the HTTP
// API, the MQTT bridge and the console.
type Commander interface {
	SendChatMessage(text string) error
	MoveTo(x, y, z float32, opts ...LookOption) error
	DigBlock(x, y, z int32) error
	PlaceBlock(x, y, z int32, item uint16) error
	Player() PlayerState
	Status() Status
	Disconnect() error
}

var _ Commander = (*Connection)(nil)

// LookOption sets the look direction sent with MoveTo.
type LookOption func(*PlayerState)

// WithPitch sets the pitch in degrees.
func WithPitch(pitch float32) LookOption {
	return func(p *PlayerState) { p.Pitch = pitch }
}

// WithYaw sets the yaw in degrees.
func WithYaw(yaw float32) LookOption {
	return func(p *PlayerState) { p.Yaw = yaw }
}

// canSendLocked reports whether commands are accepted. Must be called with c.mu held.
func (c *Connection) canSendLocked() bool {
	switch c.st.state {
	case Ready:
		return true
	case AwaitingAuth:
		return c.st.lenient
	default:
		return false
	}
}

// command sends one reliable command payload and publishes it on the bus.
func (c *Connection) command(name string, payloadType uint16, body []byte, args interface{}) error {
	c.mu.Lock()
	if !c.canSendLocked() {
		state := c.st.state
		c.mu.Unlock()
		c.logger.Debug().Str("command", name).Str("state", state.String()).Msg("command rejected")
		return ErrNotConnected
	}
	seq, err := c.sendReliableLocked(payloadType, body)
	c.mu.Unlock()

	if err != nil {
		return err
	}

	c.logger.Debug().Str("command", name).Uint16("seqnum", seq).Msg("command sent")
	c.emit(events.Event{
		Type:    events.EventCommandSent,
		Payload: events.CommandSentPayload{Command: name, Seqnum: seq, Args: args},
	})
	return nil
}

// SendChatMessage sends a chat line.
func (c *Connection) SendChatMessage(text string) error {
	if err := c.command("chat", protocol.ToServerChatMessage, protocol.ChatMessage{Text: text}.Encode(), map[string]string{"text": text}); err != nil {
		return err
	}

	c.emit(events.Event{
		Type: events.EventChatMessage,
		Payload: events.ChatMessagePayload{
			Direction: events.ChatOutgoing,
			Type:      protocol.ChatTypeName(protocol.ChatTypeNormal),
			Sender:    c.username(),
			Message:   text,
			Timestamp: time.Now(),
		},
	})
	return nil
}

// MoveTo moves the player to x, y, z. Pitch and yaw keep their previous
// values unless set with WithPitch or WithYaw.
func (c *Connection) MoveTo(x, y, z float32, opts ...LookOption) error {
	c.mu.Lock()
	next := c.st.player
	c.mu.Unlock()

	next.Pos = [3]float32{x, y, z}
	for _, opt := range opts {
		opt(&next)
	}

	pos := protocol.PlayerPos{Pos: next.Pos, Pitch: next.Pitch, Yaw: next.Yaw}
	if err := c.command("move", protocol.ToServerPlayerPos, pos.Encode(), next); err != nil {
		return err
	}

	c.mu.Lock()
	if c.st.state != Disconnected {
		c.st.player = next
	}
	c.mu.Unlock()
	return nil
}

// DigBlock digs the block at x, y, z.
func (c *Connection) DigBlock(x, y, z int32) error {
	m := protocol.Interact{Action: protocol.ActionDig, Pos: [3]int32{x, y, z}}
	return c.command("dig", protocol.ToServerInteract, m.Encode(), m.Pos)
}

// PlaceBlock places item at x, y, z.
func (c *Connection) PlaceBlock(x, y, z int32, item uint16) error {
	m := protocol.Interact{Action: protocol.ActionPlace, Pos: [3]int32{x, y, z}, Item: item}
	return c.command("place", protocol.ToServerInteract, m.Encode(), map[string]interface{}{"pos": m.Pos, "item": item})
}

// Player returns a copy of the cached player state.
func (c *Connection) Player() PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.player
}
