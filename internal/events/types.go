// Package events defines event types and payloads for the agentlink event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection events
	EventConnectionState EventType = "connection_state"
	EventAccessDenied    EventType = "access_denied"

	// World events
	EventChatMessage EventType = "chat_message"
	EventTimeOfDay   EventType = "time_of_day"
	EventBlockData   EventType = "block_data"

	// Agent events
	EventCommandSent EventType = "command_sent"

	// System events
	EventHeartbeat EventType = "heartbeat"
	EventShutdown  EventType = "shutdown"
)

// AllEventTypes lists every event type, in a stable order.
var AllEventTypes = []EventType{
	EventConnectionState,
	EventAccessDenied,
	EventChatMessage,
	EventTimeOfDay,
	EventBlockData,
	EventCommandSent,
	EventHeartbeat,
	EventShutdown,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// ChatDirection tells whether a chat line was received or sent by the agent.
type ChatDirection string

const (
	ChatIncoming ChatDirection = "in"
	ChatOutgoing ChatDirection = "out"
)

// ConnectionStatePayload is emitted on every connection state transition.
type ConnectionStatePayload struct {
	Server        string `json:"server"`
	From          string `json:"from"`
	To            string `json:"to"`
	Trigger       string `json:"trigger"`
	PeerID        uint16 `json:"peer_id"`
	Authenticated bool   `json:"authenticated"`
	Lenient       bool   `json:"lenient"`
	Reason        string `json:"reason,omitempty"`
}

// AccessDeniedPayload carries the server's refusal.
type AccessDeniedPayload struct {
	Server    string `json:"server"`
	Code      uint8  `json:"code"`
	Reason    string `json:"reason"`
	Reconnect bool   `json:"reconnect"`
}

// ChatMessagePayload is a chat line in either direction.
type ChatMessagePayload struct {
	Direction ChatDirection `json:"direction"`
	Type      string        `json:"type"`
	Sender    string        `json:"sender"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// TimeOfDayPayload reports the in-game time.
type TimeOfDayPayload struct {
	Time  uint16  `json:"time"`
	Speed float32 `json:"speed"`
}

// BlockDataPayload reports a received map block.
type BlockDataPayload struct {
	X    int16 `json:"x"`
	Y    int16 `json:"y"`
	Z    int16 `json:"z"`
	Size int   `json:"size"`
}

// CommandSentPayload records an outbound agent command.
type CommandSentPayload struct {
	Command string      `json:"command"`
	Seqnum  uint16      `json:"seqnum"`
	Args    interface{} `json:"args,omitempty"`
}

// HeartbeatPayload is a periodic snapshot of the agent.
type HeartbeatPayload struct {
	State         string  `json:"state"`
	PeerID        uint16  `json:"peer_id"`
	Authenticated bool    `json:"authenticated"`
	DatagramsIn   uint64  `json:"datagrams_in"`
	DatagramsOut  uint64  `json:"datagrams_out"`
	Duplicates    uint64  `json:"duplicates"`
	CPUPercent    float64 `json:"cpu_percent"`
	RSSMB         uint64  `json:"rss_mb"`
	Goroutines    int     `json:"goroutines"`
}

// ShutdownPayload is emitted once when the process is stopping.
type ShutdownPayload struct {
	Reason string `json:"reason"`
}
