package connector

// State is the connection handshake state.
type State uint8

const (
	Disconnected State = iota
	AwaitingPeerID
	AwaitingHello
	AwaitingAuth
	Ready
)

var stateStrings = map[State]string{
	Disconnected:   "disconnected",
	AwaitingPeerID: "awaiting_peer_id",
	AwaitingHello:  "awaiting_hello",
	AwaitingAuth:   "awaiting_auth",
	Ready:          "ready",
}

// String returns the string representation of State.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes State as a JSON string (e.g. "ready").
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Trigger is an input to the state machine.
type Trigger uint8

const (
	TriggerConnect Trigger = iota
	TriggerSetPeerID
	TriggerHello
	TriggerAuthMechanism
	TriggerAuthAccept
	TriggerAccessDenied
	TriggerTimeout
	TriggerDisconnect
	TriggerPeerDisco
	TriggerSocketError
)

var triggerStrings = map[Trigger]string{
	TriggerConnect:       "connect",
	TriggerSetPeerID:     "set_peer_id",
	TriggerHello:         "hello",
	TriggerAuthMechanism: "auth_mechanism",
	TriggerAuthAccept:    "auth_accept",
	TriggerAccessDenied:  "access_denied",
	TriggerTimeout:       "timeout",
	TriggerDisconnect:    "disconnect",
	TriggerPeerDisco:     "peer_disco",
	TriggerSocketError:   "socket_error",
}

// String returns the string representation of Trigger.
func (t Trigger) String() string {
	if str, ok := triggerStrings[t]; ok {
		return str
	}
	return "unknown"
}

// transitions lists every legal move except the terminal ones.
var transitions = map[State]map[Trigger]State{
	Disconnected: {
		TriggerConnect: AwaitingPeerID,
	},
	AwaitingPeerID: {
		TriggerSetPeerID:    AwaitingHello,
		TriggerHello:        AwaitingAuth,
		TriggerAccessDenied: Disconnected,
	},
	AwaitingHello: {
		TriggerHello:        AwaitingAuth,
		TriggerAccessDenied: Disconnected,
	},
	AwaitingAuth: {
		TriggerAuthMechanism: AwaitingAuth,
		TriggerAuthAccept:    Ready,
		TriggerAccessDenied:  Disconnected,
	},
	Ready: {
		TriggerAccessDenied: Disconnected,
	},
}

// terminal triggers lead to Disconnected from every state.
var terminal = map[Trigger]bool{
	TriggerTimeout:     true,
	TriggerDisconnect:  true,
	TriggerPeerDisco:   true,
	TriggerSocketError: true,
}

// nextState returns the state reached from s on t, and whether t is legal in s.
func nextState(s State, t Trigger) (State, bool) {
	if terminal[t] {
		return Disconnected, true
	}
	to, ok := transitions[s][t]
	return to, ok
}

// PlayerState is the locally cached player position. It is written by
// outbound movement only.
type PlayerState struct {
	Pos   [3]float32 `json:"pos"`
	Pitch float32    `json:"pitch"`
	Yaw   float32    `json:"yaw"`
}

// connState holds every mutable field of a Connection. It is guarded by
// Connection.mu and its state field changes only through transition.
type connState struct {
	state         State
	peerID        uint16
	authenticated bool
	lenient       bool
	helloReceived bool
	outSeq        uint16
	player        PlayerState
	denial        *DeniedError
	reason        string
}

func newConnState() connState {
	return connState{
		state:  Disconnected,
		peerID: 0,
		outSeq: seqnumInitial,
	}
}
