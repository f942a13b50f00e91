package connector

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the handshake does not complete in time.
	ErrTimeout = errors.New("handshake timed out")

	// ErrAccessDenied is matched by every *DeniedError.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotConnected is returned by commands while the connection is not ready.
	ErrNotConnected = errors.New("not connected")

	// ErrDisconnected is returned by Connect when Disconnect or the server
	// ends the session before the handshake completes.
	ErrDisconnected = errors.New("disconnected")

	// ErrAlreadyUsed is returned by Connect on a connection that was
	// already connected once.
	ErrAlreadyUsed = errors.New("connection already used")
)

// HandshakeError reports a handshake that did not reach Ready in time.
type HandshakeError struct {
	// HelloReceived tells whether the server answered INIT with HELLO.
	HelloReceived bool
	// State is the state the handshake was in when it gave up.
	State State
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed in state %s (hello received: %t): %v", e.State, e.HelloReceived, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// DeniedError carries the server's ACCESS_DENIED.
type DeniedError struct {
	Code      uint8
	Reason    string
	Reconnect bool
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied by server: %s", e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrAccessDenied }
