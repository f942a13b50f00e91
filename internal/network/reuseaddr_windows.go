//go:build windows

package network

import (
	"syscall"
)

// reuseAddrControl sets SO_REUSEADDR on the socket before binding so a fixed
// client port can be rebound right after a previous session closed it.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
}
