//go:build linux

package network

import (
	"syscall"
)

// reuseAddrControl sets SO_REUSEADDR on the socket before binding so a fixed
// client port can be rebound right after a previous session closed it.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
