package network

import (
	"net"
)

// ReuseAddrDialer returns a net.Dialer that binds to localPort (0 for an
// ephemeral port) with SO_REUSEADDR set.
func ReuseAddrDialer(localPort int) net.Dialer {
	d := net.Dialer{Control: reuseAddrControl}
	if localPort > 0 {
		d.LocalAddr = &net.UDPAddr{Port: localPort}
	}
	return d
}

// ReuseAddrListenConfig returns a net.ListenConfig that sets SO_REUSEADDR
// before binding.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: reuseAddrControl}
}
