//go:build !unix

package transport

import (
	"errors"
	"net"
)

func listenConfig(reusePort bool) (net.ListenConfig, error) {
	if reusePort {
		return net.ListenConfig{}, errors.New("reuse_port is not supported on this platform")
	}
	return net.ListenConfig{}, nil
}
