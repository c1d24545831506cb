package transport

import (
	"net"
)

// MessageHandler processes one framed message and returns the bytes to write
// back, or nil to write nothing. An error closes the connection.
type MessageHandler interface {
	HandleMessage(data []byte, remote net.Addr) ([]byte, error)
}

// MessageHandlerFunc adapts a function to the MessageHandler interface.
type MessageHandlerFunc func(data []byte, remote net.Addr) ([]byte, error)

// HandleMessage calls f(data, remote).
func (f MessageHandlerFunc) HandleMessage(data []byte, remote net.Addr) ([]byte, error) {
	return f(data, remote)
}

// Transport is a stream listener feeding framed messages to a handler.
type Transport interface {
	RegisterHandler(handler MessageHandler)
	Start(address string) error
	Stop() error
	LocalAddr() net.Addr
}
