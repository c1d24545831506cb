package server

import (
	"context"
	"net"
)

// Server defines the interface for the main SIP server
type Server interface {
	LoadConfig(filename string) error
	Start() error
	Stop() error
	Run(ctx context.Context) error
	Addr() net.Addr
}
