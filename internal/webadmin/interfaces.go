package webadmin

import (
	"context"
	"net"
)

// WebAdminServer defines the interface for the HTTP admin endpoint
type WebAdminServer interface {
	Listen(address string) error
	Serve() error
	Stop(ctx context.Context) error
	Addr() net.Addr
}

// StatusSource reports live server state for the status page.
type StatusSource interface {
	ListenAddr() net.Addr
	ActiveConnections() int
	SupportedMethods() []string
}

// HTTP endpoints:
// GET /metrics - Prometheus exposition
// GET /healthz - liveness, always "ok" while serving
// GET /status  - JSON summary of the SIP listener
