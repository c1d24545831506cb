package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zurustar/chitko/internal/logging"
)

// TCPConnection represents a managed TCP connection with metadata
type TCPConnection struct {
	conn         net.Conn
	id           string
	remoteAddr   net.Addr
	createdAt    time.Time
	lastActivity time.Time
	mu           sync.RWMutex
}

// NewTCPConnection wraps conn with a fresh identifier.
func NewTCPConnection(conn net.Conn) *TCPConnection {
	now := time.Now()
	return &TCPConnection{
		conn:         conn,
		id:           uuid.NewString(),
		remoteAddr:   conn.RemoteAddr(),
		createdAt:    now,
		lastActivity: now,
	}
}

// UpdateActivity updates the last activity timestamp
func (tc *TCPConnection) UpdateActivity() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.lastActivity = time.Now()
}

// GetLastActivity returns the last activity timestamp
func (tc *TCPConnection) GetLastActivity() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.lastActivity
}

// Age returns how long the connection has been open.
func (tc *TCPConnection) Age() time.Duration {
	return time.Since(tc.createdAt)
}

// Read reads from the underlying connection.
func (tc *TCPConnection) Read(p []byte) (int, error) {
	return tc.conn.Read(p)
}

// Write writes to the underlying connection.
func (tc *TCPConnection) Write(p []byte) (int, error) {
	return tc.conn.Write(p)
}

// Close closes the underlying connection
func (tc *TCPConnection) Close() error {
	return tc.conn.Close()
}

// GetID returns the connection identifier
func (tc *TCPConnection) GetID() string {
	return tc.id
}

// GetRemoteAddr returns the remote address
func (tc *TCPConnection) GetRemoteAddr() net.Addr {
	return tc.remoteAddr
}

// SetReadTimeout sets a read deadline timeout from now. Zero clears it.
func (tc *TCPConnection) SetReadTimeout(timeout time.Duration) error {
	if timeout > 0 {
		return tc.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	return tc.conn.SetReadDeadline(time.Time{})
}

// SetWriteTimeout sets a write deadline timeout from now. Zero clears it.
func (tc *TCPConnection) SetWriteTimeout(timeout time.Duration) error {
	if timeout > 0 {
		return tc.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return tc.conn.SetWriteDeadline(time.Time{})
}

// TCPConnectionManager tracks the live connections of a transport so they can
// be counted and closed together on shutdown.
type TCPConnectionManager struct {
	connections map[string]*TCPConnection
	mu          sync.RWMutex
	logger      logging.Logger
}

// NewTCPConnectionManager creates a new TCP connection manager
func NewTCPConnectionManager(logger logging.Logger) *TCPConnectionManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TCPConnectionManager{
		connections: make(map[string]*TCPConnection),
		logger:      logger,
	}
}

// AddConnection registers conn and returns its managed wrapper.
func (cm *TCPConnectionManager) AddConnection(conn net.Conn) *TCPConnection {
	tcpConn := NewTCPConnection(conn)

	cm.mu.Lock()
	cm.connections[tcpConn.GetID()] = tcpConn
	cm.mu.Unlock()

	cm.logger.Debug("Added TCP connection",
		logging.ConnectionField(tcpConn.GetID()),
		logging.AddressField("remote_addr", tcpConn.GetRemoteAddr().String()))
	return tcpConn
}

// RemoveConnection closes the connection and forgets it.
func (cm *TCPConnectionManager) RemoveConnection(connectionID string) {
	cm.mu.Lock()
	conn, exists := cm.connections[connectionID]
	delete(cm.connections, connectionID)
	cm.mu.Unlock()

	if exists {
		conn.Close()
		cm.logger.Debug("Removed TCP connection",
			logging.ConnectionField(connectionID),
			logging.DurationField("age", conn.Age()))
	}
}

// GetConnectionCount returns the number of active connections
func (cm *TCPConnectionManager) GetConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// InterruptReads makes every pending read return a timeout error now. Writes
// in progress are not affected.
func (cm *TCPConnectionManager) InterruptReads() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	now := time.Now()
	for _, conn := range cm.connections {
		_ = conn.conn.SetReadDeadline(now)
	}
}

// CloseAll closes every tracked connection. Their loops notice on the next read
// and remove themselves.
func (cm *TCPConnectionManager) CloseAll() error {
	cm.mu.RLock()
	conns := make([]*TCPConnection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close connection %s: %w", conn.GetID(), err))
		}
	}
	if len(conns) > 0 {
		cm.logger.Info("Closed TCP connections", logging.IntField("count", len(conns)))
	}
	return errors.Join(errs...)
}
