package transport

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPConnection_NewTCPConnection(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	tcpConn := NewTCPConnection(server)

	if tcpConn.conn != server {
		t.Error("Expected connection to be set correctly")
	}
	if tcpConn.GetRemoteAddr() != server.RemoteAddr() {
		t.Error("Expected remote address to be set correctly")
	}
	if _, err := uuid.Parse(tcpConn.GetID()); err != nil {
		t.Errorf("Expected a UUID connection ID, got %q", tcpConn.GetID())
	}
	if NewTCPConnection(server).GetID() == tcpConn.GetID() {
		t.Error("Expected unique connection IDs")
	}
}

func TestTCPConnection_UpdateActivity(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	tcpConn := NewTCPConnection(server)
	before := tcpConn.GetLastActivity()
	time.Sleep(5 * time.Millisecond)
	tcpConn.UpdateActivity()

	if !tcpConn.GetLastActivity().After(before) {
		t.Error("Expected last activity to advance")
	}
}

func TestTCPConnection_ReadTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	tcpConn := NewTCPConnection(server)
	require.NoError(t, tcpConn.SetReadTimeout(20*time.Millisecond))

	_, err := tcpConn.Read(make([]byte, 1))
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "got %v", err)
}

func TestTCPConnectionManager_AddRemove(t *testing.T) {
	cm := NewTCPConnectionManager(nil)

	server, client := net.Pipe()
	defer client.Close()

	tcpConn := cm.AddConnection(server)
	assert.Equal(t, 1, cm.GetConnectionCount())

	cm.RemoveConnection(tcpConn.GetID())
	assert.Equal(t, 0, cm.GetConnectionCount())

	// Removing twice is harmless.
	cm.RemoveConnection(tcpConn.GetID())

	_, err := server.Write([]byte("x"))
	assert.Error(t, err, "removed connection should be closed")
}

func TestTCPConnectionManager_InterruptReads(t *testing.T) {
	cm := NewTCPConnectionManager(nil)

	server, client := net.Pipe()
	defer client.Close()
	tcpConn := cm.AddConnection(server)
	defer cm.RemoveConnection(tcpConn.GetID())

	errCh := make(chan error, 1)
	go func() {
		_, err := tcpConn.Read(make([]byte, 1))
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cm.InterruptReads()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("read was not interrupted")
	}
}

func TestTCPConnectionManager_CloseAll(t *testing.T) {
	cm := NewTCPConnectionManager(nil)

	var clients []net.Conn
	for i := 0; i < 3; i++ {
		server, client := net.Pipe()
		clients = append(clients, client)
		cm.AddConnection(server)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	require.NoError(t, cm.CloseAll())
	for _, c := range clients {
		_, err := c.Read(make([]byte, 1))
		assert.Error(t, err)
	}
}
