package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/netutil"

	"github.com/zurustar/chitko/internal/logging"
	"github.com/zurustar/chitko/internal/metrics"
	"github.com/zurustar/chitko/internal/parser"
)

// TCPConfig holds configuration for the TCP transport
type TCPConfig struct {
	// ReadTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ShutdownGrace is how long Stop waits for connection loops to finish
	// their current message before closing the sockets.
	ShutdownGrace time.Duration

	// MaxConnections bounds concurrently served connections; accept waits
	// while the bound is reached. Zero means unlimited.
	MaxConnections int
	MaxMessageSize int
	ReadBufferSize int
	ReusePort      bool

	Logger  logging.Logger
	Metrics metrics.Recorder
}

// DefaultTCPConfig returns default configuration for the TCP transport
func DefaultTCPConfig() *TCPConfig {
	return &TCPConfig{
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		ShutdownGrace:  5 * time.Second,
		MaxConnections: 1024,
		MaxMessageSize: DefaultMaxMessageSize,
		ReadBufferSize: 4096,
	}
}

// TCPTransport accepts TCP connections and runs one read loop per connection.
// Each loop frames the byte stream into messages and hands them to the
// registered MessageHandler in arrival order.
type TCPTransport struct {
	listener          net.Listener
	handler           MessageHandler
	connectionManager *TCPConnectionManager
	config            *TCPConfig
	logger            logging.Logger
	metrics           metrics.Recorder
	running           bool
	mu                sync.RWMutex
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// NewTCPTransport creates a new TCP transport
func NewTCPTransport(config *TCPConfig) *TCPTransport {
	if config == nil {
		config = DefaultTCPConfig()
	}
	cfg := *config
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NopRecorder{}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 4096
	}

	return &TCPTransport{
		connectionManager: NewTCPConnectionManager(cfg.Logger),
		config:            &cfg,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		stopChan:          make(chan struct{}),
	}
}

// RegisterHandler registers a message handler for incoming messages
func (t *TCPTransport) RegisterHandler(handler MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Start listens on address and begins accepting connections.
func (t *TCPTransport) Start(address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("TCP transport already running")
	}
	if t.handler == nil {
		return fmt.Errorf("TCP transport has no message handler")
	}

	lc, err := listenConfig(t.config.ReusePort)
	if err != nil {
		return err
	}
	listener, err := lc.Listen(context.Background(), "tcp", address)
	if err != nil {
		t.logger.Error("Failed to start TCP listener",
			logging.AddressField("address", address),
			logging.ErrorField(err))
		return fmt.Errorf("failed to listen on TCP address %s: %w", address, err)
	}
	if t.config.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, t.config.MaxConnections)
	}

	t.listener = listener
	t.stopChan = make(chan struct{})
	t.running = true

	t.logger.Info("Started TCP transport",
		logging.AddressField("local_addr", listener.Addr().String()),
		logging.IntField("max_connections", t.config.MaxConnections),
		logging.StringField("max_message_size", humanize.IBytes(uint64(t.config.MaxMessageSize))))

	t.wg.Add(1)
	go t.acceptConnections(listener)

	return nil
}

// Stop closes the listener, lets every connection finish the message it is
// working on, and waits for all connection loops to exit. Connections still
// open after the shutdown grace period are closed.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.stopChan)

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.mu.Unlock()

	t.connectionManager.InterruptReads()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(t.config.ShutdownGrace):
		t.logger.Warn("Shutdown grace period expired, closing connections",
			logging.IntField("open_connections", t.connectionManager.GetConnectionCount()))
		if closeErr := t.connectionManager.CloseAll(); closeErr != nil {
			t.logger.Error("Error closing connections", logging.ErrorField(closeErr))
		}
		<-done
	}

	t.logger.Info("Stopped TCP transport")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close TCP listener: %w", err)
	}
	return nil
}

// acceptConnections handles incoming TCP connections
func (t *TCPTransport) acceptConnections(listener net.Listener) {
	defer t.wg.Done()

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.isStopping() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Resource exhaustion such as EMFILE: back off and retry.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			t.logger.Warn("Failed to accept TCP connection",
				logging.ErrorField(err),
				logging.DurationField("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-t.stopChan:
				return
			}
			continue
		}
		backoff = 0

		if t.isStopping() {
			conn.Close()
			return
		}

		tcpConn := t.connectionManager.AddConnection(conn)
		t.metrics.ConnectionOpened()

		t.wg.Add(1)
		go t.handleConnection(tcpConn)
	}
}

// handleConnection runs the read loop of one connection until the peer
// closes it, it idles past the read timeout, an I/O error occurs, or the
// transport stops.
func (t *TCPTransport) handleConnection(tcpConn *TCPConnection) {
	logger := t.logger.With(
		logging.ConnectionField(tcpConn.GetID()),
		logging.AddressField("remote_addr", tcpConn.GetRemoteAddr().String()))

	defer t.wg.Done()
	defer t.metrics.ConnectionClosed()
	defer t.connectionManager.RemoveConnection(tcpConn.GetID())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in connection loop",
				logging.StringField("panic", fmt.Sprint(r)),
				logging.StringField("stack", string(debug.Stack())))
		}
	}()

	logger.Debug("Accepted TCP connection")

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	framer := NewTCPMessageFramerWithLimit(t.config.MaxMessageSize)
	buf := make([]byte, t.config.ReadBufferSize)

	for {
		// The deadline is armed before the stop check so that an
		// InterruptReads issued after the check is not overwritten.
		if err := tcpConn.SetReadTimeout(t.config.ReadTimeout); err != nil {
			logger.Error("Failed to set read timeout", logging.ErrorField(err))
			return
		}
		if t.isStopping() {
			logger.Debug("Closing connection for shutdown")
			return
		}

		n, err := tcpConn.Read(buf)
		if n > 0 {
			tcpConn.UpdateActivity()
			t.metrics.BytesReceived(n)

			messages, frameErr := framer.FrameMessage(buf[:n])
			for _, message := range messages {
				if !t.processMessage(tcpConn, handler, message, logger) {
					return
				}
			}
			if frameErr != nil {
				t.rejectOversized(tcpConn, frameErr, framer, logger)
				return
			}
		}

		if err != nil {
			t.logReadError(tcpConn, err, logger)
			return
		}
		if n == 0 {
			logger.Debug("Peer closed connection")
			return
		}
	}
}

// processMessage hands one message to the handler and writes its reply.
// It returns false when the connection must be closed.
func (t *TCPTransport) processMessage(tcpConn *TCPConnection, handler MessageHandler, message []byte, logger logging.Logger) bool {
	reply, err := handler.HandleMessage(message, tcpConn.GetRemoteAddr())
	if err != nil {
		logger.Error("Error handling TCP message", logging.ErrorField(err))
		return false
	}
	if reply == nil {
		return true
	}
	if err := t.write(tcpConn, reply); err != nil {
		logger.Error("Failed to write response", logging.ErrorField(err))
		return false
	}
	return true
}

func (t *TCPTransport) rejectOversized(tcpConn *TCPConnection, err error, framer *TCPMessageFramer, logger logging.Logger) {
	logger.Warn("Closing connection after framing error",
		logging.ErrorField(err),
		logging.StringField("buffered", humanize.IBytes(uint64(framer.GetBufferSize()))),
		logging.StringField("limit", humanize.IBytes(uint64(framer.GetLimit()))))
	if !errors.Is(err, ErrMessageTooLarge) {
		return
	}
	response := parser.NewResponseFor(parser.StatusMessageTooLarge)
	if writeErr := t.write(tcpConn, parser.Serialize(response)); writeErr != nil {
		logger.Debug("Failed to write 513 response", logging.ErrorField(writeErr))
		return
	}
	t.metrics.ResponseSent(parser.StatusMessageTooLarge)
}

func (t *TCPTransport) write(tcpConn *TCPConnection, data []byte) error {
	if err := tcpConn.SetWriteTimeout(t.config.WriteTimeout); err != nil {
		return fmt.Errorf("failed to set write timeout: %w", err)
	}
	if _, err := tcpConn.Write(data); err != nil {
		return err
	}
	return nil
}

func (t *TCPTransport) logReadError(tcpConn *TCPConnection, err error, logger logging.Logger) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("Peer closed connection")
	case errors.As(err, &netErr) && netErr.Timeout():
		if t.isStopping() {
			logger.Debug("Closing connection for shutdown")
			return
		}
		logger.Info("Closing idle connection",
			logging.DurationField("read_timeout", t.config.ReadTimeout),
			logging.DurationField("idle", time.Since(tcpConn.GetLastActivity()).Round(time.Millisecond)))
	case errors.Is(err, net.ErrClosed):
		logger.Debug("Connection closed")
	default:
		logger.Error("Failed to read from TCP connection", logging.ErrorField(err))
	}
}

func (t *TCPTransport) isStopping() bool {
	t.mu.RLock()
	stopChan := t.stopChan
	t.mu.RUnlock()
	select {
	case <-stopChan:
		return true
	default:
		return false
	}
}

// IsRunning returns true if the TCP transport is running
func (t *TCPTransport) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// LocalAddr returns the local address of the TCP listener
func (t *TCPTransport) LocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr()
	}
	return nil
}

// GetConnectionManager returns the connection manager
func (t *TCPTransport) GetConnectionManager() *TCPConnectionManager {
	return t.connectionManager
}
