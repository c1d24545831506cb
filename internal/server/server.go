package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zurustar/chitko/internal/config"
	"github.com/zurustar/chitko/internal/handlers"
	"github.com/zurustar/chitko/internal/logging"
	"github.com/zurustar/chitko/internal/metrics"
	"github.com/zurustar/chitko/internal/parser"
	"github.com/zurustar/chitko/internal/transport"
	"github.com/zurustar/chitko/internal/webadmin"
)

// SIPServer wires configuration, logging, metrics, request policy and the TCP
// transport together.
type SIPServer struct {
	config *config.Config
	logger logging.Logger
	// ownedLogger is the logger built from the configuration; it is closed by
	// Stop. A logger supplied with WithLogger is left to its owner.
	ownedLogger *logging.ZapLogger

	metrics        *metrics.Metrics
	handlerManager *handlers.Manager
	transport      *transport.TCPTransport

	// webAdmin serves /metrics, /healthz and /status when metrics are
	// enabled.
	webAdmin *webadmin.Server

	// stopped is closed by Stop so that Run returns after an external Stop.
	stopped chan struct{}
	started bool
	mu      sync.RWMutex
}

// Option configures a SIPServer.
type Option func(*SIPServer)

// WithLogger makes the server log through logger instead of building one from
// the logging section of the configuration.
func WithLogger(logger logging.Logger) Option {
	return func(s *SIPServer) { s.logger = logger }
}

// WithConfig sets the configuration instead of loading it from a file.
func WithConfig(cfg *config.Config) Option {
	return func(s *SIPServer) { s.config = cfg }
}

// NewSIPServer creates a new SIP server instance
func NewSIPServer(opts ...Option) *SIPServer {
	s := &SIPServer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadConfig loads and validates the server configuration
func (s *SIPServer) LoadConfig(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cannot load configuration while server is running")
	}

	cfg, err := config.NewManager().Load(filename)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	s.config = cfg
	return nil
}

// Start initializes all components, binds the SIP listener and, when enabled,
// the admin listener. The admin endpoint is served by Run.
func (s *SIPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server is already running")
	}
	if s.config == nil {
		s.config = config.GetDefaultConfig()
	}
	if err := config.NewManager().Validate(s.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := s.initializeComponents(); err != nil {
		s.cleanup()
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	if err := s.transport.Start(s.config.Address()); err != nil {
		s.cleanup()
		return fmt.Errorf("failed to start TCP transport: %w", err)
	}

	if s.config.Metrics.Enabled {
		s.webAdmin = webadmin.NewServer(s.metrics.Handler(), &serverStatus{
			transport:      s.transport,
			handlerManager: s.handlerManager,
		}, s.logger)
		if err := s.webAdmin.Listen(s.config.Metrics.Address); err != nil {
			_ = s.transport.Stop()
			s.cleanup()
			return fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
	}

	s.stopped = make(chan struct{})
	s.started = true
	s.logger.Info("SIP server started",
		logging.AddressField("address", s.transport.LocalAddr().String()),
		logging.StringField("supported_methods", fmt.Sprint(s.handlerManager.GetSupportedMethods())))
	return nil
}

// Stop gracefully shuts down the server: the admin endpoint first, then the
// transport, which drains open connections.
func (s *SIPServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	close(s.stopped)

	s.logger.Info("Initiating server shutdown")

	var errs []error
	if s.webAdmin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownGrace)
		if err := s.webAdmin.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics endpoint: %w", err))
		}
		cancel()
	}

	if err := s.transport.Stop(); err != nil {
		s.logger.Error("Error stopping TCP transport", logging.ErrorField(err))
		errs = append(errs, err)
	}

	s.logger.Info("Server shutdown completed")
	s.cleanup()
	return errors.Join(errs...)
}

// Run starts the server and serves until ctx is cancelled or Stop is called.
// Startup errors and a failing admin endpoint are returned.
func (s *SIPServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	s.mu.RLock()
	admin := s.webAdmin
	stopped := s.stopped
	s.mu.RUnlock()
	if admin != nil {
		g.Go(admin.Serve)
	}

	g.Go(func() error {
		select {
		case <-stopped:
			return nil
		case <-gCtx.Done():
		}
		if err := context.Cause(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Info("Shutting down", logging.StringField("reason", err.Error()))
		}
		return s.Stop()
	})

	return g.Wait()
}

// Addr returns the address of the SIP listener, or nil before Start.
func (s *SIPServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transport == nil {
		return nil
	}
	return s.transport.LocalAddr()
}

// MetricsAddr returns the address of the admin listener, or nil when the
// endpoint is disabled.
func (s *SIPServer) MetricsAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.webAdmin == nil {
		return nil
	}
	return s.webAdmin.Addr()
}

// Metrics returns the metrics of the running server.
func (s *SIPServer) Metrics() *metrics.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// initializeComponents builds every component in dependency order.
func (s *SIPServer) initializeComponents() error {
	// 1. Logger first so the rest can report.
	if s.logger == nil {
		logger, err := logging.NewLoggerFromConfig(logging.LoggerConfig{
			Level:      s.config.Logging.Level,
			File:       s.config.Logging.File,
			MaxSizeMB:  s.config.Logging.MaxSizeMB,
			MaxBackups: s.config.Logging.MaxBackups,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		s.logger = logger
		s.ownedLogger = logger
	}

	maxMessageSize, err := s.config.MaxMessageBytes()
	if err != nil {
		return err
	}

	// 2. Metrics.
	s.metrics = metrics.New()

	// 3. Request policy.
	methods := parser.NewMethodSet(s.config.Methods.Supported...)
	s.handlerManager = handlers.NewManager()
	s.setupMethodHandlers(methods)

	adapter := handlers.NewTransportAdapter(
		s.handlerManager,
		parser.NewParser(),
		handlers.WithMethodSet(methods),
		handlers.WithRecorder(s.metrics),
		handlers.WithLogger(s.logger),
	)

	// 4. Transport.
	s.transport = transport.NewTCPTransport(&transport.TCPConfig{
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		ShutdownGrace:  s.config.Server.ShutdownGrace,
		MaxConnections: s.config.Server.MaxConnections,
		MaxMessageSize: maxMessageSize,
		ReusePort:      s.config.Server.ReusePort,
		Logger:         s.logger,
		Metrics:        s.metrics,
	})
	s.transport.RegisterHandler(adapter)

	return nil
}

// setupMethodHandlers registers method handlers with the handler manager
func (s *SIPServer) setupMethodHandlers(methods *parser.MethodSet) {
	s.handlerManager.RegisterHandler(handlers.NewRegisterHandler(s.logger))

	if s.config.Methods.AnswerOptions {
		s.handlerManager.RegisterHandler(handlers.NewOptionsHandler(methods))
	}
}

// cleanup releases what Start created so the server can be started again.
func (s *SIPServer) cleanup() {
	s.webAdmin = nil
	if s.ownedLogger != nil {
		_ = s.ownedLogger.Close()
		s.logger = nil
		s.ownedLogger = nil
	}
}

// serverStatus feeds the admin status page without taking the server lock,
// so Stop can drain in-flight status requests while holding it.
type serverStatus struct {
	transport      *transport.TCPTransport
	handlerManager *handlers.Manager
}

func (st *serverStatus) ListenAddr() net.Addr {
	if !st.transport.IsRunning() {
		return nil
	}
	return st.transport.LocalAddr()
}

func (st *serverStatus) ActiveConnections() int {
	return st.transport.GetConnectionManager().GetConnectionCount()
}

func (st *serverStatus) SupportedMethods() []string {
	return st.handlerManager.GetSupportedMethods()
}
