package webadmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zurustar/chitko/internal/logging"
)

// Server implements the WebAdminServer interface
type Server struct {
	metricsHandler http.Handler
	status         StatusSource
	logger         logging.Logger
	startedAt      time.Time

	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status            string   `json:"status"`
	ListenAddress     string   `json:"listen_address"`
	ActiveConnections int      `json:"active_connections"`
	SupportedMethods  []string `json:"supported_methods"`
	Started           string   `json:"started"`
	UptimeSeconds     int64    `json:"uptime_seconds"`
}

// NewServer creates a new web admin server. metricsHandler may be nil, in
// which case /metrics is not routed.
func NewServer(metricsHandler http.Handler, status StatusSource, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		metricsHandler: metricsHandler,
		status:         status,
		logger:         logger,
		startedAt:      time.Now(),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutesOnMux(mux)
	return mux
}

// Listen binds address so that bind errors surface before serving starts.
func (s *Server) Listen(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("web admin server already listening on %s", s.listener.Addr())
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("Web admin server listening",
		logging.AddressField("address", listener.Addr().String()))
	return nil
}

// Serve serves requests until Stop. It returns nil after a clean stop, and
// immediately when the server is not listening.
func (s *Server) Serve() error {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web admin server error: %w", err)
	}
	return nil
}

// Stop stops the web admin server, waiting for in-flight requests until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	s.logger.Info("Stopping web admin server")

	err := server.Shutdown(ctx)
	// Shutdown only closes listeners that reached Serve.
	if closeErr := listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		err = errors.Join(err, closeErr)
	}
	return err
}

// Addr returns the bound address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// registerRoutesOnMux registers HTTP routes on the provided mux
func (s *Server) registerRoutesOnMux(mux *http.ServeMux) {
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	mux.HandleFunc("/healthz", s.HandleHealth)
	mux.HandleFunc("/status", s.HandleStatus)
}

// HandleHealth answers liveness probes.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// HandleStatus reports the state of the SIP listener as JSON.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.status == nil {
		http.Error(w, "Status unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := StatusResponse{
		Status:            "running",
		ActiveConnections: s.status.ActiveConnections(),
		SupportedMethods:  s.status.SupportedMethods(),
		Started:           humanize.Time(s.startedAt),
		UptimeSeconds:     int64(time.Since(s.startedAt) / time.Second),
	}
	if addr := s.status.ListenAddr(); addr != nil {
		resp.ListenAddress = addr.String()
	} else {
		resp.Status = "stopped"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Failed to write status response", logging.ErrorField(err))
	}
}
