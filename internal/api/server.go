package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nana4rider/wisun-gateway/internal/infrastructure/config"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/logging"
	"github.com/nana4rider/wisun-gateway/internal/meter"
	"github.com/nana4rider/wisun-gateway/internal/readings"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests before the listener is torn down anyway.
const gracefulShutdownTimeout = 10 * time.Second

// StatusReporter exposes meter bridge state for the status endpoint.
// *meter.Bridge satisfies this interface.
type StatusReporter interface {
	GetMetrics() meter.Metrics
}

// Deps collects everything the API server needs. Config and Logger
// are required; the rest degrade gracefully when absent.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// Bridge provides live meter status. Optional; the status endpoint
	// returns 503 when absent.
	Bridge StatusReporter

	// Repo provides access to stored readings. Optional; the readings
	// endpoints return 503 when absent.
	Repo readings.Repository

	// ExternalHub, if set, is used instead of creating a new hub. This is
	// how the meter bridge and the WebSocket stream share one hub.
	ExternalHub *Hub

	Version string
}

// Server is the gateway's HTTP surface: the JSON endpoints for status
// and reading history, plus the WebSocket stream of live readings.
// Construct with New, then Start; Close shuts it down.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	bridge      StatusReporter
	repo        readings.Repository
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc // stops hub and friends on Close
	startTime   time.Time
}

// New validates deps and builds an unstarted server.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		bridge:  deps.Bridge,
		repo:    deps.Repo,
		version: deps.Version,
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it if necessary.
// The hub satisfies the meter bridge's broadcaster interface, so the
// returned value can be handed to the bridge before Start() is called.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start builds the router and launches the listener in a background
// goroutine. Listener failures after startup are logged, not returned;
// Close stops the server.
func (s *Server) Start(ctx context.Context) error {
	// Derive an internal context so Close can stop the hub without
	// waiting on the parent.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startTime = time.Now()

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close drains in-flight requests within gracefulShutdownTimeout and
// then closes whatever is left.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the listener has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
