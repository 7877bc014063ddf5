package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/fiware-provisioner/internal/audit"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/logging"
	"github.com/nerrad567/fiware-provisioner/internal/provisioning"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Provisioner runs one registration. *provisioning.Provisioner implements it.
type Provisioner interface {
	Provision(ctx context.Context, req provisioning.Request) (provisioning.Result, error)
}

// HealthCheck is one dependency reported by GET /health. A failing required
// check turns the response into a 503.
type HealthCheck struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Provisioner Provisioner
	Audit       audit.Repository    // optional: GET /provisionings answers 503 without it
	Gatherer    prometheus.Gatherer // optional: defaults to prometheus.DefaultGatherer
	Checks      []HealthCheck       // optional
	Hub         *Hub                // optional: created by Start when nil and WS is enabled
	Version     string
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	provisioner Provisioner
	audit       audit.Repository
	gatherer    prometheus.Gatherer
	checks      []HealthCheck
	hub         *Hub
	externalHub bool
	version     string

	routerOnce sync.Once
	router     http.Handler

	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Provisioner == nil {
		return nil, fmt.Errorf("provisioner is required")
	}
	if deps.Security.JWT.Enabled && deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required when jwt is enabled")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		provisioner: deps.Provisioner,
		audit:       deps.Audit,
		gatherer:    deps.Gatherer,
		checks:      deps.Checks,
		version:     deps.Version,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router. Exposed for tests and for embedding the API
// in another server.
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() {
		s.router = s.buildRouter()
	})
	return s.router
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil && s.wsCfg.Enabled {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if s.hub != nil && !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight provisioning runs to finish.
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
