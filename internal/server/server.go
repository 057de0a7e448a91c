package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/server/endpoints"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// Server is the main Folio HTTP server.
// When ManageDocling is set it also owns the docling-serve container,
// starting it on server start and stopping it on shutdown.
type Server struct {
	httpServer    *http.Server
	doclingDocker *docling.DockerManager
	readyTimeout  time.Duration
	registry      *providers.Registry
	configMgr     *config.Manager
	logger        *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	ready atomic.Bool

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config)
	Host string
	// Port is the port to listen on (default: server.port from config, "0" picks a free port)
	Port string
	// ConfigManager provides configuration with hot-reload support.
	// Without one, defaults are used.
	ConfigManager *config.Manager
	// Home is the folio home directory (optional)
	Home *home.Dir
	// ManageDocling starts the conversion backend container with the server.
	ManageDocling bool
	// DoclingDocker holds container settings when ManageDocling is set.
	DoclingDocker docling.DockerConfig
	// DoclingReadyTimeout bounds the wait for the container (default: 5m, model download on first start)
	DoclingReadyTimeout time.Duration
	// Registry overrides the config-built describer registry (tests).
	Registry *providers.Registry
	// Metrics records describe attempts (default: new in-memory recorder)
	Metrics *metrics.Recorder
	// SwaggerSpecPath is served at /swagger.json
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	appCfg := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		appCfg = cfg.ConfigManager.Get()
	}
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}
	if cfg.DoclingReadyTimeout == 0 {
		cfg.DoclingReadyTimeout = 5 * time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRecorder(metrics.DefaultCapacity)
	}

	s := &Server{
		readyTimeout: cfg.DoclingReadyTimeout,
		configMgr:    cfg.ConfigManager,
		logger:       cfg.Logger,
	}

	doclingURL := appCfg.Docling.URL
	if cfg.ManageDocling {
		if cfg.DoclingDocker.Logger == nil {
			cfg.DoclingDocker.Logger = cfg.Logger
		}
		dm, err := docling.NewDockerManager(cfg.DoclingDocker)
		if err != nil {
			return nil, fmt.Errorf("failed to create docling manager: %w", err)
		}
		s.doclingDocker = dm
		doclingURL = dm.URL()
	}
	clientCfg := appCfg.DoclingClientConfig(cfg.Logger)
	clientCfg.URL = doclingURL

	s.registry = cfg.Registry
	if s.registry == nil {
		s.registry = providers.NewRegistryFromConfig(appCfg.ToDescriberConfigs(), cfg.Logger)
		if cfg.ConfigManager != nil {
			cfg.ConfigManager.OnChange(func(c *config.Config) {
				s.registry.Reload(c.ToDescriberConfigs())
				cfg.Logger.Info("describer registry reloaded from config")
			})
		}
	}

	s.services = &svcctx.Services{
		Docling:       docling.NewClient(clientCfg),
		DoclingDocker: s.doclingDocker,
		Registry:      s.registry,
		Metrics:       cfg.Metrics,
		ConfigManager: cfg.ConfigManager,
		Logger:        cfg.Logger,
		Home:          cfg.Home,
	}
	// An external backend is the operator's concern; only a managed one gates readiness.
	s.ready.Store(!cfg.ManageDocling)

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: cfg.SwaggerSpecPath}) {
		s.endpointRegistry.Register(ep)
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.withServices)

	s.endpointRegistry.RegisterRoutes(r, s.requireInit)
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the server and, when managed, the conversion backend.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.doclingDocker != nil {
		s.logger.Info("starting docling-serve", "container", s.doclingDocker.ContainerName())
		if err := s.doclingDocker.Start(ctx, s.readyTimeout); err != nil {
			s.setNotRunning()
			return fmt.Errorf("failed to start docling-serve: %w", err)
		}
		s.logger.Info("docling-serve is ready", "url", s.doclingDocker.URL())
		s.ready.Store(true)
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server and any managed container.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	s.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.doclingDocker != nil {
		s.logger.Info("stopping docling-serve")
		if err := s.doclingDocker.Stop(shutdownCtx); err != nil {
			s.logger.Error("docling-serve stop error", "error", err)
		}
		if err := s.doclingDocker.Close(); err != nil {
			s.logger.Error("docker client close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Registry returns the describer registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Metrics returns the enrichment metrics recorder.
func (s *Server) Metrics() *metrics.Recorder {
	return s.services.Metrics
}
