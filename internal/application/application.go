package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/rukun/api/internal/api"
	"github.com/rukun/api/internal/config"
)

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("server already started")

// App encapsulates the application dependencies and HTTP server.
type App struct {
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
	errs     chan error
}

// Option configures New.
type Option func(*options)

type options struct {
	routerOpts []api.RouterOption
}

// WithRoute attaches a collaborator handler to the server next to the probes.
func WithRoute(pattern string, handler http.Handler) Option {
	return func(o *options) {
		o.routerOpts = append(o.routerOpts, api.WithRoute(pattern, handler))
	}
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	handler := api.NewHandler(logger)
	routerOpts := append([]api.RouterOption{
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, o.routerOpts...)
	router := api.NewRouter(handler, logger, routerOpts...)

	return &App{
		handler: handler,
		router:  router,
		logger:  logger,
		server:  NewServer(cfg, router),
		errs:    make(chan error, 1),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start binds the listen address and serves in a goroutine. Bind errors are
// returned directly; errors that occur while serving are delivered on Errors.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", a.server.Addr, err)
	}
	a.listener = ln

	a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		defer close(a.errs)
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", zap.Error(err))
			a.errs <- err
		}
	}()
	return nil
}

// Addr reports the bound address, which differs from the configured one when
// port 0 was requested. It is empty before Start.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Errors delivers at most one serve error and is closed when serving stops.
func (a *App) Errors() <-chan error {
	return a.errs
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Shutdown gracefully stops the server, forcing it closed if ctx expires first.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := a.server.Close(); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}
	return nil
}
