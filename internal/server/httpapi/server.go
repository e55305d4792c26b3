// Package httpapi exposes the moment services over JSON/HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/momentkeeper/internal/logging"
	"github.com/dmitrijs2005/momentkeeper/internal/server/config"
	"github.com/dmitrijs2005/momentkeeper/internal/server/services"
)

type HTTPServer struct {
	address         string
	shutdownTimeout time.Duration
	appToken        string
	users           *services.UserService
	moments         *services.MomentService
	limiter         *userLimiter
	logger          logging.Logger
}

const defaultShutdownTimeout = 10 * time.Second

func NewHTTPServer(cfg *config.Config, l logging.Logger, us *services.UserService, ms *services.MomentService) *HTTPServer {
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}
	return &HTTPServer{
		address:         cfg.EndpointAddr,
		shutdownTimeout: shutdown,
		appToken:        cfg.AppToken,
		users:           us,
		moments:         ms,
		limiter:         newUserLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:          l.With("module", "http_server"),
	}
}

// Handler returns the routed API.
func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/users", s.app(http.HandlerFunc(s.register))).Methods(http.MethodPost)

	// fixed paths before /moments/{id}
	r.Handle("/moments", s.user(s.createMoment)).Methods(http.MethodPost)
	r.Handle("/moments", s.user(s.listMoments)).Methods(http.MethodGet)
	r.Handle("/moments/purge", s.user(s.purgeMoments)).Methods(http.MethodPost)
	r.Handle("/moments/by-client-id/{clientId}", s.user(s.getMomentByClientID)).Methods(http.MethodGet)
	r.Handle("/moments/{id}", s.user(s.getMoment)).Methods(http.MethodGet)
	r.Handle("/moments/{id}", s.user(s.updateMoment)).Methods(http.MethodPut)
	r.Handle("/moments/{id}", s.user(s.archiveMoment)).Methods(http.MethodDelete)
	r.Handle("/moments/{id}/enrich", s.user(s.enrichMoment)).Methods(http.MethodPost)
	r.Handle("/moments/{id}/restore", s.user(s.restoreMoment)).Methods(http.MethodPost)
	r.Handle("/timeline", s.user(s.timeline)).Methods(http.MethodGet)

	r.Use(s.logRequests)
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *HTTPServer) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
