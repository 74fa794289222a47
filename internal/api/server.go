// Package api serves the operator HTTP surface of a worker.
//
// Routes:
//
//	POST /v1/reassign          force a guild onto a worker
//	GET  /v1/cluster           fleet summary
//	GET  /v1/guilds/{guildId}  assignment and snapshot of one guild
//	GET  /healthz              liveness of this process
//	GET  /metrics              Prometheus metrics
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/types"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Cluster is the worker surface the API exposes.
type Cluster interface {
	ClusterStatus(ctx context.Context) (types.ClusterStatus, error)
	GuildStatus(ctx context.Context, guildID string) (types.GuildStatus, error)
	ForceAssign(ctx context.Context, guildID, workerID string) types.Result
}

// Server is the operator HTTP server.
type Server struct {
	cluster  Cluster
	gatherer prometheus.Gatherer
	logger   types.Logger
	health   func(ctx context.Context) error

	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry /metrics serves. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithHealthCheck sets the check behind /healthz.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an operator API server listening on addr.
//
// Parameters:
//   - addr: Listen address, e.g. ":8080"
//   - cluster: Worker backing the routes
//   - opts: Optional configuration
//
// Returns:
//   - *Server: Server ready for Start
func New(addr string, cluster Cluster, opts ...Option) *Server {
	s := &Server{
		cluster:  cluster,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Post("/reassign", s.reassign)
		r.Get("/cluster", s.clusterStatus)
		r.Get("/guilds/{guildId}", s.guildStatus)
	})

	return r
}

// Start listens in the background. Listen errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("operator api stopped", "error", err)
		}
	}()
	s.logger.Info("operator api listening", "addr", ln.Addr().String())

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			s.logger.Debug("http request",
				"request_id", chimiddleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
