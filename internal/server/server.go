// Package server exposes a published dataset over HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /schema
//	POST /query?offset=&count=&format=typed|text&total=1
//	POST /export
//	POST /replicates
//
// total=1 reports the unwindowed row count in the X-Total-Count header.
//
// Every failure is logged and answered with an error status and the JSON
// body null. The X-Error-Kind header names the error kind.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/ExprDB/internal/logger"
	"github.com/koustreak/ExprDB/internal/query"
)

// Config holds HTTP listener settings.
type Config struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// DefaultConfig listens on :8080. The write timeout is generous because
// exports stream whole datasets.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves one executor.
type Server struct {
	exec   *query.Executor
	health Pinger
	cfg    Config
	log    *logger.Logger
	router chi.Router
}

// New builds the router. health may be nil, in which case /healthz always
// succeeds.
func New(exec *query.Executor, health Pinger, cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{exec: exec, health: health, cfg: cfg, log: log.Component("server")}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLog,
		middleware.Recoverer,
		middleware.Compress(5, "application/json", "text/csv"),
	)
	r.Get("/healthz", s.healthz)
	r.Get("/schema", s.schema)
	r.Post("/query", s.query)
	r.Post("/export", s.export)
	r.Post("/replicates", s.replicates)
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return egctx },
	}

	eg.Go(func() error {
		s.log.With().Str("addr", ln.Addr().String()).Logger().Info("listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()

		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requestLog writes one line per request.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Request().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
