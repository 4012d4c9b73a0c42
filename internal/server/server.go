package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/penwyp/go-chat-recap/internal/analyzer"
	"github.com/penwyp/go-chat-recap/internal/config"
	"github.com/penwyp/go-chat-recap/internal/server/httpx"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// Routes served by both engines.
const (
	RouteAnalyze        = "/api/analyze"
	RouteNetlifyAnalyze = "/.netlify/functions/analyze"
	RouteHealth         = "/healthz"
	RouteMetrics        = "/metrics"
)

const defaultShutdownTimeout = 10 * time.Second

// Server exposes the analyzer over HTTP using either net/http or fasthttp.
type Server struct {
	cfg      config.ServerConfig
	analyzer *analyzer.Analyzer
	metrics  *Metrics
	limiter  *limiterPool

	analyze httpx.HandlerFunc
	health  httpx.HandlerFunc
	missing httpx.HandlerFunc
}

// New wires the analyzer to a fresh metrics registry and builds the handler
// chains.
func New(cfg config.ServerConfig, a *analyzer.Analyzer) *Server {
	s := &Server{
		cfg:      cfg,
		analyzer: a,
		metrics:  NewMetrics(),
	}
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newLimiterPool(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	a.WithObserver(s.metrics)

	s.analyze = httpx.Chain(s.handleAnalyze, withRequestID, s.withAccessLog("analyze"), s.withRateLimit)
	s.health = httpx.Chain(s.handleHealth, withRequestID, s.withAccessLog("healthz"))
	s.missing = httpx.Chain(s.handleNotFound, withRequestID, s.withAccessLog("not_found"))
	return s
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Router builds the net/http handler.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	analyze := httpx.NetHTTPAdapter(s.analyze)
	r.Handle(RouteAnalyze, analyze)
	r.Handle(RouteNetlifyAnalyze, analyze)
	r.Handle(RouteHealth, httpx.NetHTTPAdapter(s.health))
	r.Handle(RouteMetrics, s.metrics.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = httpx.NetHTTPAdapter(s.missing)
	return r
}

// FastHandler builds the fasthttp handler. /metrics goes through
// fasthttpadaptor since promhttp only speaks net/http.
func (s *Server) FastHandler() fasthttp.RequestHandler {
	analyze := httpx.FastHTTPAdapter(s.analyze)
	health := httpx.FastHTTPAdapter(s.health)
	missing := httpx.FastHTTPAdapter(s.missing)
	metrics := fasthttpadaptor.NewFastHTTPHandler(s.metrics.Handler())

	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case RouteAnalyze, RouteNetlifyAnalyze:
			analyze(ctx)
		case RouteHealth:
			health(ctx)
		case RouteMetrics:
			metrics(ctx)
		default:
			missing(ctx)
		}
	}
}

// fastHTTPServer builds the fasthttp engine. Its own body cap is twice the
// configured limit so handleAnalyze answers oversized payloads with JSON.
func (s *Server) fastHTTPServer() *fasthttp.Server {
	return &fasthttp.Server{
		Handler:            s.FastHandler(),
		Name:               "go-chat-recap",
		ReadTimeout:        s.cfg.ReadTimeout.Duration(),
		WriteTimeout:       s.cfg.WriteTimeout.Duration(),
		MaxRequestBodySize: int(2*s.cfg.MaxBodySize.Int64() + 1),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.ListenAddr()

	var (
		serve    func() error
		shutdown func(context.Context) error
	)
	switch s.cfg.Engine {
	case config.EngineFastHTTP:
		srv := s.fastHTTPServer()
		serve = func() error { return srv.ListenAndServe(addr) }
		shutdown = func(context.Context) error { return srv.Shutdown() }
	case config.EngineNetHTTP, "":
		srv := &http.Server{
			Addr:         addr,
			Handler:      s.Router(),
			ReadTimeout:  s.cfg.ReadTimeout.Duration(),
			WriteTimeout: s.cfg.WriteTimeout.Duration(),
		}
		serve = srv.ListenAndServe
		shutdown = srv.Shutdown
	default:
		return fmt.Errorf("unknown server engine %q", s.cfg.Engine)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- serve()
	}()
	util.LogInfo("Server listening",
		util.F("addr", addr),
		util.F("engine", s.cfg.Engine),
		util.F("max_body_size", s.cfg.MaxBodySize.String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		util.LogErrorf("Server on %s stopped: %v", addr, err)
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	util.LogInfo("Shutting down server", util.F("timeout", timeout.String()))
	if err := shutdown(sctx); err != nil {
		util.LogWarnf("Graceful shutdown did not finish within %s: %v", timeout, err)
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.analyzer.Stats().PrintFinalStats()
	return nil
}
