package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/penwyp/go-chat-recap/internal/server/httpx"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID returns the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	return util.RequestIDFromContext(ctx)
}

// withRequestID reuses an incoming X-Request-ID or assigns a new one.
func withRequestID(next httpx.HandlerFunc) httpx.HandlerFunc {
	return func(w httpx.ResponseWriter, r *httpx.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next(w, r.WithContext(util.ContextWithRequestID(r.Ctx, id)))
	}
}

// withAccessLog writes one line per request and feeds request metrics.
func (s *Server) withAccessLog(route string) httpx.Middleware {
	return func(next httpx.HandlerFunc) httpx.HandlerFunc {
		return func(w httpx.ResponseWriter, r *httpx.Request) {
			start := time.Now()
			rec := &httpx.StatusRecorder{ResponseWriter: w}
			next(rec, r)

			status := rec.Status
			if status == 0 {
				status = http.StatusOK
			}
			d := time.Since(start)
			s.metrics.observeRequest(route, status, d)

			log := util.LogContext(r.Ctx)
			fields := []util.Field{
				util.F("method", r.Method),
				util.F("path", r.Path),
				util.F("status", status),
				util.F("bytes", rec.Bytes),
				util.F("duration", util.FormatDuration(d)),
				util.F("remote", r.ClientIP()),
			}
			switch {
			case status >= 500:
				log.Error("Request failed", fields...)
			case status >= 400:
				log.Warn("Request rejected", fields...)
			default:
				log.Info("Request served", fields...)
			}
		}
	}
}

// withRateLimit rejects clients that exceed their token bucket.
func (s *Server) withRateLimit(next httpx.HandlerFunc) httpx.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w httpx.ResponseWriter, r *httpx.Request) {
		if !s.limiter.Allow(r.ClientIP()) {
			s.metrics.rateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			writeTransportError(w, http.StatusTooManyRequests, "RateLimited", "Too many requests")
			return
		}
		next(w, r)
	}
}
