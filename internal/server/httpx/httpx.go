// Package httpx lets one handler serve both the net/http and fasthttp engines.
package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
)

// Request is the engine-neutral request handlers receive.
type Request struct {
	Ctx        context.Context
	Method     string
	Path       string
	Header     http.Header
	Body       io.ReadCloser
	RemoteAddr string
	// Raw is the engine request (*http.Request or *fasthttp.RequestCtx).
	Raw any
}

// ClientIP returns the host part of RemoteAddr.
func (r *Request) ClientIP() string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithContext returns a shallow copy of r using ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.Ctx = ctx
	return &r2
}

// ResponseWriter is the subset of http.ResponseWriter adapters implement.
type ResponseWriter interface {
	Header() http.Header
	Write([]byte) (int, error)
	WriteHeader(status int)
}

// HandlerFunc is the handler signature shared by both engines.
type HandlerFunc func(w ResponseWriter, r *Request)

// Middleware wraps a HandlerFunc.
type Middleware func(HandlerFunc) HandlerFunc

// Chain applies middleware so the first one listed runs outermost.
func Chain(h HandlerFunc, middleware ...Middleware) HandlerFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// StatusRecorder remembers the status and byte count written through it.
type StatusRecorder struct {
	ResponseWriter
	Status int
	Bytes  int
}

func (s *StatusRecorder) WriteHeader(status int) {
	if s.Status == 0 {
		s.Status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *StatusRecorder) Write(b []byte) (int, error) {
	if s.Status == 0 {
		s.Status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.Bytes += n
	return n, err
}
