package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/penwyp/go-chat-recap/internal/analyzer"
	"github.com/penwyp/go-chat-recap/internal/config"
	"github.com/penwyp/go-chat-recap/internal/server/httpx"
	"github.com/penwyp/go-chat-recap/internal/util"
)

const samplePayload = `{"messages":[
	{"timestamp":1704096000,"sender_name":"Alice","content":"hello there"},
	{"timestamp":1704099600,"sender_name":"Bob","content":"hi"},
	{"timestamp":1704186000,"sender_name":"Alice","content":"again"}
]}`

func newTestServer(t *testing.T, mutate func(*config.ServerConfig), acfg analyzer.Config) *Server {
	t.Helper()
	cfg := config.Default().Server
	cfg.RateLimit.RPS = 0
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := analyzer.New(acfg)
	require.NoError(t, err)
	return New(cfg, a)
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestAnalyzeRoutes(t *testing.T) {
	s := newTestServer(t, nil, analyzer.Config{SkipCharts: true})
	router := s.Router()

	for _, path := range []string{RouteAnalyze, RouteNetlifyAnalyze} {
		t.Run(path, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, path, samplePayload)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

			body := decodeBody(t, rec.Body.Bytes())
			assert.Equal(t, float64(3), body["total_messages"])
			assert.Equal(t, "Alice", body["top_sender"])
			assert.Equal(t, "2024-01-01", body["busiest_day"])
			assert.Contains(t, body, "series")
			assert.Contains(t, body, "charts")
		})
	}
}

func TestAnalyzeReturnsCharts(t *testing.T) {
	s := newTestServer(t, nil, analyzer.Config{})
	rec := doRequest(s.Router(), http.MethodPost, RouteAnalyze, samplePayload)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Charts map[string]string `json:"charts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.Charts, "sender_pie")

	png, err := base64.StdEncoding.DecodeString(body.Charts["sender_pie"])
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		status int
		kind   string
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed, ErrMethodNotAllowed},
		{"empty body", http.MethodPost, "", http.StatusBadRequest, ErrEmptyBody},
		{"whitespace body", http.MethodPost, "  \n", http.StatusBadRequest, ErrEmptyBody},
		{"invalid json", http.MethodPost, `{"messages":`, http.StatusBadRequest, "UnparsablePayload"},
		{"no messages", http.MethodPost, `[]`, http.StatusBadRequest, "NoMessagesFound"},
		{"missing columns", http.MethodPost, `[{"foo":"bar"}]`, http.StatusBadRequest, "MissingRequiredColumns"},
		{"too large", http.MethodPost, `[` + strings.Repeat(" ", 200) + `]`, http.StatusRequestEntityTooLarge, ErrPayloadTooLarge},
	}

	s := newTestServer(t, func(c *config.ServerConfig) { c.MaxBodySize = 128 }, analyzer.Config{SkipCharts: true})
	router := s.Router()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, tt.method, RouteAnalyze, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec.Body.Bytes())
			assert.Equal(t, tt.kind, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestAnalyzeMissingColumnsListsFields(t *testing.T) {
	s := newTestServer(t, nil, analyzer.Config{SkipCharts: true})
	rec := doRequest(s.Router(), http.MethodPost, RouteAnalyze, `[{"foo":"bar"}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `["foo"]`, mustField(t, rec.Body.Bytes(), "fields"))
}

func mustField(t *testing.T, raw []byte, key string) string {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &out))
	return string(out[key])
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(t, nil, analyzer.Config{SkipCharts: true})
	router := s.Router()

	rec := doRequest(router, http.MethodGet, RouteHealth, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(router, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrNotFound, decodeBody(t, rec.Body.Bytes())["error"])
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(t, nil, analyzer.Config{SkipCharts: true})
	req := httptest.NewRequest(http.MethodGet, RouteHealth, nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReachesHandlerAndAccessLog(t *testing.T) {
	if util.GetLogger() != nil {
		t.Skip("global logger already installed")
	}
	logFile := filepath.Join(t.TempDir(), "recap.log")
	l, err := util.NewLogger(util.LoggerConfig{Level: "debug", Format: "json", File: logFile})
	require.NoError(t, err)
	util.SetLogger(l)
	t.Cleanup(func() { util.SetLogger(nil) })

	var seen string
	h := httpx.Chain(func(w httpx.ResponseWriter, r *httpx.Request) {
		seen = RequestID(r.Ctx)
	}, withRequestID)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "ctx-99")
	httpx.NetHTTPAdapter(h).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "ctx-99", seen)

	s := newTestServer(t, nil, analyzer.Config{SkipCharts: true})
	req = httptest.NewRequest(http.MethodPost, RouteAnalyze, strings.NewReader(`[{"foo":"bar"}]`))
	req.Header.Set(RequestIDHeader, "abc-456")
	s.Router().ServeHTTP(httptest.NewRecorder(), req)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "Request rejected")
	assert.Contains(t, out, "Analysis failed")
	assert.Equal(t, 2, strings.Count(out, `"request_id":"abc-456"`))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, analyzer.Config{SkipCharts: true})
	router := s.Router()

	doRequest(router, http.MethodPost, RouteAnalyze, samplePayload)
	doRequest(router, http.MethodPost, RouteAnalyze, `[]`)

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.outcomes.WithLabelValues(analyzer.OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.outcomes.WithLabelValues("NoMessagesFound")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.requests.WithLabelValues("analyze", "200")))

	rec := doRequest(router, http.MethodGet, RouteMetrics, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recap_pipeline_runs_total")
	assert.Contains(t, rec.Body.String(), "recap_pipeline_phase_duration_seconds")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 2}
	}, analyzer.Config{SkipCharts: true})
	router := s.Router()

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, RouteAnalyze, samplePayload).Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, RouteAnalyze, samplePayload).Code)

	rec := doRequest(router, http.MethodPost, RouteAnalyze, samplePayload)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RateLimited", decodeBody(t, rec.Body.Bytes())["error"])
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.rateLimited))

	// Health checks bypass the limiter.
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, RouteHealth, "").Code)
}

func TestLimiterPoolSweepsIdleClients(t *testing.T) {
	p := newLimiterPool(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	for i := 0; i < limiterSweepSize; i++ {
		p.Allow(string(rune('a'+i%26)) + strings.Repeat("x", i/26))
	}
	require.Equal(t, limiterSweepSize, p.size())

	now = now.Add(limiterIdleTTL + time.Minute)
	assert.True(t, p.Allow("fresh"))
	assert.Equal(t, 1, p.size())
}

func fastRequest(h fasthttp.RequestHandler, method, path, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	ctx.Request.SetBodyString(body)
	h(&ctx)
	return &ctx
}

func TestFastHandler(t *testing.T) {
	s := newTestServer(t, nil, analyzer.Config{SkipCharts: true})
	h := s.FastHandler()

	ctx := fastRequest(h, http.MethodPost, RouteNetlifyAnalyze, samplePayload)
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
	body := decodeBody(t, ctx.Response.Body())
	assert.Equal(t, float64(3), body["total_messages"])

	ctx = fastRequest(h, http.MethodPut, RouteAnalyze, samplePayload)
	assert.Equal(t, http.StatusMethodNotAllowed, ctx.Response.StatusCode())

	ctx = fastRequest(h, http.MethodPost, RouteAnalyze, "")
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"EmptyBody","message":"No data provided"}`, string(ctx.Response.Body()))

	ctx = fastRequest(h, http.MethodGet, RouteHealth, "")
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	ctx = fastRequest(h, http.MethodGet, RouteMetrics, "")
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "recap_http_requests_total")

	ctx = fastRequest(h, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())
}

func TestFastHTTPServerOversizedBodyIsJSON(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) { c.MaxBodySize = 128 }, analyzer.Config{SkipCharts: true})
	srv := s.fastHTTPServer()
	assert.Greater(t, srv.MaxRequestBodySize, 128)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(context.Context, string, string) (net.Conn, error) { return ln.Dial() },
	}}
	resp, err := client.Post("http://recap"+RouteAnalyze, "application/json", strings.NewReader(strings.Repeat(" ", 200)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, ErrPayloadTooLarge, body["error"])
}

func TestRunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.Address = "127.0.0.1"
		c.Port = port
	}, analyzer.Config{SkipCharts: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, s.Run(ctx))
}
