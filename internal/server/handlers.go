package server

import (
	"bytes"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-chat-recap/internal/presentation/formatter"
	"github.com/penwyp/go-chat-recap/internal/server/httpx"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// Transport-level error kinds. Pipeline failures use model.FailureKind.
const (
	ErrEmptyBody        = "EmptyBody"
	ErrPayloadTooLarge  = "PayloadTooLarge"
	ErrMethodNotAllowed = "MethodNotAllowed"
	ErrNotFound         = "NotFound"
)

// handleAnalyze runs the pipeline over a POSTed JSON body.
func (s *Server) handleAnalyze(w httpx.ResponseWriter, r *httpx.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeTransportError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed, "Method Not Allowed")
		return
	}

	limit := s.cfg.MaxBodySize.Int64()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		util.LogContext(r.Ctx).Warn("Failed to read request body", util.F("error", err.Error()))
		writeTransportError(w, http.StatusBadRequest, ErrEmptyBody, "No data provided")
		return
	}
	if int64(len(body)) > limit {
		writeTransportError(w, http.StatusRequestEntityTooLarge, ErrPayloadTooLarge,
			"Payload exceeds "+s.cfg.MaxBodySize.String())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeTransportError(w, http.StatusBadRequest, ErrEmptyBody, "No data provided")
		return
	}
	s.metrics.payloadBytes.Observe(float64(len(body)))

	analysis, err := s.analyzer.AnalyzeBytes(body)
	if err != nil {
		data, status, merr := formatter.MarshalError(err)
		if merr != nil {
			writeTransportError(w, http.StatusInternalServerError, "InternalFailure", merr.Error())
			return
		}
		util.LogContext(r.Ctx).Debug("Analysis failed", util.F("error", err.Error()))
		writeJSON(w, status, data)
		return
	}

	data, err := formatter.MarshalResponse(analysis)
	if err != nil {
		writeTransportError(w, http.StatusInternalServerError, "InternalFailure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleHealth(w httpx.ResponseWriter, r *httpx.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeTransportError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed, "Method Not Allowed")
		return
	}
	writeJSON(w, http.StatusOK, []byte(`{"status":"ok"}`))
}

func (s *Server) handleNotFound(w httpx.ResponseWriter, r *httpx.Request) {
	writeTransportError(w, http.StatusNotFound, ErrNotFound, "No route for "+r.Path)
}

func writeJSON(w httpx.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeTransportError(w httpx.ResponseWriter, status int, kind, message string) {
	data, err := sonic.ConfigStd.Marshal(&formatter.ErrorResponse{Error: kind, Message: message})
	if err != nil {
		data = []byte(`{"error":"` + kind + `"}`)
	}
	writeJSON(w, status, data)
}
