package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/core/ports"
	"github.com/fiscaldesk/fiscaldesk/internal/observability/metrics"
)

type Router struct {
	queries ports.QueryService
	metrics *metrics.HTTPServerMetrics
	service string
}

func NewRouter(queries ports.QueryService, m *metrics.HTTPServerMetrics, service string) *Router {
	return &Router{
		queries: queries,
		metrics: m,
		service: service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.answerQuery)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	handler := http.Handler(mux)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question  string `json:"question"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	query := domain.Query{
		ID:        requestIDFromContext(r.Context()),
		SessionID: req.SessionID,
		Text:      req.Question,
		AskedAt:   time.Now().UTC(),
	}

	response, err := rt.queries.Answer(r.Context(), query)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
