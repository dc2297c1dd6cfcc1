package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/pagesend/internal/mail"
)

// SandboxServer exposes messages captured in sandbox mode
type SandboxServer struct {
	store *mail.SandboxStore
}

// NewSandboxServer creates a new sandbox server
func NewSandboxServer(store *mail.SandboxStore) *SandboxServer {
	return &SandboxServer{store: store}
}

// RegisterRoutes registers sandbox API routes
func (s *SandboxServer) RegisterRoutes(r chi.Router) {
	r.Route("/sandbox", func(r chi.Router) {
		r.Get("/messages", s.handleList)
		r.Get("/messages/{id}", s.handleGet)
		r.Get("/messages/{id}/raw", s.handleGetRaw)
		r.Delete("/messages", s.handleClear)
	})
}

// SandboxListResponse is the response for GET /api/sandbox/messages
type SandboxListResponse struct {
	Messages []*mail.CapturedMessage `json:"messages"`
	Total    int                     `json:"total"`
}

// SandboxMessageDetailResponse is the response for GET /api/sandbox/messages/{id}
type SandboxMessageDetailResponse struct {
	*mail.CapturedMessage
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// handleList handles GET /api/sandbox/messages
func (s *SandboxServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = min(l, 1000)
		}
	}

	messages, err := s.store.List(r.Context(), limit)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}

	total, err := s.store.Count(r.Context())
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to count messages")
		return
	}

	sendJSON(w, http.StatusOK, SandboxListResponse{Messages: messages, Total: total})
}

// handleGet handles GET /api/sandbox/messages/{id}
func (s *SandboxServer) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.load(w, r)
	if !ok {
		return
	}

	env, err := msg.Envelope()
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to parse message")
		return
	}

	headers := make(map[string]string)
	for _, key := range env.GetHeaderKeys() {
		headers[key] = env.GetHeader(key)
	}

	msg.Data = nil
	sendJSON(w, http.StatusOK, SandboxMessageDetailResponse{
		CapturedMessage: msg,
		Headers:         headers,
		Body:            env.Text,
	})
}

// handleGetRaw handles GET /api/sandbox/messages/{id}/raw
func (s *SandboxServer) handleGetRaw(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.load(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+msg.ID+".eml\"")
	w.WriteHeader(http.StatusOK)
	w.Write(msg.Data)
}

// handleClear handles DELETE /api/sandbox/messages?older_than=24h
func (s *SandboxServer) handleClear(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			sendError(w, http.StatusBadRequest, "older_than must be a positive duration")
			return
		}
		olderThan = d
	}

	n, err := s.store.Clear(r.Context(), olderThan)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}

	sendJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *SandboxServer) load(w http.ResponseWriter, r *http.Request) (*mail.CapturedMessage, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		sendError(w, http.StatusBadRequest, "id is required")
		return nil, false
	}

	msg, err := s.store.Get(r.Context(), id)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get message")
		return nil, false
	}
	if msg == nil {
		sendError(w, http.StatusNotFound, "Message not found")
		return nil, false
	}
	return msg, true
}
