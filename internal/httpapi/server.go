// Package httpapi exposes the webhook ingress and the status surface over
// HTTP. Signature verification happens before anything else looks at the
// body; dispatch into the orchestrator never blocks on pipeline execution.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/driftwatch/driftwatch/internal/orchestrator"
)

type ServerConfig struct {
	WebhookSecret string
	MaxBodyBytes  int64
}

type Server struct {
	orch   *orchestrator.Orchestrator
	cfg    ServerConfig
	logger *log.Logger
}

func NewServer(orch *orchestrator.Orchestrator, cfg ServerConfig, logger *log.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{orch: orch, cfg: cfg, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/webhook" && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	case r.URL.Path == "/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.orch.Status())
	case r.URL.Path == "/status/stream" && r.Method == http.MethodGet:
		s.handleStatusStream(w, r)
	default:
		writeDetail(w, http.StatusNotFound, "route not found")
	}
}

type webhookPayload struct {
	Repository string   `json:"repository"`
	Added      []string `json:"added"`
	Modified   []string `json:"modified"`
	Removed    []string `json:"removed"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), s.cfg.WebhookSecret) {
		writeDetail(w, http.StatusForbidden, "Invalid signature")
		return
	}

	eventType := strings.TrimSpace(r.Header.Get("X-Event-Type"))
	switch eventType {
	case "ping":
		writeJSON(w, http.StatusOK, webhookResponse{Status: "success", Message: "pong"})
		return
	case "push":
	case "":
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Message: "missing event type"})
		return
	default:
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Message: "event type " + eventType + " ignored"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(payload.Repository) == "" {
		writeDetail(w, http.StatusBadRequest, "missing repository")
		return
	}

	now := time.Now().UTC()
	known := false
	accepted := 0

	changed := append(append([]string{}, payload.Added...), payload.Modified...)
	if len(changed) > 0 {
		result, found := s.orch.DispatchRepository(payload.Repository, orchestrator.ChangeEvent{
			Paths:      changed,
			Kind:       orchestrator.EventModified,
			ObservedAt: now,
			Source:     orchestrator.SourceWebhook,
		})
		known = known || found
		accepted += result.AcceptedPaths
	}
	if len(payload.Removed) > 0 {
		result, found := s.orch.DispatchRepository(payload.Repository, orchestrator.ChangeEvent{
			Paths:      payload.Removed,
			Kind:       orchestrator.EventRemoved,
			ObservedAt: now,
			Source:     orchestrator.SourceWebhook,
		})
		known = known || found
		accepted += result.AcceptedPaths
	}
	if len(changed) == 0 && len(payload.Removed) == 0 {
		_, known = s.orch.Registry().GetByRepository(payload.Repository)
	}

	switch {
	case !known:
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Message: "Unknown repository: " + payload.Repository})
	case accepted == 0:
		writeJSON(w, http.StatusOK, webhookResponse{Status: "skipped", Message: "No relevant changes for " + payload.Repository})
	default:
		s.logger.Printf("webhook accepted %d paths for repository %s", accepted, payload.Repository)
		writeJSON(w, http.StatusOK, webhookResponse{Status: "success", Message: "Reindexing queued for " + payload.Repository})
	}
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	events, cancel := s.orch.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusBadRequest, "request body exceeds configured limit")
			return nil, false
		}
		writeDetail(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeDetail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
