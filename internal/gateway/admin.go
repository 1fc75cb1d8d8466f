package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/livedesk-ai/livedesk/internal/session"
	"github.com/livedesk-ai/livedesk/internal/store"
	"github.com/livedesk-ai/livedesk/pkg/protocol"
)

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return s.rateLimiter.Middleware(s.requireAuth(h))
	}
	mux.HandleFunc("GET /admin/users", guard(s.handleListUsers))
	mux.HandleFunc("GET /admin/messages/{user_id}", guard(s.handleMessages))
	mux.HandleFunc("POST /admin/reply", guard(s.handleReply))
	mux.HandleFunc("POST /admin/end_chat", guard(s.handleEndChat))
	mux.HandleFunc("POST /admin/toggle_mode", guard(s.handleToggleMode))
	mux.HandleFunc("POST /admin/force_handoff", guard(s.handleForceHandoff))
	mux.HandleFunc("POST /admin/restart_chat", guard(s.handleRestartChat))
	mux.HandleFunc("POST /admin/notifications/drain", guard(s.handleDrain))
}

// requireAuth enforces the bearer admin token. An empty configured token
// disables auth for local development.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Gateway.AdminToken
		if token == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		got, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type userActionRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func decodeAction(w http.ResponseWriter, r *http.Request) (*userActionRequest, bool) {
	var req userActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		http.Error(w, "list users failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.history.History(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "load history failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "messages": records})
}

// handleReply pushes an operator message to the user and records it.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	if req.Message == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	if err := s.platform.PushMessage(r.Context(), req.UserID, req.Message); err != nil {
		slog.Error("operator reply push failed",
			"category", "admin", "subcategory", "send_error",
			"user_id", req.UserID, "error", err)
		http.Error(w, "push failed", http.StatusBadGateway)
		return
	}

	rec := &store.ChatRecord{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      req.UserID,
		SenderType:  "operator",
		ContentType: "text",
		Body:        req.Message,
	}
	if err := s.history.Append(r.Context(), rec); err != nil {
		slog.Error("append operator record failed", "user_id", req.UserID, "error", err)
	}

	s.hub.Broadcast(protocol.NewEnvelope(protocol.EventAdminReply, map[string]any{
		"user_id": req.UserID,
		"message": req.Message,
	}))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleEndChat returns the user to bot mode and tells them the live
// session is over.
func (s *Server) handleEndChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	mode, changed, err := s.sessions.Apply(r.Context(), req.UserID, session.EventEndChat)
	if err != nil {
		http.Error(w, "state update failed", http.StatusInternalServerError)
		return
	}
	if !changed {
		writeJSON(w, http.StatusOK, map[string]any{"status": "noop", "mode": mode})
		return
	}

	if err := s.platform.PushMessage(r.Context(), req.UserID, s.cfg.Handoff.EndMessage); err != nil {
		slog.Error("end chat push failed", "user_id", req.UserID, "error", err)
	}
	s.broadcastModeChange(req.UserID, mode)
	s.hub.Broadcast(protocol.NewEnvelope(protocol.EventChatEnded, map[string]any{
		"user_id": req.UserID,
	}))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "mode": mode})
}

// handleToggleMode flips a live session between manual and auto.
func (s *Server) handleToggleMode(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	mode, changed, err := s.sessions.Apply(r.Context(), req.UserID, session.EventToggle)
	if err != nil {
		http.Error(w, "state update failed", http.StatusInternalServerError)
		return
	}
	if changed {
		s.broadcastModeChange(req.UserID, mode)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "mode": mode, "changed": changed})
}

// handleForceHandoff pulls a bot-mode user into a live session without a
// phrase match.
func (s *Server) handleForceHandoff(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	mode, changed, err := s.sessions.Apply(r.Context(), req.UserID, session.EventHandoff)
	if err != nil {
		http.Error(w, "state update failed", http.StatusInternalServerError)
		return
	}
	if changed {
		s.broadcastModeChange(req.UserID, mode)
		s.hub.Broadcast(protocol.NewEnvelope(protocol.EventNewUserRequest, map[string]any{
			"user_id": req.UserID,
			"mode":    mode,
			"forced":  true,
		}))
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "mode": mode, "changed": changed})
}

// handleRestartChat resets the user to bot mode unconditionally and
// re-sends the welcome message.
func (s *Server) handleRestartChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	if err := s.sessions.ForceMode(r.Context(), req.UserID, store.ModeBot); err != nil {
		http.Error(w, "state update failed", http.StatusInternalServerError)
		return
	}
	if err := s.platform.PushMessage(r.Context(), req.UserID, s.cfg.Handoff.WelcomeText); err != nil {
		slog.Error("restart welcome push failed", "user_id", req.UserID, "error", err)
	}
	s.broadcastModeChange(req.UserID, store.ModeBot)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "mode": store.ModeBot})
}

// handleDrain runs one notification drain pass on demand.
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	maxN := s.cfg.Notifications.DrainBatch
	if v := r.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxN = n
		}
	}
	res, err := s.queue.Drain(r.Context(), maxN)
	if err != nil {
		http.Error(w, "drain failed", http.StatusInternalServerError)
		return
	}
	s.hub.Broadcast(protocol.NewEnvelope(protocol.EventNotificationFlush, map[string]any{
		"sent":   res.Sent,
		"failed": res.Failed,
	}))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) broadcastModeChange(userID string, mode store.Mode) {
	s.hub.Broadcast(protocol.NewEnvelope(protocol.EventModeChanged, map[string]any{
		"user_id": userID,
		"mode":    mode,
	}))
}
