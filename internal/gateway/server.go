// Package gateway is the HTTP surface: the platform webhook, the operator
// WebSocket feed, and the operator REST API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livedesk-ai/livedesk/internal/config"
	"github.com/livedesk-ai/livedesk/internal/dispatcher"
	"github.com/livedesk-ai/livedesk/internal/hub"
	"github.com/livedesk-ai/livedesk/internal/line"
	"github.com/livedesk-ai/livedesk/internal/notify"
	"github.com/livedesk-ai/livedesk/internal/session"
	"github.com/livedesk-ai/livedesk/internal/store"
)

// Server wires the HTTP endpoints to the core components.
type Server struct {
	cfg        *config.Config
	dispatcher *dispatcher.Dispatcher
	hub        *hub.Hub
	sessions   *session.Service
	queue      *notify.Queue
	platform   line.API
	users      store.UserStateStore
	history    store.ChatHistoryStore

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(
	cfg *config.Config,
	disp *dispatcher.Dispatcher,
	h *hub.Hub,
	sessions *session.Service,
	queue *notify.Queue,
	platform line.API,
	users store.UserStateStore,
	history store.ChatHistoryStore,
) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: disp,
		hub:        h,
		sessions:   sessions,
		queue:      queue,
		platform:   platform,
		users:      users,
		history:    history,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPS)
	return s
}

// checkOrigin validates the WebSocket Origin header against the allowlist.
// No configured origins means allow all; an empty Origin header
// (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("websocket origin rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	s.registerAdminRoutes(mux)

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebhook feeds the raw delivery to the dispatcher. Only a signature
// mismatch produces a non-200; the platform retries those, and a retry
// with the correct secret can succeed.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	res, err := s.dispatcher.HandleDelivery(r.Context(), body, r.Header.Get("X-Line-Signature"))
	if err != nil {
		if errors.Is(err, dispatcher.ErrBadSignature) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		// The dispatcher contract says this cannot happen; fail safe with
		// a 200 so the platform does not redeliver.
		slog.Error("unexpected dispatcher error", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"processed": res.Processed,
		"failed":    res.Failed,
	})
}

// handleWebSocket upgrades the connection and registers a hub observer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := hub.NewWSClient(conn)
	s.hub.Connect(client)
	client.ReadLoop(s.hub)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"observers": s.hub.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}
