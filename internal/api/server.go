// Package api serves the latest pipeline results over HTTP and websocket.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbscout/arbscout/internal/pkg/models"
	"github.com/arbscout/arbscout/internal/pkg/storage"
	"github.com/arbscout/arbscout/internal/ws"
)

const (
	defaultLimit      = 100
	readHeaderTimeout = 10 * time.Second
)

// SnapshotReader serves cached result lists. Reads fall through to Postgres
// when the cache misses or is disabled.
type SnapshotReader interface {
	GetArbitrage(ctx context.Context) ([]models.Match, error)
	GetEnriched(ctx context.Context) ([]models.EnrichedMatch, error)
}

// Server exposes /health, /arbitrage, /enriched and /ws.
type Server struct {
	cache       SnapshotReader
	arbStore    storage.ArbitrageStorage
	enrichStore storage.EnrichedStorage
	hub         *ws.Hub
	upgrader    websocket.Upgrader
}

// NewServer wires the read-side server. cache and hub may be nil; the
// matching endpoints then fall back to Postgres or respond 404.
func NewServer(cache SnapshotReader, arbStore storage.ArbitrageStorage, enrichStore storage.EnrichedStorage, hub *ws.Hub) *Server {
	return &Server{
		cache:       cache,
		arbStore:    arbStore,
		enrichStore: enrichStore,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/arbitrage", s.handleArbitrage)
	mux.HandleFunc("/enriched", s.handleEnriched)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("API server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleArbitrage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.cache != nil {
		matches, err := s.cache.GetArbitrage(r.Context())
		if err == nil && matches != nil {
			writeJSON(w, http.StatusOK, matches)
			return
		}
		if err != nil {
			slog.Warn("API: arbitrage snapshot read failed, falling back", "error", err)
		}
	}

	matches, err := s.arbStore.RecentMatches(r.Context(), defaultLimit)
	if err != nil {
		slog.Error("API: arbitrage read failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []models.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleEnriched(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.cache != nil {
		matches, err := s.cache.GetEnriched(r.Context())
		if err == nil && matches != nil {
			writeJSON(w, http.StatusOK, matches)
			return
		}
		if err != nil {
			slog.Warn("API: enriched snapshot read failed, falling back", "error", err)
		}
	}

	matches, err := s.enrichStore.RecentEnriched(r.Context(), defaultLimit)
	if err != nil {
		slog.Error("API: enriched read failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []models.EnrichedMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket not enabled", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("API: websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(s.hub, conn)
	s.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("API: response encode failed", "error", err)
	}
}
