// Package server exposes the gateway's HTTP surface: health, status,
// character listing and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cortexhub/persona-gateway/internal/character"
	"github.com/cortexhub/persona-gateway/internal/config"
	"github.com/cortexhub/persona-gateway/internal/logging"
)

// Stats is the runtime state the server reports but does not own.
type Stats interface {
	SessionCount() int
	PendingReminders() int
	Platforms() []string
	ProviderNames() []string
}

type Server struct {
	cfg        *config.Config
	catalog    *character.Catalog
	stats      Stats
	httpServer *http.Server
	startTime  time.Time
	logger     *slog.Logger
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

type StatusResponse struct {
	Status           string   `json:"status"`
	Version          string   `json:"version"`
	Uptime           string   `json:"uptime"`
	ActiveSessions   int      `json:"active_sessions"`
	PendingReminders int      `json:"pending_reminders"`
	Platforms        []string `json:"platforms"`
	Providers        []string `json:"providers"`
	Timestamp        string   `json:"timestamp"`
}

// CharacterRequest is the create/edit payload. Pointer fields distinguish
// "not provided" from "set to empty" on edits.
type CharacterRequest struct {
	ID           string  `json:"id"`
	Name         *string `json:"name"`
	SystemPrompt *string `json:"system_prompt"`
	Description  *string `json:"description"`
	Greeting     *string `json:"greeting"`
	Farewell     *string `json:"farewell"`
	AvatarURL    *string `json:"avatar_url"`
}

type CharacterInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

const version = "1.0.0"

func New(cfg *config.Config, catalog *character.Catalog, stats Stats) *Server {
	s := &Server{
		cfg:       cfg,
		catalog:   catalog,
		stats:     stats,
		startTime: time.Now(),
		logger:    logging.WithComponent("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/v1/status", s.statusHandler)
	mux.HandleFunc("/api/v1/characters", s.charactersHandler)
	mux.HandleFunc("/api/v1/characters/", s.characterHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, HealthResponse{
		Status:    "healthy",
		Version:   version,
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, StatusResponse{
		Status:           "healthy",
		Version:          version,
		Uptime:           time.Since(s.startTime).String(),
		ActiveSessions:   s.stats.SessionCount(),
		PendingReminders: s.stats.PendingReminders(),
		Platforms:        s.stats.Platforms(),
		Providers:        s.stats.ProviderNames(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) charactersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		defaultCh := s.catalog.Default()
		list := []CharacterInfo{}
		for _, ch := range s.catalog.List() {
			list = append(list, CharacterInfo{
				ID:          ch.ID,
				Name:        ch.Name,
				Description: ch.Description,
				Default:     ch.ID == defaultCh.ID,
			})
		}
		writeJSON(w, list)
	case http.MethodPost:
		var req CharacterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		ch, err := s.catalog.Create(character.Character{
			ID:           req.ID,
			Name:         deref(req.Name),
			SystemPrompt: deref(req.SystemPrompt),
			Description:  deref(req.Description),
			Greeting:     deref(req.Greeting),
			Farewell:     deref(req.Farewell),
			AvatarURL:    deref(req.AvatarURL),
		})
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, ch)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// characterHandler serves /api/v1/characters/{id} and
// /api/v1/characters/{id}/default.
func (s *Server) characterHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/characters/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if action == "default" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.catalog.SetDefault(id); err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "default updated"})
		return
	}
	if action != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		ch, err := s.catalog.Get(id)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, ch)
	case http.MethodPut:
		var req CharacterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		ch, err := s.catalog.Edit(id, character.Update{
			Name:         req.Name,
			SystemPrompt: req.SystemPrompt,
			Description:  req.Description,
			Greeting:     req.Greeting,
			Farewell:     req.Farewell,
			AvatarURL:    req.AvatarURL,
		})
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, ch)
	case http.MethodDelete:
		if err := s.catalog.Delete(r.Context(), id); err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, character.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, character.ErrAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, character.ErrCannotDeleteDefault):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
