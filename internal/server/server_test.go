package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cortexhub/persona-gateway/internal/character"
	"github.com/cortexhub/persona-gateway/internal/config"
	"github.com/cortexhub/persona-gateway/internal/prefs"
)

type fakeStats struct{}

func (fakeStats) SessionCount() int        { return 2 }
func (fakeStats) PendingReminders() int    { return 1 }
func (fakeStats) Platforms() []string      { return []string{"telegram"} }
func (fakeStats) ProviderNames() []string  { return []string{"openai"} }

func testServer(t *testing.T, port int) *Server {
	t.Helper()
	store, err := prefs.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	catalog, err := character.NewCatalog(t.TempDir(), "", store)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Server: config.ServerConfig{Host: "localhost", Port: port}}
	return New(cfg, catalog, fakeStats{})
}

func TestNew(t *testing.T) {
	if testServer(t, 18900) == nil {
		t.Fatal("Expected non-nil server")
	}
}

func TestHealthHandler(t *testing.T) {
	srv := testServer(t, 18900)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.healthHandler(w, req)
	resp := w.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	var hr HealthResponse
	json.NewDecoder(resp.Body).Decode(&hr)
	if hr.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", hr.Status)
	}
}

func TestStatusHandler(t *testing.T) {
	srv := testServer(t, 18900)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.statusHandler(w, req)
	var sr StatusResponse
	json.NewDecoder(w.Result().Body).Decode(&sr)
	if sr.ActiveSessions != 2 || sr.PendingReminders != 1 {
		t.Errorf("unexpected status payload: %+v", sr)
	}
}

func TestCharactersHandler(t *testing.T) {
	srv := testServer(t, 18900)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/characters", nil)
	w := httptest.NewRecorder()
	srv.charactersHandler(w, req)
	var list []CharacterInfo
	json.NewDecoder(w.Result().Body).Decode(&list)
	if len(list) != 1 || !list[0].Default || list[0].Name != "Brainy" {
		t.Errorf("unexpected characters payload: %+v", list)
	}
}

func TestCharacterCreateAndDelete(t *testing.T) {
	srv := testServer(t, 18900)

	body := strings.NewReader(`{"id":"pirate","name":"Captain Byte","system_prompt":"You are a pirate."}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/characters", body)
	w := httptest.NewRecorder()
	srv.charactersHandler(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("create failed with %d: %s", w.Result().StatusCode, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/characters/pirate", nil)
	w = httptest.NewRecorder()
	srv.characterHandler(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("delete failed with %d", w.Result().StatusCode)
	}

	if _, err := srv.catalog.Get("pirate"); err == nil {
		t.Error("character should be gone after delete")
	}
}

func TestDeleteDefaultCharacterForbidden(t *testing.T) {
	srv := testServer(t, 18900)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/characters/default", nil)
	w := httptest.NewRecorder()
	srv.characterHandler(w, req)
	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Result().StatusCode)
	}
}

func TestCharacterNotFound(t *testing.T) {
	srv := testServer(t, 18900)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/characters/ghost", nil)
	w := httptest.NewRecorder()
	srv.characterHandler(w, req)
	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Result().StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(t, 18900)
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	srv.healthHandler(w, req)
	if w.Result().StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Result().StatusCode)
	}
}

func TestShutdown(t *testing.T) {
	srv := testServer(t, 18901)
	go srv.Start()
	time.Sleep(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
