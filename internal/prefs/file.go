package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cortexhub/persona-gateway/internal/logging"
)

// FileStore keeps each namespace as one JSON object file under a directory.
// Writes go through an in-memory cache and are flushed on every mutation.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	cache  map[string]map[string]string
	logger *slog.Logger
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preferences dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		cache:  make(map[string]map[string]string),
		logger: logging.WithComponent("prefs"),
	}, nil
}

func (s *FileStore) load(namespace string) (map[string]string, error) {
	if m, ok := s.cache[namespace]; ok {
		return m, nil
	}
	m := make(map[string]string)
	data, err := os.ReadFile(s.path(namespace))
	if err == nil {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("corrupt preferences file %s: %w", s.path(namespace), err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	s.cache[namespace] = m
	return m, nil
}

func (s *FileStore) flush(namespace string, m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(namespace), data, 0o644)
}

func (s *FileStore) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

func (s *FileStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(namespace)
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(namespace)
	if err != nil {
		return err
	}
	m[key] = value
	return s.flush(namespace, m)
}

func (s *FileStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(namespace)
	if err != nil {
		return err
	}
	delete(m, key)
	return s.flush(namespace, m)
}

func (s *FileStore) All(_ context.Context, namespace string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(namespace)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}
