// Package tokenstore keeps the signed-in session token between CLI runs and
// hands it to the API client. Tokens are stored per role under
// "<role>_token", so several portals can share one store.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no token is stored under a key.
var ErrNotFound = errors.New("tokenstore: token not found")

// Store persists bearer tokens.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, token string) error
	Delete(ctx context.Context, key string) error
}

// Key returns the storage key for a role's token.
func Key(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "pharmacy"
	}
	return role + "_token"
}

// ---- Memory ----

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[key]
	if !ok {
		return "", ErrNotFound
	}
	return tok, nil
}

func (m *Memory) Set(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = token
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}

// ---- File ----

// File stores tokens as a JSON object in a single file readable only by
// the owner.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a file-backed store. The file is created on first Set.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	tokens := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return tokens, nil
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", f.path, err)
	}
	return tokens, nil
}

func (f *File) write(tokens map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens, err := f.read()
	if err != nil {
		return "", err
	}
	tok, ok := tokens[key]
	if !ok || tok == "" {
		return "", ErrNotFound
	}
	return tok, nil
}

func (f *File) Set(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens, err := f.read()
	if err != nil {
		return err
	}
	tokens[key] = token
	return f.write(tokens)
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := tokens[key]; !ok {
		return nil
	}
	delete(tokens, key)
	return f.write(tokens)
}

// ---- Token source ----

// Source adapts a Store to the API client's TokenSource for one role.
type Source struct {
	store  Store
	key    string
	logger zerolog.Logger
}

// NewSource creates a TokenSource reading the role's token from store.
func NewSource(store Store, role string, logger zerolog.Logger) *Source {
	return &Source{store: store, key: Key(role), logger: logger}
}

// Token returns the stored token, or "" when none is stored. Store failures
// are returned so the client can log them and continue unauthenticated.
func (s *Source) Token(ctx context.Context) (string, error) {
	tok, err := s.store.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug().Str("key", s.key).Msg("no stored token")
		return "", nil
	}
	return tok, err
}
