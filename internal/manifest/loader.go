package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Errors for manifest loading and validation. A LoadError at startup is
// fatal to the shell; the daemon surfaces it and exits rather than serving
// an empty registry.
var (
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrAmbiguousRoutes = errors.New("ambiguous route prefixes")
)

// LoadError wraps a failure to fetch or parse the manifest.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load manifest from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

const maxManifestSize = 4 * 1024 * 1024 // 4MB

// Loader fetches manifests from a file path or http(s) URL.
type Loader struct {
	client       *http.Client
	strictRoutes bool
}

// NewLoader creates a loader. fetchTimeout bounds HTTP fetches.
func NewLoader(fetchTimeout time.Duration, strictRoutes bool) *Loader {
	return &Loader{
		client:       &http.Client{Timeout: fetchTimeout},
		strictRoutes: strictRoutes,
	}
}

// Load fetches, parses, and validates the manifest at source.
func (l *Loader) Load(ctx context.Context, source string) (*Manifest, error) {
	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	if err := m.Validate(l.strictRoutes); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	return &m, nil
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return l.fetchHTTP(ctx, source)
	}
	return os.ReadFile(strings.TrimPrefix(source, "file://"))
}

func (l *Loader) fetchHTTP(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
}

// Store holds the currently active manifest and supports atomic wholesale
// replacement on reload. Readers always observe a complete manifest, never
// a partially applied one.
type Store struct {
	mu      sync.RWMutex
	current *Manifest
}

// NewStore creates a store holding m.
func NewStore(m *Manifest) *Store {
	return &Store{current: m}
}

// Current returns the active manifest.
func (s *Store) Current() *Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace swaps in a new manifest wholesale.
func (s *Store) Replace(m *Manifest) {
	s.mu.Lock()
	s.current = m
	s.mu.Unlock()
}
