// Package styles loads and tracks per-module stylesheets.
//
// Given a module's code entry URL, candidate stylesheet URLs are derived
// by convention (a sibling "assets" subdirectory first, then the same
// directory), probed for existence, and the first hit is attached as a
// sheet tagged with the module id. Absence of any stylesheet at every
// candidate is not an error: the module simply ships no external styles.
//
// Ensure does not return until the stylesheet body has been fully read, so
// a caller sequencing activation can rely on styles being applied before
// the module renders.
package styles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

const maxSheetSize = 8 * 1024 * 1024 // 8MB

// Sheet is one attached stylesheet.
type Sheet struct {
	ModuleID   string
	URL        string
	Body       []byte
	AttachedAt time.Time
}

// Manager tracks attached sheets per module id. Ensure is idempotent:
// calling it again for a module whose sheet is still attached is a no-op
// until Remove has been called.
type Manager struct {
	mu       sync.Mutex
	client   *http.Client
	attached map[string]*Sheet
	logger   *logging.Logger
}

// NewManager creates a manager. client may be nil for a default with a 10s
// timeout.
func NewManager(client *http.Client, logger *logging.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Manager{
		client:   client,
		attached: make(map[string]*Sheet),
		logger:   logger.Named("styles"),
	}
}

// CandidateURLs derives the conventional stylesheet locations for a code
// entry URL: "<dir>/assets/<base>.css" first, then "<dir>/<base>.css".
func CandidateURLs(entryURL string) []string {
	u, err := url.Parse(entryURL)
	if err != nil || u.Path == "" {
		return nil
	}

	dir, file := path.Split(u.Path)
	base := strings.TrimSuffix(file, path.Ext(file))
	if base == "" {
		return nil
	}

	build := func(p string) string {
		copied := *u
		copied.Path = p
		return copied.String()
	}
	return []string{
		build(path.Join(dir, "assets", base+".css")),
		build(path.Join(dir, base+".css")),
	}
}

// Ensure attaches the stylesheet for moduleID if one exists and none is
// currently attached. styleURL, when non-empty, overrides discovery.
// Missing stylesheets are not errors; probe failures are logged and
// swallowed.
func (m *Manager) Ensure(ctx context.Context, moduleID, entryURL, styleURL string) error {
	m.mu.Lock()
	if _, ok := m.attached[moduleID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	candidates := CandidateURLs(entryURL)
	if styleURL != "" {
		candidates = []string{styleURL}
	}

	for _, candidate := range candidates {
		body, ok := m.fetch(ctx, candidate)
		if !ok {
			continue
		}
		sheet := &Sheet{
			ModuleID:   moduleID,
			URL:        candidate,
			Body:       body,
			AttachedAt: time.Now(),
		}
		m.mu.Lock()
		// A concurrent Ensure may have won; first attach stands.
		if _, ok := m.attached[moduleID]; !ok {
			m.attached[moduleID] = sheet
		}
		m.mu.Unlock()

		m.logger.Debug(ctx, "stylesheet attached",
			zap.String("module", moduleID), zap.String("url", candidate))
		return nil
	}

	m.logger.Debug(ctx, "no stylesheet found for module",
		zap.String("module", moduleID), zap.Strings("candidates", candidates))
	return nil
}

// fetch probes candidate with a lightweight HEAD request, then downloads
// the body. Servers that reject HEAD fall through to the GET.
func (m *Manager) fetch(ctx context.Context, candidate string) ([]byte, bool) {
	head, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
	if err != nil {
		return nil, false
	}
	if resp, err := m.client.Do(head); err == nil {
		status := resp.StatusCode
		_ = resp.Body.Close()
		if status == http.StatusNotFound {
			return nil, false
		}
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil, false
	}
	resp, err := m.client.Do(get)
	if err != nil {
		m.logger.Debug(ctx, "stylesheet probe failed",
			zap.String("url", candidate), zap.Error(err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSheetSize))
	if err != nil {
		m.logger.Debug(ctx, "stylesheet read failed",
			zap.String("url", candidate), zap.Error(err))
		return nil, false
	}
	return body, true
}

// Remove detaches the module's stylesheet, if any. Safe to call when none
// is attached.
func (m *Manager) Remove(moduleID string) {
	m.mu.Lock()
	delete(m.attached, moduleID)
	m.mu.Unlock()
}

// Attached returns the sheet currently attached for moduleID.
func (m *Manager) Attached(moduleID string) (*Sheet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.attached[moduleID]
	return sheet, ok
}

// AttachedIDs returns the module ids with attached sheets.
func (m *Manager) AttachedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.attached))
	for id := range m.attached {
		ids = append(ids, id)
	}
	return ids
}

// String implements fmt.Stringer for debug logging.
func (s *Sheet) String() string {
	return fmt.Sprintf("sheet(%s %s %dB)", s.ModuleID, s.URL, len(s.Body))
}
