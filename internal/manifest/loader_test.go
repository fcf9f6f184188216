package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

const sampleJSON = `{
  "version": "3",
  "mfes": [
    {
      "id": "dash",
      "name": "Dashboard",
      "entry": "https://cdn.example.com/mfe/dash/main.js",
      "route": "/dash",
      "menu": {"label": "Dashboard", "order": 1}
    }
  ]
}`

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0600))

	loader := NewLoader(time.Second, false)
	m, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "3", m.Version)
	require.Len(t, m.MFEs, 1)
	assert.Equal(t, "dash", m.MFEs[0].ID)
}

func TestLoader_LoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleJSON))
	}))
	t.Cleanup(srv.Close)

	loader := NewLoader(time.Second, false)
	m, err := loader.Load(context.Background(), srv.URL+"/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "dash", m.MFEs[0].ID)
}

func TestLoader_LoadErrors(t *testing.T) {
	loader := NewLoader(time.Second, false)

	t.Run("unreachable file", func(t *testing.T) {
		_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
		_, err := loader.Load(context.Background(), path)
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
	})

	t.Run("invalid manifest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":"1","mfes":[]}`), 0600))
		_, err := loader.Load(context.Background(), path)
		require.ErrorIs(t, err, ErrInvalidManifest)
	})

	t.Run("http 500", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)
		_, err := loader.Load(context.Background(), srv.URL)
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
	})
}

func TestStore_Replace(t *testing.T) {
	first := &Manifest{Version: "1", MFEs: []Registration{{ID: "a", Entry: "e", Route: "/a"}}}
	store := NewStore(first)
	assert.Equal(t, "1", store.Current().Version)

	second := &Manifest{Version: "2", MFEs: []Registration{{ID: "b", Entry: "e", Route: "/b"}}}
	store.Replace(second)
	assert.Equal(t, "2", store.Current().Version)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0600))

	loader := NewLoader(time.Second, false)
	m, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	store := NewStore(m)

	w, err := NewWatcher(path, loader, store, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	updated := `{"version":"4","mfes":[{"id":"settings","name":"Settings","entry":"e","route":"/settings"}]}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0600))

	require.Eventually(t, func() bool {
		return store.Current().Version == "4"
	}, 3*time.Second, 50*time.Millisecond, "manifest should reload wholesale")
	_, ok := store.Current().Get("settings")
	assert.True(t, ok)
}

func TestWatcher_KeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0600))

	loader := NewLoader(time.Second, false)
	m, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	store := NewStore(m)

	logger := logging.NewTestLogger()
	w, err := NewWatcher(path, loader, store, logger.Logger)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	require.Eventually(t, func() bool {
		return len(logger.FilterMessage("manifest reload failed, keeping previous registry").All()) > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "3", store.Current().Version, "previous manifest stays active")
}
