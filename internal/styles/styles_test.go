package styles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

func TestCandidateURLs(t *testing.T) {
	candidates := CandidateURLs("https://cdn.example.com/mfe/dash/main.js")
	require.Len(t, candidates, 2)
	assert.Equal(t, "https://cdn.example.com/mfe/dash/assets/main.css", candidates[0])
	assert.Equal(t, "https://cdn.example.com/mfe/dash/main.css", candidates[1])

	assert.Nil(t, CandidateURLs("://bad"))
	assert.Nil(t, CandidateURLs(""))
}

// styleServer serves CSS at the given paths and 404 elsewhere.
func styleServer(t *testing.T, paths map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, ok := paths[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "text/css")
			if r.Method != http.MethodHead {
				_, _ = w.Write([]byte(body))
			}
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_EnsureAssetsCandidateWins(t *testing.T) {
	srv := styleServer(t, map[string]string{
		"/mfe/dash/assets/main.css": ".dash{}",
		"/mfe/dash/main.css":        ".wrong{}",
	})

	m := NewManager(srv.Client(), logging.NewNop())
	require.NoError(t, m.Ensure(context.Background(), "dash", srv.URL+"/mfe/dash/main.js", ""))

	sheet, ok := m.Attached("dash")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/mfe/dash/assets/main.css", sheet.URL)
	assert.Equal(t, ".dash{}", string(sheet.Body))
}

func TestManager_EnsureFallsBackToSameDir(t *testing.T) {
	srv := styleServer(t, map[string]string{
		"/mfe/dash/main.css": ".dash{}",
	})

	m := NewManager(srv.Client(), logging.NewNop())
	require.NoError(t, m.Ensure(context.Background(), "dash", srv.URL+"/mfe/dash/main.js", ""))

	sheet, ok := m.Attached("dash")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/mfe/dash/main.css", sheet.URL)
}

func TestManager_EnsureNoStylesheetIsNotAnError(t *testing.T) {
	srv := styleServer(t, nil)

	m := NewManager(srv.Client(), logging.NewNop())
	require.NoError(t, m.Ensure(context.Background(), "dash", srv.URL+"/mfe/dash/main.js", ""))

	_, ok := m.Attached("dash")
	assert.False(t, ok)
}

func TestManager_EnsureExplicitStyleURL(t *testing.T) {
	srv := styleServer(t, map[string]string{
		"/custom/theme.css": ".custom{}",
	})

	m := NewManager(srv.Client(), logging.NewNop())
	require.NoError(t, m.Ensure(context.Background(), "dash", srv.URL+"/mfe/dash/main.js", srv.URL+"/custom/theme.css"))

	sheet, ok := m.Attached("dash")
	require.True(t, ok)
	assert.Equal(t, ".custom{}", string(sheet.Body))
}

func TestManager_EnsureIsIdempotentUntilRemoved(t *testing.T) {
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/mfe/dash/assets/main.css" {
			if r.Method == http.MethodGet {
				fetches++
			}
			_, _ = w.Write([]byte(".dash{}"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	m := NewManager(srv.Client(), logging.NewNop())
	entry := srv.URL + "/mfe/dash/main.js"

	require.NoError(t, m.Ensure(context.Background(), "dash", entry, ""))
	require.NoError(t, m.Ensure(context.Background(), "dash", entry, ""))
	assert.Equal(t, 1, fetches, "second Ensure must be a no-op while attached")

	m.Remove("dash")
	_, ok := m.Attached("dash")
	require.False(t, ok)

	require.NoError(t, m.Ensure(context.Background(), "dash", entry, ""))
	assert.Equal(t, 2, fetches, "after Remove, Ensure re-fetches")
}

func TestManager_RemoveUnknownIsNoOp(t *testing.T) {
	m := NewManager(nil, logging.NewNop())
	m.Remove("ghost")
	assert.Empty(t, m.AttachedIDs())
}
