package whitelist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directoryServer(t *testing.T, names map[string]string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"names": names})
	}))
}

func TestCache_RefreshAndMembership(t *testing.T) {
	srv := directoryServer(t, map[string]string{"alice": "pk-a", "bob": "pk-b"}, http.StatusOK)
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "whitelist.json")
	c, err := New(srv.URL, file)
	require.NoError(t, err)

	assert.False(t, c.IsMember("pk-a"))

	updated, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, updated)

	assert.True(t, c.IsMember("pk-a"))
	assert.True(t, c.IsMember("pk-b"))
	assert.False(t, c.IsMember("pk-c"))

	// Unchanged snapshot reports unchanged.
	updated, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, updated)

	// The cache file holds the snapshot for the next restart.
	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	var list []string
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.ElementsMatch(t, []string{"pk-a", "pk-b"}, list)
}

func TestCache_FailedFetchKeepsLastKnownGood(t *testing.T) {
	srv := directoryServer(t, map[string]string{"alice": "pk-a", "bob": "pk-b"}, http.StatusOK)
	file := filepath.Join(t.TempDir(), "whitelist.json")
	c, err := New(srv.URL, file)
	require.NoError(t, err)

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	srv.Close()

	updated, err := c.Refresh(context.Background())
	assert.Error(t, err)
	assert.False(t, updated)

	assert.True(t, c.IsMember("pk-a"))
	assert.True(t, c.IsMember("pk-b"))
	assert.False(t, c.IsMember("pk-c"))
	assert.Equal(t, 2, c.Len())
}

func TestCache_BadStatusKeepsSnapshot(t *testing.T) {
	srv := directoryServer(t, nil, http.StatusInternalServerError)
	defer srv.Close()

	c, err := New(srv.URL, filepath.Join(t.TempDir(), "whitelist.json"))
	require.NoError(t, err)

	_, err = c.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCache_LoadsExistingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "whitelist.json")
	require.NoError(t, os.WriteFile(file, []byte(`["pk-a"]`), 0o600))

	c, err := New("http://unused.invalid", file)
	require.NoError(t, err)
	assert.True(t, c.IsMember("pk-a"))
	assert.False(t, c.IsMember("pk-b"))
}

func TestCache_CorruptFileErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "whitelist.json")
	require.NoError(t, os.WriteFile(file, []byte(`{not json`), 0o600))

	_, err := New("http://unused.invalid", file)
	assert.Error(t, err)
}
