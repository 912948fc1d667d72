package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// directoryResponse is the remote directory payload: a name-to-pubkey map.
type directoryResponse struct {
	Names map[string]string `json:"names"`
}

type snapshot struct {
	set  map[string]struct{}
	list []string // sorted, for change detection and persistence
}

// Cache is a locally cached allow-list of caller identities.
//
// Membership checks read an immutable in-memory snapshot and never touch the
// network or disk. Refresh fetches the remote directory and, only when the
// fetched set differs from the cached one, publishes a new snapshot and
// rewrites the cache file. A failed fetch keeps the last-known-good snapshot:
// the cache is fail-open-to-stale, never fail-closed-to-empty, and an identity
// absent from every successfully fetched snapshot is never a member.
type Cache struct {
	url    string
	file   string
	client *http.Client
	snap   atomic.Value // snapshot
}

// New creates a Cache for the given directory URL and cache file. The file is
// loaded immediately so a restart starts from the last-known-good snapshot; a
// missing file just means an empty allow-list until the first refresh.
func New(url, file string) (*Cache, error) {
	c := &Cache{
		url:  url,
		file: file,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	list, err := readCacheFile(file)
	if err != nil {
		return nil, err
	}
	c.snap.Store(newSnapshot(list))
	return c, nil
}

func newSnapshot(list []string) snapshot {
	sort.Strings(list)
	set := make(map[string]struct{}, len(list))
	for _, pk := range list {
		set[pk] = struct{}{}
	}
	return snapshot{set: set, list: list}
}

func readCacheFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read whitelist cache: %w", err)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse whitelist cache: %w", err)
	}
	return list, nil
}

// IsMember reports whether the identity is on the allow-list. It is
// synchronous, lock-free for readers, and never performs I/O.
func (c *Cache) IsMember(pubkey string) bool {
	snap := c.snap.Load().(snapshot)
	_, ok := snap.set[pubkey]
	return ok
}

// Len returns the size of the current snapshot.
func (c *Cache) Len() int {
	return len(c.snap.Load().(snapshot).list)
}

// Refresh fetches the current directory snapshot. When it differs from the
// cached one the snapshot is replaced atomically and the cache file rewritten;
// Refresh then reports updated=true. Fetch or decode failures leave the cached
// snapshot untouched.
func (c *Cache) Refresh(ctx context.Context) (updated bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("build whitelist request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch whitelist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("fetch whitelist: unexpected status %d", resp.StatusCode)
	}

	var dir directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return false, fmt.Errorf("decode whitelist: %w", err)
	}

	list := make([]string, 0, len(dir.Names))
	for _, pk := range dir.Names {
		list = append(list, pk)
	}
	next := newSnapshot(list)

	if equal(c.snap.Load().(snapshot).list, next.list) {
		return false, nil
	}

	if err := writeCacheFile(c.file, next.list); err != nil {
		return false, err
	}
	c.snap.Store(next)
	return true, nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeCacheFile writes via a temp file and rename so readers of the cache
// file never observe a partial write.
func writeCacheFile(path string, list []string) error {
	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create whitelist cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".whitelist-*")
	if err != nil {
		return fmt.Errorf("stage whitelist cache: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write whitelist cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close whitelist cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish whitelist cache: %w", err)
	}
	return nil
}

// Run refreshes the cache on the given interval until the context is
// canceled. Refresh failures are logged and the loop keeps going.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		updated, err := c.Refresh(ctx)
		switch {
		case err != nil:
			logEvent("error", "whitelist_refresh_failed", map[string]any{"error": err.Error()})
		case updated:
			logEvent("info", "whitelist_updated", map[string]any{"size": c.Len()})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func logEvent(level, event string, fields map[string]any) {
	entry := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"component": "whitelist",
		"event":     event,
	}
	for k, v := range fields {
		entry[k] = v
	}
	if b, err := json.Marshal(entry); err == nil {
		os.Stdout.Write(append(b, '\n'))
	}
}
