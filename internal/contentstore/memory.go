package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/atlas/internal/apperr"
)

// revision is one recorded change to a path in the in-memory store.
type revision struct {
	version Version
	content string
	deleted bool
}

// Memory implements Store with full version history kept in memory.
// It is the test double for the git backend and keeps the same semantics:
// every Save/Delete appends a new version, rollbacks replay old content.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]revision
	seq   int
}

// NewMemory creates an empty in-memory content store.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]revision)}
}

// nextVersion synthesizes a deterministic-looking hex version id.
func (m *Memory) nextVersion(path string) string {
	m.seq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s@%d", path, m.seq)))
	return hex.EncodeToString(sum[:])[:40]
}

func (m *Memory) head(path string) (revision, bool) {
	revs := m.files[path]
	if len(revs) == 0 {
		return revision{}, false
	}
	return revs[len(revs)-1], true
}

// Get returns the current content at path.
func (m *Memory) Get(_ context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rev, ok := m.head(path)
	if !ok || rev.deleted {
		return "", apperr.ErrNotFound
	}
	return rev.content, nil
}

// Save appends a new version of path.
func (m *Memory) Save(_ context.Context, path, content, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextVersion(path)
	m.files[path] = append(m.files[path], revision{
		version: Version{ID: id, Message: message, Author: "atlas", Timestamp: time.Now().UTC()},
		content: content,
	})
	return id, nil
}

// Delete appends a deletion version of path.
func (m *Memory) Delete(_ context.Context, path, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rev, ok := m.head(path)
	if !ok || rev.deleted {
		return "", apperr.ErrNotFound
	}
	id := m.nextVersion(path)
	m.files[path] = append(m.files[path], revision{
		version: Version{ID: id, Message: message, Author: "atlas", Timestamp: time.Now().UTC()},
		deleted: true,
	})
	return id, nil
}

// List returns live file paths under the directory prefix, sorted for
// deterministic listing order.
func (m *Memory) List(_ context.Context, dir string) ([]string, error) {
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for path := range m.files {
		rev, _ := m.head(path)
		if rev.deleted {
			continue
		}
		if dir == "" || strings.HasPrefix(path, dir) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Exists reports whether a live file is present at path.
func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rev, ok := m.head(path)
	return ok && !rev.deleted, nil
}

// LatestVersion returns the newest version id for path.
func (m *Memory) LatestVersion(_ context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rev, ok := m.head(path)
	if !ok {
		return "", apperr.ErrNotFound
	}
	return rev.version.ID, nil
}

// History returns up to limit versions of path, newest first.
func (m *Memory) History(_ context.Context, path string, limit int) ([]Version, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs := m.files[path]
	var out []Version
	for i := len(revs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, revs[i].version)
	}
	return out, nil
}

// GetAtVersion returns the content of path at a historical version.
func (m *Memory) GetAtVersion(_ context.Context, path, versionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rev := range m.files[path] {
		if rev.version.ID == versionID {
			if rev.deleted {
				return "", apperr.ErrNotFound
			}
			return rev.content, nil
		}
	}
	return "", apperr.ErrNotFound
}

var _ Store = (*Memory)(nil)
