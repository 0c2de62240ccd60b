// Package contentstore defines the versioned, path-addressed content store
// abstraction and its backends. Paths are slash-separated and relative to
// the store root.
package contentstore

import (
	"context"
	"time"
)

// Version describes one historical commit of a path.
type Version struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the interface for versioned content operations.
// Absent content is reported as apperr.ErrNotFound.
type Store interface {
	// Get returns the current content at path.
	Get(ctx context.Context, path string) (string, error)
	// Save writes content to path as a new version and returns the version id.
	Save(ctx context.Context, path, content, message string) (string, error)
	// Delete removes the file at path as a new version and returns the version id.
	Delete(ctx context.Context, path, message string) (string, error)
	// List returns every file path under the directory prefix.
	List(ctx context.Context, dir string) ([]string, error)
	// Exists reports whether a file currently exists at path.
	Exists(ctx context.Context, path string) (bool, error)
	// LatestVersion returns the most recent version id for path.
	LatestVersion(ctx context.Context, path string) (string, error)
	// History returns up to limit versions of path, newest first.
	History(ctx context.Context, path string, limit int) ([]Version, error)
	// GetAtVersion returns the content of path at a historical version.
	GetAtVersion(ctx context.Context, path, versionID string) (string, error)
}
