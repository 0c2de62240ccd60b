package contentstore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starford/atlas/internal/apperr"
)

// Git implements Store backed by a local git working tree, shelling out to
// the git binary. Every Save/Delete produces one commit, so the version id
// is the commit SHA.
type Git struct {
	root   string // absolute path to the working tree
	logger *slog.Logger

	// mu serializes mutating operations: git index updates are not safe to
	// run concurrently within one process.
	mu sync.Mutex
}

// NewGit opens (or initializes) a git repository rooted at the given
// directory. The directory must already exist.
func NewGit(root string, logger *slog.Logger) (*Git, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("contentstore: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("contentstore: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("contentstore: root is not a directory: %s", abs)
	}
	g := &Git{root: abs, logger: logger}
	if _, err := os.Stat(filepath.Join(abs, ".git")); os.IsNotExist(err) {
		if _, runErr := g.run(context.Background(), "init", "--quiet"); runErr != nil {
			return nil, fmt.Errorf("contentstore: init repository: %w", runErr)
		}
		logger.Info("contentstore: initialized repository", slog.String("root", abs))
	}
	return g, nil
}

// run executes a git command in the working tree and returns trimmed output.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=atlas", "GIT_AUTHOR_EMAIL=atlas@localhost",
		"GIT_COMMITTER_NAME=atlas", "GIT_COMMITTER_EMAIL=atlas@localhost",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("contentstore: git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// safePath resolves a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (g *Git) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("contentstore: empty path")
	}
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("contentstore: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(g.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("contentstore: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, g.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("contentstore: path escapes store root: %s", rel)
	}
	return abs, nil
}

// Get returns the current content of a file.
func (g *Git) Get(ctx context.Context, path string) (string, error) {
	abs, err := g.safePath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.ErrNotFound
		}
		return "", fmt.Errorf("contentstore: read %s: %w", path, err)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return string(data), nil
}

// Save atomically writes content (tmp file, fsync, rename) and commits it.
// Saving identical content is a no-op that returns the current version.
func (g *Git) Save(ctx context.Context, path, content, message string) (string, error) {
	abs, err := g.safePath(path)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := writeAtomic(abs, []byte(content)); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "add", "--", filepath.ToSlash(path)); err != nil {
		return "", err
	}
	staged, err := g.run(ctx, "status", "--porcelain", "--", filepath.ToSlash(path))
	if err != nil {
		return "", err
	}
	if staged == "" {
		// Content unchanged; the existing commit is still the latest version.
		return g.latestLocked(ctx, path)
	}
	if _, err := g.run(ctx, "commit", "--quiet", "-m", message, "--", filepath.ToSlash(path)); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

// Delete removes a file and commits the removal.
func (g *Git) Delete(ctx context.Context, path, message string) (string, error) {
	abs, err := g.safePath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		return "", apperr.ErrNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := g.run(ctx, "rm", "--quiet", "-f", "--", filepath.ToSlash(path)); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "commit", "--quiet", "-m", message, "--", filepath.ToSlash(path)); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

// List walks dir (relative to root) and returns every file path, using
// forward slashes. The .git directory is skipped. A missing directory
// yields an empty list, not an error.
func (g *Git) List(ctx context.Context, dir string) ([]string, error) {
	base := g.root
	if dir != "" {
		abs, err := g.safePath(strings.TrimSuffix(dir, "/"))
		if err != nil {
			return nil, err
		}
		base = abs
	}
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil
	}
	var out []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(g.root, p)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("contentstore: list %s: %w", dir, err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return out, nil
}

// Exists reports whether a file currently exists at path.
func (g *Git) Exists(_ context.Context, path string) (bool, error) {
	abs, err := g.safePath(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("contentstore: stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// LatestVersion returns the most recent commit SHA touching path.
func (g *Git) LatestVersion(ctx context.Context, path string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latestLocked(ctx, path)
}

func (g *Git) latestLocked(ctx context.Context, path string) (string, error) {
	out, err := g.run(ctx, "log", "-1", "--format=%H", "--", filepath.ToSlash(path))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", apperr.ErrNotFound
	}
	return out, nil
}

// historyFormat uses unit separators so commit subjects may contain anything
// short of control characters.
const historyFormat = "%H%x1f%s%x1f%an%x1f%aI"

// History returns up to limit commits touching path, newest first.
func (g *Git) History(ctx context.Context, path string, limit int) ([]Version, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := g.run(ctx, "log", fmt.Sprintf("-%d", limit), "--format="+historyFormat, "--", filepath.ToSlash(path))
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var versions []Version
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "\x1f", 4)
		if len(parts) != 4 {
			continue
		}
		ts, parseErr := time.Parse(time.RFC3339, parts[3])
		if parseErr != nil {
			g.logger.Warn("contentstore: bad commit timestamp",
				slog.String("version", parts[0]), slog.String("error", parseErr.Error()))
			continue
		}
		versions = append(versions, Version{
			ID:        parts[0],
			Message:   parts[1],
			Author:    parts[2],
			Timestamp: ts,
		})
	}
	return versions, nil
}

// GetAtVersion returns the content of path as of a historical commit.
// Output is taken verbatim so byte-identical replay on rollback holds.
func (g *Git) GetAtVersion(ctx context.Context, path, versionID string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "show", versionID+":"+filepath.ToSlash(path))
	cmd.Dir = g.root
	out, err := cmd.Output()
	if err != nil {
		// git show fails both for unknown commits and for paths absent at
		// that commit; either way the version is not found.
		return "", apperr.ErrNotFound
	}
	return string(out), nil
}

// writeAtomic writes content via tmp file, fsync, and rename.
func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("contentstore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".atlas-tmp-*")
	if err != nil {
		return fmt.Errorf("contentstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("contentstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("contentstore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("contentstore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("contentstore: rename: %w", err)
	}
	success = true
	return nil
}

// Root returns the absolute path of the working tree (used by the watcher).
func (g *Git) Root() string {
	return g.root
}

var _ Store = (*Git)(nil)
