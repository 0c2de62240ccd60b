package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/atlas/internal/apperr"
)

// DefaultTTL bounds how long a catalog snapshot is served before a rescan.
const DefaultTTL = 300 * time.Second

const defaultPageSize = 20

// snapshot is an immutable scan result. The cache replaces it wholesale
// (pointer swap), never mutates it in place, so concurrent readers always
// see either the old or the new complete snapshot.
type snapshot struct {
	items     []Item
	refreshed time.Time
}

// Cache owns the TTL-bounded catalog snapshot and serves visibility-scoped
// list/get/count queries over it.
type Cache struct {
	scanner *Scanner
	ttl     time.Duration
	logger  *slog.Logger

	snap atomic.Pointer[snapshot]

	// refreshMu makes concurrent refreshes single-flight; readers are
	// never blocked by it.
	refreshMu sync.Mutex
}

// NewCache creates a cache over the scanner. A non-positive ttl falls back
// to DefaultTTL.
func NewCache(scanner *Scanner, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{scanner: scanner, ttl: ttl, logger: logger}
}

// EnsureFresh rescans if the snapshot is older than the TTL (or absent).
func (c *Cache) EnsureFresh(ctx context.Context) error {
	if snap := c.snap.Load(); snap != nil && time.Since(snap.refreshed) < c.ttl {
		return nil
	}
	return c.RefreshNow(ctx)
}

// RefreshNow unconditionally rescans and swaps in the new snapshot.
// Used after writes and on external change notifications.
func (c *Cache) RefreshNow(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	items, err := c.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	c.snap.Store(&snapshot{items: items, refreshed: time.Now()})
	c.logger.Debug("catalog: cache refreshed", slog.Int("items", len(items)))
	return nil
}

// Items returns the current full snapshot, refreshing it first if stale.
func (c *Cache) Items(ctx context.Context) ([]Item, error) {
	if err := c.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	return c.snap.Load().items, nil
}

// ListFilter narrows a catalog listing.
type ListFilter struct {
	Type   ItemType // empty matches all types
	Query  string   // case-insensitive substring over name/description/tags
	Offset int
	Limit  int // non-positive falls back to defaultPageSize
}

// List returns one page of items visible to the viewer plus the total
// count after filtering and before pagination. Results sort by name
// (case-insensitive), ties broken by path, for deterministic pagination.
func (c *Cache) List(ctx context.Context, viewer *Viewer, f ListFilter) ([]Item, int, error) {
	all, err := c.Items(ctx)
	if err != nil {
		return nil, 0, err
	}

	var filtered []Item
	for _, item := range all {
		if !item.VisibleTo(viewer) {
			continue
		}
		if f.Type != "" && item.Type != f.Type {
			continue
		}
		if !item.MatchesQuery(f.Query) {
			continue
		}
		filtered = append(filtered, item)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := strings.ToLower(filtered[i].Name), strings.ToLower(filtered[j].Name)
		if a != b {
			return a < b
		}
		return filtered[i].Path < filtered[j].Path
	})

	total := len(filtered)
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Item{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

// Get looks up an item by id and re-applies the visibility check.
// Invisible items report apperr.ErrNotFound, never a forbidden error,
// so their existence is not leaked.
func (c *Cache) Get(ctx context.Context, id string, viewer *Viewer) (*Item, error) {
	all, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range all {
		if item.ID == id {
			if !item.VisibleTo(viewer) {
				return nil, apperr.ErrNotFound
			}
			found := item
			return &found, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// CountByType tallies visible items per type.
func (c *Cache) CountByType(ctx context.Context, viewer *Viewer) (map[ItemType]int, error) {
	all, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[ItemType]int{TypeSkill: 0, TypeMCP: 0, TypeTool: 0}
	for _, item := range all {
		if item.VisibleTo(viewer) {
			counts[item.Type]++
		}
	}
	return counts, nil
}
