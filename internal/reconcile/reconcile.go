// Package reconcile keeps the metadata index consistent with the set of
// paths present in the content store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/catalog"
	"github.com/starford/atlas/internal/contentstore"
	"github.com/starford/atlas/internal/index"
)

// Result reports what a reconciliation pass did. Per-item failures are
// collected into Errors; a pass never aborts partway.
type Result struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors,omitempty"`
}

// Reconciler diffs content-store paths against index records and applies
// create/update/delete operations to make the index match the store.
type Reconciler struct {
	store   contentstore.Store
	idx     index.Index
	scanner *catalog.Scanner
	logger  *slog.Logger
}

// New creates a reconciler.
func New(store contentstore.Store, idx index.Index, scanner *catalog.Scanner, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, idx: idx, scanner: scanner, logger: logger}
}

// SyncAll performs a full reconciliation:
//
//	store − index → create a minimal record per path
//	index − store → delete the record
//	store ∩ index → touch the record's update timestamp
//
// The touch on intersecting paths is a conservative assume-changed policy;
// no content bytes are diffed.
func (r *Reconciler) SyncAll(ctx context.Context) Result {
	var res Result

	storePaths, err := r.scanner.ListPaths(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list content store: %v", err))
		return res
	}
	inStore := make(map[string]struct{}, len(storePaths))
	for _, p := range storePaths {
		inStore[p] = struct{}{}
	}

	indexed, err := r.idx.AllItemPaths()
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list index records: %v", err))
		return res
	}

	now := time.Now().UTC()

	for _, path := range storePaths {
		id, known := indexed[path]
		if !known {
			row, ok := minimalRow(path, now)
			if !ok {
				continue
			}
			if err := r.idx.UpsertItem(row); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("create %s: %v", path, err))
				continue
			}
			res.Created++
			r.logger.Debug("sync: created", slog.String("path", path))
			continue
		}
		if err := r.idx.TouchItem(id, now); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("update %s: %v", path, err))
			continue
		}
		res.Updated++
	}

	// Remove stale records, in stable order for reproducible error output.
	stale := make([]string, 0)
	for path := range indexed {
		if _, ok := inStore[path]; !ok {
			stale = append(stale, path)
		}
	}
	sort.Strings(stale)
	for _, path := range stale {
		if err := r.idx.DeleteItem(indexed[path]); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("delete %s: %v", path, err))
			continue
		}
		res.Deleted++
		r.logger.Debug("sync: removed stale", slog.String("path", path))
	}

	return res
}

// SyncPaths reconciles only the given paths, e.g. from a webhook diff.
// For each recognized path the store and the index are checked
// independently and the create/delete decision follows from the pair;
// paths present in both (or neither) are no-ops. This mode is O(paths)
// and is the preferred path for high-frequency change notifications.
func (r *Reconciler) SyncPaths(ctx context.Context, paths []string) Result {
	var res Result
	now := time.Now().UTC()

	for _, path := range paths {
		if !catalog.Recognized(path) {
			continue
		}

		inStore, err := r.store.Exists(ctx, path)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("check %s: %v", path, err))
			continue
		}

		rec, err := r.idx.GetItemByPath(path)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			res.Errors = append(res.Errors, fmt.Sprintf("lookup %s: %v", path, err))
			continue
		}
		inIndex := rec != nil

		switch {
		case inStore && !inIndex:
			row, ok := minimalRow(path, now)
			if !ok {
				continue
			}
			if err := r.idx.UpsertItem(row); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("create %s: %v", path, err))
				continue
			}
			res.Created++
		case !inStore && inIndex:
			if err := r.idx.DeleteItem(rec.ID); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("delete %s: %v", path, err))
				continue
			}
			res.Deleted++
		}
		// Both present or both absent: nothing to reconcile.
	}

	return res
}

// minimalRow builds the index record the reconciler creates when a path
// first appears. Name is the last path segment minus its extension; the
// descriptor-derived fields are filled in by the next catalog scan.
func minimalRow(path string, now time.Time) (index.ItemRow, bool) {
	scope, scopeID, itemType, ok := catalog.ClassifyPath(path)
	if !ok {
		return index.ItemRow{}, false
	}
	scopeIDStr := ""
	if scope != catalog.ScopeOrg {
		scopeIDStr = scopeID.String()
	}
	return index.ItemRow{
		ID:        catalog.ItemID(path),
		Type:      string(itemType),
		Name:      catalog.NameFromPath(path),
		Scope:     string(scope),
		ScopeID:   scopeIDStr,
		Path:      path,
		CreatedAt: now,
		UpdatedAt: now,
	}, true
}
