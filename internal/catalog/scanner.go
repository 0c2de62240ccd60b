package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/contentstore"
)

// Scanner walks the content store and classifies every discovered item by
// its path-derived scope. Listing failures against one scope root degrade
// to zero items in that root; they never abort the scan.
type Scanner struct {
	store  contentstore.Store
	logger *slog.Logger
}

// NewScanner creates a scanner over the given content store.
func NewScanner(store contentstore.Store, logger *slog.Logger) *Scanner {
	return &Scanner{store: store, logger: logger}
}

// Scan discovers every catalog item across the org, team, and user scope
// roots. The result is ordered deterministically by item path.
func (s *Scanner) Scan(ctx context.Context) ([]Item, error) {
	var items []Item

	// Bare type prefixes at the repository root are org-scoped, same as
	// paths under org/.
	items = append(items, s.scanScope(ctx, "", ScopeOrg, uuid.Nil)...)
	items = append(items, s.scanScope(ctx, "org", ScopeOrg, uuid.Nil)...)

	for _, id := range s.scopeOwners(ctx, "teams/") {
		items = append(items, s.scanScope(ctx, "teams/"+id.String(), ScopeTeam, id)...)
	}
	for _, id := range s.scopeOwners(ctx, "users/") {
		items = append(items, s.scanScope(ctx, "users/"+id.String(), ScopeUser, id)...)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

// ListPaths returns every content-store path under a recognized catalog
// prefix. The reconciler reuses this listing without the per-item parsing.
func (s *Scanner) ListPaths(ctx context.Context) ([]string, error) {
	paths, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		if Recognized(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// scopeOwners lists a scope root ("teams/" or "users/") and parses the
// second path segment as an owner id. Malformed ids are skipped.
func (s *Scanner) scopeOwners(ctx context.Context, root string) []uuid.UUID {
	paths, err := s.store.List(ctx, root)
	if err != nil {
		s.logger.Warn("scan: list scope root failed",
			slog.String("root", root), slog.String("error", err.Error()))
		return nil
	}
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, p := range paths {
		parts := strings.Split(p, "/")
		if len(parts) < 2 {
			continue
		}
		id, parseErr := uuid.Parse(parts[1])
		if parseErr != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// scanScope loads all items under one scope root, one type directory at a
// time. Item directories are the two path segments below the type dir.
func (s *Scanner) scanScope(ctx context.Context, base string, scope Scope, scopeID uuid.UUID) []Item {
	var items []Item
	for _, dir := range []string{"skills", "mcps", "tools"} {
		itemType := typeDirs[dir]
		prefix := dir + "/"
		if base != "" {
			prefix = base + "/" + prefix
		}
		paths, err := s.store.List(ctx, prefix)
		if err != nil {
			s.logger.Warn("scan: list type dir failed",
				slog.String("dir", prefix), slog.String("error", err.Error()))
			continue
		}

		itemDirs := make(map[string]struct{})
		for _, p := range paths {
			parts := strings.Split(p, "/")
			for i, part := range parts {
				if part == dir && i+1 < len(parts) {
					itemDirs[strings.Join(parts[:i+2], "/")] = struct{}{}
					break
				}
			}
		}

		for dirPath := range itemDirs {
			items = append(items, s.buildItem(ctx, dirPath, itemType, scope, scopeID))
		}
	}
	return items
}

// buildItem reads the optional descriptor for an item directory and falls
// back to path-derived defaults when it is absent or malformed.
func (s *Scanner) buildItem(ctx context.Context, itemPath string, itemType ItemType, scope Scope, scopeID uuid.UUID) Item {
	name := NameFromPath(itemPath)
	description := ""
	var tags []string

	raw, err := s.store.Get(ctx, itemPath+"/"+DescriptorFileName)
	if err == nil {
		d := ParseDescriptor([]byte(raw))
		if d.Name != "" {
			name = d.Name
		}
		description = d.Description
		tags = NormalizeTags(d.Tags)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn("scan: read descriptor failed",
			slog.String("path", itemPath), slog.String("error", err.Error()))
	}

	return Item{
		ID:          ItemID(itemPath),
		Type:        itemType,
		Name:        name,
		Description: description,
		Tags:        tags,
		Scope:       scope,
		ScopeID:     scopeID,
		Path:        itemPath,
		ReadmePath:  itemPath + "/README.md",
	}
}
