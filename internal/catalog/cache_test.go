package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/contentstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, store *contentstore.Memory, dir, name, description string, tags []string) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Save(ctx, dir+"/"+DescriptorFileName, DescriptorYAML(name, description, tags), "seed"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(ctx, dir+"/README.md", "# "+name+"\n", "seed"); err != nil {
		t.Fatal(err)
	}
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *contentstore.Memory) {
	t.Helper()
	store := contentstore.NewMemory()
	return NewCache(NewScanner(store, testLogger()), ttl, testLogger()), store
}

func TestScanClassifiesScopes(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	teamID := uuid.New()
	userID := uuid.New()

	seed(t, store, "org/skills/code-review", "code-review", "Reviews PRs", nil)
	seed(t, store, "teams/"+teamID.String()+"/mcps/github", "github", "", nil)
	seed(t, store, "users/"+userID.String()+"/tools/fmt", "fmt", "", nil)

	items, err := cache.Items(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}

	byName := map[string]Item{}
	for _, it := range items {
		byName[it.Name] = it
	}
	if it := byName["code-review"]; it.Scope != ScopeOrg || it.Type != TypeSkill {
		t.Errorf("code-review = %+v", it)
	}
	if it := byName["github"]; it.Scope != ScopeTeam || it.ScopeID != teamID || it.Type != TypeMCP {
		t.Errorf("github = %+v", it)
	}
	if it := byName["fmt"]; it.Scope != ScopeUser || it.ScopeID != userID || it.Type != TypeTool {
		t.Errorf("fmt = %+v", it)
	}
}

func TestScanFallsBackWithoutDescriptor(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	ctx := context.Background()
	if _, err := store.Save(ctx, "org/skills/bare-item/README.md", "# Bare\n", "seed"); err != nil {
		t.Fatal(err)
	}

	items, err := cache.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Name != "bare-item" || items[0].Description != "" {
		t.Errorf("fallback item = %+v", items[0])
	}
}

func TestScanBareTypePrefix(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	seed(t, store, "skills/rooted", "rooted", "", nil)

	items, err := cache.Items(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Scope != ScopeOrg || items[0].Path != "skills/rooted" {
		t.Errorf("item = %+v", items[0])
	}
}

func TestListVisibility(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	teamID := uuid.New()
	owner := uuid.New()
	other := uuid.New()

	seed(t, store, "org/skills/public", "public", "", nil)
	seed(t, store, "teams/"+teamID.String()+"/skills/team-only", "team-only", "", nil)
	seed(t, store, "users/"+owner.String()+"/skills/private", "private", "", nil)

	ctx := context.Background()

	// Anonymous sees org only.
	items, total, err := cache.List(ctx, nil, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].Name != "public" {
		t.Errorf("anonymous list = %v (total %d)", items, total)
	}

	// Team member sees org + team.
	member := &Viewer{UserID: other, TeamIDs: []uuid.UUID{teamID}}
	_, total, err = cache.List(ctx, member, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("member total = %d, want 2", total)
	}

	// Owner sees org + own private item.
	_, total, err = cache.List(ctx, &Viewer{UserID: owner}, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("owner total = %d, want 2", total)
	}
}

func TestListFilterAndSearch(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	seed(t, store, "org/skills/code-review", "code-review", "Reviews pull requests", []string{"review"})
	seed(t, store, "org/tools/formatter", "formatter", "Formats source", []string{"style"})

	ctx := context.Background()

	items, total, err := cache.List(ctx, nil, ListFilter{Type: TypeTool})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].Name != "formatter" {
		t.Errorf("type filter = %v", items)
	}

	// Query matches name, description, and tags, case-insensitively.
	for _, q := range []string{"REVIEW", "pull", "code"} {
		_, total, err = cache.List(ctx, nil, ListFilter{Query: q})
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 {
			t.Errorf("query %q total = %d, want 1", q, total)
		}
	}

	_, total, err = cache.List(ctx, nil, ListFilter{Query: "nothing-matches"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("no-match total = %d, want 0", total)
	}
}

func TestListPagination(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	for i := 0; i < 5; i++ {
		seed(t, store, fmt.Sprintf("org/skills/item-%d", i), fmt.Sprintf("item-%d", i), "", nil)
	}

	ctx := context.Background()
	page, total, err := cache.List(ctx, nil, ListFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("page = %d items, total %d", len(page), total)
	}
	// Name-sorted, so offset 2 starts at item-2.
	if page[0].Name != "item-2" || page[1].Name != "item-3" {
		t.Errorf("page = [%s, %s]", page[0].Name, page[1].Name)
	}

	// Offset past the end yields an empty page, not an error.
	page, total, err = cache.List(ctx, nil, ListFilter{Limit: 2, Offset: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(page) != 0 {
		t.Errorf("past-end page = %d items, total %d", len(page), total)
	}
}

func TestGetInvisibleReportsNotFound(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	owner := uuid.New()
	dir := "users/" + owner.String() + "/skills/private"
	seed(t, store, dir, "private", "", nil)

	ctx := context.Background()
	id := ItemID(dir)

	if _, err := cache.Get(ctx, id, &Viewer{UserID: owner}); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	_, err := cache.Get(ctx, id, nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("invisible get error = %v, want ErrNotFound", err)
	}
}

func TestCacheServesStaleUntilTTL(t *testing.T) {
	cache, store := newTestCache(t, time.Hour)
	seed(t, store, "org/skills/first", "first", "", nil)

	ctx := context.Background()
	if _, err := cache.Items(ctx); err != nil {
		t.Fatal(err)
	}

	// A write after the snapshot is not visible until a refresh.
	seed(t, store, "org/skills/second", "second", "", nil)
	items, err := cache.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("stale snapshot = %d items, want 1", len(items))
	}

	if err := cache.RefreshNow(ctx); err != nil {
		t.Fatal(err)
	}
	items, err = cache.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("refreshed snapshot = %d items, want 2", len(items))
	}
}

func TestCountByType(t *testing.T) {
	cache, store := newTestCache(t, DefaultTTL)
	seed(t, store, "org/skills/a", "a", "", nil)
	seed(t, store, "org/skills/b", "b", "", nil)
	seed(t, store, "org/mcps/c", "c", "", nil)

	counts, err := cache.CountByType(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if counts[TypeSkill] != 2 || counts[TypeMCP] != 1 || counts[TypeTool] != 0 {
		t.Errorf("counts = %v", counts)
	}
}
