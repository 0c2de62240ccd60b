package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/catalog"
	"github.com/starford/atlas/internal/contentstore"
	"github.com/starford/atlas/internal/index"
	"github.com/starford/atlas/internal/testutil"
)

type testReconcilerDeps struct {
	store *contentstore.Memory
	db    *index.DB
}

func newTestReconciler(t *testing.T) (*Reconciler, *testReconcilerDeps) {
	t.Helper()
	store := testutil.TestStore(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()
	scanner := catalog.NewScanner(store, logger)
	rec := New(store, db, scanner, logger)
	return rec, &testReconcilerDeps{store: store, db: db}
}

func TestSyncAllCreatesMissingRecords(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	deps.store.Save(ctx, "org/skills/code-review/config.yaml", "name: code-review\n", "add")
	deps.store.Save(ctx, "org/skills/code-review/README.md", "# code-review\n", "add")
	deps.store.Save(ctx, "unrelated/notes.txt", "x", "add")

	res := rec.SyncAll(ctx)
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.Created != 2 || res.Updated != 0 || res.Deleted != 0 {
		t.Fatalf("result = %+v, want 2 created", res)
	}

	row, err := deps.db.GetItemByPath("org/skills/code-review/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if row.Name != "config" || row.Type != "skill" || row.Scope != "org" {
		t.Errorf("row = %+v", row)
	}

	// Unrecognized paths are never indexed.
	if _, err := deps.db.GetItemByPath("unrelated/notes.txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unrecognized path indexed: %v", err)
	}
}

func TestSyncAllTouchesIntersection(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	deps.store.Save(ctx, "org/skills/a/config.yaml", "x", "add")
	first := rec.SyncAll(ctx)
	if first.Created != 1 {
		t.Fatalf("first = %+v", first)
	}

	second := rec.SyncAll(ctx)
	if second.Created != 0 || second.Updated != 1 || second.Deleted != 0 {
		t.Fatalf("second = %+v, want 1 updated", second)
	}
}

func TestSyncAllDeletesStaleRecords(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	deps.store.Save(ctx, "org/skills/a/config.yaml", "x", "add")
	deps.store.Save(ctx, "org/skills/b/config.yaml", "x", "add")
	rec.SyncAll(ctx)

	deps.store.Delete(ctx, "org/skills/b/config.yaml", "rm")
	res := rec.SyncAll(ctx)
	if res.Deleted != 1 {
		t.Fatalf("result = %+v, want 1 deleted", res)
	}
	if _, err := deps.db.GetItemByPath("org/skills/b/config.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale record survived: %v", err)
	}
}

func TestSyncAllCoversEveryRecognizedPath(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	paths := []string{
		"skills/bare/README.md",
		"org/mcps/github/config.yaml",
		"org/tools/fmt/config.yaml",
	}
	for _, p := range paths {
		deps.store.Save(ctx, p, "x", "add")
	}

	res := rec.SyncAll(ctx)
	if res.Created != len(paths) {
		t.Fatalf("created = %d, want %d", res.Created, len(paths))
	}
	indexed, err := deps.db.AllItemPaths()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		if _, ok := indexed[p]; !ok {
			t.Errorf("path %s not indexed", p)
		}
	}
}

func TestSyncPathsCreate(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	deps.store.Save(ctx, "org/skills/new/config.yaml", "x", "add")
	res := rec.SyncPaths(ctx, []string{"org/skills/new/config.yaml"})
	if res.Created != 1 || res.Deleted != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSyncPathsDelete(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	deps.store.Save(ctx, "org/skills/gone/config.yaml", "x", "add")
	rec.SyncAll(ctx)
	deps.store.Delete(ctx, "org/skills/gone/config.yaml", "rm")

	res := rec.SyncPaths(ctx, []string{"org/skills/gone/config.yaml"})
	if res.Deleted != 1 || res.Created != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSyncPathsBothPresentIsNoOp(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	deps.store.Save(ctx, "org/skills/same/config.yaml", "x", "add")
	rec.SyncAll(ctx)

	before, err := deps.db.GetItemByPath("org/skills/same/config.yaml")
	if err != nil {
		t.Fatal(err)
	}

	res := rec.SyncPaths(ctx, []string{"org/skills/same/config.yaml"})
	if res.Created != 0 || res.Updated != 0 || res.Deleted != 0 {
		t.Fatalf("result = %+v, want all zero", res)
	}

	after, err := deps.db.GetItemByPath("org/skills/same/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("updated_at changed on a no-op: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestSyncPathsBothAbsentIsNoOp(t *testing.T) {
	rec, _ := newTestReconciler(t)
	res := rec.SyncPaths(context.Background(), []string{"org/skills/never/config.yaml"})
	if res.Created != 0 || res.Updated != 0 || res.Deleted != 0 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v, want all zero", res)
	}
}

func TestSyncPathsSkipsUnrecognized(t *testing.T) {
	rec, deps := newTestReconciler(t)
	ctx := context.Background()

	deps.store.Save(ctx, "docs/readme.txt", "x", "add")
	res := rec.SyncPaths(ctx, []string{"docs/readme.txt", "org/claude.md"})
	if res.Created != 0 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v, want untouched", res)
	}
}
