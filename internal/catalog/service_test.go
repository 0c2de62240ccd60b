package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/contentstore"
	"github.com/starford/atlas/internal/index"
	"github.com/starford/atlas/internal/testutil"
)

func newTestItemService(t *testing.T) (*Service, *contentstore.Memory, *index.DB) {
	t.Helper()
	store := contentstore.NewMemory()
	db := testutil.TestDB(t)
	scanner := NewScanner(store, testLogger())
	cache := NewCache(scanner, time.Hour, testLogger())
	return NewService(store, cache, db, testLogger()), store, db
}

func TestCreateWritesDescriptorAndReadme(t *testing.T) {
	svc, store, db := newTestItemService(t)
	ctx := context.Background()
	userID := uuid.New()

	item, err := svc.Create(ctx, userID, CreateInput{
		Type:        TypeSkill,
		Name:        "code-review",
		Description: "Review pull requests",
		Tags:        []string{"Git", "review", "git"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if item.Scope != ScopeUser || item.ScopeID != userID {
		t.Fatalf("item = %+v", item)
	}

	descriptor, err := store.Get(ctx, item.Path+"/"+DescriptorFileName)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(descriptor, "name: code-review") {
		t.Errorf("descriptor = %q", descriptor)
	}
	// Tags come back lowercased and deduplicated.
	if len(item.Tags) != 2 || item.Tags[0] != "git" {
		t.Errorf("tags = %v", item.Tags)
	}

	// Default documentation is synthesized from name and description.
	doc, err := store.Get(ctx, item.ReadmePath)
	if err != nil {
		t.Fatal(err)
	}
	if doc != "# code-review\n\nReview pull requests\n" {
		t.Errorf("doc = %q", doc)
	}

	if _, err := db.GetItem(item.ID); err != nil {
		t.Errorf("item not indexed: %v", err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	svc, _, _ := newTestItemService(t)
	ctx := context.Background()
	userID := uuid.New()

	in := CreateInput{Type: TypeTool, Name: "fmt"}
	if _, err := svc.Create(ctx, userID, in); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(ctx, userID, in)
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}

	// Another user can reuse the name in their own namespace.
	if _, err := svc.Create(ctx, uuid.New(), in); err != nil {
		t.Errorf("same name, different user: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestItemService(t)
	ctx := context.Background()
	userID := uuid.New()

	cases := []CreateInput{
		{Type: TypeSkill, Name: ""},
		{Type: TypeSkill, Name: "has space"},
		{Type: "widget", Name: "ok"},
		{Type: TypeSkill, Name: strings.Repeat("x", 101)},
	}
	for _, in := range cases {
		if _, err := svc.Create(ctx, userID, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("input %+v: err = %v, want ErrValidation", in, err)
		}
	}
}

func TestUpdateOwnedItem(t *testing.T) {
	svc, store, _ := newTestItemService(t)
	ctx := context.Background()
	userID := uuid.New()

	item, err := svc.Create(ctx, userID, CreateInput{Type: TypeMCP, Name: "github"})
	if err != nil {
		t.Fatal(err)
	}

	desc := "Connects to the GitHub API"
	doc := "# github\n\nSetup instructions.\n"
	updated, err := svc.Update(ctx, userID, item.ID, UpdateInput{
		Description:   &desc,
		Tags:          []string{"VCS"},
		Documentation: &doc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != desc {
		t.Errorf("description = %q", updated.Description)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "vcs" {
		t.Errorf("tags = %v", updated.Tags)
	}

	stored, err := store.Get(ctx, item.ReadmePath)
	if err != nil {
		t.Fatal(err)
	}
	if stored != doc {
		t.Errorf("doc = %q", stored)
	}

	// Only the owner can edit.
	if _, err := svc.Update(ctx, uuid.New(), item.ID, UpdateInput{Description: &desc}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign update: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteOwnedItem(t *testing.T) {
	svc, store, db := newTestItemService(t)
	ctx := context.Background()
	userID := uuid.New()

	item, err := svc.Create(ctx, userID, CreateInput{Type: TypeSkill, Name: "tbd"})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, uuid.New(), item.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("foreign delete: err = %v, want ErrNotFound", err)
	}

	if err := svc.Delete(ctx, userID, item.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, item.ReadmePath); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("documentation survived: %v", err)
	}
	if _, err := db.GetItem(item.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("index record survived: %v", err)
	}
	if err := svc.Delete(ctx, userID, item.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestGetDetailCountsUsage(t *testing.T) {
	svc, _, db := newTestItemService(t)
	ctx := context.Background()
	userID := uuid.New()

	item, err := svc.Create(ctx, userID, CreateInput{Type: TypeSkill, Name: "counted"})
	if err != nil {
		t.Fatal(err)
	}

	viewer := &Viewer{UserID: userID}
	for range 3 {
		if _, err := svc.GetDetail(ctx, item.ID, viewer); err != nil {
			t.Fatal(err)
		}
	}
	row, err := db.GetItem(item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if row.UsageCount != 3 {
		t.Errorf("usage = %d, want 3", row.UsageCount)
	}
}

func TestDashboardAggregates(t *testing.T) {
	svc, store, db := newTestItemService(t)
	ctx := context.Background()

	userID := uuid.New()
	now := time.Now().UTC()
	if err := db.UpsertUser(index.UserRow{ID: userID, Email: "d@example.com", Username: "d", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	teamID := uuid.New()
	if err := db.UpsertTeam(index.TeamRow{ID: teamID, Name: "backend", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMember(teamID, userID); err != nil {
		t.Fatal(err)
	}

	store.Save(ctx, "org/skills/shared/config.yaml", "name: shared\n", "seed")
	if _, err := svc.Create(ctx, userID, CreateInput{Type: TypeTool, Name: "mine"}); err != nil {
		t.Fatal(err)
	}

	d, err := svc.Dashboard(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if d.User.ID != userID {
		t.Errorf("user = %+v", d.User)
	}
	if len(d.Teams) != 1 || d.Teams[0].Name != "backend" {
		t.Errorf("teams = %+v", d.Teams)
	}
	if d.TotalItems != 2 || d.Counts[TypeSkill] != 1 || d.Counts[TypeTool] != 1 {
		t.Errorf("counts = %+v total = %d", d.Counts, d.TotalItems)
	}
	if d.HasConfig {
		t.Error("has_configuration should be false")
	}

	if _, err := svc.Dashboard(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user: err = %v, want ErrNotFound", err)
	}
}
