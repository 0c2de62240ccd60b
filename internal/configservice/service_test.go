package configservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/catalog"
	"github.com/starford/atlas/internal/contentstore"
	"github.com/starford/atlas/internal/index"
	"github.com/starford/atlas/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *index.DB, *contentstore.Memory) {
	t.Helper()
	store := testutil.TestStore(t)
	db := testutil.TestDB(t)
	return NewService(store, db, testutil.Logger()), db, store
}

func seedUser(t *testing.T, db *index.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	err := db.UpsertUser(index.UserRow{
		ID: id, Email: id.String() + "@example.com", Username: "dev",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func seedTeam(t *testing.T, db *index.DB, name string, member uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	if err := db.UpsertTeam(index.TeamRow{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMember(id, member); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestEffectiveMergesAllLevels(t *testing.T) {
	svc, db, store := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, db)
	backendID := seedTeam(t, db, "backend", userID)
	platformID := seedTeam(t, db, "platform", userID)

	store.Save(ctx, catalog.OrgConfigPath(), "Org rules.", "seed")
	store.Save(ctx, catalog.TeamConfigPath(backendID), "Backend rules.", "seed")
	store.Save(ctx, catalog.TeamConfigPath(platformID), "Platform rules.", "seed")
	if _, err := svc.Save(ctx, userID, "My rules.", ""); err != nil {
		t.Fatal(err)
	}

	eff, err := svc.Effective(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}

	want := strings.Join([]string{
		"# Organization Configuration\n\nOrg rules.",
		"# Team: backend\n\nBackend rules.",
		"# Team: platform\n\nPlatform rules.",
		"# Personal Configuration\n\nMy rules.",
	}, "\n\n---\n\n")
	if eff.Content != want {
		t.Errorf("merged content:\n%q\nwant:\n%q", eff.Content, want)
	}
	if eff.OrgContent != "Org rules." {
		t.Errorf("org content = %q", eff.OrgContent)
	}
	if eff.TeamContent != "Backend rules.\n\nPlatform rules." {
		t.Errorf("team content = %q", eff.TeamContent)
	}
	if eff.UserContent != "My rules." {
		t.Errorf("user content = %q", eff.UserContent)
	}
}

func TestEffectiveKeepsMembershipOrder(t *testing.T) {
	svc, db, store := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, db)
	// Joined zulu first; alphabetical order would flip the sections.
	zuluID := seedTeam(t, db, "zulu", userID)
	alphaID := seedTeam(t, db, "alpha", userID)
	store.Save(ctx, catalog.TeamConfigPath(zuluID), "Z.", "seed")
	store.Save(ctx, catalog.TeamConfigPath(alphaID), "A.", "seed")

	eff, err := svc.Effective(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	want := "# Team: zulu\n\nZ.\n\n---\n\n# Team: alpha\n\nA."
	if eff.Content != want {
		t.Errorf("content = %q, want %q", eff.Content, want)
	}
}

func TestEffectiveSkipsMissingLevels(t *testing.T) {
	svc, db, store := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, db)
	seedTeam(t, db, "backend", userID) // team exists but has no configuration
	store.Save(ctx, catalog.OrgConfigPath(), "Org only.", "seed")

	eff, err := svc.Effective(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if eff.Content != "# Organization Configuration\n\nOrg only." {
		t.Errorf("content = %q", eff.Content)
	}
	if eff.TeamContent != "" || eff.UserContent != "" {
		t.Errorf("team/user content not empty: %q / %q", eff.TeamContent, eff.UserContent)
	}
}

func TestEffectiveUnknownUser(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	store.Save(ctx, catalog.OrgConfigPath(), "Org rules.", "seed")

	eff, err := svc.Effective(ctx, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if eff.Content != "" {
		t.Errorf("content = %q, want empty for unknown user", eff.Content)
	}
}

func TestGetSynthesizesPointer(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := seedUser(t, db)

	content, cfg, err := svc.Get(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if content != "" {
		t.Errorf("content = %q, want empty", content)
	}
	if cfg.Path != catalog.UserConfigPath(userID) {
		t.Errorf("path = %q", cfg.Path)
	}
	if cfg.Version != "" {
		t.Errorf("version = %q, want empty for unsaved configuration", cfg.Version)
	}
}

func TestSaveAndGet(t *testing.T) {
	svc, db, store := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db)

	row, err := svc.Save(ctx, userID, "First draft.", "")
	if err != nil {
		t.Fatal(err)
	}
	if row.Version == "" {
		t.Fatal("version not set on save")
	}

	content, cfg, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if content != "First draft." {
		t.Errorf("content = %q", content)
	}
	if cfg.Version != row.Version {
		t.Errorf("version = %q, want %q", cfg.Version, row.Version)
	}

	hist, err := store.History(ctx, cfg.Path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("history length = %d", len(hist))
	}
	wantMsg := "Update configuration for user " + userID.String()
	if hist[0].Message != wantMsg {
		t.Errorf("message = %q, want %q", hist[0].Message, wantMsg)
	}
}

func TestSavePreservesCreation(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db)

	first, err := svc.Save(ctx, userID, "v1", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Save(ctx, userID, "v2", "")
	if err != nil {
		t.Fatal(err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed across saves: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Version == first.Version {
		t.Error("version did not advance")
	}
}

func TestImportMessage(t *testing.T) {
	svc, db, store := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db)

	row, err := svc.Import(ctx, userID, "Imported rules.")
	if err != nil {
		t.Fatal(err)
	}
	hist, err := store.History(ctx, row.Path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hist[0].Message != "Import configuration from local file" {
		t.Errorf("message = %q", hist[0].Message)
	}
}

func TestHistoryEmptyWithoutConfiguration(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := seedUser(t, db)

	hist, err := svc.History(context.Background(), userID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if hist == nil || len(hist) != 0 {
		t.Errorf("history = %v, want empty slice", hist)
	}
}

func TestRollbackReplaysOldVersion(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db)

	v1, err := svc.Save(ctx, userID, "First.", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Save(ctx, userID, "Second.", ""); err != nil {
		t.Fatal(err)
	}

	row, err := svc.Rollback(ctx, userID, v1.Version)
	if err != nil {
		t.Fatal(err)
	}

	content, _, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if content != "First." {
		t.Errorf("content after rollback = %q", content)
	}

	hist, err := svc.History(ctx, userID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3 (rollback appends)", len(hist))
	}
	if hist[0].ID != row.Version {
		t.Errorf("newest version = %q, want %q", hist[0].ID, row.Version)
	}
	wantMsg := "Rollback to version " + v1.Version[:7]
	if hist[0].Message != wantMsg {
		t.Errorf("message = %q, want %q", hist[0].Message, wantMsg)
	}
}

func TestRollbackWithoutConfiguration(t *testing.T) {
	svc, db, _ := newTestService(t)
	userID := seedUser(t, db)

	_, err := svc.Rollback(context.Background(), userID, "deadbeef")
	var cnf *apperr.ConfigurationNotFoundError
	if !errors.As(err, &cnf) {
		t.Fatalf("err = %v, want ConfigurationNotFoundError", err)
	}
}

func TestRollbackUnknownVersion(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	if _, err := svc.Save(ctx, userID, "Only.", ""); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Rollback(ctx, userID, "0000000000000000000000000000000000000000")
	var vnf *apperr.VersionNotFoundError
	if !errors.As(err, &vnf) {
		t.Fatalf("err = %v, want VersionNotFoundError", err)
	}
	if vnf.Version == "" {
		t.Error("version not recorded on error")
	}
}
