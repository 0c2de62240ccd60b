// Package configservice computes layered effective configurations and
// manages configuration versioning on top of the content store.
package configservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/catalog"
	"github.com/starford/atlas/internal/contentstore"
	"github.com/starford/atlas/internal/index"
)

const sectionSeparator = "\n\n---\n\n"

// Effective is the merged configuration for a user together with the
// per-level breakdown, so callers can show provenance without re-fetching.
type Effective struct {
	Content     string `json:"content"`
	OrgContent  string `json:"org_content"`
	TeamContent string `json:"team_content"`
	UserContent string `json:"user_content"`
}

// Service orchestrates content-store configuration text with the
// index-tracked configuration pointers.
type Service struct {
	store  contentstore.Store
	idx    index.Index
	logger *slog.Logger
}

// NewService creates a configuration service.
func NewService(store contentstore.Store, idx index.Index, logger *slog.Logger) *Service {
	return &Service{store: store, idx: idx, logger: logger}
}

// getContent fetches one configuration level, degrading to empty: missing
// content is not an error, and neither is a transient read failure (it is
// logged and the level merges as empty).
func (s *Service) getContent(ctx context.Context, path string) string {
	content, err := s.store.Get(ctx, path)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("config: read level failed",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return ""
	}
	return content
}

// Effective computes the merged configuration for a user from the org,
// team, and user levels. Unknown users and missing content degrade to
// empty rather than erroring. Team sections keep the user's membership
// order, so repeated calls with unchanged data are byte-identical.
func (s *Service) Effective(ctx context.Context, userID uuid.UUID) (*Effective, error) {
	_, err := s.idx.GetUser(userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &Effective{}, nil
		}
		return nil, err
	}

	// Teams and the configuration pointer are independent lookups.
	var teams []index.TeamRow
	var cfg *index.ConfigRow
	g := new(errgroup.Group)
	g.Go(func() error {
		var lookupErr error
		teams, lookupErr = s.idx.TeamsOf(userID)
		return lookupErr
	})
	g.Go(func() error {
		row, lookupErr := s.idx.GetConfiguration(userID)
		if lookupErr != nil && !errors.Is(lookupErr, apperr.ErrNotFound) {
			return lookupErr
		}
		cfg = row
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Fan out the content fetches; results land in fixed slots so the
	// recombination order matches the membership order regardless of
	// fetch completion order.
	teamContents := make([]string, len(teams))
	var orgContent, userContent string

	fetch, gCtx := errgroup.WithContext(ctx)
	fetch.Go(func() error {
		orgContent = s.getContent(gCtx, catalog.OrgConfigPath())
		return nil
	})
	for i, team := range teams {
		fetch.Go(func() error {
			teamContents[i] = s.getContent(gCtx, catalog.TeamConfigPath(team.ID))
			return nil
		})
	}
	if cfg != nil {
		fetch.Go(func() error {
			userContent = s.getContent(gCtx, cfg.Path)
			return nil
		})
	}
	if err := fetch.Wait(); err != nil {
		return nil, err
	}

	var sections []string
	if orgContent != "" {
		sections = append(sections, "# Organization Configuration\n\n"+orgContent)
	}
	var teamBodies []string
	for i, team := range teams {
		if teamContents[i] == "" {
			continue
		}
		sections = append(sections, "# Team: "+team.Name+"\n\n"+teamContents[i])
		teamBodies = append(teamBodies, teamContents[i])
	}
	if userContent != "" {
		sections = append(sections, "# Personal Configuration\n\n"+userContent)
	}

	return &Effective{
		Content:     strings.Join(sections, sectionSeparator),
		OrgContent:  orgContent,
		TeamContent: strings.Join(teamBodies, "\n\n"),
		UserContent: userContent,
	}, nil
}

// Get returns the user's current configuration content and pointer.
// A user with no configuration yet gets empty content and a synthesized
// pointer that has not been persisted.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (string, *index.ConfigRow, error) {
	cfg, err := s.idx.GetConfiguration(userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			now := time.Now().UTC()
			return "", &index.ConfigRow{
				UserID:    userID,
				Path:      catalog.UserConfigPath(userID),
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}
		return "", nil, err
	}
	return s.getContent(ctx, cfg.Path), cfg, nil
}

// Save writes content to the user's configuration path as a new version
// and upserts the pointer record. The upsert is idempotent under
// concurrent saves for the same user: last write wins on the version id.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, content, message string) (*index.ConfigRow, error) {
	path := catalog.UserConfigPath(userID)
	if message == "" {
		message = fmt.Sprintf("Update configuration for user %s", userID)
	}

	version, err := s.store.Save(ctx, path, content, message)
	if err != nil {
		return nil, fmt.Errorf("configservice: save content: %w", err)
	}

	now := time.Now().UTC()
	row := index.ConfigRow{
		UserID:    userID,
		Path:      path,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, getErr := s.idx.GetConfiguration(userID); getErr == nil {
		row.Path = existing.Path
		row.CreatedAt = existing.CreatedAt
	}
	if err := s.idx.UpsertConfiguration(row); err != nil {
		return nil, fmt.Errorf("configservice: save pointer: %w", err)
	}
	return &row, nil
}

// Import saves uploaded configuration content with a fixed commit message.
func (s *Service) Import(ctx context.Context, userID uuid.UUID, content string) (*index.ConfigRow, error) {
	return s.Save(ctx, userID, content, "Import configuration from local file")
}

// History returns the user's configuration version history, newest first.
// A user with no configuration yet gets an empty history, not an error.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]contentstore.Version, error) {
	cfg, err := s.idx.GetConfiguration(userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return []contentstore.Version{}, nil
		}
		return nil, err
	}
	return s.store.History(ctx, cfg.Path, limit)
}

// Rollback replays the content of a historical version as a new commit;
// it never rewrites history, so the version chain stays append-only.
func (s *Service) Rollback(ctx context.Context, userID uuid.UUID, versionID string) (*index.ConfigRow, error) {
	cfg, err := s.idx.GetConfiguration(userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, &apperr.ConfigurationNotFoundError{UserID: userID}
		}
		return nil, err
	}

	content, err := s.store.GetAtVersion(ctx, cfg.Path, versionID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, &apperr.VersionNotFoundError{Version: versionID, Path: cfg.Path}
		}
		return nil, err
	}

	return s.Save(ctx, userID, content, "Rollback to version "+shortVersion(versionID))
}

// shortVersion abbreviates a version id for commit messages.
func shortVersion(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
