package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/contentstore"
	"github.com/starford/atlas/internal/index"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// CreateInput describes a new item published into the caller's personal
// namespace.
type CreateInput struct {
	Type          ItemType `json:"type"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Documentation string   `json:"documentation"`
}

// Validate implements validation for CreateInput.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type, validation.Required, validation.In(TypeSkill, TypeMCP, TypeTool)),
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100),
			validation.Match(nameRe).Error("must contain only letters, digits, hyphens, and underscores")),
		validation.Field(&in.Description, validation.Length(0, 500)),
	)
}

// UpdateInput carries the mutable fields of an existing item. Nil fields
// are left unchanged.
type UpdateInput struct {
	Description   *string  `json:"description"`
	Tags          []string `json:"tags"`
	Documentation *string  `json:"documentation"`
}

// Dashboard aggregates the per-user overview: catalog counts visible to
// the user, their team memberships, and whether a personal configuration
// exists.
type Dashboard struct {
	User       index.UserRow    `json:"user"`
	Teams      []index.TeamRow  `json:"teams"`
	Counts     map[ItemType]int `json:"counts"`
	TotalItems int              `json:"total_items"`
	HasConfig  bool             `json:"has_configuration"`
}

// Service exposes user-facing catalog operations: publishing items into a
// user's personal namespace and reading item details. Reads go through
// the cache; writes go to the content store and then refresh the cache so
// the change is visible to the next read.
type Service struct {
	store  contentstore.Store
	cache  *Cache
	idx    index.Index
	logger *slog.Logger
}

// NewService creates a catalog item service.
func NewService(store contentstore.Store, cache *Cache, idx index.Index, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, idx: idx, logger: logger}
}

// Create publishes a new item under the user's namespace. The item name
// must be unique within the user's scope for the given type.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*Item, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}

	dir := UserItemPath(userID, in.Type, in.Name)
	descriptorPath := dir + "/" + DescriptorFileName

	exists, err := s.store.Exists(ctx, descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: check existing item: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s %q already exists", apperr.ErrAlreadyExists, in.Type, in.Name)
	}

	tags := NormalizeTags(in.Tags)
	descriptor := DescriptorYAML(in.Name, in.Description, tags)
	message := fmt.Sprintf("Add %s %s", in.Type, in.Name)
	if _, err := s.store.Save(ctx, descriptorPath, descriptor, message); err != nil {
		return nil, fmt.Errorf("catalog: save descriptor: %w", err)
	}

	readmePath := dir + "/README.md"
	doc := in.Documentation
	if doc == "" {
		doc = "# " + in.Name + "\n\n" + in.Description + "\n"
	}
	if _, err := s.store.Save(ctx, readmePath, doc, message); err != nil {
		return nil, fmt.Errorf("catalog: save documentation: %w", err)
	}

	item := Item{
		ID:          ItemID(dir),
		Type:        in.Type,
		Name:        in.Name,
		Description: in.Description,
		Tags:        tags,
		Scope:       ScopeUser,
		ScopeID:     userID,
		Path:        dir,
		ReadmePath:  readmePath,
	}
	now := time.Now().UTC()
	if err := s.idx.UpsertItem(index.ItemRow{
		ID:          item.ID,
		Type:        string(item.Type),
		Name:        item.Name,
		Description: item.Description,
		Tags:        tags,
		Scope:       string(item.Scope),
		ScopeID:     item.ScopeID.String(),
		Path:        item.Path,
		ReadmePath:  item.ReadmePath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		s.logger.Warn("catalog: index new item failed",
			slog.String("id", item.ID), slog.String("error", err.Error()))
	}

	if err := s.cache.RefreshNow(ctx); err != nil {
		s.logger.Warn("catalog: refresh after create failed", slog.String("error", err.Error()))
	}
	return &item, nil
}

// Update modifies the descriptor of an item the user owns. Only personal
// items can be edited through this path; org and team items are managed
// through the content repository directly.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, id string, in UpdateInput) (*Item, error) {
	item, err := s.ownedItem(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	description := item.Description
	if in.Description != nil {
		description = *in.Description
	}
	tags := item.Tags
	if in.Tags != nil {
		tags = NormalizeTags(in.Tags)
	}

	message := fmt.Sprintf("Update %s %s", item.Type, item.Name)
	descriptor := DescriptorYAML(item.Name, description, tags)
	if _, err := s.store.Save(ctx, item.Path+"/"+DescriptorFileName, descriptor, message); err != nil {
		return nil, fmt.Errorf("catalog: save descriptor: %w", err)
	}
	if in.Documentation != nil {
		if _, err := s.store.Save(ctx, item.ReadmePath, *in.Documentation, message); err != nil {
			return nil, fmt.Errorf("catalog: save documentation: %w", err)
		}
	}

	if err := s.idx.TouchItem(item.ID, time.Now().UTC()); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn("catalog: touch item failed",
			slog.String("id", item.ID), slog.String("error", err.Error()))
	}
	if err := s.cache.RefreshNow(ctx); err != nil {
		s.logger.Warn("catalog: refresh after update failed", slog.String("error", err.Error()))
	}

	updated := *item
	updated.Description = description
	updated.Tags = tags
	return &updated, nil
}

// Delete removes an item the user owns, including its documentation.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	item, err := s.ownedItem(ctx, userID, id)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Remove %s %s", item.Type, item.Name)
	if _, err := s.store.Delete(ctx, item.Path+"/"+DescriptorFileName, message); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("catalog: delete descriptor: %w", err)
	}
	if _, err := s.store.Delete(ctx, item.ReadmePath, message); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("catalog: delete documentation: %w", err)
	}

	if err := s.idx.DeleteItem(item.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn("catalog: unindex item failed",
			slog.String("id", item.ID), slog.String("error", err.Error()))
	}
	if err := s.cache.RefreshNow(ctx); err != nil {
		s.logger.Warn("catalog: refresh after delete failed", slog.String("error", err.Error()))
	}
	return nil
}

// GetDetail returns an item visible to the viewer together with its
// documentation. Missing documentation degrades to empty.
func (s *Service) GetDetail(ctx context.Context, id string, viewer *Viewer) (*Detail, error) {
	item, err := s.cache.Get(ctx, id, viewer)
	if err != nil {
		return nil, err
	}

	doc := ""
	if item.ReadmePath != "" {
		content, readErr := s.store.Get(ctx, item.ReadmePath)
		if readErr != nil && !errors.Is(readErr, apperr.ErrNotFound) {
			s.logger.Warn("catalog: read documentation failed",
				slog.String("path", item.ReadmePath), slog.String("error", readErr.Error()))
		}
		doc = content
	}

	if err := s.idx.IncrementUsage(item.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn("catalog: count usage failed",
			slog.String("id", item.ID), slog.String("error", err.Error()))
	}

	return &Detail{Item: *item, Documentation: doc}, nil
}

// Dashboard assembles the overview for a user.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	user, err := s.idx.GetUser(userID)
	if err != nil {
		return nil, err
	}

	d := Dashboard{User: *user}
	viewer := &Viewer{UserID: userID}

	g := new(errgroup.Group)
	g.Go(func() error {
		teams, teamsErr := s.idx.TeamsOf(userID)
		if teamsErr != nil {
			return teamsErr
		}
		d.Teams = teams
		for _, t := range teams {
			viewer.TeamIDs = append(viewer.TeamIDs, t.ID)
		}
		return nil
	})
	g.Go(func() error {
		_, cfgErr := s.idx.GetConfiguration(userID)
		if cfgErr != nil && !errors.Is(cfgErr, apperr.ErrNotFound) {
			return cfgErr
		}
		d.HasConfig = cfgErr == nil
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Counts need the final team list, so they run after the fan-out.
	counts, err := s.cache.CountByType(ctx, viewer)
	if err != nil {
		return nil, err
	}
	d.Counts = counts
	for _, n := range counts {
		d.TotalItems += n
	}
	return &d, nil
}

// ownedItem loads an item and verifies the caller owns it.
func (s *Service) ownedItem(ctx context.Context, userID uuid.UUID, id string) (*Item, error) {
	item, err := s.cache.Get(ctx, id, &Viewer{UserID: userID})
	if err != nil {
		return nil, err
	}
	if item.Scope != ScopeUser || item.ScopeID != userID {
		return nil, fmt.Errorf("%w: item %s is not owned by user %s", apperr.ErrNotFound, id, userID)
	}
	return item, nil
}
