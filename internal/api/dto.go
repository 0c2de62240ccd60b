package api

import (
	"github.com/starford/atlas/internal/catalog"
	"github.com/starford/atlas/internal/configservice"
	"github.com/starford/atlas/internal/contentstore"
	"github.com/starford/atlas/internal/reconcile"
)

// CreateItemRequest is the request body for publishing a catalog item.
type CreateItemRequest = catalog.CreateInput

// UpdateItemRequest is the request body for editing a catalog item.
type UpdateItemRequest = catalog.UpdateInput

// ItemListResponse wraps paginated catalog listings.
type ItemListResponse struct {
	Items []catalog.Item `json:"items" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// ItemDetail is the full item response type (aliased from the domain layer).
type ItemDetail = catalog.Detail

// SaveConfigurationRequest is the request body for saving a configuration.
type SaveConfigurationRequest struct {
	Content string `json:"content" validate:"required"`
	Message string `json:"message,omitempty" example:"Enable code review skill"`
}

// RollbackRequest names the version to replay.
type RollbackRequest struct {
	Version string `json:"version" validate:"required"`
}

// ConfigurationResponse is a user's current configuration.
type ConfigurationResponse struct {
	Content   string `json:"content"`
	Path      string `json:"path" example:"users/7f3e.../claude.md"`
	Version   string `json:"version,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// VersionListResponse wraps configuration history.
type VersionListResponse struct {
	Versions []contentstore.Version `json:"versions" validate:"required"`
}

// EffectiveResponse is the merged configuration with provenance.
type EffectiveResponse = configservice.Effective

// SyncPathsRequest names the content paths to reconcile.
type SyncPathsRequest struct {
	Paths []string `json:"paths" validate:"required"`
}

// SyncResponse reports the outcome of a reconciliation run.
type SyncResponse = reconcile.Result

// CreateUserRequest registers a user.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// CreateTeamRequest registers a team.
type CreateTeamRequest struct {
	Name string `json:"name" validate:"required"`
}

// AddMemberRequest adds a user to a team.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}
