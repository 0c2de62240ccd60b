// Package apperr defines the application error taxonomy shared across layers.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
)

// VersionNotFoundError is returned when a requested content-store version
// does not exist in the history of a path.
type VersionNotFoundError struct {
	Version string
	Path    string
}

func (e *VersionNotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("version %q not found for path %s", e.Version, e.Path)
	}
	return fmt.Sprintf("version %q not found", e.Version)
}

// Is reports ErrNotFound so transport layers can map it to 404.
func (e *VersionNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConfigurationNotFoundError is returned when a user has no configuration
// record at all (as opposed to an empty configuration).
type ConfigurationNotFoundError struct {
	UserID uuid.UUID
}

func (e *ConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("no configuration for user %s", e.UserID)
}

// Is reports ErrNotFound so transport layers can map it to 404.
func (e *ConfigurationNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
