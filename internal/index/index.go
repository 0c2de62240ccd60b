package index

import (
	"time"

	"github.com/google/uuid"
)

// Index defines the metadata-index operations used by the services.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type Index interface {
	// Catalog item records.
	UpsertItem(it ItemRow) error
	TouchItem(id string, at time.Time) error
	DeleteItem(id string) error
	GetItem(id string) (*ItemRow, error)
	GetItemByPath(path string) (*ItemRow, error)
	ListItems(limit, offset int, itemType string) ([]ItemRow, int, error)
	AllItemPaths() (map[string]string, error)
	IncrementUsage(id string) error

	// Users and teams.
	UpsertUser(u UserRow) error
	GetUser(id uuid.UUID) (*UserRow, error)
	GetUserByEmail(email string) (*UserRow, error)
	ListUsers(limit, offset int) ([]UserRow, int, error)
	UpsertTeam(t TeamRow) error
	GetTeam(id uuid.UUID) (*TeamRow, error)
	AddMember(teamID, userID uuid.UUID) error
	RemoveMember(teamID, userID uuid.UUID) error
	TeamsOf(userID uuid.UUID) ([]TeamRow, error)

	// Configuration pointers.
	GetConfiguration(userID uuid.UUID) (*ConfigRow, error)
	UpsertConfiguration(c ConfigRow) error
	DeleteConfiguration(userID uuid.UUID) error

	Close() error
}

// Verify *DB satisfies Index at compile time.
var _ Index = (*DB)(nil)
