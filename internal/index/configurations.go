package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/atlas/internal/apperr"
)

// ConfigRow maps a user to their configuration path and last known
// content-store version. At most one row exists per user.
type ConfigRow struct {
	UserID    uuid.UUID
	Path      string
	Version   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetConfiguration returns the configuration pointer for a user.
func (db *DB) GetConfiguration(userID uuid.UUID) (*ConfigRow, error) {
	var c ConfigRow
	var id string
	err := db.conn.QueryRow(
		`SELECT user_id, path, version, created_at, updated_at FROM configurations WHERE user_id = ?`,
		userID.String()).Scan(&id, &c.Path, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("index: get configuration: %w", err)
	}
	c.UserID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("index: bad configuration user id %q: %w", id, err)
	}
	return &c, nil
}

// UpsertConfiguration creates the pointer on first save and updates the
// version on subsequent saves. The unique user_id key makes concurrent
// saves last-write-wins on the version id.
func (db *DB) UpsertConfiguration(c ConfigRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO configurations (user_id, path, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			path       = excluded.path,
			version    = excluded.version,
			updated_at = excluded.updated_at
	`, c.UserID.String(), c.Path, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert configuration: %w", err)
	}
	return nil
}

// DeleteConfiguration removes a user's configuration pointer.
func (db *DB) DeleteConfiguration(userID uuid.UUID) error {
	_, err := db.conn.Exec(`DELETE FROM configurations WHERE user_id = ?`, userID.String())
	if err != nil {
		return fmt.Errorf("index: delete configuration: %w", err)
	}
	return nil
}
