package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/atlas/internal/apperr"
)

// ItemRow is a catalog item record. ScopeID is the owning team/user id as
// a string, empty for org scope.
type ItemRow struct {
	ID          string
	Type        string
	Name        string
	Description string
	Tags        []string
	Scope       string
	ScopeID     string
	Path        string
	ReadmePath  string
	UsageCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const itemColumns = `id, type, name, description, tags, scope, scope_id, path, readme_path, usage_count, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*ItemRow, error) {
	var it ItemRow
	var tagsJSON string
	err := row.Scan(&it.ID, &it.Type, &it.Name, &it.Description, &tagsJSON,
		&it.Scope, &it.ScopeID, &it.Path, &it.ReadmePath, &it.UsageCount,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &it.Tags); err != nil {
		it.Tags = nil
	}
	return &it, nil
}

// UpsertItem inserts or replaces a catalog item record.
func (db *DB) UpsertItem(it ItemRow) error {
	tagsJSON, _ := json.Marshal(it.Tags)
	if it.Tags == nil {
		tagsJSON = []byte("[]")
	}
	_, err := db.conn.Exec(`
		INSERT INTO catalog_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type        = excluded.type,
			name        = excluded.name,
			description = excluded.description,
			tags        = excluded.tags,
			scope       = excluded.scope,
			scope_id    = excluded.scope_id,
			path        = excluded.path,
			readme_path = excluded.readme_path,
			updated_at  = excluded.updated_at
	`, it.ID, it.Type, it.Name, it.Description, string(tagsJSON),
		it.Scope, it.ScopeID, it.Path, it.ReadmePath, it.UsageCount,
		it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert item: %w", err)
	}
	return nil
}

// TouchItem bumps an item's updated_at timestamp.
func (db *DB) TouchItem(id string, at time.Time) error {
	res, err := db.conn.Exec(`UPDATE catalog_items SET updated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("index: touch item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteItem removes a catalog item record.
func (db *DB) DeleteItem(id string) error {
	_, err := db.conn.Exec(`DELETE FROM catalog_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete item: %w", err)
	}
	return nil
}

// GetItem returns one catalog item record by id.
func (db *DB) GetItem(id string) (*ItemRow, error) {
	it, err := scanItem(db.conn.QueryRow(`SELECT `+itemColumns+` FROM catalog_items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("index: get item: %w", err)
	}
	return it, nil
}

// GetItemByPath returns one catalog item record by content-store path.
func (db *DB) GetItemByPath(path string) (*ItemRow, error) {
	it, err := scanItem(db.conn.QueryRow(`SELECT `+itemColumns+` FROM catalog_items WHERE path = ?`, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("index: get item by path: %w", err)
	}
	return it, nil
}

// ListItems returns paginated catalog item records with an optional type
// filter, plus the total count before pagination.
func (db *DB) ListItems(limit, offset int, itemType string) ([]ItemRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if itemType != "" {
		where = ` WHERE type = ?`
		args = append(args, itemType)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM catalog_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count items: %w", err)
	}

	rows, err := db.conn.Query(
		`SELECT `+itemColumns+` FROM catalog_items`+where+` ORDER BY name COLLATE NOCASE, path LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list items: %w", err)
	}
	defer rows.Close()

	var out []ItemRow
	for rows.Next() {
		it, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		out = append(out, *it)
	}
	return out, total, rows.Err()
}

// AllItemPaths returns every indexed path mapped to its record id.
func (db *DB) AllItemPaths() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, id FROM catalog_items`)
	if err != nil {
		return nil, fmt.Errorf("index: all item paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var path, id string
		if err := rows.Scan(&path, &id); err != nil {
			return nil, err
		}
		out[path] = id
	}
	return out, rows.Err()
}

// IncrementUsage bumps an item's usage counter.
func (db *DB) IncrementUsage(id string) error {
	res, err := db.conn.Exec(
		`UPDATE catalog_items SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("index: increment usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
