package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/atlas/internal/apperr"
)

// UserRow is a user record.
type UserRow struct {
	ID        uuid.UUID
	Email     string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamRow is a team record. MemberCount is populated on reads.
type TeamRow struct {
	ID          uuid.UUID
	Name        string
	MemberCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertUser inserts or updates a user record.
func (db *DB) UpsertUser(u UserRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO users (id, email, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email      = excluded.email,
			username   = excluded.username,
			updated_at = excluded.updated_at
	`, u.ID.String(), u.Email, u.Username, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert user: %w", err)
	}
	return nil
}

// GetUser returns one user by id.
func (db *DB) GetUser(id uuid.UUID) (*UserRow, error) {
	return db.getUser(`SELECT id, email, username, created_at, updated_at FROM users WHERE id = ?`, id.String())
}

// GetUserByEmail returns one user by unique email.
func (db *DB) GetUserByEmail(email string) (*UserRow, error) {
	return db.getUser(`SELECT id, email, username, created_at, updated_at FROM users WHERE email = ?`, email)
}

func (db *DB) getUser(query string, arg any) (*UserRow, error) {
	var u UserRow
	var id string
	err := db.conn.QueryRow(query, arg).Scan(&id, &u.Email, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("index: get user: %w", err)
	}
	u.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("index: bad user id %q: %w", id, err)
	}
	return &u, nil
}

// ListUsers returns paginated users plus the total count.
func (db *DB) ListUsers(limit, offset int) ([]UserRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count users: %w", err)
	}
	rows, err := db.conn.Query(
		`SELECT id, email, username, created_at, updated_at FROM users ORDER BY username COLLATE NOCASE, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list users: %w", err)
	}
	defer rows.Close()

	var out []UserRow
	for rows.Next() {
		var u UserRow
		var id string
		if err := rows.Scan(&id, &u.Email, &u.Username, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		parsed, parseErr := uuid.Parse(id)
		if parseErr != nil {
			continue
		}
		u.ID = parsed
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// UpsertTeam inserts or updates a team record.
func (db *DB) UpsertTeam(t TeamRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO teams (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			updated_at = excluded.updated_at
	`, t.ID.String(), t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert team: %w", err)
	}
	return nil
}

const teamSelect = `
	SELECT t.id, t.name,
	       (SELECT count(*) FROM memberships m WHERE m.team_id = t.id),
	       t.created_at, t.updated_at
	FROM teams t`

func scanTeam(row interface{ Scan(...any) error }) (*TeamRow, error) {
	var t TeamRow
	var id string
	if err := row.Scan(&id, &t.Name, &t.MemberCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("index: bad team id %q: %w", id, err)
	}
	t.ID = parsed
	return &t, nil
}

// GetTeam returns one team by id.
func (db *DB) GetTeam(id uuid.UUID) (*TeamRow, error) {
	t, err := scanTeam(db.conn.QueryRow(teamSelect+` WHERE t.id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// AddMember records a team membership; adding twice is a no-op.
func (db *DB) AddMember(teamID, userID uuid.UUID) error {
	_, err := db.conn.Exec(
		`INSERT OR IGNORE INTO memberships (team_id, user_id) VALUES (?, ?)`,
		teamID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("index: add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a team membership.
func (db *DB) RemoveMember(teamID, userID uuid.UUID) error {
	_, err := db.conn.Exec(
		`DELETE FROM memberships WHERE team_id = ? AND user_id = ?`,
		teamID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("index: remove member: %w", err)
	}
	return nil
}

// TeamsOf returns the user's teams in membership insertion order. The
// order is stable so layered-configuration merges are deterministic.
func (db *DB) TeamsOf(userID uuid.UUID) ([]TeamRow, error) {
	rows, err := db.conn.Query(teamSelect+`
		JOIN memberships m ON m.team_id = t.id
		WHERE m.user_id = ?
		ORDER BY m.rowid`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("index: teams of user: %w", err)
	}
	defer rows.Close()

	var out []TeamRow
	for rows.Next() {
		t, scanErr := scanTeam(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
