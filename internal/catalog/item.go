// Package catalog models the content-store catalog: items discovered by
// scanning, their scope-based visibility, and the TTL-bounded cache that
// serves list/get/count queries.
package catalog

import (
	"strings"

	"github.com/google/uuid"
)

// ItemType discriminates catalog items.
type ItemType string

const (
	TypeSkill ItemType = "skill"
	TypeMCP   ItemType = "mcp"
	TypeTool  ItemType = "tool"
)

// Scope is the visibility tier of an item or configuration level.
type Scope string

const (
	ScopeOrg  Scope = "org"
	ScopeTeam Scope = "team"
	ScopeUser Scope = "user"
)

// Item is a catalog entry derived from content-store paths.
// ScopeID is the owning team or user id; it is uuid.Nil for org scope.
type Item struct {
	ID          string    `json:"id"`
	Type        ItemType  `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Scope       Scope     `json:"scope"`
	ScopeID     uuid.UUID `json:"scope_id,omitempty"`
	Path        string    `json:"path"`
	ReadmePath  string    `json:"readme_path,omitempty"`
}

// Detail is an item together with its README documentation.
type Detail struct {
	Item
	Documentation string `json:"documentation"`
}

// Viewer identifies who is looking at the catalog. A nil *Viewer is an
// anonymous viewer and sees only org-scoped items.
type Viewer struct {
	UserID  uuid.UUID
	TeamIDs []uuid.UUID
}

// VisibleTo reports whether the item is visible to the given viewer.
func (i Item) VisibleTo(v *Viewer) bool {
	switch i.Scope {
	case ScopeOrg:
		return true
	case ScopeTeam:
		if v == nil {
			return false
		}
		for _, tid := range v.TeamIDs {
			if tid == i.ScopeID {
				return true
			}
		}
		return false
	case ScopeUser:
		return v != nil && v.UserID == i.ScopeID
	}
	return false
}

// MatchesQuery reports whether the item matches a case-insensitive
// substring query against name, description, or any tag.
func (i Item) MatchesQuery(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(i.Name), q) {
		return true
	}
	if strings.Contains(strings.ToLower(i.Description), q) {
		return true
	}
	for _, tag := range i.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
