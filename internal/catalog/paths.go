package catalog

import (
	"strings"

	"github.com/google/uuid"

	"github.com/starford/atlas/internal/checksum"
)

// ConfigFileName is the per-level configuration file inside each scope root.
const ConfigFileName = "claude.md"

// DescriptorFileName is the machine-readable descriptor inside each item
// directory.
const DescriptorFileName = "config.yaml"

// typeDirs maps content-store directory names to item types.
var typeDirs = map[string]ItemType{
	"skills": TypeSkill,
	"mcps":   TypeMCP,
	"tools":  TypeTool,
}

// TypeDir returns the directory name for an item type.
func TypeDir(t ItemType) string {
	switch t {
	case TypeSkill:
		return "skills"
	case TypeMCP:
		return "mcps"
	case TypeTool:
		return "tools"
	}
	return ""
}

// ParseType maps an API type string to an ItemType.
func ParseType(s string) (ItemType, bool) {
	switch ItemType(s) {
	case TypeSkill, TypeMCP, TypeTool:
		return ItemType(s), true
	}
	return "", false
}

// ItemID derives the stable identifier for a content-store path: the first
// 16 hex characters of its SHA-256 digest. The same path always yields the
// same id, which is how the cache and the index re-associate the same
// logical item across rebuilds.
func ItemID(path string) string {
	return checksum.SumString(path)[:16]
}

// ClassifyPath resolves the scope, scope owner, and item type of a
// content-store path. Recognized shapes are:
//
//	{skills|mcps|tools}/...               org scope, bare prefix
//	org/{skills|mcps|tools}/...           org scope
//	teams/{uuid}/{skills|mcps|tools}/...  team scope
//	users/{uuid}/{skills|mcps|tools}/...  user scope
//
// Anything else is unrecognized and reported via ok=false.
func ClassifyPath(path string) (scope Scope, scopeID uuid.UUID, itemType ItemType, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", uuid.Nil, "", false
	}
	if t, isType := typeDirs[parts[0]]; isType {
		return ScopeOrg, uuid.Nil, t, true
	}
	switch parts[0] {
	case "org":
		if t, isType := typeDirs[parts[1]]; isType {
			return ScopeOrg, uuid.Nil, t, true
		}
	case "teams", "users":
		if len(parts) < 3 {
			return "", uuid.Nil, "", false
		}
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return "", uuid.Nil, "", false
		}
		t, isType := typeDirs[parts[2]]
		if !isType {
			return "", uuid.Nil, "", false
		}
		if parts[0] == "teams" {
			return ScopeTeam, id, t, true
		}
		return ScopeUser, id, t, true
	}
	return "", uuid.Nil, "", false
}

// Recognized reports whether the path falls under one of the recognized
// catalog prefixes.
func Recognized(path string) bool {
	_, _, _, ok := ClassifyPath(path)
	return ok
}

// NameFromPath derives an item name from the last path segment with its
// extension stripped.
func NameFromPath(path string) string {
	name := path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// OrgConfigPath is the organization-level configuration path.
func OrgConfigPath() string {
	return "org/" + ConfigFileName
}

// TeamConfigPath is the configuration path for a team.
func TeamConfigPath(teamID uuid.UUID) string {
	return "teams/" + teamID.String() + "/" + ConfigFileName
}

// UserConfigPath is the configuration path for a user.
func UserConfigPath(userID uuid.UUID) string {
	return "users/" + userID.String() + "/" + ConfigFileName
}

// UserItemPath is the directory for an item in a user's namespace.
func UserItemPath(userID uuid.UUID, t ItemType, name string) string {
	return "users/" + userID.String() + "/" + TypeDir(t) + "/" + name
}

// NormalizeTags lower-cases and trims tags, dropping empties and duplicates
// while preserving first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
