package mcpserver

// ItemFormatContract describes the canonical catalog item layout that
// LLM consumers should follow when authoring skills, MCP integrations,
// and tools.
const ItemFormatContract = `# Atlas Item Descriptor Format

Every catalog item published to Atlas MUST follow this structure.

## Layout

An item is a directory under a scope root containing two files:

` + "```" + `
<scope>/<type-dir>/<item-name>/
    config.yaml     # REQUIRED – machine-readable descriptor
    README.md       # REQUIRED – human-readable documentation
` + "```" + `

Scope roots:

- ` + "`" + `org/` + "`" + ` – visible to everyone in the organization
- ` + "`" + `teams/<team-uuid>/` + "`" + ` – visible to members of that team
- ` + "`" + `users/<user-uuid>/` + "`" + ` – visible only to that user

Type directories: ` + "`" + `skills/` + "`" + `, ` + "`" + `mcps/` + "`" + `, ` + "`" + `tools/` + "`" + `.

## Descriptor (config.yaml)

` + "```" + `yaml
name: code-review          # REQUIRED – letters, digits, hyphens, underscores
description: Reviews PRs   # OPTIONAL – one line, max 500 characters
tags:                      # OPTIONAL – YAML list or comma-separated string
  - review
  - automation
` + "```" + `

## Rules

1. **Item names** contain only letters, digits, hyphens, and underscores.
   The directory name and the ` + "`" + `name` + "`" + ` field should match.
2. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `code-review` + "`" + `, ` + "`" + `ci-cd` + "`" + `).
3. **README.md** starts with a level-1 heading naming the item, followed
   by usage documentation in standard Markdown.
4. **Encoding** is UTF-8 with a trailing newline.
5. **File paths** use forward slashes.

## Example

` + "```" + `yaml
name: deploy-checklist
description: Pre-deployment verification steps for production releases
tags:
  - deployment
  - operations
` + "```" + `
`
