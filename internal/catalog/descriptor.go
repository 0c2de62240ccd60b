package catalog

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is the optional per-item config.yaml. All fields default:
// a malformed or missing descriptor never fails a scan, the item falls
// back to path-derived values.
type Descriptor struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Tags        tagList `yaml:"tags"`
}

// tagList accepts either a YAML sequence or a comma-separated scalar.
type tagList []string

func (t *tagList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*t = items
	case yaml.ScalarNode:
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*t = nil
			return nil
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*t = parts
	}
	return nil
}

// ParseDescriptor parses descriptor bytes. Invalid YAML yields a zero
// Descriptor rather than an error.
func ParseDescriptor(data []byte) Descriptor {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}
	}
	return d
}

// DescriptorYAML renders a descriptor back to YAML for item writes.
func DescriptorYAML(name, description string, tags []string) string {
	out, err := yaml.Marshal(struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		Tags        []string `yaml:"tags"`
	}{Name: name, Description: description, Tags: NormalizeTags(tags)})
	if err != nil {
		return ""
	}
	return string(out)
}
