package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringList is a list option. Besides a YAML sequence it accepts the
// comma-separated form "a.txt, b.txt", optionally wrapped in brackets.
type StringList []string

// ParseStringList splits "a, b" or "[a, b]" into trimmed, non-empty items.
func ParseStringList(s string) StringList {
	s = strings.NewReplacer("[", "", "]", "").Replace(s)
	var out StringList
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// UnmarshalYAML accepts a scalar or a sequence.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = ParseStringList(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = ParseStringList(strings.Join(items, ","))
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or a comma-separated string", node.Line)
	}
}
