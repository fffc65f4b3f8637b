package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PropertyChange is one flattened property whose incoming value differs from
// the stored one. Stored is empty when the property was not set.
type PropertyChange struct {
	Path     string `json:"path"`
	Stored   string `json:"stored,omitempty"`
	Incoming string `json:"incoming"`
}

// PropertyDrift lists how a master-data record re-imported under an existing
// natural key disagrees with the stored entity.
type PropertyDrift struct {
	Kind       EntityKind       `json:"kind"`
	NaturalKey string           `json:"natural_key"`
	Changes    []PropertyChange `json:"changes"`
}

// String renders the drift in unified diff style.
func (d PropertyDrift) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s %s (stored)\n", d.Kind, d.NaturalKey)
	fmt.Fprintf(&b, "+++ %s %s (incoming)\n", d.Kind, d.NaturalKey)
	for _, c := range d.Changes {
		if c.Stored != "" {
			fmt.Fprintf(&b, "-%s: %s\n", c.Path, c.Stored)
		}
		fmt.Fprintf(&b, "+%s: %s\n", c.Path, c.Incoming)
	}
	return b.String()
}

// DiffProperties compares the properties an import would write with the
// stored ones. Only paths present in incoming are considered; nested maps and
// slices are flattened to dotted and indexed paths. Changes are sorted by path.
func DiffProperties(stored, incoming map[string]any) ([]PropertyChange, error) {
	before := map[string]string{}
	if len(stored) > 0 {
		if err := flattenProperties("", stored, before); err != nil {
			return nil, err
		}
	}
	after := map[string]string{}
	if len(incoming) > 0 {
		if err := flattenProperties("", incoming, after); err != nil {
			return nil, err
		}
	}

	var changes []PropertyChange
	for path, value := range after {
		if old, ok := before[path]; ok && old == value {
			continue
		}
		changes = append(changes, PropertyChange{Path: path, Stored: before[path], Incoming: value})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func flattenProperties(prefix string, value any, acc map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "{}"
			}
			return nil
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			nextPrefix := key
			if prefix != "" {
				nextPrefix = prefix + "." + key
			}
			if err := flattenProperties(nextPrefix, typed[key], acc); err != nil {
				return err
			}
		}
	case []any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "[]"
			}
			return nil
		}
		for idx, item := range typed {
			nextPrefix := fmt.Sprintf("%s[%d]", prefix, idx)
			if err := flattenProperties(nextPrefix, item, acc); err != nil {
				return err
			}
		}
	case nil:
		if prefix != "" {
			acc[prefix] = "null"
		}
	default:
		if prefix == "" {
			return fmt.Errorf("property key missing for value %v", typed)
		}
		encoded, err := json.Marshal(typed)
		if err != nil {
			acc[prefix] = fmt.Sprintf("%v", typed)
		} else {
			acc[prefix] = string(encoded)
		}
	}
	return nil
}
