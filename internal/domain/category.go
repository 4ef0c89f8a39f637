package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is a remediation category a diff key can trigger
type Category string

const (
	CategoryBandwidth   Category = "bandwidth"
	CategoryDescription Category = "description"
	CategoryPriorityBit Category = "pbit"
)

// AllCategories lists the categories in a stable order
var AllCategories = []Category{CategoryBandwidth, CategoryDescription, CategoryPriorityBit}

// ParseCategory converts a table name into a Category. The original
// "<name>_update" spelling is accepted as well.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_update")
	for _, c := range AllCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown remediation category %q", s)
}

func (c Category) bit() CategorySet {
	for i, known := range AllCategories {
		if known == c {
			return 1 << i
		}
	}
	return 0
}

// CategorySet is an unordered set of categories
type CategorySet uint8

// NewCategorySet builds a set from the given categories
func NewCategorySet(categories ...Category) CategorySet {
	var s CategorySet
	for _, c := range categories {
		s = s.Add(c)
	}
	return s
}

// Add returns the set with c included
func (s CategorySet) Add(c Category) CategorySet {
	return s | c.bit()
}

// Has reports whether c is in the set
func (s CategorySet) Has(c Category) bool {
	b := c.bit()
	return b != 0 && s&b != 0
}

// Empty reports whether no category is required
func (s CategorySet) Empty() bool {
	return s == 0
}

// List returns the members in AllCategories order
func (s CategorySet) List() []Category {
	var out []Category
	for _, c := range AllCategories {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// String implements fmt.Stringer
func (s CategorySet) String() string {
	parts := make([]string, 0, len(AllCategories))
	for _, c := range s.List() {
		parts = append(parts, string(c))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// MarshalJSON encodes the set as a list of names
func (s CategorySet) MarshalJSON() ([]byte, error) {
	list := s.List()
	if len(list) == 0 {
		return []byte("[]"), nil
	}
	parts := make([]string, len(list))
	for i, c := range list {
		parts[i] = `"` + string(c) + `"`
	}
	return []byte("[" + strings.Join(parts, ",") + "]"), nil
}

// UnmarshalJSON decodes a list of category names
func (s *CategorySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set CategorySet
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return err
		}
		set = set.Add(c)
	}
	*s = set
	return nil
}
