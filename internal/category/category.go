package category

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Category is the coarse role of a device, used for display only.
type Category string

const (
	Router       Category = "router"
	AccessSwitch Category = "aswitch"
	CoreSwitch   Category = "cswitch"
)

// Default is returned for models missing from the table.
const Default = Router

// Table maps normalized model strings to categories.
type Table map[string]Category

// DefaultTable returns the built-in model table.
func DefaultTable() Table {
	t := Table{}
	t.add(Router, "ISR4331B", "C897VAK9")
	t.add(AccessSwitch, "WSC3650", "C9300L24", "C9300L48")
	t.add(CoreSwitch, "WSC3850", "C930024S")
	return t
}

func (t Table) add(c Category, models ...string) {
	for _, m := range models {
		t[NormalizeModel(m)] = c
	}
}

// NormalizeModel strips hyphens and uppercases a raw hardware string.
func NormalizeModel(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", ""))
}

// Lookup reports the category of a model and whether the table knows it.
func (t Table) Lookup(raw string) (Category, bool) {
	key := NormalizeModel(raw)
	if key == "" {
		return Default, false
	}
	c, ok := t[key]
	if !ok {
		return Default, false
	}
	return c, true
}

// Resolve returns the category of a model, defaulting to router.
func (t Table) Resolve(raw string) Category {
	c, _ := t.Lookup(raw)
	return c
}

// Load reads a YAML file of the form
//
//	router: [ISR4331B, C897VAK9]
//	aswitch: [WS-C3650]
//
// and merges it over the default table.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse merges a YAML category document over the default table.
func Parse(data []byte) (Table, error) {
	var doc map[string][]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("category table: %w", err)
	}

	t := DefaultTable()
	for name, models := range doc {
		c := Category(strings.ToLower(strings.TrimSpace(name)))
		if !c.Valid() {
			return nil, fmt.Errorf("category table: unknown category %q", name)
		}
		t.add(c, models...)
	}
	return t, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case Router, AccessSwitch, CoreSwitch:
		return true
	}
	return false
}
