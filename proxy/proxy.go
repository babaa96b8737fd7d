package proxy

import (
	"fmt"
	"os"
	"strings"

	"threatsense/models"

	"gopkg.in/yaml.v3"
)

// TopK is the number of ranked classifier labels consulted per image.
const TopK = 5

// Entry binds a disaster category to the classifier label fragments that stand in for it.
type Entry struct {
	Classification models.Classification `yaml:"classification"`
	Tokens         []string              `yaml:"tokens"`
}

// Table is an ordered proxy table. Declaration order breaks ties when a label matches more than one category.
// A Table is read-only once built and safe for concurrent use.
type Table struct {
	entries []Entry
}

type tableFile struct {
	Categories []Entry `yaml:"categories"`
}

// DefaultTable returns the built-in proxy table for an ImageNet-style classifier vocabulary
func DefaultTable() *Table {
	t, err := NewTable([]Entry{
		{Classification: models.Wildfire, Tokens: []string{"volcano", "fire_screen", "lighter", "torch"}},
		{Classification: models.Flood, Tokens: []string{"lakeside", "sandbar", "seashore", "canoe", "dam", "gondola", "boathouse"}},
		{Classification: models.Earthquake, Tokens: []string{"wreck", "cliff", "rubble"}},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable validates entries and builds a Table from them.
// Tokens are lower-cased; a token may belong to a single category only.
func NewTable(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("proxy table is empty")
	}

	owner := make(map[string]models.Classification)
	built := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Classification.IsDisaster() {
			return nil, fmt.Errorf("proxy table: %q is not a disaster category", e.Classification)
		}
		tokens := make([]string, 0, len(e.Tokens))
		for _, tok := range e.Tokens {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok == "" {
				continue
			}
			if prev, ok := owner[tok]; ok {
				return nil, fmt.Errorf("proxy table: token %q listed for both %s and %s", tok, prev, e.Classification)
			}
			owner[tok] = e.Classification
			tokens = append(tokens, tok)
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("proxy table: %s has no tokens", e.Classification)
		}
		built = append(built, Entry{Classification: e.Classification, Tokens: tokens})
	}

	return &Table{entries: built}, nil
}

// LoadTable reads a YAML proxy table override from path
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy table: %w", err)
	}

	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse proxy table %s: %w", path, err)
	}

	return NewTable(f.Categories)
}

// Entries returns a copy of the table entries in declaration order
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{Classification: e.Classification, Tokens: append([]string(nil), e.Tokens...)}
	}
	return out
}

// Match maps a single raw classifier label onto the disaster taxonomy.
// The first category, in declaration order, owning a token that is a substring of the lower-cased label wins.
func (t *Table) Match(label string) models.Classification {
	label = strings.ToLower(label)
	for _, e := range t.entries {
		for _, tok := range e.Tokens {
			if strings.Contains(label, tok) {
				return e.Classification
			}
		}
	}
	return models.Normal
}

// MapLabels maps ranked classifier labels to a category.
// Only the first TopK labels are consulted; the highest ranked matching label decides.
func (t *Table) MapLabels(labels []string) models.Classification {
	if len(labels) > TopK {
		labels = labels[:TopK]
	}
	for _, label := range labels {
		if c := t.Match(label); c != models.Normal {
			return c
		}
	}
	return models.Normal
}
