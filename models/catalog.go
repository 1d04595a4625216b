package models

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// TopPlayerMinWins is the league-wide win count a unique leader needs for the topPlayer rung.
const TopPlayerMinWins = 100

// DeckTypeEntry describes one canonical deck type and its gym badge.
type DeckTypeEntry struct {
	Key         string   `yaml:"key" json:"key"`
	Badge       string   `yaml:"badge" json:"badge"`
	Description string   `yaml:"description" json:"description"`
	Aliases     []string `yaml:"aliases" json:"aliases,omitempty"`
	IconURL     string   `yaml:"icon_url" json:"icon_url,omitempty"`
}

// Catalog is the static configuration seeded into the store at startup.
type Catalog struct {
	DeckTypes    []DeckTypeEntry         `yaml:"deck_types"`
	Achievements []AchievementDefinition `yaml:"achievements"`
}

// LoadCatalog parses the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.DeckTypes) == 0 {
		return fmt.Errorf("catalog has no deck types")
	}
	seen := make(map[string]bool, len(c.DeckTypes))
	for _, d := range c.DeckTypes {
		if d.Key == "" {
			return fmt.Errorf("catalog deck type without key")
		}
		if seen[d.Key] {
			return fmt.Errorf("duplicate deck type %q", d.Key)
		}
		seen[d.Key] = true
	}
	ids := make(map[string]bool, len(c.Achievements))
	for _, a := range c.Achievements {
		if a.ID == "" {
			return fmt.Errorf("catalog achievement without id")
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate achievement %q", a.ID)
		}
		if !a.RequirementType.Valid() {
			return fmt.Errorf("achievement %q: unknown requirement type %q", a.ID, a.RequirementType)
		}
		ids[a.ID] = true
	}
	return nil
}

// CategoryBadges returns one gym badge per deck type.
func (c *Catalog) CategoryBadges() []CategoryBadge {
	out := make([]CategoryBadge, 0, len(c.DeckTypes))
	for _, d := range c.DeckTypes {
		out = append(out, CategoryBadge{
			Category:    d.Key,
			Name:        d.Badge,
			Description: d.Description,
			IconURL:     d.IconURL,
		})
	}
	return out
}
