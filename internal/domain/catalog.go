package domain

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultCatalogYAML []byte

// StyleModel is one entry of the fixed style catalog referenced by
// GenerationParameters.StyleModelID.
type StyleModel struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	StyleModel string `yaml:"style_model" json:"style_model"`
	ClipVision string `yaml:"clip_vision" json:"clip_vision"`
}

// StyleCatalog resolves style ids to backend model files.
type StyleCatalog struct {
	Default string       `yaml:"default"`
	Styles  []StyleModel `yaml:"styles"`
}

// DefaultStyleCatalog returns the catalog compiled into the binary.
func DefaultStyleCatalog() *StyleCatalog {
	c, err := ParseStyleCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded style catalog: %v", err))
	}
	return c
}

// LoadStyleCatalog reads a catalog override from path, or the embedded one
// when path is empty.
func LoadStyleCatalog(path string) (*StyleCatalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultStyleCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style catalog: %w", err)
	}
	return ParseStyleCatalog(data)
}

// ParseStyleCatalog decodes and validates catalog YAML.
func ParseStyleCatalog(data []byte) (*StyleCatalog, error) {
	var c StyleCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode style catalog: %w", err)
	}
	if len(c.Styles) == 0 {
		return nil, fmt.Errorf("style catalog is empty")
	}
	seen := make(map[string]bool, len(c.Styles))
	for i := range c.Styles {
		s := &c.Styles[i]
		s.ID = strings.ToLower(strings.TrimSpace(s.ID))
		if s.ID == "" || s.StyleModel == "" {
			return nil, fmt.Errorf("style catalog entry %d: id and style_model are required", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("style catalog: duplicate id %q", s.ID)
		}
		seen[s.ID] = true
	}
	c.Default = strings.ToLower(strings.TrimSpace(c.Default))
	if c.Default == "" {
		c.Default = c.Styles[0].ID
	}
	if !seen[c.Default] {
		return nil, fmt.Errorf("style catalog: default %q is not listed", c.Default)
	}
	return &c, nil
}

// Lookup returns the style registered under id.
func (c *StyleCatalog) Lookup(id string) (StyleModel, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, s := range c.Styles {
		if s.ID == id {
			return s, true
		}
	}
	return StyleModel{}, false
}
