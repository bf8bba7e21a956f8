package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Column sources
const (
	SourceStatic = "static"
	SourceJSON   = "json"
)

// Transformer and formatter names usable in a column layout
const (
	TransformerContentURL = "content-url"
	TransformerStorageURL = "storage-url"

	FormatterText = "text"
	FormatterJSON = "json"
)

// ColumnSpec describes one exported column in a layout file
type ColumnSpec struct {
	Name         string   `yaml:"name"`
	Key          string   `yaml:"key"`
	Source       string   `yaml:"source"`
	Transformers []string `yaml:"transformers"`
	Formatter    string   `yaml:"formatter"`
}

// LoadColumns reads a column layout file. An empty path yields no columns.
func LoadColumns(path string) ([]ColumnSpec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns file: %w", err)
	}
	cols, err := ParseColumns(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cols, nil
}

// ParseColumns decodes a YAML column layout. The document is either a list
// of columns or a mapping with a "columns" list. Unknown fields are errors.
//
//	- name: email
//	  key: contact.email
//	- name: photo
//	  key: photo
//	  transformers: [content-url, storage-url]
func ParseColumns(data []byte) ([]ColumnSpec, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid column layout: %w", err)
	}

	var cols []ColumnSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var err error
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.MappingNode {
		var doc struct {
			Columns []ColumnSpec `yaml:"columns"`
		}
		err = dec.Decode(&doc)
		cols = doc.Columns
	} else {
		err = dec.Decode(&cols)
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid column layout: %w", err)
	}

	seen := make(map[string]bool, len(cols))
	for i := range cols {
		c := &cols[i]
		c.normalize()
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		lower := strings.ToLower(c.Name)
		if seen[lower] {
			return nil, fmt.Errorf("column %d: duplicate column name %q", i+1, c.Name)
		}
		seen[lower] = true
	}
	return cols, nil
}

func (c *ColumnSpec) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Key = strings.TrimSpace(c.Key)
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	c.Formatter = strings.ToLower(strings.TrimSpace(c.Formatter))
	if c.Source == "" {
		c.Source = SourceJSON
	}
	if c.Key == "" {
		c.Key = c.Name
	}
	for i, t := range c.Transformers {
		c.Transformers[i] = strings.ToLower(strings.TrimSpace(t))
	}
}

// Validate checks a single column
func (c *ColumnSpec) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Source != SourceStatic && c.Source != SourceJSON {
		return fmt.Errorf("%s: source must be %q or %q, got %q", c.Name, SourceStatic, SourceJSON, c.Source)
	}
	for _, t := range c.Transformers {
		switch t {
		case TransformerContentURL, TransformerStorageURL:
		default:
			return fmt.Errorf("%s: unknown transformer %q", c.Name, t)
		}
	}
	switch c.Formatter {
	case "", FormatterText, FormatterJSON:
	default:
		return fmt.Errorf("%s: unknown formatter %q", c.Name, c.Formatter)
	}
	return nil
}
