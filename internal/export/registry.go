package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/koltyakov/formexport/pkg/errors"
)

// Registry maps format identifiers to exporters of one row type. It is
// filled at startup and read-only afterwards.
type Registry[R any] struct {
	exporters map[string]Exporter[R]
}

// NewRegistry returns a registry holding exporters
func NewRegistry[R any](exporters ...Exporter[R]) (*Registry[R], error) {
	r := &Registry[R]{exporters: make(map[string]Exporter[R], len(exporters))}
	for _, e := range exporters {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds e under its format identifier
func (r *Registry[R]) Register(e Exporter[R]) error {
	format := strings.ToLower(e.Format())
	if _, exists := r.exporters[format]; exists {
		return fmt.Errorf("exporter for format %q already registered", format)
	}
	r.exporters[format] = e
	return nil
}

// Get returns the exporter for format
func (r *Registry[R]) Get(format string) (Exporter[R], error) {
	e, ok := r.exporters[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, errors.NewValidationError("registry.get",
			fmt.Sprintf("unsupported format %q (available: %s)", format, strings.Join(r.Formats(), ", ")), nil)
	}
	return e, nil
}

// Formats returns the registered format identifiers, sorted
func (r *Registry[R]) Formats() []string {
	formats := make([]string, 0, len(r.exporters))
	for f := range r.exporters {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}
