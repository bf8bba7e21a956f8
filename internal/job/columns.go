package job

import (
	"fmt"
	"strings"

	"github.com/koltyakov/formexport/internal/config"
	"github.com/koltyakov/formexport/internal/export"
	"github.com/koltyakov/formexport/internal/storageurl"
	"github.com/koltyakov/formexport/pkg/types"
)

// staticField reads one column of the submissions table
type staticField struct {
	key string
	get func(s types.Submission) interface{}
}

var staticFields = map[string]staticField{
	"id":           {"ID", func(s types.Submission) interface{} { return s.ID }},
	"form_id":      {"FormID", func(s types.Submission) interface{} { return s.FormID }},
	"is_complete":  {"IsComplete", func(s types.Submission) interface{} { return s.IsComplete }},
	"created_at":   {"CreatedAt", func(s types.Submission) interface{} { return s.CreatedAt }},
	"updated_at":   {"UpdatedAt", func(s types.Submission) interface{} { return s.UpdatedAt }},
	"completed_at": {"CompletedAt", func(s types.Submission) interface{} { return s.CompletedAt }},
}

// BuiltinColumns lead every submission export, in this order
var BuiltinColumns = []string{"id", "form_id", "created_at", "updated_at", "is_complete"}

func lookupStatic(key string) (staticField, bool) {
	norm := strings.ToLower(strings.TrimSpace(key))
	if f, ok := staticFields[norm]; ok {
		return f, true
	}
	// Accept Go field names such as CreatedAt
	for _, f := range staticFields {
		if strings.EqualFold(f.key, norm) {
			return f, true
		}
	}
	return staticField{}, false
}

// SubmissionColumns builds the built-in columns followed by the layout
// columns. Transformers referenced by name are resolved here; storage-url
// uses rewriter, which may be inert.
func SubmissionColumns(layout []config.ColumnSpec, rewriter *storageurl.Rewriter) ([]*export.Column[types.Submission], error) {
	columns := make([]*export.Column[types.Submission], 0, len(BuiltinColumns)+len(layout))
	names := make(map[string]bool, cap(columns))

	for _, name := range BuiltinColumns {
		f := staticFields[name]
		columns = append(columns, export.Static(name, f.key, f.get).Build())
		names[name] = true
	}

	for _, col := range layout {
		lower := strings.ToLower(col.Name)
		if names[lower] {
			return nil, fmt.Errorf("column %q duplicates an existing column", col.Name)
		}
		names[lower] = true

		var b *export.ColumnBuilder[types.Submission]
		switch col.Source {
		case config.SourceStatic:
			f, ok := lookupStatic(col.Key)
			if !ok {
				return nil, fmt.Errorf("column %q: unknown submission field %q", col.Name, col.Key)
			}
			b = export.Static(col.Name, f.key, f.get)
		default:
			b = export.JSONPath[types.Submission](col.Name, col.Key)
		}

		for _, name := range col.Transformers {
			switch name {
			case config.TransformerContentURL:
				b.AddTransformer(export.ContentURL{})
			case config.TransformerStorageURL:
				b.AddTransformer(rewriter)
			default:
				return nil, fmt.Errorf("column %q: unknown transformer %q", col.Name, name)
			}
		}

		switch col.Formatter {
		case config.FormatterText:
			b.SetFormatter(export.TextFormatter{})
		case config.FormatterJSON:
			b.SetFormatter(export.JSONFormatter{})
		}

		columns = append(columns, b.Build())
	}
	return columns, nil
}
