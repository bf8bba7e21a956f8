package export

import (
	"time"

	"github.com/koltyakov/formexport/internal/node"
)

// Extractor reads the raw value of a column from its context
type Extractor[R any] func(ctx *Context[R]) interface{}

// Column is an immutable column definition. It is safe to share between
// concurrent exports.
type Column[R any] struct {
	name         string
	sourceKey    string
	extract      Extractor[R]
	transformers []Transformer
	formatter    Formatter
}

// Name returns the output column name
func (c *Column[R]) Name() string { return c.name }

// SourceKey returns the property or document key the column reads
func (c *Column[R]) SourceKey() string { return c.sourceKey }

// HasTransformers reports whether any transformer is registered
func (c *Column[R]) HasTransformers() bool { return len(c.transformers) > 0 }

// GetValue runs the column pipeline for one row. Without transformers the
// raw extracted value is returned as is. Otherwise the value is normalized
// to a node.Node, threaded through the transformers in order and handed to
// the formatter if one is set. Dates bypass the transformers so exporters
// keep rendering them in their own date layout. Values that cannot be
// normalized, and transformer panics, degrade to the raw value.
func (c *Column[R]) GetValue(ctx *Context[R]) (out interface{}) {
	raw := c.extract(ctx)
	if len(c.transformers) == 0 {
		return raw
	}
	if isTime(raw) {
		if c.formatter != nil {
			return c.formatter.Format(raw, ctx)
		}
		return raw
	}

	n, err := node.FromValue(raw)
	if err != nil {
		ctx.Debugf("column %s: skipping transformers: %v", c.name, err)
		return raw
	}

	defer func() {
		if r := recover(); r != nil {
			ctx.Debugf("column %s: transformer panicked, using raw value: %v", c.name, r)
			out = raw
		}
	}()

	for _, t := range c.transformers {
		n = t.Transform(n, ctx)
	}
	if c.formatter != nil {
		return c.formatter.Format(n, ctx)
	}
	return n
}

func isTime(v interface{}) bool {
	switch t := v.(type) {
	case time.Time:
		return true
	case *time.Time:
		return t != nil
	}
	return false
}

// ColumnBuilder assembles a Column. Build returns an independent copy, so a
// builder can keep being extended without affecting built columns.
type ColumnBuilder[R any] struct {
	col Column[R]
}

// Static starts a column that reads a fixed property off the row
func Static[R any](name, sourceKey string, get func(row R) interface{}) *ColumnBuilder[R] {
	return &ColumnBuilder[R]{col: Column[R]{
		name:      name,
		sourceKey: sourceKey,
		extract: func(ctx *Context[R]) interface{} {
			return get(ctx.Row)
		},
	}}
}

// JSONPath starts a column that reads key (a dot-separated path) from the
// row's JSON document. The value is returned as a node.Node; rows without a
// document, or without the key, yield nil.
func JSONPath[R any](name, key string) *ColumnBuilder[R] {
	return &ColumnBuilder[R]{col: Column[R]{
		name:      name,
		sourceKey: key,
		extract: func(ctx *Context[R]) interface{} {
			doc, ok := ctx.Document()
			if !ok {
				return nil
			}
			v, ok := doc.Lookup(key)
			if !ok {
				return nil
			}
			return v
		},
	}}
}

// AddTransformer appends t to the transformer chain
func (b *ColumnBuilder[R]) AddTransformer(t Transformer) *ColumnBuilder[R] {
	if t != nil {
		b.col.transformers = append(b.col.transformers, t)
	}
	return b
}

// SetFormatter sets the terminal formatter
func (b *ColumnBuilder[R]) SetFormatter(f Formatter) *ColumnBuilder[R] {
	b.col.formatter = f
	return b
}

// Build returns the finished column
func (b *ColumnBuilder[R]) Build() *Column[R] {
	c := b.col
	c.transformers = append([]Transformer(nil), b.col.transformers...)
	return &c
}
