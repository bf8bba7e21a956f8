package export

import (
	"github.com/koltyakov/formexport/internal/node"
)

// Diagnostics receives non-fatal pipeline messages
type Diagnostics interface {
	Debugf(format string, args ...interface{})
}

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}

// Discard drops every diagnostic message
var Discard Diagnostics = discard{}

// RowContext is the row view handed to transformers and formatters as their
// Diagnostics argument during column evaluation
type RowContext interface {
	Diagnostics
	// Document returns the row's parsed JSON document
	Document() (node.Node, bool)
}

var _ RowContext = (*Context[struct{}])(nil)

// Documenter is implemented by rows that carry a pre-serialized JSON
// document. A nil result means the row has no document.
type Documenter interface {
	Document() []byte
}

// document is the lazily parsed payload of one row, shared by every column
// evaluated for that row.
type document struct {
	raw    []byte
	parsed bool
	node   node.Node
	ok     bool
}

func (d *document) load(diag Diagnostics) (node.Node, bool) {
	if d == nil {
		return node.Node{}, false
	}
	if !d.parsed {
		d.parsed = true
		if len(d.raw) > 0 {
			n, err := node.Parse(d.raw)
			if err != nil {
				diag.Debugf("row document is not valid JSON, json columns will be empty: %v", err)
			} else {
				d.node, d.ok = n, true
			}
		}
		d.raw = nil
	}
	return d.node, d.ok
}

func newDocument[R any](row R) *document {
	if d, ok := any(row).(Documenter); ok {
		return &document{raw: d.Document()}
	}
	return nil
}

// Context is the execution context of one column for one row
type Context[R any] struct {
	Row  R
	diag Diagnostics
	doc  *document
}

// NewContext builds a standalone context for row. Exporters share one parsed
// document across all columns of a row; this constructor parses on demand
// for a single column evaluation.
func NewContext[R any](row R, diag Diagnostics) *Context[R] {
	if diag == nil {
		diag = Discard
	}
	return &Context[R]{Row: row, diag: diag, doc: newDocument(row)}
}

// Document returns the row's parsed JSON document. ok is false when the row
// has no document or it failed to parse.
func (c *Context[R]) Document() (node.Node, bool) {
	return c.doc.load(c)
}

// Debugf forwards to the context's diagnostics sink
func (c *Context[R]) Debugf(format string, args ...interface{}) {
	if c.diag == nil {
		return
	}
	c.diag.Debugf(format, args...)
}
