package export

import (
	"strings"

	"github.com/koltyakov/formexport/internal/node"
)

// Transformer maps one node to another. Implementations must handle every
// node kind and return the input unchanged when they cannot process it.
// During column evaluation diag is a RowContext for the current row.
type Transformer interface {
	Transform(n node.Node, diag Diagnostics) node.Node
}

// TransformerFunc adapts a function to the Transformer interface
type TransformerFunc func(n node.Node, diag Diagnostics) node.Node

// Transform implements Transformer
func (f TransformerFunc) Transform(n node.Node, diag Diagnostics) node.Node {
	return f(n, diag)
}

// DefaultContentField is the file-answer member holding the file URL
const DefaultContentField = "content"

// ContentURL extracts file URLs from file-question answers such as
// {"name":"f.jpg","type":"image/jpeg","content":"https://..."}.
//
// Objects yield their content string, arrays yield the content strings of
// their object elements, and strings holding embedded JSON are parsed and
// handled once. Anything else, or a structure with no usable URL, is
// returned unchanged.
type ContentURL struct {
	// Field overrides the member name, DefaultContentField when empty
	Field string
}

// Transform implements Transformer
func (t ContentURL) Transform(n node.Node, diag Diagnostics) node.Node {
	if out, ok := t.extract(n, diag, true); ok {
		return out
	}
	return n
}

func (t ContentURL) extract(n node.Node, diag Diagnostics, embedded bool) (node.Node, bool) {
	switch n.Kind() {
	case node.KindObject:
		return t.fromObject(n)
	case node.KindArray:
		var urls []node.Node
		for _, item := range n.Items() {
			if u, ok := t.fromObject(item); ok {
				urls = append(urls, u)
			}
		}
		if len(urls) == 0 {
			return node.Node{}, false
		}
		return node.Array(urls...), true
	case node.KindString:
		if !embedded {
			return node.Node{}, false
		}
		s, _ := n.Str()
		s = strings.TrimSpace(s)
		if s == "" || (s[0] != '{' && s[0] != '[') {
			return node.Node{}, false
		}
		parsed, err := node.ParseString(s)
		if err != nil {
			diag.Debugf("content-url: malformed embedded JSON, keeping value: %v", err)
			return node.Node{}, false
		}
		return t.extract(parsed, diag, false)
	default:
		return node.Node{}, false
	}
}

func (t ContentURL) fromObject(n node.Node) (node.Node, bool) {
	field := t.Field
	if field == "" {
		field = DefaultContentField
	}
	v, ok := n.Get(field)
	if !ok {
		return node.Node{}, false
	}
	s, ok := v.Str()
	if !ok || strings.TrimSpace(s) == "" {
		return node.Node{}, false
	}
	return node.String(s), true
}
