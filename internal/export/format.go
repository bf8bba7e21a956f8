package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koltyakov/formexport/internal/node"
)

// Formatter is the terminal pipeline stage producing a format-ready value.
// During column evaluation diag is a RowContext for the current row.
type Formatter interface {
	Format(v interface{}, diag Diagnostics) interface{}
}

// FormatterFunc adapts a function to the Formatter interface
type FormatterFunc func(v interface{}, diag Diagnostics) interface{}

// Format implements Formatter
func (f FormatterFunc) Format(v interface{}, diag Diagnostics) interface{} {
	return f(v, diag)
}

// DefaultTimeLayout renders dates in row-oriented text exports
const DefaultTimeLayout = "2006-01-02 15:04:05"

// TextFormatter renders values for row-oriented text formats such as CSV.
// Scalar arrays are joined with ", "; arrays holding nested structures and
// objects are kept as raw JSON text.
type TextFormatter struct {
	// TimeLayout overrides DefaultTimeLayout when set
	TimeLayout string
}

// Format implements Formatter and always returns a string
func (f TextFormatter) Format(v interface{}, diag Diagnostics) interface{} {
	return f.String(v, diag)
}

// String renders v as text. Null renders as the empty string.
func (f TextFormatter) String(v interface{}, diag Diagnostics) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case node.Node:
		return f.node(val)
	case *node.Node:
		if val == nil {
			return ""
		}
		return f.node(*val)
	case time.Time:
		return val.Format(f.layout())
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format(f.layout())
	case bool:
		return strconv.FormatBool(val)
	case []byte:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}

	n, err := node.FromValue(v)
	if err != nil {
		if diag != nil {
			diag.Debugf("text formatter: %v", err)
		}
		return fmt.Sprintf("%v", v)
	}
	return f.node(n)
}

func (f TextFormatter) layout() string {
	if f.TimeLayout != "" {
		return f.TimeLayout
	}
	return DefaultTimeLayout
}

func (f TextFormatter) node(n node.Node) string {
	switch n.Kind() {
	case node.KindNull:
		return ""
	case node.KindBool:
		b, _ := n.BoolValue()
		return strconv.FormatBool(b)
	case node.KindNumber:
		lit, _ := n.NumberText()
		return lit
	case node.KindString:
		s, _ := n.Str()
		return s
	case node.KindArray:
		items := n.Items()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if !item.IsScalar() {
				return n.JSON()
			}
			if item.IsNull() {
				continue
			}
			parts = append(parts, f.node(item))
		}
		return strings.Join(parts, ", ")
	default:
		return n.JSON()
	}
}

// JSONFormatter produces node.Node values for structured JSON output.
// Structured values pass through; dates render as RFC 3339 strings.
type JSONFormatter struct{}

// Format implements Formatter and always returns a node.Node
func (JSONFormatter) Format(v interface{}, diag Diagnostics) interface{} {
	return JSONFormatter{}.Node(v, diag)
}

// Node converts v to a node.Node, falling back to its %v text when v has no
// JSON representation.
func (JSONFormatter) Node(v interface{}, diag Diagnostics) node.Node {
	n, err := node.FromValue(v)
	if err != nil {
		if diag != nil {
			diag.Debugf("json formatter: %v", err)
		}
		return node.String(fmt.Sprintf("%v", v))
	}
	return n
}
