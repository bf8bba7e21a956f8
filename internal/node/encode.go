package node

import (
	"encoding/json"
	"unicode/utf8"
)

const hex = "0123456789abcdef"

// MarshalJSON renders n as compact JSON text. HTML characters are not
// escaped so that URLs and markup survive verbatim in text exports.
func (n Node) MarshalJSON() ([]byte, error) {
	return n.AppendJSON(nil), nil
}

// JSON returns the compact JSON text of n
func (n Node) JSON() string {
	return string(n.AppendJSON(nil))
}

// AppendJSON appends the compact JSON text of n to dst
func (n Node) AppendJSON(dst []byte) []byte {
	switch n.kind {
	case KindBool:
		if n.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case KindNumber:
		return append(dst, n.s...)
	case KindString:
		return appendString(dst, n.s)
	case KindArray:
		dst = append(dst, '[')
		for i, item := range n.items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = item.AppendJSON(dst)
		}
		return append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i, m := range n.members {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, m.Key)
			dst = append(dst, ':')
			dst = m.Value.AppendJSON(dst)
		}
		return append(dst, '}')
	default:
		return append(dst, "null"...)
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Interface converts n to plain Go values: nil, bool, json.Number, string,
// []any and map[string]any.
func (n Node) Interface() any {
	switch n.kind {
	case KindBool:
		return n.b
	case KindNumber:
		return json.Number(n.s)
	case KindString:
		return n.s
	case KindArray:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.members))
		for _, m := range n.members {
			out[m.Key] = m.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			dst = append(dst, s[start:i]...)
			switch c {
			case '"', '\\':
				dst = append(dst, '\\', c)
			case '\n':
				dst = append(dst, '\\', 'n')
			case '\r':
				dst = append(dst, '\\', 'r')
			case '\t':
				dst = append(dst, '\\', 't')
			default:
				dst = append(dst, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, s[start:i]...)
			dst = append(dst, `\ufffd`...)
			i += size
			start = i
			continue
		}
		// U+2028 and U+2029 break JavaScript parsers
		if r == '\u2028' || r == '\u2029' {
			dst = append(dst, s[start:i]...)
			dst = append(dst, '\\', 'u', '2', '0', '2', hex[r&0xf])
			i += size
			start = i
			continue
		}
		i += size
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}
