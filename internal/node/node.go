// Package node implements a small ordered JSON value model used by the
// export pipeline. A Node is one of null, bool, number, string, array or
// object; object members keep their document order so that a node can be
// rendered back to the same JSON text it was parsed from.
package node

import (
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Node
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is a single key/value pair of an object node
type Member struct {
	Key   string
	Value Node
}

// Node is an immutable JSON value. The zero value is null.
type Node struct {
	kind Kind
	b    bool
	// s holds the string value, or the literal text of a number
	s       string
	items   []Node
	members []Member
}

// Null returns the null node
func Null() Node { return Node{} }

// Bool returns a boolean node
func Bool(b bool) Node { return Node{kind: KindBool, b: b} }

// Number returns a number node holding the given literal text.
// The literal is not validated; use FromValue for untrusted input.
func Number(literal string) Node { return Node{kind: KindNumber, s: literal} }

// Int returns a number node for an integer
func Int(i int64) Node { return Number(strconv.FormatInt(i, 10)) }

// String returns a string node
func String(s string) Node { return Node{kind: KindString, s: s} }

// Array returns an array node. A nil list yields an empty array.
func Array(items ...Node) Node {
	if items == nil {
		items = []Node{}
	}
	return Node{kind: KindArray, items: items}
}

// Object returns an object node with members in the given order
func Object(members ...Member) Node {
	if members == nil {
		members = []Member{}
	}
	return Node{kind: KindObject, members: members}
}

// Kind returns the variant of n
func (n Node) Kind() Kind { return n.kind }

// IsNull reports whether n is null
func (n Node) IsNull() bool { return n.kind == KindNull }

// IsScalar reports whether n is null, bool, number or string
func (n Node) IsScalar() bool { return n.kind < KindArray }

// Str returns the string value and true when n is a string
func (n Node) Str() (string, bool) {
	if n.kind != KindString {
		return "", false
	}
	return n.s, true
}

// BoolValue returns the boolean value and true when n is a bool
func (n Node) BoolValue() (bool, bool) {
	if n.kind != KindBool {
		return false, false
	}
	return n.b, true
}

// NumberText returns the number literal and true when n is a number
func (n Node) NumberText() (string, bool) {
	if n.kind != KindNumber {
		return "", false
	}
	return n.s, true
}

// Items returns the elements of an array node, nil for other kinds
func (n Node) Items() []Node {
	if n.kind != KindArray {
		return nil
	}
	return n.items
}

// Members returns the members of an object node, nil for other kinds
func (n Node) Members() []Member {
	if n.kind != KindObject {
		return nil
	}
	return n.members
}

// Len returns the element count of arrays and the member count of objects
func (n Node) Len() int {
	switch n.kind {
	case KindArray:
		return len(n.items)
	case KindObject:
		return len(n.members)
	}
	return 0
}

// Get returns the value of an object member. Duplicate keys resolve to the
// last occurrence, matching encoding/json.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindObject {
		return Node{}, false
	}
	for i := len(n.members) - 1; i >= 0; i-- {
		if n.members[i].Key == key {
			return n.members[i].Value, true
		}
	}
	return Node{}, false
}

// Index returns the i-th element of an array node
func (n Node) Index(i int) (Node, bool) {
	if n.kind != KindArray || i < 0 || i >= len(n.items) {
		return Node{}, false
	}
	return n.items[i], true
}

// Lookup resolves a dot-separated path such as "address.city" or
// "files.0.content". A key that exists verbatim (dots included) wins over
// path traversal.
func (n Node) Lookup(path string) (Node, bool) {
	if v, ok := n.Get(path); ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		if i, err := strconv.Atoi(path); err == nil {
			return n.Index(i)
		}
		return Node{}, false
	}

	cur := n
	for _, seg := range strings.Split(path, ".") {
		var ok bool
		switch cur.kind {
		case KindObject:
			cur, ok = cur.Get(seg)
		case KindArray:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return Node{}, false
			}
			cur, ok = cur.Index(i)
		}
		if !ok {
			return Node{}, false
		}
	}
	return cur, true
}
