package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Parse decodes a single JSON document, preserving object member order and
// number literals.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decode(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Node{}, fmt.Errorf("node: parse: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Node{}, fmt.Errorf("node: parse: unexpected data after top-level value")
	}
	return n, nil
}

// ParseString is Parse for string input
func ParseString(s string) (Node, error) {
	return Parse([]byte(s))
}

func decode(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}

	switch v := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case json.Number:
		return Number(v.String()), nil
	case string:
		return String(v), nil
	case json.Delim:
		switch v {
		case '[':
			items := []Node{}
			for dec.More() {
				item, err := decode(dec)
				if err != nil {
					return Node{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Array(items...), nil
		case '{':
			members := []Member{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Node{}, fmt.Errorf("object key is %T", kt)
				}
				val, err := decode(dec)
				if err != nil {
					return Node{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Object(members...), nil
		}
	}
	return Node{}, fmt.Errorf("unexpected token %v", tok)
}
