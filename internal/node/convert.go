package node

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// FromValue normalizes a native Go value into a Node. Values that have no
// JSON representation (channels, functions, NaN, cyclic structures) return
// an error.
func FromValue(v any) (Node, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case Node:
		return val, nil
	case *Node:
		if val == nil {
			return Null(), nil
		}
		return *val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case []byte:
		return String(string(val)), nil
	case json.RawMessage:
		return Parse(val)
	case json.Number:
		if _, err := strconv.ParseFloat(string(val), 64); err != nil {
			return Node{}, fmt.Errorf("node: invalid number literal %q", string(val))
		}
		return Number(string(val)), nil
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint:
		return Number(strconv.FormatUint(uint64(val), 10)), nil
	case uint8:
		return Number(strconv.FormatUint(uint64(val), 10)), nil
	case uint16:
		return Number(strconv.FormatUint(uint64(val), 10)), nil
	case uint32:
		return Number(strconv.FormatUint(uint64(val), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(val, 10)), nil
	case float32:
		return Float(float64(val), 32)
	case float64:
		return Float(val, 64)
	case time.Time:
		return String(val.Format(time.RFC3339Nano)), nil
	case *time.Time:
		if val == nil {
			return Null(), nil
		}
		return String(val.Format(time.RFC3339Nano)), nil
	case []any:
		items := make([]Node, len(val))
		for i, item := range val {
			n, err := FromValue(item)
			if err != nil {
				return Node{}, err
			}
			items[i] = n
		}
		return Array(items...), nil
	case []string:
		items := make([]Node, len(val))
		for i, s := range val {
			items[i] = String(s)
		}
		return Array(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, 0, len(val))
		for _, k := range keys {
			n, err := FromValue(val[k])
			if err != nil {
				return Node{}, err
			}
			members = append(members, Member{Key: k, Value: n})
		}
		return Object(members...), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Node{}, fmt.Errorf("node: value of type %T is not JSON-representable: %w", v, err)
	}
	return Parse(data)
}

// Float returns a number node for a float, formatted the way encoding/json
// formats floats. NaN and infinities are rejected.
func Float(f float64, bits int) (Node, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Node{}, fmt.Errorf("node: unsupported float value %v", f)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) || bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	return Number(strconv.FormatFloat(f, format, -1, bits)), nil
}
