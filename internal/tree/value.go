package tree

import (
	"encoding/json"
	"sort"
	"strconv"
)

// FromValue converts a generic decoded value (as produced by encoding/json
// or yaml.v3 into map[string]any) into a tree.
//
// Map keys are visited in sorted order. nil becomes an empty Leaf. Values of
// any other type make the whole conversion return nil, which Flatten turns
// into an empty map.
func FromValue(v any) Node {
	n, ok := fromValue(v)
	if !ok {
		return nil
	}
	return n
}

func fromValue(v any) (Node, bool) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		el := &Element{}
		for _, k := range keys {
			child, ok := fromValue(t[k])
			if !ok {
				return nil, false
			}
			el.Add(k, child)
		}
		return el, true
	case []any:
		list := make(List, 0, len(t))
		for _, item := range t {
			child, ok := fromValue(item)
			if !ok {
				return nil, false
			}
			list = append(list, child)
		}
		return list, true
	case nil:
		return Leaf(""), true
	case string:
		return Leaf(t), true
	case bool:
		return Leaf(strconv.FormatBool(t)), true
	case int:
		return Leaf(strconv.Itoa(t)), true
	case int64:
		return Leaf(strconv.FormatInt(t, 10)), true
	case float64:
		return Leaf(strconv.FormatFloat(t, 'f', -1, 64)), true
	case json.Number:
		return Leaf(t.String()), true
	}
	return nil, false
}
