package tree

import (
	"sort"
	"strconv"
	"strings"
)

// Separator joins path segments in flattened keys.
const Separator = "_"

// FlatMap maps a synthesized path key to a leaf value.
type FlatMap map[string]string

// Keys returns the map keys in lexical order.
func (m FlatMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten converts a tree into a FlatMap.
//
// Every leaf is emitted under the path of its ancestors joined with "_".
// Each segment has its namespace prefix ("ns2:" in "ns2:CNPJ") removed, and
// list elements get their position appended ("_0", "_1", ...). A nil or
// empty tree yields an empty map, which callers treat as an unusable
// document.
//
// When two different paths synthesize the same key (for instance a tag
// literally named "A_B" next to A/B) the later one is suffixed "_dup1",
// "_dup2", ... so no leaf is lost. Children are walked in stored order,
// which makes the output deterministic.
func Flatten(n Node) FlatMap {
	out := make(FlatMap)
	if n == nil {
		return out
	}
	walk(n, "", out)
	return out
}

func walk(n Node, key string, out FlatMap) {
	switch v := n.(type) {
	case *Element:
		if v == nil {
			return
		}
		for _, c := range v.Children {
			walk(c.Node, join(key, StripNamespace(c.Name)), out)
		}
	case List:
		for i, item := range v {
			walk(item, join(key, strconv.Itoa(i)), out)
		}
	case Leaf:
		put(out, key, string(v))
	}
}

func put(out FlatMap, key, value string) {
	if _, taken := out[key]; !taken {
		out[key] = value
		return
	}
	for i := 1; ; i++ {
		k := key + Separator + "dup" + strconv.Itoa(i)
		if _, taken := out[k]; !taken {
			out[k] = value
			return
		}
	}
}

func join(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + Separator + seg
}

// StripNamespace removes a namespace prefix from a single path segment.
// An attribute marker ("@") survives the stripping.
func StripNamespace(seg string) string {
	if strings.HasPrefix(seg, "@") {
		return "@" + StripNamespace(seg[1:])
	}
	if i := strings.IndexByte(seg, ':'); i >= 0 {
		return seg[i+1:]
	}
	return seg
}
