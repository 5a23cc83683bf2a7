// Package resolver finds the value of a canonical field in a flattened
// document by evaluating a compiled rule against every key.
package resolver

import (
	"sort"
	"strings"

	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
	"github.com/ginjaninja78/nfse-tax-audit/internal/tree"
)

// Match is a resolved field value and where it came from.
type Match struct {
	Key      string
	Value    string
	Fragment string
}

type entry struct {
	key      string
	norm     string
	value    string
	segments int
}

// Index is a flattened document prepared for repeated resolution. Keys are
// normalized once; leaves whose value is blank are not candidates.
type Index struct {
	entries []entry
}

// NewIndex builds an Index over fm.
func NewIndex(fm tree.FlatMap) *Index {
	ix := &Index{entries: make([]entry, 0, len(fm))}
	for _, k := range fm.Keys() {
		v := strings.TrimSpace(fm[k])
		if v == "" {
			continue
		}
		ix.entries = append(ix.entries, entry{
			key:      k,
			norm:     rules.NormalizeKey(k),
			value:    v,
			segments: strings.Count(k, tree.Separator) + 1,
		})
	}
	return ix
}

// Len returns the number of candidate keys.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Resolve returns the trimmed value selected by r, or false when no key
// qualifies.
func (ix *Index) Resolve(r *rules.FieldRule) (string, bool) {
	m, ok := ix.Lookup(r)
	return m.Value, ok
}

// Lookup returns the selected match.
//
// Fragments are tried in rule order and the first fragment with any
// qualifying key wins. Among keys matching that fragment, a key ending with
// it is preferred, then the one with fewer path segments, then the
// lexically smallest. The result depends only on the document contents,
// never on map iteration order.
func (ix *Index) Lookup(r *rules.FieldRule) (Match, bool) {
	m := &r.Matcher
	for _, frag := range m.Fragments {
		var best *entry
		for i := range ix.entries {
			e := &ix.entries[i]
			if !strings.Contains(e.norm, frag) || !qualifies(e.norm, m) {
				continue
			}
			if best == nil || better(e, best, frag) {
				best = e
			}
		}
		if best != nil {
			return Match{Key: best.key, Value: best.value, Fragment: frag}, true
		}
	}
	return Match{}, false
}

// Candidates lists every qualifying key for r in selection order. It is
// meant for explaining a resolution, not for the hot path.
func (ix *Index) Candidates(r *rules.FieldRule) []Match {
	m := &r.Matcher
	var out []Match
	taken := make(map[string]bool)
	for _, frag := range m.Fragments {
		var group []*entry
		for i := range ix.entries {
			e := &ix.entries[i]
			if taken[e.key] || !strings.Contains(e.norm, frag) || !qualifies(e.norm, m) {
				continue
			}
			group = append(group, e)
		}
		sort.SliceStable(group, func(i, j int) bool { return better(group[i], group[j], frag) })
		for _, e := range group {
			taken[e.key] = true
			out = append(out, Match{Key: e.key, Value: e.value, Fragment: frag})
		}
	}
	return out
}

// Resolve is a convenience wrapper for a single lookup on a flat map.
func Resolve(fm tree.FlatMap, r *rules.FieldRule) (string, bool) {
	return NewIndex(fm).Resolve(r)
}

func qualifies(norm string, m *rules.Matcher) bool {
	for _, t := range m.Require {
		if !strings.Contains(norm, t) {
			return false
		}
	}
	if containsAny(norm, m.Exclude) || containsAny(norm, m.Opposite) {
		return false
	}
	if len(m.Own) > 0 && !containsAny(norm, m.Own) {
		return false
	}
	return true
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func better(a, b *entry, frag string) bool {
	as, bs := strings.HasSuffix(a.norm, frag), strings.HasSuffix(b.norm, frag)
	if as != bs {
		return as
	}
	if a.segments != b.segments {
		return a.segments < b.segments
	}
	return a.key < b.key
}
