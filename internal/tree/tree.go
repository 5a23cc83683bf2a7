// =============================================================================
// NFS-e Tax Audit - Document Tree
// =============================================================================
//
// This package models a parsed document as a closed sum type and flattens it
// into a single-level key/value map.
//
//   Node = *Element   ordered, named children
//        | List       repeated siblings, in document order
//        | Leaf       scalar text
//
// XML documents are decoded with etree (see xml.go); generic decoded values
// (maps, slices, scalars) are converted with FromValue (see value.go).
//
// =============================================================================

package tree

// Node is implemented by *Element, List and Leaf only.
type Node interface {
	isNode()
}

// Child is a named entry of an Element.
type Child struct {
	Name string
	Node Node
}

// Element is an ordered set of named children. Names are expected to be
// unique within one element once namespace prefixes are stripped; repeated
// names belong in a List.
type Element struct {
	Children []Child
}

// List holds repeated siblings.
type List []Node

// Leaf is a scalar value.
type Leaf string

func (*Element) isNode() {}
func (List) isNode()     {}
func (Leaf) isNode()     {}

// Add appends a named child.
func (e *Element) Add(name string, n Node) *Element {
	e.Children = append(e.Children, Child{Name: name, Node: n})
	return e
}

// CountLeaves returns the number of scalar leaves under n.
func CountLeaves(n Node) int {
	switch v := n.(type) {
	case *Element:
		if v == nil {
			return 0
		}
		total := 0
		for _, c := range v.Children {
			total += CountLeaves(c.Node)
		}
		return total
	case List:
		total := 0
		for _, item := range v {
			total += CountLeaves(item)
		}
		return total
	case Leaf:
		return 1
	}
	return 0
}
