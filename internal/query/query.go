// Package query provides a small algebra of filter predicates over a schema
// of typed fields. Nodes are plain data; evaluation belongs to the search
// backend that receives them.
package query

import (
	"strconv"
	"strings"
	"time"
)

// Kind tags the variant held by a Node.
type Kind int

// Node kinds.
const (
	KindPhrase Kind = iota + 1
	KindRange
	KindText
	KindNot
	KindAnd
	KindOr
)

func (k Kind) String() string {
	switch k {
	case KindPhrase:
		return "phrase"
	case KindRange:
		return "range"
	case KindText:
		return "text"
	case KindNot:
		return "not"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	}
	return "unknown"
}

// Node is one predicate of a boolean query tree.
//
// Phrase uses Field and Value, Text uses Field and Value as the search term,
// Range uses Field, Low and High (either bound may be empty for an open end),
// Not has exactly one child, And and Or have one or more children.
type Node struct {
	Kind     Kind
	Field    string
	Value    string
	Low      string
	High     string
	Children []Node
}

// IsZero reports whether n is the zero Node.
func (n Node) IsZero() bool {
	return n.Kind == 0
}

// String renders the canonical text form of the tree. Structurally equal
// trees render identically, so the result can serve as a cache key.
func (n Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n Node) write(b *strings.Builder) {
	b.WriteString(n.Kind.String())
	b.WriteByte('(')
	switch n.Kind {
	case KindPhrase, KindText:
		b.WriteString(n.Field)
		b.WriteByte(',')
		b.WriteString(strconv.Quote(n.Value))
	case KindRange:
		b.WriteString(n.Field)
		b.WriteByte(',')
		b.WriteString(strconv.Quote(n.Low))
		b.WriteByte(',')
		b.WriteString(strconv.Quote(n.High))
	default:
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.write(b)
		}
	}
	b.WriteByte(')')
}

// And joins nodes conjunctively. Zero children is a composition error.
func And(nodes ...Node) (Node, error) {
	return compose(KindAnd, nodes)
}

// Or joins nodes disjunctively. Zero children is a composition error.
func Or(nodes ...Node) (Node, error) {
	return compose(KindOr, nodes)
}

// Not negates n.
func Not(n Node) Node {
	return Node{Kind: KindNot, Children: []Node{n}}
}

// AllOf is And that returns a lone child unwrapped.
func AllOf(nodes ...Node) (Node, error) {
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return And(nodes...)
}

// AnyOf is Or that returns a lone child unwrapped.
func AnyOf(nodes ...Node) (Node, error) {
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return Or(nodes...)
}

func compose(kind Kind, nodes []Node) (Node, error) {
	if len(nodes) == 0 {
		return Node{}, &EmptyCompositionError{Kind: kind}
	}
	children := make([]Node, len(nodes))
	copy(children, nodes)
	return Node{Kind: kind, Children: children}, nil
}

// timeLayout is fixed width so that stored values compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t for Range bounds and time-typed index columns.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// ParseTime reverses FormatTime. Malformed or empty input yields the zero time.
func ParseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
