package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags the variant held by a Node
type Kind int

const (
	KindVar Kind = iota + 1
	KindLiteral
	KindCompare
	KindAnd
	KindOr
	KindNot
)

func (k Kind) String() string {
	switch k {
	case KindVar:
		return "var"
	case KindLiteral:
		return "literal"
	case KindCompare:
		return "compare"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op is a comparison operator
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// IsValid checks if the operator is one the engine understands
func (o Op) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return true
	}
	return false
}

// Node is one node of a condition tree. Only the fields belonging to Kind
// are meaningful:
//
//	KindVar:     Field
//	KindLiteral: Value
//	KindCompare: Op, Left, Right
//	KindAnd/Or:  Children
//	KindNot:     Children[0]
type Node struct {
	Kind     Kind
	Field    string
	Value    any
	Op       Op
	Left     *Node
	Right    *Node
	Children []*Node
}

// Var references a fact field by name. Dotted names walk nested maps.
func Var(field string) *Node { return &Node{Kind: KindVar, Field: field} }

// Lit wraps a constant value
func Lit(v any) *Node { return &Node{Kind: KindLiteral, Value: v} }

// Compare builds a comparison node
func Compare(op Op, left, right *Node) *Node {
	return &Node{Kind: KindCompare, Op: op, Left: left, Right: right}
}

// Eq is shorthand for Compare(OpEq, Var(field), Lit(v)), the most common shape in rule files
func Eq(field string, v any) *Node { return Compare(OpEq, Var(field), Lit(v)) }

// In is shorthand for testing that a field's value is one of the given values
func In(field string, values ...any) *Node { return Compare(OpIn, Var(field), Lit(values)) }

// And is true when every child is true. And() is true.
func And(children ...*Node) *Node { return &Node{Kind: KindAnd, Children: children} }

// Or is true when any child is true. Or() is false.
func Or(children ...*Node) *Node { return &Node{Kind: KindOr, Children: children} }

// Not negates its child
func Not(child *Node) *Node { return &Node{Kind: KindNot, Children: []*Node{child}} }

// MaxDepth bounds condition nesting accepted by Validate
const MaxDepth = 64

// Validate checks the structure of a condition tree. path is used as the
// prefix in error messages (e.g. "rules[0].condition").
func Validate(n *Node, path string) error {
	return validate(n, path, 0)
}

func validate(n *Node, path string, depth int) error {
	if n == nil {
		return fmt.Errorf("%s: missing condition", path)
	}
	if depth > MaxDepth {
		return fmt.Errorf("%s: condition nested deeper than %d levels", path, MaxDepth)
	}
	switch n.Kind {
	case KindVar:
		if strings.TrimSpace(n.Field) == "" {
			return fmt.Errorf("%s: var requires a field name", path)
		}
		for _, part := range strings.Split(n.Field, ".") {
			if part == "" {
				return fmt.Errorf("%s: malformed field path %q", path, n.Field)
			}
		}
	case KindLiteral:
		if err := validateLiteral(n.Value); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case KindCompare:
		if !n.Op.IsValid() {
			return fmt.Errorf("%s: unknown operator %q", path, n.Op)
		}
		if err := validate(n.Left, path+"."+string(n.Op)+"[0]", depth+1); err != nil {
			return err
		}
		if err := validate(n.Right, path+"."+string(n.Op)+"[1]", depth+1); err != nil {
			return err
		}
	case KindAnd, KindOr:
		for i, c := range n.Children {
			if err := validate(c, fmt.Sprintf("%s.%s[%d]", path, n.Kind, i), depth+1); err != nil {
				return err
			}
		}
	case KindNot:
		if len(n.Children) != 1 {
			return fmt.Errorf("%s: not takes exactly one operand (got %d)", path, len(n.Children))
		}
		if err := validate(n.Children[0], path+".not", depth+1); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: unknown node kind %s", path, n.Kind)
	}
	return nil
}

func validateLiteral(v any) error {
	if v == nil {
		return fmt.Errorf("null literals are not supported")
	}
	nv := normalize(v)
	if nv == Absent {
		return fmt.Errorf("unsupported literal type %T", v)
	}
	if list, ok := nv.([]any); ok {
		for i, el := range list {
			if _, nested := el.([]any); nested {
				return fmt.Errorf("literal list element %d is itself a list", i)
			}
			if el == Absent {
				return fmt.Errorf("literal list element %d has unsupported type", i)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the tree. List literals are copied too.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if list, ok := n.Value.([]any); ok {
		cp.Value = append([]any(nil), list...)
	}
	cp.Left = n.Left.Clone()
	cp.Right = n.Right.Clone()
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return &cp
}

// Fields returns the sorted, de-duplicated fact fields a condition reads
func (n *Node) Fields() []string {
	seen := map[string]struct{}{}
	var walk func(*Node)
	walk = func(x *Node) {
		if x == nil {
			return
		}
		switch x.Kind {
		case KindVar:
			seen[x.Field] = struct{}{}
		case KindCompare:
			walk(x.Left)
			walk(x.Right)
		case KindAnd, KindOr, KindNot:
			for _, c := range x.Children {
				walk(c)
			}
		}
	}
	walk(n)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// String renders the tree in a compact prefix form for logs and errors
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case KindVar:
		return n.Field
	case KindLiteral:
		if s, ok := n.Value.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprintf("%v", n.Value)
	case KindCompare:
		return fmt.Sprintf("%s(%s, %s)", n.Op, n.Left, n.Right)
	case KindAnd, KindOr, KindNot:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("%s(%s)", n.Kind, strings.Join(parts, ", "))
	default:
		return n.Kind.String()
	}
}
