// Package rules implements the first-match rule engine that turns a fact
// set into a triage decision.
package rules

import (
	"fmt"
	"strings"

	"github.com/steveyegge/triage/internal/types"
)

// NoMatchReasoning is the reasoning on the action returned when no rule fires
const NoMatchReasoning = "no rule matched"

// Action is what a rule produces when its condition holds
type Action struct {
	PriorityScore int      `json:"priority_score" yaml:"priority_score"`
	Labels        []string `json:"labels" yaml:"labels"`
	Reasoning     string   `json:"reasoning" yaml:"reasoning"`
}

// Rule is one ordered condition/action pair
type Rule struct {
	Name      string
	Condition *Node
	Action    Action
}

// Validate checks a single rule. index is its position in the list.
func (r *Rule) Validate(index int) error {
	path := fmt.Sprintf("rules[%d]", index)
	if strings.TrimSpace(r.Name) == "" {
		return &ConfigurationError{Index: index, Path: path + ".name", Msg: "rule name is required"}
	}
	if err := Validate(r.Condition, path+".condition"); err != nil {
		return &ConfigurationError{Index: index, Rule: r.Name, Path: path + ".condition", Msg: err.Error()}
	}
	if r.Action.PriorityScore < 1 || r.Action.PriorityScore > 5 {
		return &ConfigurationError{Index: index, Rule: r.Name, Path: path + ".action.priority_score",
			Msg: fmt.Sprintf("priority_score must be between 1 and 5 (got %d)", r.Action.PriorityScore)}
	}
	if strings.TrimSpace(r.Action.Reasoning) == "" {
		return &ConfigurationError{Index: index, Rule: r.Name, Path: path + ".action.reasoning", Msg: "reasoning is required"}
	}
	for i, l := range r.Action.Labels {
		if strings.TrimSpace(l) == "" {
			return &ConfigurationError{Index: index, Rule: r.Name, Path: fmt.Sprintf("%s.action.labels[%d]", path, i), Msg: "label is empty"}
		}
	}
	return nil
}

// ValidateRules validates every rule and rejects duplicate names
func ValidateRules(rs []Rule) error {
	seen := make(map[string]int, len(rs))
	for i := range rs {
		if err := rs[i].Validate(i); err != nil {
			return err
		}
		if prev, dup := seen[rs[i].Name]; dup {
			return &ConfigurationError{Index: i, Rule: rs[i].Name, Path: fmt.Sprintf("rules[%d].name", i),
				Msg: fmt.Sprintf("duplicate rule name (first defined at rules[%d])", prev)}
		}
		seen[rs[i].Name] = i
	}
	return nil
}

// Evaluate returns the action of the first rule whose condition is true.
// It never fails: missing fields and type mismatches simply do not match.
func Evaluate(facts map[string]any, rs []Rule) types.TriageAction {
	action, _ := evaluate(facts, rs)
	return action
}

func evaluate(facts map[string]any, rs []Rule) (types.TriageAction, string) {
	for i := range rs {
		if eval(rs[i].Condition, facts) == truthy {
			a := rs[i].Action
			return types.NewTriageAction(a.PriorityScore, a.Labels, a.Reasoning, types.SourceRules), rs[i].Name
		}
	}
	return NoMatch(), ""
}

// NoMatch is the default action when no rule fires
func NoMatch() types.TriageAction {
	return types.NewTriageAction(0, nil, NoMatchReasoning, types.SourceDefault)
}

// eval evaluates a node as a condition
func eval(n *Node, facts map[string]any) truth {
	if n == nil {
		return unknown
	}
	switch n.Kind {
	case KindCompare:
		return compare(n.Op, value(n.Left, facts), value(n.Right, facts))
	case KindAnd:
		result := truthy
		for _, c := range n.Children {
			switch eval(c, facts) {
			case falsy:
				return falsy
			case unknown:
				result = unknown
			}
		}
		return result
	case KindOr:
		result := falsy
		for _, c := range n.Children {
			switch eval(c, facts) {
			case truthy:
				return truthy
			case unknown:
				result = unknown
			}
		}
		return result
	case KindNot:
		if len(n.Children) != 1 {
			return unknown
		}
		switch eval(n.Children[0], facts) {
		case truthy:
			return falsy
		case falsy:
			return truthy
		}
		return unknown
	case KindVar, KindLiteral:
		// a bare value used as a condition must be a boolean
		if b, ok := value(n, facts).(bool); ok {
			return fromBool(b)
		}
		return unknown
	}
	return unknown
}

// value evaluates a node in operand position
func value(n *Node, facts map[string]any) any {
	if n == nil {
		return Absent
	}
	switch n.Kind {
	case KindVar:
		return lookup(facts, n.Field)
	case KindLiteral:
		return normalize(n.Value)
	default:
		switch eval(n, facts) {
		case truthy:
			return true
		case falsy:
			return false
		}
		return Absent
	}
}

// Engine holds a validated, immutable rule list
type Engine struct {
	rules    []Rule
	fallback bool
}

// NewEngine validates rs and returns an engine over a private copy of it
func NewEngine(rs []Rule) (*Engine, error) {
	if err := ValidateRules(rs); err != nil {
		return nil, err
	}
	return &Engine{rules: cloneRules(rs)}, nil
}

func cloneRules(rs []Rule) []Rule {
	cp := make([]Rule, len(rs))
	for i, r := range rs {
		labels := make([]string, len(r.Action.Labels))
		copy(labels, r.Action.Labels)
		r.Action.Labels = labels
		r.Condition = r.Condition.Clone()
		cp[i] = r
	}
	return cp
}

// Evaluate runs the rules against a fact set
func (e *Engine) Evaluate(facts types.FactSet) types.TriageAction {
	action, _ := evaluate(facts.Fields(), e.rules)
	return action
}

// EvaluateMatch is Evaluate plus the name of the rule that fired ("" on no match)
func (e *Engine) EvaluateMatch(facts types.FactSet) (types.TriageAction, string) {
	return evaluate(facts.Fields(), e.rules)
}

// EvaluateFields runs the rules against a raw field map
func (e *Engine) EvaluateFields(facts map[string]any) (types.TriageAction, string) {
	return evaluate(facts, e.rules)
}

// Rules returns a deep copy of the rule list
func (e *Engine) Rules() []Rule {
	return cloneRules(e.rules)
}

// Len returns the number of rules
func (e *Engine) Len() int { return len(e.rules) }

// IsFallback reports whether the engine is running the safe default rules
// because the configured document could not be loaded
func (e *Engine) IsFallback() bool { return e.fallback }
