package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedMajor is the rule document major version this engine reads
const SupportedMajor = "v1"

// ruleDocument is the wrapped {version, rules} shape
type ruleDocument struct {
	Version string     `yaml:"version"`
	Rules   []ruleYAML `yaml:"rules"`
}

type ruleYAML struct {
	Name      string     `yaml:"name"`
	Condition any        `yaml:"condition"`
	Action    actionYAML `yaml:"action"`
}

type actionYAML struct {
	PriorityScore *int     `yaml:"priority_score"`
	Priority      *int     `yaml:"priority"` // accepted alias
	Labels        []string `yaml:"labels"`
	Reasoning     string   `yaml:"reasoning"`
}

// comparison operator spellings, JSON-Logic first
var compareOps = map[string]Op{
	"==": OpEq, "eq": OpEq,
	"!=": OpNe, "ne": OpNe,
	">": OpGt, "gt": OpGt,
	">=": OpGte, "gte": OpGte,
	"<": OpLt, "lt": OpLt,
	"<=": OpLte, "lte": OpLte,
	"in": OpIn,
}

// LoadFile reads and parses a rule document from disk
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		ce := docError("reading rule file", err)
		ce.Source = path
		return nil, ce
	}
	rs, err := Parse(data)
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			ce.Source = path
		}
		return nil, err
	}
	return rs, nil
}

// Parse decodes and validates a rule document. Both a bare list of rules
// and a {version, rules} mapping are accepted. JSON is read as YAML.
func Parse(data []byte) ([]Rule, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, docError("rule document is empty", nil)
	}

	var probe any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, docError("parsing YAML", err)
	}

	var raw []ruleYAML
	switch top := probe.(type) {
	case []any:
		if err := decodeStrict(data, &raw); err != nil {
			return nil, docError("decoding rule list", err)
		}
	case map[string]any:
		if _, ok := top["rules"]; !ok {
			return nil, &ConfigurationError{Index: -1, Path: "rules", Msg: "document has no rules list"}
		}
		var doc ruleDocument
		if err := decodeStrict(data, &doc); err != nil {
			return nil, docError("decoding rule document", err)
		}
		if err := checkVersion(doc.Version); err != nil {
			return nil, err
		}
		raw = doc.Rules
	default:
		return nil, docError(fmt.Sprintf("rule document must be a list or a mapping (got %T)", probe), nil)
	}

	rs := make([]Rule, 0, len(raw))
	for i, r := range raw {
		rule, err := convertRule(i, r)
		if err != nil {
			return nil, err
		}
		rs = append(rs, rule)
	}
	if err := ValidateRules(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return &ConfigurationError{Index: -1, Path: "version", Msg: fmt.Sprintf("invalid version %q", v)}
	}
	if semver.Major(canonical) != SupportedMajor {
		return &ConfigurationError{Index: -1, Path: "version",
			Msg: fmt.Sprintf("unsupported version %s (this build reads %s.x)", canonical, SupportedMajor)}
	}
	return nil
}

func convertRule(i int, r ruleYAML) (Rule, error) {
	path := fmt.Sprintf("rules[%d]", i)
	if r.Condition == nil {
		return Rule{}, &ConfigurationError{Index: i, Rule: r.Name, Path: path + ".condition", Msg: "condition is required"}
	}
	cond, err := parseCondition(r.Condition, path+".condition", 0)
	if err != nil {
		return Rule{}, &ConfigurationError{Index: i, Rule: r.Name, Path: path + ".condition", Msg: err.Error()}
	}

	var priority int
	switch {
	case r.Action.PriorityScore != nil && r.Action.Priority != nil:
		return Rule{}, &ConfigurationError{Index: i, Rule: r.Name, Path: path + ".action",
			Msg: "set either priority_score or priority, not both"}
	case r.Action.PriorityScore != nil:
		priority = *r.Action.PriorityScore
	case r.Action.Priority != nil:
		priority = *r.Action.Priority
	}

	return Rule{
		Name:      r.Name,
		Condition: cond,
		Action: Action{
			PriorityScore: priority,
			Labels:        r.Action.Labels,
			Reasoning:     r.Action.Reasoning,
		},
	}, nil
}

// parseCondition converts a decoded JSON-Logic value into a condition tree
func parseCondition(v any, path string, depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%s: condition nested deeper than %d levels", path, MaxDepth)
	}
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("%s: null is not a valid condition", path)
	case []any:
		return nil, fmt.Errorf("%s: a list is only valid as an operand", path)
	case map[string]any:
		return parseOperator(val, path, depth)
	default:
		return Lit(val), nil
	}
}

// parseOperand is parseCondition plus list literals
func parseOperand(v any, path string, depth int) (*Node, error) {
	list, ok := v.([]any)
	if !ok {
		return parseCondition(v, path, depth)
	}
	for i, el := range list {
		switch el.(type) {
		case map[string]any, []any, nil:
			return nil, fmt.Errorf("%s[%d]: list literals may only hold scalars", path, i)
		}
	}
	return Lit(list), nil
}

func parseOperator(m map[string]any, path string, depth int) (*Node, error) {
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: operator object must have exactly one key (got %d: %s)", path, len(m), strings.Join(keys, ", "))
	}
	var key string
	var args any
	for k, a := range m {
		key, args = k, a
	}

	if op, ok := compareOps[key]; ok {
		list, ok := args.([]any)
		if !ok || len(list) != 2 {
			return nil, fmt.Errorf("%s.%s: takes exactly two operands", path, key)
		}
		left, err := parseOperand(list[0], path+"."+key+"[0]", depth+1)
		if err != nil {
			return nil, err
		}
		right, err := parseOperand(list[1], path+"."+key+"[1]", depth+1)
		if err != nil {
			return nil, err
		}
		return Compare(op, left, right), nil
	}

	switch key {
	case "var":
		field, ok := args.(string)
		if list, isList := args.([]any); isList {
			if len(list) != 1 {
				return nil, fmt.Errorf("%s.var: defaults are not supported, missing fields are always absent", path)
			}
			field, ok = list[0].(string)
		}
		if !ok || strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("%s.var: requires a field name", path)
		}
		return Var(field), nil

	case "and", "or":
		list, ok := args.([]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: operands must be a list", path, key)
		}
		children := make([]*Node, 0, len(list))
		for i, c := range list {
			child, err := parseCondition(c, fmt.Sprintf("%s.%s[%d]", path, key, i), depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if key == "and" {
			return And(children...), nil
		}
		return Or(children...), nil

	case "!", "not":
		operand := args
		if list, isList := args.([]any); isList {
			if len(list) != 1 {
				return nil, fmt.Errorf("%s.%s: takes exactly one operand (got %d)", path, key, len(list))
			}
			operand = list[0]
		}
		child, err := parseCondition(operand, path+".not", depth+1)
		if err != nil {
			return nil, err
		}
		return Not(child), nil
	}

	return nil, fmt.Errorf("%s: unknown operator %q", path, key)
}
