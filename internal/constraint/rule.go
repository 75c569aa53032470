// Package constraint evaluates targeting rule sets against a flat client context.
//
// A RuleSet is decoded once from the JSON stored on a flag target and then
// evaluated per request by the pure Evaluate function. Evaluation never returns
// an error: malformed operators or patterns fail closed.
package constraint

import (
	"encoding/json"
	"strings"
)

// Operator identifies a single rule comparison.
type Operator int

const (
	OpUnknown Operator = iota
	OpEq
	OpNeq
	OpIn
	OpNin
	OpGt
	OpGte
	OpLt
	OpLte
	OpContains
	OpRegex
)

var operatorNames = map[Operator]string{
	OpEq:       "eq",
	OpNeq:      "neq",
	OpIn:       "in",
	OpNin:      "nin",
	OpGt:       "gt",
	OpGte:      "gte",
	OpLt:       "lt",
	OpLte:      "lte",
	OpContains: "contains",
	OpRegex:    "regex",
}

var operatorsByName = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames))
	for op, name := range operatorNames {
		m[name] = op
	}
	return m
}()

// ParseOperator maps a wire name to an Operator. Unknown names yield OpUnknown.
func ParseOperator(name string) Operator {
	if op, ok := operatorsByName[strings.TrimSpace(name)]; ok {
		return op
	}
	return OpUnknown
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails so that a
// single bad rule cannot make a whole flag undecodable.
func (o *Operator) UnmarshalText(text []byte) error {
	*o = ParseOperator(string(text))
	return nil
}

// Combinator joins rule results.
type Combinator int

const (
	And Combinator = iota
	Or
)

func (c Combinator) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// MarshalText implements encoding.TextMarshaler.
func (c Combinator) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty or exactly "AND"
// means AND; any other value, including "and", combines with OR.
func (c *Combinator) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "AND":
		*c = And
	default:
		*c = Or
	}
	return nil
}

// Rule compares one context field against a value.
type Rule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// RuleSet is a list of rules combined with AND or OR.
type RuleSet struct {
	Rules      []Rule     `json:"rules,omitempty"`
	Combinator Combinator `json:"operator"`
}

// Context is the flat attribute map supplied by the client.
type Context map[string]any

// Parse decodes a rule set from JSON. A null or empty document yields nil,
// which evaluates to true.
func Parse(raw []byte) (*RuleSet, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}
