package core

import "encoding/json"

// Operator is a clause comparison operator. Unknown operators never
// match; they do not fail parsing.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorStartsWith  Operator = "starts_with"
	OperatorEndsWith    Operator = "ends_with"
	OperatorGt          Operator = "gt"
	OperatorGte         Operator = "gte"
	OperatorLt          Operator = "lt"
	OperatorLte         Operator = "lte"
)

// ClauseValue is the target side of a clause. On the wire it is either
// a bare string or an array of strings.
type ClauseValue []string

// First returns the first value, or "" when the list is empty. The
// scalar operators compare against this element only.
func (c ClauseValue) First() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

func (c *ClauseValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = ClauseValue{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = ClauseValue(list)
	return nil
}

// MarshalJSON emits a singleton as a bare string, preserving the most
// common wire shape.
func (c ClauseValue) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return json.Marshal(c[0])
	}
	return json.Marshal([]string(c))
}

// Clause compares one context attribute against a target value.
type Clause struct {
	Attribute string      `json:"attribute"`
	Operator  Operator    `json:"operator"`
	Value     ClauseValue `json:"value"`
}

// Rule maps a condition to the value a matching flag resolves to. A
// rule carries either a clause list (conjunction), a single criteria
// clause, or neither, which matches unconditionally.
type Rule struct {
	Criteria *Clause       `json:"criteria,omitempty"`
	Clauses  []Clause      `json:"clauses,omitempty"`
	Value    ValueEnvelope `json:"value"`
}
