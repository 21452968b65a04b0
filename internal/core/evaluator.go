package core

import (
	"strconv"
	"strings"
)

// Evaluate scans rules in list order and returns the first rule whose
// conditions are all satisfied by the given attributes, or nil when no
// rule matches. There is no scoring and no priority beyond list order.
func Evaluate(rules []Rule, attributes map[string][]string) *Rule {
	for i := range rules {
		if ruleMatches(rules[i], attributes) {
			return &rules[i]
		}
	}
	return nil
}

func ruleMatches(rule Rule, attributes map[string][]string) bool {
	if len(rule.Clauses) > 0 {
		for _, clause := range rule.Clauses {
			if !clauseMatches(clause, attributes) {
				return false
			}
		}
		return true
	}
	if rule.Criteria != nil {
		return clauseMatches(*rule.Criteria, attributes)
	}
	// No conditions: unconditional catch-all rule.
	return true
}

// clauseMatches applies one clause against a multi-valued attribute. An
// attribute absent from the context never matches, for every operator:
// the not_* family negates the positive test over a present attribute,
// not the attribute's absence.
func clauseMatches(clause Clause, attributes map[string][]string) bool {
	values, ok := attributes[clause.Attribute]
	if !ok {
		return false
	}

	switch clause.Operator {
	case OperatorEquals:
		return anyValue(values, func(v string) bool { return v == clause.Value.First() })
	case OperatorNotEquals:
		return !anyValue(values, func(v string) bool { return v == clause.Value.First() })
	case OperatorContains:
		return anyValue(values, func(v string) bool { return strings.Contains(v, clause.Value.First()) })
	case OperatorNotContains:
		return !anyValue(values, func(v string) bool { return strings.Contains(v, clause.Value.First()) })
	case OperatorIn:
		return anyValue(values, func(v string) bool { return inList(v, clause.Value) })
	case OperatorNotIn:
		return !anyValue(values, func(v string) bool { return inList(v, clause.Value) })
	case OperatorStartsWith:
		return anyValue(values, func(v string) bool { return strings.HasPrefix(v, clause.Value.First()) })
	case OperatorEndsWith:
		return anyValue(values, func(v string) bool { return strings.HasSuffix(v, clause.Value.First()) })
	case OperatorGt:
		return anyNumeric(values, clause.Value.First(), func(v, t float64) bool { return v > t })
	case OperatorGte:
		return anyNumeric(values, clause.Value.First(), func(v, t float64) bool { return v >= t })
	case OperatorLt:
		return anyNumeric(values, clause.Value.First(), func(v, t float64) bool { return v < t })
	case OperatorLte:
		return anyNumeric(values, clause.Value.First(), func(v, t float64) bool { return v <= t })
	default:
		return false
	}
}

func anyValue(values []string, match func(string) bool) bool {
	for _, v := range values {
		if match(v) {
			return true
		}
	}
	return false
}

// anyNumeric parses both sides as floats. A value that fails to parse is
// non-matching for that value only; the clause matches when any value
// parses and satisfies the comparison. A non-numeric target never matches.
func anyNumeric(values []string, target string, cmp func(value, target float64) bool) bool {
	t, err := strconv.ParseFloat(target, 64)
	if err != nil {
		return false
	}
	for _, raw := range values {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if cmp(v, t) {
			return true
		}
	}
	return false
}

func inList(value string, list []string) bool {
	for _, candidate := range list {
		if value == candidate {
			return true
		}
	}
	return false
}
