package core

import "strconv"

// FlagType names the value kind a flag resolves to.
type FlagType string

const (
	FlagTypeBoolean FlagType = "boolean"
	FlagTypeString  FlagType = "string"
	FlagTypeNumber  FlagType = "number"
)

// Value is the tagged union carried by targets and rules. At most one
// field is expected to be set; when several are, the accessors prefer
// boolean over string over number.
type Value struct {
	Boolean *bool    `json:"boolean,omitempty"`
	String  *string  `json:"string,omitempty"`
	Number  *float64 `json:"number,omitempty"`
}

func BoolValue(v bool) Value      { return Value{Boolean: &v} }
func StringValue(v string) Value  { return Value{String: &v} }
func NumberValue(v float64) Value { return Value{Number: &v} }

// Kind reports which variant is set, or "" for an empty value.
func (v Value) Kind() FlagType {
	switch {
	case v.Boolean != nil:
		return FlagTypeBoolean
	case v.String != nil:
		return FlagTypeString
	case v.Number != nil:
		return FlagTypeNumber
	default:
		return ""
	}
}

// Any returns the set variant as its native Go type, or nil.
func (v Value) Any() any {
	switch {
	case v.Boolean != nil:
		return *v.Boolean
	case v.String != nil:
		return *v.String
	case v.Number != nil:
		return *v.Number
	default:
		return nil
	}
}

// AsBool returns the boolean variant, or false for any other kind.
func (v Value) AsBool() bool {
	if v.Boolean != nil {
		return *v.Boolean
	}
	return false
}

// AsString stringifies whichever variant is set.
func (v Value) AsString() string {
	switch {
	case v.Boolean != nil:
		return strconv.FormatBool(*v.Boolean)
	case v.String != nil:
		return *v.String
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// AsNumber returns the numeric variant. A string variant is parsed as a
// float; anything else yields zero.
func (v Value) AsNumber() float64 {
	if v.Number != nil {
		return *v.Number
	}
	if v.String != nil {
		if n, err := strconv.ParseFloat(*v.String, 64); err == nil {
			return n
		}
	}
	return 0
}

// ValueEnvelope is the wire wrapper around Value used by targets and
// rules in the rule-set document.
type ValueEnvelope struct {
	Value Value `json:"value"`
}
