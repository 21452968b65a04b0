package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidRuleSet reports a rule-set document that does not have the
// expected shape. Callers treat it as a cache miss and refetch.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// defaultFlagVersion marks flags synthesized from a default value
// rather than loaded from a rule-set document.
const defaultFlagVersion = "default"

// Target is a flag's baseline resolution plus its scheduling metadata.
// Timestamps are epoch milliseconds; nil means unset.
type Target struct {
	Version   string        `json:"version,omitempty"`
	Value     ValueEnvelope `json:"value"`
	Expires   *int64        `json:"expires,omitempty"`
	Published *int64        `json:"published,omitempty"`
	Scheduled *int64        `json:"scheduled,omitempty"`
}

// Flag is one feature flag from the rule-set document. The zero value
// is an empty, disabled flag.
type Flag struct {
	Version string   `json:"version,omitempty"`
	Type    FlagType `json:"type,omitempty"`
	Key     string   `json:"key"`
	Name    string   `json:"name,omitempty"`
	Target  Target   `json:"target"`
	Rules   []Rule   `json:"rules,omitempty"`
}

// WithTargetValue returns a copy of the flag whose target value is
// replaced by env. The target's metadata and the rule list are kept, so
// a rule match preserves everything but the resolved value.
func (f Flag) WithTargetValue(env ValueEnvelope) Flag {
	f.Target.Value = env
	return f
}

// IsEnabled reports the boolean resolution of the flag's target.
func (f Flag) IsEnabled() bool { return f.Target.Value.Value.AsBool() }

// AsBool returns the target value as a boolean.
func (f Flag) AsBool() bool { return f.Target.Value.Value.AsBool() }

// AsString returns the target value stringified.
func (f Flag) AsString() string { return f.Target.Value.Value.AsString() }

// AsNumber returns the target value as a float.
func (f Flag) AsNumber() float64 { return f.Target.Value.Value.AsNumber() }

// Value returns the target value as its native Go type.
func (f Flag) Value() any { return f.Target.Value.Value.Any() }

// FlagFromDefault synthesizes a rule-less flag from a caller-supplied
// default. The flag type follows the Go type of value: bools become
// boolean flags, numeric types become number flags, everything else is
// stringified.
func FlagFromDefault(key string, value any) Flag {
	flag := Flag{Version: defaultFlagVersion, Key: key}
	switch v := value.(type) {
	case bool:
		flag.Type = FlagTypeBoolean
		flag.Target.Value.Value = BoolValue(v)
	case float64:
		flag.Type = FlagTypeNumber
		flag.Target.Value.Value = NumberValue(v)
	case float32:
		flag.Type = FlagTypeNumber
		flag.Target.Value.Value = NumberValue(float64(v))
	case int:
		flag.Type = FlagTypeNumber
		flag.Target.Value.Value = NumberValue(float64(v))
	case int32:
		flag.Type = FlagTypeNumber
		flag.Target.Value.Value = NumberValue(float64(v))
	case int64:
		flag.Type = FlagTypeNumber
		flag.Target.Value.Value = NumberValue(float64(v))
	case string:
		flag.Type = FlagTypeString
		flag.Target.Value.Value = StringValue(v)
	default:
		flag.Type = FlagTypeString
		flag.Target.Value.Value = StringValue(fmt.Sprint(value))
	}
	return flag
}

// RuleSet is a parsed rule-set document.
type RuleSet struct {
	Version string `json:"version"`
	Flags   []Flag `json:"flags"`
}

// ParseRuleSet parses and validates a serialized rule-set document. Any
// shape violation is reported as ErrInvalidRuleSet so callers can treat
// corrupt cache entries uniformly.
func ParseRuleSet(data []byte) (RuleSet, error) {
	var probe struct {
		Version *string         `json:"version"`
		Flags   json.RawMessage `json:"flags"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %w", ErrInvalidRuleSet, err)
	}
	if probe.Version == nil {
		return RuleSet{}, fmt.Errorf("%w: missing version", ErrInvalidRuleSet)
	}
	if len(probe.Flags) == 0 || probe.Flags[0] != '[' {
		return RuleSet{}, fmt.Errorf("%w: flags must be an array", ErrInvalidRuleSet)
	}

	var flags []Flag
	if err := json.Unmarshal(probe.Flags, &flags); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %w", ErrInvalidRuleSet, err)
	}
	return RuleSet{Version: *probe.Version, Flags: flags}, nil
}
