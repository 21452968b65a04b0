package core

import (
	"fmt"
	"sort"
)

// Defaults is a mutable collection of fallback values keyed by flag key.
// It is consulted only when a flag is absent from the loaded rule set and
// no per-call default was supplied. Values are normalized on write:
// numbers become float64, booleans stay booleans, everything else is
// rendered as a string.
type Defaults struct {
	values map[string]any
}

// NewDefaults creates an empty collection.
func NewDefaults() *Defaults {
	return &Defaults{values: make(map[string]any)}
}

// DefaultsFromMap creates a collection pre-populated from m.
func DefaultsFromMap(m map[string]any) *Defaults {
	d := NewDefaults()
	for key, value := range m {
		d.Set(key, value)
	}
	return d
}

// Set stores a fallback value for key. The last write wins.
func (d *Defaults) Set(key string, value any) {
	d.values[key] = normalizeDefault(value)
}

// Get returns the stored value for key.
func (d *Defaults) Get(key string) (any, bool) {
	value, ok := d.values[key]
	return value, ok
}

// Has reports whether a value is stored for key.
func (d *Defaults) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Delete removes the value stored for key.
func (d *Defaults) Delete(key string) {
	delete(d.values, key)
}

// Clear removes every stored value.
func (d *Defaults) Clear() {
	d.values = make(map[string]any)
}

// Keys returns the stored keys in lexical order.
func (d *Defaults) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for key := range d.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of stored values.
func (d *Defaults) Size() int { return len(d.values) }

func normalizeDefault(value any) any {
	switch v := value.(type) {
	case bool, string, float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return fmt.Sprint(v)
	}
}
