package core

import "encoding/json"

// Attribute is one named, multi-valued piece of context data. Matching
// succeeds when any of its values satisfies a clause.
type Attribute struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// Context is the evaluation input: a typed entity (for example "user")
// with an optional display name and identifier, and a set of named
// attributes. Attribute keys are unique; setting a key again replaces
// the previous values.
type Context struct {
	Type       string
	Name       string
	Identifier string

	attributes map[string]Attribute
}

// NewContext creates a context for the given entity type.
func NewContext(entityType string) Context {
	return Context{Type: entityType, attributes: make(map[string]Attribute)}
}

// AnonymousContext is the default evaluation input: a user entity with
// no attributes.
func AnonymousContext() Context { return NewContext("user") }

// SetAttribute stores a multi-valued attribute, replacing any previous
// values for the same key.
func (c *Context) SetAttribute(key string, values ...string) {
	if c.attributes == nil {
		c.attributes = make(map[string]Attribute)
	}
	c.attributes[key] = Attribute{Key: key, Values: values}
}

// Attribute returns the values stored under key.
func (c Context) Attribute(key string) ([]string, bool) {
	attr, ok := c.attributes[key]
	return attr.Values, ok
}

// AttributeValues returns the attribute map in the form consumed by the
// rule engine.
func (c Context) AttributeValues() map[string][]string {
	out := make(map[string][]string, len(c.attributes))
	for key, attr := range c.attributes {
		out[key] = attr.Values
	}
	return out
}

type wireContext struct {
	Type       string              `json:"type"`
	Name       string              `json:"name,omitempty"`
	Identifier string              `json:"identifier,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// MarshalJSON serializes the context for usage-report metadata.
func (c Context) MarshalJSON() ([]byte, error) {
	wc := wireContext{Type: c.Type, Name: c.Name, Identifier: c.Identifier}
	if len(c.attributes) > 0 {
		wc.Attributes = c.AttributeValues()
	}
	return json.Marshal(wc)
}

// UnmarshalJSON restores a context serialized by MarshalJSON.
func (c *Context) UnmarshalJSON(data []byte) error {
	var wc wireContext
	if err := json.Unmarshal(data, &wc); err != nil {
		return err
	}
	*c = NewContext(wc.Type)
	c.Name = wc.Name
	c.Identifier = wc.Identifier
	for key, values := range wc.Attributes {
		c.SetAttribute(key, values...)
	}
	return nil
}
