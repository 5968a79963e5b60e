// Package props implements SECoP Property declarations and the
// HasProperties mixin shared by modules and accessibles (spec.md §3
// "Property").
package props

import (
	"fmt"

	"github.com/vitalybin/frappy/pkg/datatype"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
)

// Property is a compile-time declared named attribute of a module or an
// accessible. Properties are merged along the inheritance chain; a
// subclass declaration overrides its parent's (spec.md §3 "Property").
type Property struct {
	Name        string
	Description string
	DataType    datatype.DataType
	Default     any
	HasDefault  bool
	Mandatory   bool
	Settable    bool // may appear in configuration
	Export      bool // visible to clients
	ExtName     string
}

// WithDefault returns a copy of p with a default value installed.
func (p Property) WithDefault(v any) Property {
	p.Default = v
	p.HasDefault = true
	return p
}

// Bag holds the live property definitions and per-instance values of a
// single module or accessible. A zero Bag is usable via NewBag.
type Bag struct {
	defs   map[string]Property
	values map[string]any
}

// NewBag creates an empty property bag.
func NewBag() *Bag {
	return &Bag{defs: map[string]Property{}, values: map[string]any{}}
}

// Define installs (or overrides, subclass-style) a property definition
// and seeds its value from the default, if any.
func (b *Bag) Define(p Property) {
	b.defs[p.Name] = p
	if p.HasDefault {
		b.values[p.Name] = p.Default
	}
}

// Clone returns a deep-enough independent copy for per-instance use
// (spec.md §4.1 step 1: "copy class properties to instance").
func (b *Bag) Clone() *Bag {
	out := NewBag()
	for k, v := range b.defs {
		out.defs[k] = v
	}
	for k, v := range b.values {
		out.values[k] = v
	}
	return out
}

// Names returns all defined property names, independent of declaration order.
func (b *Bag) Names() []string {
	names := make([]string, 0, len(b.defs))
	for n := range b.defs {
		names = append(names, n)
	}
	return names
}

// Has reports whether name is a defined property.
func (b *Bag) Has(name string) bool {
	_, ok := b.defs[name]
	return ok
}

// Def returns the definition of a property.
func (b *Bag) Def(name string) (Property, bool) {
	p, ok := b.defs[name]
	return p, ok
}

// Settable reports whether name is both defined and configurable.
func (b *Bag) Settable(name string) bool {
	p, ok := b.defs[name]
	return ok && p.Settable
}

// Get returns the current value of a property and whether it is set.
func (b *Bag) Get(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Set validates v against the property's datatype (if any) and installs
// it. Setting an undefined property is a ConfigError, matching
// spec.md §4.3 step 2's "Unknown dotted property → ConfigError".
func (b *Bag) Set(name string, v any) error {
	p, ok := b.defs[name]
	if !ok {
		return secoperr.Newf(secoperr.KindConfigError, "no such property %q", name)
	}
	if p.DataType != nil {
		vv, err := p.DataType.Validate(v)
		if err != nil {
			return secoperr.Newf(secoperr.KindConfigError, "property %q: %v", name, err)
		}
		v = vv
	}
	b.values[name] = v
	return nil
}

// SetDataType replaces the datatype of an already-defined property —
// the ".datatype" special case in spec.md §4.3 step 5.
func (b *Bag) SetDataType(name string, dt datatype.DataType) error {
	p, ok := b.defs[name]
	if !ok {
		return secoperr.Newf(secoperr.KindConfigError, "no such property %q", name)
	}
	p.DataType = dt
	b.defs[name] = p
	return nil
}

// CheckMandatory verifies every mandatory property has a value, the
// "re-check all properties" step of spec.md §4.3 step 9.
func (b *Bag) CheckMandatory() error {
	for name, p := range b.defs {
		if p.Mandatory {
			if _, ok := b.values[name]; !ok {
				return secoperr.Newf(secoperr.KindConfigError, "mandatory property %q not set", name)
			}
		}
	}
	return nil
}

// Exported returns the subset of current property values whose
// definition marks them visible to clients (Property.Export), keyed by
// their wire name (ExtName, falling back to Name) — the "exported
// module/accessible properties" spec.md §6 folds into a describe reply.
func (b *Bag) Exported() map[string]any {
	out := map[string]any{}
	for name, p := range b.defs {
		if !p.Export {
			continue
		}
		v, ok := b.values[name]
		if !ok {
			continue
		}
		wireName := p.ExtName
		if wireName == "" {
			wireName = name
		}
		out[wireName] = v
	}
	return out
}

// String renders a value as a fmt string, used for log messages and
// error details where a property value needs to appear textually.
func String(v any) string {
	return fmt.Sprintf("%v", v)
}
