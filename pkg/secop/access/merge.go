package access

import (
	"sort"

	"github.com/vitalybin/frappy/pkg/secop/secoperr"
)

// ClassAccessibles is the static accessible table a module class
// declares (spec.md §9 Design Notes: "module classes declare their
// accessibles through a static table ... that a framework helper merges
// along the inheritance chain at registration time").
//
// Own maps a name to either a freshly declared *Parameter/*Command, or —
// for an inherited name — a bare override value (any other type),
// matching spec.md §4.1 step 3 ("subclass body supplies a bare value").
type ClassAccessibles struct {
	Parents []*Merged
	Own     map[string]any
	// OwnOrder fixes the declaration order of names in Own — Go map
	// iteration is randomized, but the original's class-body dict
	// preserves source order, and that order is what a client sees in
	// a `describe` reply absent an explicit ParamOrder override. Names
	// present in Own but missing from OwnOrder are appended afterward,
	// sorted, so a caller that doesn't care about order still gets a
	// deterministic (if arbitrary) result rather than a random one.
	OwnOrder   []string
	ParamOrder []string
}

// Merged is the effective, ordered accessible map computed for one
// module class (spec.md §4.1).
type Merged struct {
	Order []string
	Items map[string]any // *Parameter or *Command
}

// orderedOwnNames resolves a deterministic iteration order for own's
// keys: explicit entries first, then anything left over, sorted.
func orderedOwnNames(own map[string]any, explicit []string) []string {
	names := make([]string, 0, len(own))
	seen := map[string]bool{}
	for _, name := range explicit {
		if _, ok := own[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range own {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Get returns the accessible by name, if present.
func (m *Merged) Get(name string) (any, bool) {
	v, ok := m.Items[name]
	return v, ok
}

// MergeClass computes the effective accessible map for a module class
// per spec.md §4.1 steps 1-4:
//  1. ordered merge of parents' maps (left-to-right, last wins)
//  2. pick up new accessibles defined on the class itself
//  3. apply bare-value overrides by cloning the inherited accessible
//  4. reorder per ParamOrder (unknown names ignored)
func MergeClass(c ClassAccessibles) (*Merged, error) {
	for name := range c.Own {
		if len(name) > 3 && name[:3] == "do_" {
			return nil, secoperr.Newf(secoperr.KindProgrammingError,
				"legacy command style %q is not supported, declare a Command accessible instead", name)
		}
	}

	order := []string{}
	items := map[string]any{}

	addOrdered := func(name string, v any) {
		if _, exists := items[name]; !exists {
			order = append(order, name)
		}
		items[name] = v
	}

	for _, parent := range c.Parents {
		for _, name := range parent.Order {
			addOrdered(name, parent.Items[name])
		}
	}

	ownNames := orderedOwnNames(c.Own, c.OwnOrder)

	var newAccessibleNames []string
	for _, name := range ownNames {
		v := c.Own[name]
		switch v.(type) {
		case *Parameter, *Command:
			newAccessibleNames = append(newAccessibleNames, name)
		default:
			inherited, ok := items[name]
			if !ok {
				return nil, secoperr.Newf(secoperr.KindProgrammingError,
					"override of unknown accessible %q", name)
			}
			switch acc := inherited.(type) {
			case *Parameter:
				items[name] = acc.Override(v)
			default:
				return nil, secoperr.Newf(secoperr.KindProgrammingError,
					"cannot override non-parameter accessible %q", name)
			}
		}
	}

	for _, name := range newAccessibleNames {
		addOrdered(name, c.Own[name])
	}

	if len(c.ParamOrder) > 0 {
		reordered := make([]string, 0, len(order))
		seen := map[string]bool{}
		for _, name := range c.ParamOrder {
			if _, ok := items[name]; ok && !seen[name] {
				reordered = append(reordered, name)
				seen[name] = true
			}
		}
		for _, name := range order {
			if !seen[name] {
				reordered = append(reordered, name)
				seen[name] = true
			}
		}
		order = reordered
	}

	// Step 5: name every enum datatype attached to a parameter after the
	// parameter, for wire self-description.
	for name, v := range items {
		if p, ok := v.(*Parameter); ok {
			if namer, ok := p.DataType.(interface{ SetName(string) }); ok {
				namer.SetName(name)
			}
		}
	}

	return &Merged{Order: order, Items: items}, nil
}
