package datatype

import "sort"

// EnumType validates a closed set of named integer members. Values are
// canonicalized to their integer form; ExportValue/ImportValue accept
// either the member name or its integer value on the wire.
type EnumType struct {
	name    string
	members map[string]int64
	byValue map[int64]string
}

// NewEnumType builds an EnumType from a name→value member set.
func NewEnumType(members map[string]int64) *EnumType {
	byValue := make(map[int64]string, len(members))
	for name, v := range members {
		byValue[v] = name
	}
	return &EnumType{members: members, byValue: byValue}
}

// SetName implements Namer; module construction calls this so an inline
// enum parameter's datatype carries the parameter's own name (spec.md
// §4.1 step 5). The name is used in validation error messages; Describe
// does not include it.
func (t *EnumType) SetName(name string) { t.name = name }

// Name returns the enum's wire name, if set.
func (t *EnumType) Name() string { return t.name }

func (t *EnumType) resolve(v any) (int64, string, bool) {
	switch x := v.(type) {
	case string:
		if n, ok := t.members[x]; ok {
			return n, x, true
		}
	default:
		if n, ok := asInt64(v); ok {
			if name, ok := t.byValue[n]; ok {
				return n, name, true
			}
		}
	}
	return 0, "", false
}

func (t *EnumType) Validate(v any) (any, error) {
	n, _, ok := t.resolve(v)
	if !ok {
		return nil, badValue("%v is not a member of enum %s", v, t.name)
	}
	return n, nil
}

func (t *EnumType) ExportValue(v any) (any, error) { return t.Validate(v) }
func (t *EnumType) ImportValue(w any) (any, error) { return t.Validate(w) }

func (t *EnumType) Default() any {
	if len(t.members) == 0 {
		return int64(0)
	}
	keys := make([]string, 0, len(t.members))
	for k := range t.members {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return t.members[keys[i]] < t.members[keys[j]] })
	return t.members[keys[0]]
}

func (t *EnumType) Describe() map[string]any {
	return map[string]any{
		"type":    "enum",
		"members": t.members,
	}
}
