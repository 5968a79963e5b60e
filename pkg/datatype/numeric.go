package datatype

import "math"

// IntRange validates integers within an optional [Min, Max] range.
// A zero-value IntRange (Min == Max == 0 with HasRange false) accepts any
// int64, matching the original's unbounded IntRange().
type IntRange struct {
	Min, Max int64
	HasRange bool
}

// NewIntRange builds an IntRange bounded to [min, max].
func NewIntRange(min, max int64) *IntRange {
	return &IntRange{Min: min, Max: max, HasRange: true}
}

// NewUnboundedIntRange builds an IntRange with no configured bounds.
func NewUnboundedIntRange() *IntRange {
	return &IntRange{Min: math.MinInt64, Max: math.MaxInt64, HasRange: false}
}

func (t *IntRange) Validate(v any) (any, error) {
	i, ok := asInt64(v)
	if !ok {
		return nil, badValue("%v is not an integer", v)
	}
	if t.HasRange && (i < t.Min || i > t.Max) {
		return nil, badValue("%d out of range [%d, %d]", i, t.Min, t.Max)
	}
	return i, nil
}

func (t *IntRange) ExportValue(v any) (any, error) { return t.Validate(v) }
func (t *IntRange) ImportValue(w any) (any, error) { return t.Validate(w) }
func (t *IntRange) Default() any                    { return int64(0) }

func (t *IntRange) Describe() map[string]any {
	d := map[string]any{"type": "int"}
	if t.HasRange {
		d["min"] = t.Min
		d["max"] = t.Max
	}
	return d
}

// FloatRange validates floating point numbers, optionally bounded and
// carrying a unit, step and display precision.
type FloatRange struct {
	Min, Max       float64
	HasRange       bool
	step           float64
	fmtstr         string
	unit           string
}

// NewFloatRange builds a FloatRange bounded to [min, max].
func NewFloatRange(min, max float64) *FloatRange {
	return &FloatRange{Min: min, Max: max, HasRange: true}
}

// NewUnboundedFloatRange builds a FloatRange with no configured bounds.
func NewUnboundedFloatRange() *FloatRange {
	return &FloatRange{Min: math.Inf(-1), Max: math.Inf(1), HasRange: false}
}

// WithUnit sets the unit at construction time (before any "$" resolution).
func (t *FloatRange) WithUnit(unit string) *FloatRange {
	t.unit = unit
	return t
}

// WithStep sets the minimal step between accepted values; 0 means no
// step constraint.
func (t *FloatRange) WithStep(step float64) *FloatRange {
	t.step = step
	return t
}

func (t *FloatRange) Unit() string     { return t.unit }
func (t *FloatRange) SetUnit(u string) { t.unit = u }

func (t *FloatRange) Validate(v any) (any, error) {
	f, ok := asFloat64(v)
	if !ok {
		return nil, badValue("%v is not a float", v)
	}
	if t.HasRange && (f < t.Min || f > t.Max) {
		return nil, badValue("%g out of range [%g, %g]", f, t.Min, t.Max)
	}
	if t.step > 0 {
		steps := math.Round(f / t.step)
		f = steps * t.step
	}
	return f, nil
}

func (t *FloatRange) ExportValue(v any) (any, error) { return t.Validate(v) }
func (t *FloatRange) ImportValue(w any) (any, error) { return t.Validate(w) }
func (t *FloatRange) Default() any                    { return 0.0 }

func (t *FloatRange) Describe() map[string]any {
	d := map[string]any{"type": "double"}
	if t.HasRange {
		d["min"] = t.Min
		d["max"] = t.Max
	}
	if t.unit != "" {
		d["unit"] = t.unit
	}
	if t.step > 0 {
		d["step"] = t.step
	}
	return d
}
