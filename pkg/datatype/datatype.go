// Package datatype implements the SECoP value descriptor system: the
// variants that validate, coerce, and serialize parameter and command
// values, as described in spec.md §3 ("Datatype").
package datatype

import (
	"fmt"

	"github.com/vitalybin/frappy/pkg/secop/secoperr"
)

// DataType validates and converts values of one SECoP wire type.
//
// Validate coerces a compatible Go value into the type's canonical form,
// failing with a BadValue framework error otherwise. ExportValue converts
// a canonical value into its JSON-marshalable wire form; ImportValue is
// its inverse, used when a frame arrives from a client. Describe returns
// the datatype descriptor object sent in a `describe` reply.
type DataType interface {
	Validate(v any) (any, error)
	ExportValue(v any) (any, error)
	ImportValue(wire any) (any, error)
	Describe() map[string]any
	Default() any
}

// UnitCarrier is implemented by datatypes that carry a physical unit
// (currently only FloatRange). Module construction resolves a literal
// "$" in the unit by substituting the module's primary-value unit,
// exactly once, at construction time (spec.md §3, §4.3 step 8).
type UnitCarrier interface {
	Unit() string
	SetUnit(u string)
}

// Namer is implemented by datatypes that record the name of the
// parameter they are attached to — currently only EnumType, per spec.md
// §4.1 step 5. The recorded name does not appear in Describe's output.
type Namer interface {
	SetName(name string)
}

func badValue(format string, args ...any) error {
	return secoperr.Newf(secoperr.KindBadValue, format, args...)
}

// asFloat64 best-effort-coerces common JSON/Go numeric representations
// (float64, int, int64, json.Number-ish strings) to float64, the way the
// original's datatype __call__ methods accept "anything number-like".
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		var i int64
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}
