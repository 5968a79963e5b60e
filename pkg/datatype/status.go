package datatype

// Status code ranges from spec.md §3: callers classify by range, never by
// exact value, except UNKNOWN which is a single reserved code.
const (
	StatusDisabled = 0
	StatusIdleLo   = 100
	StatusIdleHi   = 199
	StatusWarnLo   = 200
	StatusWarnHi   = 299
	StatusBusyLo   = 300
	StatusBusyHi   = 399
	StatusDrivingHi = 389 // [BusyLo, 390) is "driving"
	StatusErrorLo  = 400
	StatusUnknown  = 401
)

// IsIdle reports whether code falls in the IDLE range.
func IsIdle(code int64) bool { return code >= StatusIdleLo && code <= StatusIdleHi }

// IsWarn reports whether code falls in the WARN range.
func IsWarn(code int64) bool { return code >= StatusWarnLo && code <= StatusWarnHi }

// IsBusy reports whether code falls in the BUSY range [300, 400),
// including both the driving and finalizing subranges.
func IsBusy(code int64) bool { return code >= StatusBusyLo && code < StatusBusyLo+100 }

// IsDriving reports whether code is in the driving subrange [300, 390).
func IsDriving(code int64) bool { return code >= StatusBusyLo && code < StatusDrivingHi+1 }

// IsFinalizing reports whether code is in the finalizing subrange [390, 400).
func IsFinalizing(code int64) bool { return code > StatusDrivingHi && code < StatusBusyLo+100 }

// IsError reports whether code falls in the ERROR range (400+).
func IsError(code int64) bool { return code >= StatusErrorLo }

// StatusType is a (enum code, string detail) tuple, the datatype of every
// module's `status` parameter. It is a thin specialization of TupleOf
// that keeps its Enum member accessible for status-range classification.
type StatusType struct {
	*TupleOf
	Enum *EnumType
}

// NewStatusType builds a StatusType over the given status code enum.
func NewStatusType(enum *EnumType) *StatusType {
	return &StatusType{
		TupleOf: NewTupleOf(enum, StringType{}),
		Enum:    enum,
	}
}

// ReadableStatusEnum returns the status code enum shared by Readable and
// Writable modules (spec.md §3 Module kinds): DISABLED, IDLE, WARN,
// UNSTABLE, ERROR, UNKNOWN.
func ReadableStatusEnum() *EnumType {
	return NewEnumType(map[string]int64{
		"DISABLED": StatusDisabled,
		"IDLE":     StatusIdleLo,
		"WARN":     StatusWarnLo,
		"UNSTABLE": 270,
		"ERROR":    StatusErrorLo,
		"UNKNOWN":  StatusUnknown,
	})
}

// DrivableStatusEnum extends ReadableStatusEnum with BUSY, for Drivable
// modules (spec.md §3: "status enum extended with BUSY range [300,400)").
func DrivableStatusEnum() *EnumType {
	e := ReadableStatusEnum()
	e.members["BUSY"] = StatusBusyLo
	e.byValue[StatusBusyLo] = "BUSY"
	return e
}
