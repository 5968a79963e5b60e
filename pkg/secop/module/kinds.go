package module

import (
	"github.com/vitalybin/frappy/pkg/datatype"
	"github.com/vitalybin/frappy/pkg/secop/access"
)

// The following build the class-level accessible tables for the four
// module kinds of spec.md §3: Communicator, Readable, Writable, Drivable.
// Concrete device modules pass these as Parents to access.MergeClass
// when declaring their own accessibles, mirroring the inheritance the
// original expresses via Python base classes.

func paramBuilder(name string, dt datatype.DataType, configure func(*access.Parameter)) *access.Parameter {
	p := access.NewParameter(name, dt)
	if configure != nil {
		configure(p)
	}
	return p
}

// CommunicatorAccessibles returns the accessible table for a bare
// Communicator module: a single `communicate(string) -> string` command.
func CommunicatorAccessibles() *access.Merged {
	communicate := access.NewCommand("communicate", datatype.StringType{}, datatype.StringType{}, nil)
	merged, err := access.MergeClass(access.ClassAccessibles{
		Own: map[string]any{"communicate": communicate},
	})
	if err != nil {
		panic(err) // unreachable: base table, not user input
	}
	return merged
}

// ReadableAccessibles returns the accessible table Readable modules add
// on top of Module: value, status, pollinterval (spec.md §3).
func ReadableAccessibles() *access.Merged {
	value := paramBuilder("value", datatype.NewUnboundedFloatRange(), func(p *access.Parameter) {
		p.Readonly = true
		p.Poll = 1
		p.Export = true
	})
	status := paramBuilder("status", datatype.NewStatusType(datatype.ReadableStatusEnum()), func(p *access.Parameter) {
		p.Readonly = true
		p.Poll = 1
		p.Export = true
		p.Default = []any{int64(datatype.StatusIdleLo), ""}
		p.HasDefault = true
	})
	pollinterval := paramBuilder("pollinterval", datatype.NewFloatRange(0.1, 120), func(p *access.Parameter) {
		p.Export = true
		p.Default = 5.0
		p.HasDefault = true
	})
	merged, err := access.MergeClass(access.ClassAccessibles{
		Own:      map[string]any{"value": value, "status": status, "pollinterval": pollinterval},
		OwnOrder: []string{"value", "status", "pollinterval"},
	})
	if err != nil {
		panic(err)
	}
	return merged
}

// WritableAccessibles returns Readable's table plus `target`.
func WritableAccessibles() *access.Merged {
	readable := ReadableAccessibles()
	target := paramBuilder("target", datatype.NewUnboundedFloatRange(), func(p *access.Parameter) {
		p.Export = true
		p.Default = 0.0
		p.HasDefault = true
	})
	merged, err := access.MergeClass(access.ClassAccessibles{
		Parents: []*access.Merged{readable},
		Own:     map[string]any{"target": target},
	})
	if err != nil {
		panic(err)
	}
	return merged
}

// DrivableAccessibles returns Writable's table with status's enum
// extended to include BUSY, plus a `stop()` command (spec.md §3).
func DrivableAccessibles() *access.Merged {
	writable := WritableAccessibles()
	status := paramBuilder("status", datatype.NewStatusType(datatype.DrivableStatusEnum()), func(p *access.Parameter) {
		p.Readonly = true
		p.Poll = 1
		p.Export = true
		p.Default = []any{int64(datatype.StatusIdleLo), ""}
		p.HasDefault = true
	})
	stop := access.NewCommand("stop", nil, nil, nil)
	merged, err := access.MergeClass(access.ClassAccessibles{
		Parents: []*access.Merged{writable},
		Own:     map[string]any{"status": status, "stop": stop},
	})
	if err != nil {
		panic(err)
	}
	return merged
}

// IsBusy reports whether the module's current status code is in the
// BUSY range, treating substates (driving/finalizing) correctly
// (spec.md §4.5 "Drivable busy poll").
func (m *Module) IsBusy() bool {
	p, ok := m.Parameter("status")
	if !ok {
		return false
	}
	v, _, _ := p.Snapshot()
	tup, ok := v.([]any)
	if !ok || len(tup) == 0 {
		return false
	}
	code, ok := tup[0].(int64)
	if !ok {
		return false
	}
	return datatype.IsBusy(code)
}
