// Package access implements Accessible, Parameter and Command — the
// declarative building blocks module classes expose over the wire
// (spec.md §3 "Accessible").
package access

import (
	"sync"
	"time"

	"github.com/vitalybin/frappy/pkg/datatype"
	"github.com/vitalybin/frappy/pkg/secop/props"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
)

// Accessible is the common base of Parameter and Command: a stable
// ordering key plus a set of Properties.
type Accessible struct {
	Name       string
	OrderKey   int
	Properties *props.Bag
}

var orderSeq int

func nextOrderKey() int {
	orderSeq++
	return orderSeq
}

// ReadFunc is a user-supplied read implementation for one parameter. It
// returns the freshly read value, or (nil, ErrAlreadyAnnounced) if it has
// already called announceUpdate itself (the "Done" sentinel in spec.md §4.2).
type ReadFunc func() (any, error)

// WriteOutcome classifies what a user write function asks the wrapper to
// do next (spec.md §9 "Sentinel Done" → sum-typed WriteOutcome).
type WriteOutcome int

const (
	// AlreadyAnnounced means the write function already called
	// announceUpdate; the wrapper takes no further action.
	AlreadyAnnounced WriteOutcome = iota
	// AcceptSubmitted means the wrapper should accept the value that was
	// submitted and validated before the write function ran.
	AcceptSubmitted
	// Accepted means the write function's return value is the new
	// authoritative value, to be re-validated by the setter.
	Accepted
)

// WriteFunc is a user-supplied write implementation for one parameter.
type WriteFunc func(value any) (WriteOutcome, any, error)

// ErrAlreadyAnnounced is returned by a ReadFunc that has already called
// announceUpdate and wants the wrapper to just return the cached value.
var ErrAlreadyAnnounced = secoperr.New(secoperr.KindInternalError, "__already_announced__")

// Handler owns the read/write logic for a group of related parameters
// (spec.md Glossary "Handler"). A Parameter with a Handler but no direct
// read/write function delegates to it.
type Handler interface {
	GetReadFunc(paramName string) ReadFunc
	GetWriteFunc(paramName string) WriteFunc
}

// Parameter is a named, typed, optionally writable datum with a cache
// triple (value, timestamp, readerror) — spec.md §3.
type Parameter struct {
	Accessible
	DataType datatype.DataType

	Readonly bool

	// Poll: 0 = off, positive = every Nth tick, negative = every tick
	// while busy else every |N| ticks (spec.md §3).
	Poll int

	InitWrite    bool
	HasInitWrite bool

	NeedsCfg    bool
	HasNeedsCfg bool

	Handler Handler

	Default    any
	HasDefault bool

	// Export is a bool before construction; module construction may
	// replace it with the resolved wire-name string (spec.md §3).
	Export any

	mu        sync.Mutex
	value     any
	timestamp float64
	readerror error
}

// Copy returns a per-instance clone of the parameter, as required by
// spec.md §4.3 step 4 ("make local copies of parameter objects").
func (p *Parameter) Copy() *Parameter {
	cp := *p
	cp.Properties = p.Properties.Clone()
	cp.mu = sync.Mutex{}
	return &cp
}

// Override clones p and applies a bare-value override as produced by
// spec.md §4.1 step 3 (subclass supplies a plain default instead of a
// full Parameter declaration).
func (p *Parameter) Override(newDefault any) *Parameter {
	cp := p.Copy()
	cp.Default = newDefault
	cp.HasDefault = true
	return cp
}

// Snapshot returns the current (value, timestamp, readerror) atomically.
func (p *Parameter) Snapshot() (any, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.timestamp, p.readerror
}

// SetTriple atomically installs a new (value, timestamp, readerror),
// enforcing spec.md §3's "timestamp is monotonically non-decreasing per
// parameter across successful updates".
func (p *Parameter) SetTriple(value any, ts float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts == 0 {
		ts = float64(time.Now().UnixNano()) / 1e9
	}
	if ts < p.timestamp {
		ts = p.timestamp
	}
	p.value = value
	p.timestamp = ts
	p.readerror = err
}

// ReadError returns the currently recorded read error, if any.
func (p *Parameter) ReadError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readerror
}

// Command is a named, typed action on a module (spec.md §3 "Command").
type Command struct {
	Accessible
	ArgType    datatype.DataType // nil if the command takes no argument
	ResultType datatype.DataType // nil if the command returns nothing
	Impl       func(arg any) (any, error)
}

// BaseAccessibleProperties returns the property bag every Parameter and
// Command carries (spec.md §3 "Accessible"): a human-readable
// description and a group, both settable via `name.propname` config
// entries and visible in a describe reply.
func BaseAccessibleProperties() *props.Bag {
	b := props.NewBag()
	b.Define(props.Property{Name: "description", DataType: datatype.TextType{}, Settable: true, Export: true, ExtName: "description"}.WithDefault(""))
	b.Define(props.Property{Name: "group", DataType: datatype.StringType{}, Settable: true, Export: true, ExtName: "group"}.WithDefault(""))
	return b
}

// NewParameter builds a Parameter with a fresh property bag and ordering key.
func NewParameter(name string, dt datatype.DataType) *Parameter {
	return &Parameter{
		Accessible: Accessible{Name: name, OrderKey: nextOrderKey(), Properties: BaseAccessibleProperties()},
		DataType:   dt,
	}
}

// NewCommand builds a Command with a fresh property bag and ordering key.
func NewCommand(name string, argType, resultType datatype.DataType, impl func(any) (any, error)) *Command {
	return &Command{
		Accessible: Accessible{Name: name, OrderKey: nextOrderKey(), Properties: BaseAccessibleProperties()},
		ArgType:    argType,
		ResultType: resultType,
		Impl:       impl,
	}
}
