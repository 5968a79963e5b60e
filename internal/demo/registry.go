package demo

import (
	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
)

// Constructor builds one module instance from its configuration.
type Constructor func(name string, logger seclog.Logger, cfg module.Config, disp module.Dispatcher) (*module.Module, error)

// Registry maps a node configuration file's "class" strings onto the
// concrete module constructors compiled into this binary — the Go
// stand-in for the original's dotted Python import path (spec.md §6
// "Module configuration").
var Registry = map[string]Constructor{
	"demo.Sensor": NewSensor,
	"demo.Heater": NewHeater,
}

// Build looks up and invokes the constructor for class.
func Build(class, name string, logger seclog.Logger, cfg module.Config, disp module.Dispatcher) (*module.Module, error) {
	ctor, ok := Registry[class]
	if !ok {
		return nil, secoperr.Newf(secoperr.KindConfigError, "unknown module class %q", class)
	}
	return ctor(name, logger, cfg, disp)
}
