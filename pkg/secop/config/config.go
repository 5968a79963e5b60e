// Package config loads a node's YAML configuration file into the
// cfgdict maps module.New consumes (spec.md §6 "Module configuration",
// SPEC_FULL.md §9).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
)

// ModuleSpec is one module entry of a node configuration file: which Go
// class builds it, plus its cfgdict.
type ModuleSpec struct {
	Class  string         `yaml:"class"`
	Config module.Config  `yaml:"config"`
}

// Node is a parsed node configuration file.
type Node struct {
	EquipmentID string                `yaml:"equipment_id"`
	Description string                `yaml:"description"`
	Firmware    string                `yaml:"firmware"`
	Modules     map[string]ModuleSpec `yaml:"modules"`
}

// Load reads and parses a YAML node configuration file from path.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, secoperr.Newf(secoperr.KindConfigError, "reading config %s: %v", path, err)
	}
	return Parse(data)
}

// Parse parses YAML node configuration bytes, normalizing every
// module's config sub-tree into the flat map[string]any cfgdict shape
// module.New expects — yaml.v3 decodes nested mappings as
// map[string]any natively, but "paramname.propname" dotted keys and
// bare scalar overrides both need to survive untouched.
func Parse(data []byte) (*Node, error) {
	var raw struct {
		EquipmentID string                   `yaml:"equipment_id"`
		Description string                   `yaml:"description"`
		Firmware    string                   `yaml:"firmware"`
		Modules     map[string]rawModuleSpec `yaml:"modules"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, secoperr.Newf(secoperr.KindConfigError, "parsing config: %v", err)
	}

	node := &Node{
		EquipmentID: raw.EquipmentID,
		Description: raw.Description,
		Firmware:    raw.Firmware,
		Modules:     map[string]ModuleSpec{},
	}
	for name, rm := range raw.Modules {
		cfg := module.Config{}
		for k, v := range rm.Config {
			cfg[k] = normalize(v)
		}
		node.Modules[name] = ModuleSpec{Class: rm.Class, Config: cfg}
	}
	return node, nil
}

type rawModuleSpec struct {
	Class  string         `yaml:"class"`
	Config map[string]any `yaml:"config"`
}

// normalize converts yaml.v3's map[string]interface{} nodes (and any
// nested ones) into plain map[string]any so downstream datatype
// validation never has to special-case a yaml-specific map type.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	case int:
		return int64(t)
	default:
		return t
	}
}

// String renders a Node for diagnostics (e.g. a startup log line).
func (n *Node) String() string {
	return fmt.Sprintf("node(equipment_id=%s, modules=%d)", n.EquipmentID, len(n.Modules))
}
