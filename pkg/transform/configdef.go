package transform

import (
	"fmt"
	"strings"

	"flattener/pkg/errors"
)

type Type string

const (
	TypeString  Type = "STRING"
	TypeBoolean Type = "BOOLEAN"
	TypeInt     Type = "INT"
	TypeList    Type = "LIST"
)

type Importance string

const (
	ImportanceHigh   Importance = "HIGH"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceLow    Importance = "LOW"
)

// ConfigKey declares one option a transformation accepts.
type ConfigKey struct {
	Name          string      `json:"name"`
	Type          Type        `json:"type"`
	Importance    Importance  `json:"importance"`
	Documentation string      `json:"documentation"`
	Required      bool        `json:"required"`
	Default       interface{} `json:"default,omitempty"`
}

// ConfigDef is the declaration of the options a transformation accepts.
// Hosting code uses it for validation and documentation.
type ConfigDef struct {
	keys  []ConfigKey
	index map[string]int
}

func NewConfigDef() *ConfigDef {
	return &ConfigDef{index: make(map[string]int)}
}

// Define declares a required option with no default.
func (d *ConfigDef) Define(name string, typ Type, importance Importance, doc string) *ConfigDef {
	return d.define(ConfigKey{
		Name:          name,
		Type:          typ,
		Importance:    importance,
		Documentation: doc,
		Required:      true,
	})
}

// DefineWithDefault declares an optional option.
func (d *ConfigDef) DefineWithDefault(name string, typ Type, def interface{}, importance Importance, doc string) *ConfigDef {
	return d.define(ConfigKey{
		Name:          name,
		Type:          typ,
		Importance:    importance,
		Documentation: doc,
		Default:       def,
	})
}

func (d *ConfigDef) define(key ConfigKey) *ConfigDef {
	if i, ok := d.index[key.Name]; ok {
		d.keys[i] = key
		return d
	}
	d.index[key.Name] = len(d.keys)
	d.keys = append(d.keys, key)
	return d
}

// Keys returns the declared options in declaration order.
func (d *ConfigDef) Keys() []ConfigKey {
	out := make([]ConfigKey, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *ConfigDef) Key(name string) (ConfigKey, bool) {
	i, ok := d.index[name]
	if !ok {
		return ConfigKey{}, false
	}
	return d.keys[i], true
}

// Parse extracts the declared options from props, applying defaults and
// checking presence and type. Undeclared keys are ignored.
func (d *ConfigDef) Parse(props map[string]interface{}) (map[string]interface{}, error) {
	parsed := make(map[string]interface{}, len(d.keys))

	for _, key := range d.keys {
		raw, ok := props[key.Name]
		if !ok || raw == nil {
			if key.Required {
				return nil, errors.Configuration(fmt.Sprintf("%s configuration is required and cannot be empty.", key.Name)).
					WithDetail("option", key.Name)
			}
			parsed[key.Name] = key.Default
			continue
		}

		if !matchesType(key.Type, raw) {
			return nil, errors.Configuration(fmt.Sprintf("%s must be of type %s, got %T", key.Name, key.Type, raw)).
				WithDetail("option", key.Name)
		}
		parsed[key.Name] = raw
	}

	return parsed, nil
}

func matchesType(typ Type, v interface{}) bool {
	switch typ {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInt:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case TypeList:
		switch v.(type) {
		case []string, []interface{}:
			return true
		}
		return false
	default:
		return true
	}
}

// String renders the definition as a plain text table.
func (d *ConfigDef) String() string {
	var b strings.Builder
	for _, key := range d.keys {
		fmt.Fprintf(&b, "%s\n  type: %s\n  importance: %s\n  required: %t\n", key.Name, key.Type, key.Importance, key.Required)
		if key.Default != nil {
			fmt.Fprintf(&b, "  default: %v\n", key.Default)
		}
		fmt.Fprintf(&b, "  %s\n", key.Documentation)
	}
	return b.String()
}
