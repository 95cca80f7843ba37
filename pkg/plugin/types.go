// pkg/plugin/types.go
package plugin

import "time"

// Kind is the plugin flavour
type Kind string

const (
	KindViewer Kind = "viewer"
	KindMove   Kind = "move"
)

// ParamType describes how a host renders a setting
type ParamType string

const (
	TypeGroup    ParamType = "group"
	TypeString   ParamType = "str"
	TypeInt      ParamType = "int"
	TypeFloat    ParamType = "float"
	TypeBool     ParamType = "bool"
	TypeList     ParamType = "list"
	TypeBoolPush ParamType = "bool_push"
	TypeLEDPush  ParamType = "led_push"
)

// Param is one node of the host parameter tree
type Param struct {
	Title    string        `json:"title" yaml:"title"`
	Name     string        `json:"name" yaml:"name"`
	Type     ParamType     `json:"type" yaml:"type"`
	Value    interface{}   `json:"value,omitempty" yaml:"value,omitempty"`
	Default  interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Min      *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Limits   []interface{} `json:"limits,omitempty" yaml:"limits,omitempty"`
	Label    string        `json:"label,omitempty" yaml:"label,omitempty"`
	Unit     string        `json:"unit,omitempty" yaml:"unit,omitempty"`
	ReadOnly bool          `json:"readonly,omitempty" yaml:"readonly,omitempty"`
	Hidden   bool          `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Children []Param       `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsGroup reports whether p holds children
func (p Param) IsGroup() bool {
	return p.Type == TypeGroup
}

// Child returns the direct child named name
func (p *Param) Child(name string) (*Param, bool) {
	for i := range p.Children {
		if p.Children[i].Name == name {
			return &p.Children[i], true
		}
	}
	return nil, false
}

// ParamUpdate is a setting whose value changed as a side effect
type ParamUpdate struct {
	Path   []string      `json:"path"`
	Value  interface{}   `json:"value"`
	Limits []interface{} `json:"limits,omitempty"`
}

// Axis describes a mover axis
type Axis struct {
	Name    string  `json:"name"`
	Unit    string  `json:"unit"`
	Epsilon float64 `json:"epsilon"`
}

// Field is one labelled 0D value
type Field struct {
	Label string      `json:"label" yaml:"label"`
	Value interface{} `json:"value" yaml:"value"`
}

// DataExport is one acquisition pushed to the host
type DataExport struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Dim       string    `json:"dim"`
	Fields    []Field   `json:"fields"`
	Timestamp time.Time `json:"timestamp"`
}

// Find walks a parameter tree by path
func Find(params []Param, path ...string) (*Param, bool) {
	if len(path) == 0 {
		return nil, false
	}
	for i := range params {
		if params[i].Name != path[0] {
			continue
		}
		if len(path) == 1 {
			return &params[i], true
		}
		return Find(params[i].Children, path[1:]...)
	}
	return nil, false
}

// FindByName searches the whole tree for the first node named name and returns its path
func FindByName(params []Param, name string) ([]string, bool) {
	for i := range params {
		if params[i].Name == name {
			return []string{name}, true
		}
		if sub, ok := FindByName(params[i].Children, name); ok {
			return append([]string{params[i].Name}, sub...), true
		}
	}
	return nil, false
}

// Float returns a pointer to v, for Param.Min and Param.Max
func Float(v float64) *float64 {
	return &v
}
