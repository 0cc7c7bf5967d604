package param

import "fmt"

// Parameter is a named, typed, unit-annotated value sequence. Parameters are
// values: build one, then pass it around; nothing in this module mutates one.
type Parameter struct {
	KeyName string
	KeyType KeyType
	Values  Values
	Units   Units
}

// New returns a Parameter without units.
func New(keyName string, keyType KeyType, values Values) Parameter {
	return Parameter{KeyName: keyName, KeyType: keyType, Values: values}
}

// WithUnits returns a copy of p annotated with u.
func (p Parameter) WithUnits(u Units) Parameter {
	p.Units = u
	return p
}

// Validate checks that Values has the shape KeyType requires, recursing
// into struct members. Failures wrap ErrInvalidParameter.
func (p Parameter) Validate() error {
	s, ok := shapes[p.KeyType]
	if !ok {
		return invalidParameter(p.KeyName, "unknown key type %q", p.KeyType)
	}
	if p.Values == nil || !s.accepts(p.Values) {
		return invalidParameter(p.KeyName, "%s cannot hold %T", p.KeyType, p.Values)
	}
	if s.rectangular != nil && !s.rectangular(p.Values) {
		return invalidParameter(p.KeyName, "matrix is not rectangular")
	}
	if structs, ok := p.Values.(Structs); ok {
		for _, st := range structs {
			if err := st.ParamSet.Validate(); err != nil {
				return fmt.Errorf("%s: %w", p.KeyName, err)
			}
		}
	}
	return nil
}

// ValuesAs returns p's values as V when that is the shape p carries.
func ValuesAs[V Values](p Parameter) (V, bool) {
	v, ok := p.Values.(V)
	return v, ok
}

// Set is an ordered parameter sequence. Key names need not be unique.
type Set []Parameter

// Get returns the first parameter named keyName.
func (s Set) Get(keyName string) (Parameter, bool) {
	for _, p := range s {
		if p.KeyName == keyName {
			return p, true
		}
	}
	return Parameter{}, false
}

// Exists reports whether any parameter is named keyName.
func (s Set) Exists(keyName string) bool {
	for _, p := range s {
		if p.KeyName == keyName {
			return true
		}
	}
	return false
}

// Validate runs Parameter.Validate over the whole set.
func (s Set) Validate() error {
	for _, p := range s {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
