package param

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// unmarshalFunc decodes the raw values of one parameter into v. It hides
// whether the bytes are JSON or CBOR from the per-tag decoders.
type unmarshalFunc func(v any) error

type shape struct {
	decode  func(unmarshal unmarshalFunc) (Values, error)
	accepts func(Values) bool
	// rectangular is set for matrix shapes only.
	rectangular func(Values) bool
}

func scalarShape[E Element]() shape {
	return shape{
		decode: func(unmarshal unmarshalFunc) (Values, error) {
			var v Scalars[E]
			err := unmarshal(&v)
			return v, err
		},
		accepts: func(v Values) bool { _, ok := v.(Scalars[E]); return ok },
	}
}

func arrayShape[E Element]() shape {
	return shape{
		decode: func(unmarshal unmarshalFunc) (Values, error) {
			var v Arrays[E]
			err := unmarshal(&v)
			return v, err
		},
		accepts: func(v Values) bool { _, ok := v.(Arrays[E]); return ok },
	}
}

func matrixShape[E Element]() shape {
	return shape{
		decode: func(unmarshal unmarshalFunc) (Values, error) {
			var v Matrices[E]
			if err := unmarshal(&v); err != nil {
				return nil, err
			}
			if !v.Rectangular() {
				return nil, ErrNotRectangular
			}
			return v, nil
		},
		accepts:     func(v Values) bool { _, ok := v.(Matrices[E]); return ok },
		rectangular: func(v Values) bool { return v.(Matrices[E]).Rectangular() },
	}
}

func sliceShape[V Values]() shape {
	return shape{
		decode: func(unmarshal unmarshalFunc) (Values, error) {
			var v V
			err := unmarshal(&v)
			return v, err
		},
		accepts: func(v Values) bool { _, ok := v.(V); return ok },
	}
}

// shapes is the closed decoder table. Adding a tag means adding a row here.
var shapes = map[KeyType]shape{
	ByteKey:       scalarShape[int8](),
	ByteArrayKey:  arrayShape[int8](),
	ByteMatrixKey: matrixShape[int8](),

	ShortKey:       scalarShape[int16](),
	ShortArrayKey:  arrayShape[int16](),
	ShortMatrixKey: matrixShape[int16](),

	IntKey:       scalarShape[int32](),
	IntArrayKey:  arrayShape[int32](),
	IntMatrixKey: matrixShape[int32](),

	LongKey:       scalarShape[int64](),
	LongArrayKey:  arrayShape[int64](),
	LongMatrixKey: matrixShape[int64](),

	FloatKey:       scalarShape[float32](),
	FloatArrayKey:  arrayShape[float32](),
	FloatMatrixKey: matrixShape[float32](),

	DoubleKey:       scalarShape[float64](),
	DoubleArrayKey:  arrayShape[float64](),
	DoubleMatrixKey: matrixShape[float64](),

	StringKey:       scalarShape[string](),
	StringArrayKey:  arrayShape[string](),
	StringMatrixKey: matrixShape[string](),

	BooleanKey:       scalarShape[bool](),
	BooleanArrayKey:  arrayShape[bool](),
	BooleanMatrixKey: matrixShape[bool](),

	ChoiceKey: scalarShape[string](),

	StructKey:     sliceShape[Structs](),
	EqCoordKey:    sliceShape[EqCoords](),
	AltAzCoordKey: sliceShape[AltAzCoords](),
	UTCTimeKey:    sliceShape[Timestamps](),
	TAITimeKey:    sliceShape[Timestamps](),
}

func unknownKeyType(t KeyType) error {
	return fmt.Errorf("%w: %q", ErrUnknownKeyType, t)
}

func invalidParameter(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, name, fmt.Sprintf(format, args...))
}

// wireParameter is the tagged shape written to the wire.
type wireParameter struct {
	KeyName string  `json:"keyName"`
	KeyType KeyType `json:"keyType"`
	Values  Values  `json:"values"`
	Units   Units   `json:"units,omitempty"`
}

// rawParameter is the tagged shape read from the wire. Older senders call
// the value list "items"; both names are accepted.
type rawParameter[R any] struct {
	KeyName *string `json:"keyName"`
	KeyType KeyType `json:"keyType"`
	Values  R       `json:"values"`
	Items   R       `json:"items"`
	Units   Units   `json:"units"`
}

func (p Parameter) toWire() (wireParameter, error) {
	if err := p.Validate(); err != nil {
		return wireParameter{}, err
	}
	return wireParameter{KeyName: p.KeyName, KeyType: p.KeyType, Values: p.Values, Units: p.Units}, nil
}

// decodeValues runs the decoder selected by keyType. Errors already in the
// ErrDecode family pass through so nested failures keep their identity.
func decodeValues(name *string, keyType KeyType, present bool, unmarshal unmarshalFunc) (Parameter, error) {
	if name == nil {
		return Parameter{}, missingField("Parameter", "keyName")
	}
	s, ok := shapes[keyType]
	if !ok {
		return Parameter{}, unknownKeyType(keyType)
	}
	if !present {
		return Parameter{}, missingField(*name, "values")
	}
	values, err := s.decode(unmarshal)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return Parameter{}, fmt.Errorf("%s: %w", *name, err)
		}
		return Parameter{}, fmt.Errorf("%w: %s (%s): %v", ErrValueType, *name, keyType, err)
	}
	return Parameter{KeyName: *name, KeyType: keyType, Values: values}, nil
}

func (p Parameter) MarshalJSON() ([]byte, error) {
	w, err := p.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (p *Parameter) UnmarshalJSON(data []byte) error {
	var raw rawParameter[json.RawMessage]
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parameter: %v", ErrDecode, err)
	}
	values := raw.Values
	if values == nil {
		values = raw.Items
	}
	decoded, err := decodeValues(raw.KeyName, raw.KeyType, values != nil, func(v any) error {
		return json.Unmarshal(values, v)
	})
	if err != nil {
		return err
	}
	decoded.Units = raw.Units
	*p = decoded
	return nil
}

func (p Parameter) MarshalCBOR() ([]byte, error) {
	w, err := p.toWire()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(w)
}

func (p *Parameter) UnmarshalCBOR(data []byte) error {
	var raw rawParameter[cbor.RawMessage]
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parameter: %v", ErrDecode, err)
	}
	values := raw.Values
	if values == nil {
		values = raw.Items
	}
	decoded, err := decodeValues(raw.KeyName, raw.KeyType, values != nil, func(v any) error {
		return cbor.Unmarshal(values, v)
	})
	if err != nil {
		return err
	}
	decoded.Units = raw.Units
	*p = decoded
	return nil
}

// An empty set is written as [] and read back as nil so that sets built
// from variadic constructors survive a round trip unchanged.
func (s Set) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Parameter(s))
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var params []Parameter
	if err := json.Unmarshal(data, &params); err != nil {
		return err
	}
	*s = normalize(params)
	return nil
}

func (s Set) MarshalCBOR() ([]byte, error) {
	if s == nil {
		return cbor.Marshal([]Parameter{})
	}
	return cbor.Marshal([]Parameter(s))
}

func (s *Set) UnmarshalCBOR(data []byte) error {
	var params []Parameter
	if err := cbor.Unmarshal(data, &params); err != nil {
		return err
	}
	*s = normalize(params)
	return nil
}

func normalize(params []Parameter) Set {
	if len(params) == 0 {
		return nil
	}
	return Set(params)
}
