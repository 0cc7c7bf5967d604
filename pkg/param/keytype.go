package param

// KeyType tags a Parameter with the shape and element type of its values.
type KeyType string

const (
	ByteKey       KeyType = "ByteKey"
	ByteArrayKey  KeyType = "ByteArrayKey"
	ByteMatrixKey KeyType = "ByteMatrixKey"

	ShortKey       KeyType = "ShortKey"
	ShortArrayKey  KeyType = "ShortArrayKey"
	ShortMatrixKey KeyType = "ShortMatrixKey"

	IntKey       KeyType = "IntKey"
	IntArrayKey  KeyType = "IntArrayKey"
	IntMatrixKey KeyType = "IntMatrixKey"

	LongKey       KeyType = "LongKey"
	LongArrayKey  KeyType = "LongArrayKey"
	LongMatrixKey KeyType = "LongMatrixKey"

	FloatKey       KeyType = "FloatKey"
	FloatArrayKey  KeyType = "FloatArrayKey"
	FloatMatrixKey KeyType = "FloatMatrixKey"

	DoubleKey       KeyType = "DoubleKey"
	DoubleArrayKey  KeyType = "DoubleArrayKey"
	DoubleMatrixKey KeyType = "DoubleMatrixKey"

	StringKey       KeyType = "StringKey"
	StringArrayKey  KeyType = "StringArrayKey"
	StringMatrixKey KeyType = "StringMatrixKey"

	BooleanKey       KeyType = "BooleanKey"
	BooleanArrayKey  KeyType = "BooleanArrayKey"
	BooleanMatrixKey KeyType = "BooleanMatrixKey"

	ChoiceKey KeyType = "ChoiceKey"

	StructKey KeyType = "StructKey"

	EqCoordKey    KeyType = "EqCoordKey"
	AltAzCoordKey KeyType = "AltAzCoordKey"

	UTCTimeKey KeyType = "UTCTimeKey"
	TAITimeKey KeyType = "TAITimeKey"
)

// Known reports whether the codec has a decoder for t.
func (t KeyType) Known() bool {
	_, ok := shapes[t]
	return ok
}

// Accepts reports whether v is the value shape required by t.
func (t KeyType) Accepts(v Values) bool {
	s, ok := shapes[t]
	if !ok || v == nil {
		return false
	}
	return s.accepts(v)
}

// Units annotates a parameter. It is informational only: the codec carries it
// through unchanged and never converts values.
type Units string

const (
	NoUnits     Units = ""
	Arcsec      Units = "arcsec"
	Marcsec     Units = "marcsec"
	Degree      Units = "degree"
	Meter       Units = "meter"
	Millimeter  Units = "millimeter"
	Micrometer  Units = "micrometer"
	Second      Units = "second"
	Millisecond Units = "millisecond"
	Kelvin      Units = "kelvin"
	Pascal      Units = "pascal"
	Volt        Units = "volt"
)
