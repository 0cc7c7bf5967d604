package param

// Element is the set of Go types a scalar, array or matrix value may hold.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64 | ~string | ~bool
}

// Values is the closed set of value shapes a Parameter can carry. The
// unexported method keeps implementations inside this package.
type Values interface {
	Len() int
	values()
}

// Scalars holds one element per value.
type Scalars[E Element] []E

// Arrays holds one flat array per value. Arrays may differ in length.
type Arrays[E Element] [][]E

// Matrices holds one rectangular matrix per value.
type Matrices[E Element] [][][]E

// Structs holds nested parameter sets.
type Structs []Struct

// EqCoords holds equatorial coordinates.
type EqCoords []EqCoord

// AltAzCoords holds horizontal coordinates.
type AltAzCoords []AltAzCoord

// Timestamps holds UTC or TAI instants.
type Timestamps []Timestamp

func (s Scalars[E]) Len() int { return len(s) }
func (a Arrays[E]) Len() int { return len(a) }
func (m Matrices[E]) Len() int { return len(m) }
func (s Structs) Len() int { return len(s) }
func (c EqCoords) Len() int { return len(c) }
func (c AltAzCoords) Len() int { return len(c) }
func (t Timestamps) Len() int { return len(t) }
func (Scalars[E]) values() {}
func (Arrays[E]) values() {}
func (Matrices[E]) values() {}
func (Structs) values() {}
func (EqCoords) values() {}
func (AltAzCoords) values() {}
func (Timestamps) values() {}

// Rectangular reports whether every row of every matrix has the same length
// as that matrix's first row.
func (m Matrices[E]) Rectangular() bool {
	for _, matrix := range m {
		for _, row := range matrix {
			if len(row) != len(matrix[0]) {
				return false
			}
		}
	}
	return true
}

// Struct is a nested parameter set carried as a StructKey value.
type Struct struct {
	ParamSet Set `json:"paramSet"`
}

// NewStruct builds a Struct from params.
func NewStruct(params ...Parameter) Struct {
	return Struct{ParamSet: params}
}

// Get returns the first member named keyName.
func (s Struct) Get(keyName string) (Parameter, bool) { return s.ParamSet.Get(keyName) }

// Exists reports whether a member named keyName is present.
func (s Struct) Exists(keyName string) bool { return s.ParamSet.Exists(keyName) }
