package param

import (
	"errors"
	"fmt"
)

// ErrDecode is the parent of every malformed-input error in this package.
// Callers that only need to reject a request should test with errors.Is.
var ErrDecode = errors.New("param: decode error")

var (
	ErrUnknownKeyType = fmt.Errorf("%w: unknown key type", ErrDecode)
	ErrNotRectangular = fmt.Errorf("%w: matrix is not rectangular", ErrDecode)
	ErrMissingField   = fmt.Errorf("%w: missing required field", ErrDecode)
	ErrBadFrame       = fmt.Errorf("%w: unknown coordinate frame", ErrDecode)
	ErrValueType      = fmt.Errorf("%w: values do not match key type", ErrDecode)
)

// ErrInvalidParameter is returned when a Parameter built in code cannot be
// encoded: its values do not have the shape its key type requires.
var ErrInvalidParameter = errors.New("param: invalid parameter")

func missingField(where, name string) error {
	return fmt.Errorf("%w: %s.%s", ErrMissingField, where, name)
}
