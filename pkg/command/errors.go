package command

import (
	"errors"
	"fmt"

	"github.com/tmt-csw/gocsw/pkg/param"
)

// decodeError keeps errors that are already in the decode family and folds
// everything else (syntax errors, type mismatches) into it.
func decodeError(what string, err error) error {
	if errors.Is(err, param.ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", param.ErrDecode, what, err)
}
