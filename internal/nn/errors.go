package nn

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is matched by every *DimensionMismatchError.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// DimensionMismatchError reports a feature width that differs from the
// width a module was built for.
type DimensionMismatchError struct {
	Expected int // configured feature dimension
	Actual   int // flattened width of the input
}

// Error implements the error interface.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("center's dim: %d should be equal to input feature's dim: %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
