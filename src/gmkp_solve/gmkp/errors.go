package gmkp

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidInstance      = errors.New("invalid instance")
	ErrSolverInfeasible     = errors.New("relaxation is infeasible")
	ErrSolverError          = errors.New("solver engine failure")
	ErrBudgetExceeded       = errors.New("time budget exceeded before an integral solution")
	ErrIterationLimit       = errors.New("iteration limit reached")
	ErrNoFractionalVariable = errors.New("non-integral relaxation without fractional variables")
	ErrBoundLoosened        = errors.New("bound change would loosen a committed bound")
	ErrUnknownEngine        = errors.New("unknown solver engine")
)

// ValidationError reports the invariant a solution vector violates.
type ValidationError struct {
	Kind Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("constraint violated: %v", e.Kind)
}
