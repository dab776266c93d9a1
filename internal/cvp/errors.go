package cvp

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnsupportedRelation = errors.New("unsupported relation, use equality or supply bounds")
	ErrConstantExpression  = errors.New("expression is constant")
	ErrInvalidBounds       = errors.New("invalid bounds, lower > upper")
	ErrInvalidModulus      = errors.New("modulus must be positive")
	ErrIllegalState        = errors.New("illegal compiler state")
	ErrSolutionOutOfScale  = errors.New("solution out of scale")
	ErrNoConstraints       = errors.New("no constraints to compile")
	ErrNonLinear           = errors.New("expression has a term of degree >= 2")
	ErrOutOfBounds         = errors.New("solution out of bounds")
	ErrInternal            = errors.New("internal invariant violated")
	ErrUnknownFormat       = errors.New("unknown result format")
)

// State errors, both match ErrIllegalState
var (
	ErrAlreadyCompiled = fmt.Errorf("%w: already compiled", ErrIllegalState)
	ErrNotCompiled     = fmt.Errorf("%w: not yet compiled", ErrIllegalState)
)
