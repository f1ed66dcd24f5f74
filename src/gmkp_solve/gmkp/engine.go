package gmkp

import (
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

type BoundKind int

const (
	Lower BoundKind = iota
	Upper
)

func (k BoundKind) String() string {
	if k == Lower {
		return "L"
	}
	return "U"
}

// BoundChange is one tightening applied to a BoundSet.
type BoundChange struct {
	Col   int
	Kind  BoundKind
	Value float64
}

// BoundSet holds the column bounds a relaxation is solved under. Bounds
// can only be tightened, and every change is kept in order.
type BoundSet struct {
	lower   []float64
	upper   []float64
	changes []BoundChange
}

func NewBoundSet(mdl *Model) *BoundSet {
	return &BoundSet{
		lower: slices.Clone(mdl.ColLower),
		upper: slices.Clone(mdl.ColUpper),
	}
}

func (bs *BoundSet) Len() int {
	return len(bs.lower)
}

func (bs *BoundSet) Lower(col int) float64 {
	return bs.lower[col]
}

func (bs *BoundSet) Upper(col int) float64 {
	return bs.upper[col]
}

func (bs *BoundSet) IsFixed(col int) bool {
	return bs.lower[col] == bs.upper[col]
}

// Lowers and Uppers return copies of the bound vectors.
func (bs *BoundSet) Lowers() []float64 {
	return slices.Clone(bs.lower)
}

func (bs *BoundSet) Uppers() []float64 {
	return slices.Clone(bs.upper)
}

func (bs *BoundSet) Changes() []BoundChange {
	return slices.Clone(bs.changes)
}

func (bs *BoundSet) Clone() *BoundSet {
	return &BoundSet{
		lower:   slices.Clone(bs.lower),
		upper:   slices.Clone(bs.upper),
		changes: slices.Clone(bs.changes),
	}
}

// Tighten raises a lower bound or lowers an upper bound. Setting a bound to
// its current value is a no-op and reports changed=false.
func (bs *BoundSet) Tighten(col int, kind BoundKind, value float64) (changed bool, err error) {
	if col < 0 || col >= bs.Len() {
		return false, errors.Errorf("column %d out of range [0,%d)", col, bs.Len())
	}
	switch kind {
	case Lower:
		if value == bs.lower[col] {
			return false, nil
		}
		if value < bs.lower[col] || value > bs.upper[col] {
			return false, errors.Wrapf(ErrBoundLoosened, "lower bound of column %d from %v to %v (upper %v)", col, bs.lower[col], value, bs.upper[col])
		}
		bs.lower[col] = value
	case Upper:
		if value == bs.upper[col] {
			return false, nil
		}
		if value > bs.upper[col] || value < bs.lower[col] {
			return false, errors.Wrapf(ErrBoundLoosened, "upper bound of column %d from %v to %v (lower %v)", col, bs.upper[col], value, bs.lower[col])
		}
		bs.upper[col] = value
	default:
		return false, errors.Errorf("unknown bound kind %d", kind)
	}
	bs.changes = append(bs.changes, BoundChange{Col: col, Kind: kind, Value: value})
	return true, nil
}

type RelaxationStatus int

const (
	Optimal RelaxationStatus = iota
	Infeasible
	SolveError
)

func (s RelaxationStatus) String() string {
	switch s {
	case Optimal:
		return "Optimal"
	case Infeasible:
		return "Infeasible"
	case SolveError:
		return "Error"
	}
	return fmt.Sprintf("RelaxationStatus(%d)", int(s))
}

// Relaxation is the outcome of one relaxation solve. Values is only
// meaningful when Status is Optimal.
type Relaxation struct {
	Status    RelaxationStatus
	Objective float64
	Values    []float64
}

// Engine opens solver sessions. Sessions are independent: concurrent solves
// each open their own.
type Engine interface {
	NewSession(mdl *Model) (Session, error)
}

// Session solves the relaxation of one model under changing bounds. The
// bounds handed to SolveRelaxation are the only source of column bounds.
type Session interface {
	SolveRelaxation(ctx context.Context, bounds *BoundSet) (*Relaxation, error)
	Release() error
}
