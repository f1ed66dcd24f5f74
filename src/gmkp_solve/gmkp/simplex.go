package gmkp

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const simplexTol = 1e-10

// SimplexEngine solves relaxations with gonum's dense simplex. It needs no
// native solver library and is meant for small and medium instances.
type SimplexEngine struct {
	Tol float64
}

func NewSimplexEngine() *SimplexEngine {
	return &SimplexEngine{Tol: simplexTol}
}

func (e *SimplexEngine) NewSession(mdl *Model) (Session, error) {
	return &simplexSession{
		model: mdl,
		rows:  mdl.RowEntries(),
		tol:   e.Tol,
	}, nil
}

type simplexSession struct {
	model *Model
	rows  [][]Nonzero
	tol   float64
}

func (s *simplexSession) Release() error {
	s.model = nil
	s.rows = nil
	return nil
}

// standardForm shifts every free column by its lower bound and drops the
// fixed ones, then writes
//
//	min  -cᵀ x'
//	s.t. A x' + s = h - A l
//	     x' + t = u - l
//	     x', s, t >= 0
//
// Column order is x', s, t.
func (s *simplexSession) standardForm(bounds *BoundSet, free []int, posOf []int) (c []float64, A *mat.Dense, b []float64) {
	mdl := s.model
	numRows := mdl.NumRows()
	nf := len(free)
	nStd := nf + numRows + nf

	c = make([]float64, nStd)
	A = mat.NewDense(numRows+nf, nStd, nil)
	b = make([]float64, numRows+nf)

	for p, col := range free {
		c[p] = -mdl.ColCosts[col]
	}
	for r, entries := range s.rows {
		rhs := mdl.RowUpper[r]
		for _, nz := range entries {
			if p := posOf[nz.Col]; p >= 0 {
				A.Set(r, p, nz.Val)
			}
			rhs -= nz.Val * bounds.Lower(nz.Col)
		}
		A.Set(r, nf+r, 1)
		b[r] = rhs
	}
	for p, col := range free {
		row := numRows + p
		A.Set(row, p, 1)
		A.Set(row, nf+numRows+p, 1)
		b[row] = bounds.Upper(col) - bounds.Lower(col)
	}
	return
}

func (s *simplexSession) SolveRelaxation(ctx context.Context, bounds *BoundSet) (*Relaxation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.model == nil {
		return nil, errors.New("simplex session already released")
	}
	mdl := s.model
	if bounds.Len() != mdl.NumCols() {
		return nil, errors.Errorf("bounds for %d columns, model has %d", bounds.Len(), mdl.NumCols())
	}

	values := bounds.Lowers()
	free := make([]int, 0, mdl.NumCols())
	posOf := make([]int, mdl.NumCols())
	for col := range mdl.NumCols() {
		posOf[col] = -1
		switch {
		case bounds.Upper(col) < bounds.Lower(col):
			return &Relaxation{Status: Infeasible}, nil
		case !bounds.IsFixed(col):
			posOf[col] = len(free)
			free = append(free, col)
		}
	}

	if mdl.NumRows()+len(free) == 0 {
		return &Relaxation{
			Status:    Optimal,
			Objective: floats.Dot(mdl.ColCosts, values),
			Values:    values,
		}, nil
	}

	c, A, b := s.standardForm(bounds, free, posOf)

	// The slack columns form a feasible starting basis unless a right hand
	// side went negative after the shift.
	var basic []int
	if floats.Min(b) >= 0 {
		basic = make([]int, len(b))
		for r := range basic {
			basic[r] = len(free) + r
		}
	}

	_, x, err := lp.Simplex(c, A, b, s.tol, basic)
	if errors.Is(err, lp.ErrInfeasible) {
		return &Relaxation{Status: Infeasible}, nil
	}
	if err != nil {
		return &Relaxation{Status: SolveError}, errors.Wrap(err, "simplex")
	}

	for p, col := range free {
		lo, up := bounds.Lower(col), bounds.Upper(col)
		values[col] = math.Max(lo, math.Min(up, lo+x[p]))
	}
	return &Relaxation{
		Status:    Optimal,
		Objective: floats.Dot(mdl.ColCosts, values),
		Values:    values,
	}, nil
}
