package golpengine

import (
	"context"
	"fmt"

	"github.com/draffensperger/golp"

	"gmkp_lp_based/src/gmkp_solve/gmkp"
)

// Engine solves relaxations with lp_solve.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) NewSession(mdl *gmkp.Model) (gmkp.Session, error) {
	if mdl.NumCols() == 0 {
		return &session{}, nil
	}

	lp := golp.NewLP(0, mdl.NumCols())
	lp.SetVerboseLevel(golp.NEUTRAL)
	lp.SetObjFn(mdl.ColCosts)
	lp.SetMaximize()
	for col, name := range mdl.ColNames {
		lp.SetColName(col, name)
	}

	for r, entries := range mdl.RowEntries() {
		if len(entries) == 0 {
			continue
		}
		row := make([]golp.Entry, len(entries))
		for p, nz := range entries {
			row[p] = golp.Entry{Col: nz.Col, Val: nz.Val}
		}
		if err := lp.AddConstraintSparse(row, golp.LE, mdl.RowUpper[r]); err != nil {
			return nil, fmt.Errorf("row %s: %v", mdl.RowNames[r], err)
		}
	}
	return &session{lp: lp, numCols: mdl.NumCols()}, nil
}

type session struct {
	lp       *golp.LP
	numCols  int
	released bool
}

func (s *session) SolveRelaxation(ctx context.Context, bounds *gmkp.BoundSet) (*gmkp.Relaxation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.released {
		return nil, fmt.Errorf("lp_solve session already released")
	}
	if s.numCols == 0 {
		return &gmkp.Relaxation{Status: gmkp.Optimal}, nil
	}

	for col := range s.numCols {
		s.lp.SetBounds(col, bounds.Lower(col), bounds.Upper(col))
	}

	switch status := s.lp.Solve(); status {
	case golp.OPTIMAL:
		return &gmkp.Relaxation{
			Status:    gmkp.Optimal,
			Objective: s.lp.Objective(),
			Values:    s.lp.Variables(),
		}, nil
	case golp.INFEASIBLE:
		return &gmkp.Relaxation{Status: gmkp.Infeasible}, nil
	default:
		return &gmkp.Relaxation{Status: gmkp.SolveError}, fmt.Errorf("status: %v", status)
	}
}

func (s *session) Release() error {
	s.lp = nil
	s.released = true
	return nil
}
