package highsengine

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/lanl/highs"

	"gmkp_lp_based/src/gmkp_solve/gmkp"
)

// Engine solves relaxations with HiGHS.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) NewSession(mdl *gmkp.Model) (gmkp.Session, error) {
	return &session{
		lp:      defRelaxation(mdl),
		numCols: mdl.NumCols(),
	}, nil
}

func defRelaxation(mdl *gmkp.Model) *highs.Model {
	lp := &highs.Model{
		Maximize: true,
		ColCosts: slices.Clone(mdl.ColCosts),
		ColLower: slices.Clone(mdl.ColLower),
		ColUpper: slices.Clone(mdl.ColUpper),
		RowUpper: slices.Clone(mdl.RowUpper),
	}

	lp.RowLower = make([]float64, mdl.NumRows())
	for r := range lp.RowLower {
		lp.RowLower[r] = math.Inf(-1)
	}
	lp.ConstMatrix = make([]highs.Nonzero, len(mdl.ConstMatrix))
	for p, nz := range mdl.ConstMatrix {
		lp.ConstMatrix[p] = highs.Nonzero{Row: nz.Row, Col: nz.Col, Val: nz.Val}
	}
	return lp
}

type session struct {
	lp      *highs.Model
	numCols int
}

func (s *session) SolveRelaxation(ctx context.Context, bounds *gmkp.BoundSet) (*gmkp.Relaxation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.lp == nil {
		return nil, fmt.Errorf("highs session already released")
	}
	if s.numCols == 0 {
		return &gmkp.Relaxation{Status: gmkp.Optimal}, nil
	}

	s.lp.ColLower = bounds.Lowers()
	s.lp.ColUpper = bounds.Uppers()
	solution, err := s.lp.Solve()
	if err != nil {
		return &gmkp.Relaxation{Status: gmkp.SolveError}, err
	}

	switch solution.Status {
	case highs.Optimal:
		return &gmkp.Relaxation{
			Status:    gmkp.Optimal,
			Objective: solution.Objective,
			Values:    slices.Clone(solution.ColumnPrimal[:s.numCols]),
		}, nil
	case highs.Infeasible:
		return &gmkp.Relaxation{Status: gmkp.Infeasible}, nil
	}
	return &gmkp.Relaxation{Status: gmkp.SolveError}, fmt.Errorf("status: %v", solution.Status.String())
}

func (s *session) Release() error {
	s.lp = nil
	return nil
}

// SolveExact solves the integer program with the HiGHS MIP solver and
// reports how the incumbent fares against CheckSolution.
func SolveExact(inst *gmkp.Instance) (*gmkp.Solution, gmkp.Violation, error) {
	mdl := inst.BuildModel()
	if mdl.NumCols() == 0 {
		return inst.NewSolution(nil), gmkp.OK, nil
	}

	lp := defRelaxation(mdl)
	lp.VarTypes = make([]highs.VariableType, mdl.NumCols())
	for j := range lp.VarTypes {
		lp.VarTypes[j] = highs.IntegerType
	}

	solution, err := lp.Solve()
	if err != nil {
		return nil, gmkp.OK, err
	}
	if solution.Status != highs.Optimal {
		return nil, gmkp.OK, fmt.Errorf("status: %v", solution.Status.String())
	}

	vars := gmkp.RoundVector(solution.ColumnPrimal[:mdl.NumCols()])
	return inst.NewSolution(vars), inst.CheckSolution(vars, solution.Objective), nil
}
