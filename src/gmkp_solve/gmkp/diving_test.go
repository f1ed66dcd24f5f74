package gmkp

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type step func(ctx context.Context, bounds *BoundSet) (*Relaxation, error)

func relaxed(objective float64, values ...float64) step {
	return func(context.Context, *BoundSet) (*Relaxation, error) {
		return &Relaxation{Status: Optimal, Objective: objective, Values: values}, nil
	}
}

func blocked(ctx context.Context, _ *BoundSet) (*Relaxation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// scriptedSession plays back one step per solve, repeating the last one.
type scriptedSession struct {
	mu       sync.Mutex
	steps    []step
	bounds   []*BoundSet
	released atomic.Bool
}

func (s *scriptedSession) NewSession(*Model) (Session, error) {
	return s, nil
}

func (s *scriptedSession) SolveRelaxation(ctx context.Context, bounds *BoundSet) (*Relaxation, error) {
	s.mu.Lock()
	call := min(len(s.bounds), len(s.steps)-1)
	s.bounds = append(s.bounds, bounds)
	s.mu.Unlock()
	return s.steps[call](ctx, bounds)
}

func (s *scriptedSession) Release() error {
	s.released.Store(true)
	return nil
}

func (s *scriptedSession) solved(call int) *BoundSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds[call]
}

type failingEngine struct{}

func (failingEngine) NewSession(*Model) (Session, error) {
	return nil, errors.New("no license")
}

type DivingSuite struct {
	suite.Suite
	ctx context.Context
	// scenarioC has 2 knapsacks of capacity 4 and a single class with b=1
	// holding two items of weight 4; columns are x11 x12 x21 x22 y11 y21.
	scenarioC *Instance
}

func (s *DivingSuite) SetupTest() {
	s.ctx = context.Background()
	s.scenarioC = oneClassInstance(s.T(), []float64{4, 4}, []float64{4, 4}, [][]float64{{3, 3}, {3, 3}}, 0, 1)
}

func (s *DivingSuite) dive(inst *Instance, engine Engine, opts DivingOptions) (*Result, error) {
	return inst.SolveDiving(s.ctx, engine, opts)
}

// TestTrivialFeasible: both items fit, the root relaxation is integral.
func (s *DivingSuite) TestTrivialFeasible() {
	inst := oneClassInstance(s.T(), []float64{10}, []float64{4, 4}, [][]float64{{5, 5}}, 0, 1)

	res, err := s.dive(inst, NewSimplexEngine(), DefaultDivingOptions())
	require.NoError(s.T(), err)
	require.Equal(s.T(), Success, res.Status)
	require.InDelta(s.T(), 10.0, res.Objective, 1e-6)
	require.True(s.T(), res.Confirmed)
	require.Zero(s.T(), res.Iterations)
	require.Empty(s.T(), res.Fixings)
	require.Nil(s.T(), res.Warning)
	require.Equal(s.T(), []int{0, 0}, res.Solution.Placement())
}

// TestCapacityForcedExclusion: only one of the two items fits and the
// second one is forbidden after a capacity failure.
func (s *DivingSuite) TestCapacityForcedExclusion() {
	inst := oneClassInstance(s.T(), []float64{5}, []float64{4, 4}, [][]float64{{3, 3}}, 0, 1)

	res, err := s.dive(inst, NewSimplexEngine(), DefaultDivingOptions())
	require.NoError(s.T(), err)
	require.Equal(s.T(), Success, res.Status)
	require.InDelta(s.T(), 3.0, res.Objective, 1e-6)
	require.Nil(s.T(), res.Warning)

	placed := 0
	for _, knapsack := range res.Solution.Placement() {
		if knapsack >= 0 {
			placed++
		}
	}
	require.Equal(s.T(), 1, placed)

	forbidden := 0
	for _, f := range res.Fixings {
		if f.Reason == FixForbidden {
			forbidden++
			require.Equal(s.T(), CapacityViolated, f.Check)
			require.Equal(s.T(), Upper, f.Kind)
			require.False(s.T(), inst.BuildModel().IsClassColumn(f.Col), "an item is forbidden, not its class")
		}
	}
	require.Equal(s.T(), 1, forbidden)
}

// TestClassFanOut: the root relaxation opens the class at one half in both
// knapsacks; the dive keeps it in one.
func (s *DivingSuite) TestClassFanOut() {
	res, err := s.dive(s.scenarioC, NewSimplexEngine(), DefaultDivingOptions())
	require.NoError(s.T(), err)
	require.Equal(s.T(), Success, res.Status)
	require.True(s.T(), res.Confirmed)
	require.Nil(s.T(), res.Warning)
	require.InDelta(s.T(), 3.0, res.Objective, 1e-6)
	require.LessOrEqual(s.T(), res.Solution.Y(0, 0)+res.Solution.Y(1, 0), 1.0)
	require.Equal(s.T(), OK, s.scenarioC.CheckSolution(res.Solution.Vars(), res.Objective))

	require.NotEmpty(s.T(), res.Fixings)
	first := res.Fixings[0]
	require.True(s.T(), s.scenarioC.BuildModel().IsClassColumn(first.Col))
	require.Equal(s.T(), FixRounded, first.Reason)
	require.Equal(s.T(), ClassOverAssigned, first.Check)
}

// TestObjectiveStopRule: with the objective rule the dive stops on the
// fractional root of scenario C because its objective is integral.
func (s *DivingSuite) TestObjectiveStopRule() {
	opts := DefaultDivingOptions()
	opts.StopRule = StopIntegralObjective

	res, err := s.dive(s.scenarioC, NewSimplexEngine(), opts)
	require.NoError(s.T(), err)
	require.Equal(s.T(), Success, res.Status)
	require.InDelta(s.T(), 6.0, res.Objective, 1e-6)
	require.False(s.T(), res.Confirmed)

	// Success under this rule does not promise a valid vector
	var verr *ValidationError
	require.True(s.T(), errors.As(res.Warning, &verr), "got %v", res.Warning)
	require.NotEqual(s.T(), OK, verr.Kind)
	require.Equal(s.T(), verr.Kind, s.scenarioC.CheckSolution(res.Solution.Vars(), res.Objective))
}

func (s *DivingSuite) TestTieBreakAndCommit() {
	session := &scriptedSession{steps: []step{
		relaxed(6, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5),
		relaxed(3, 1, 0, 0, 0, 1, 0),
	}}
	d := NewDiver(s.scenarioC, session, DefaultDivingOptions())

	res, err := d.Run(s.ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), Success, res.Status)
	require.Equal(s.T(), 1, res.Iterations)
	require.Equal(s.T(), 3.0, res.Objective)
	require.Equal(s.T(), []Fixing{
		{Iteration: 1, Col: 4, Kind: Lower, Value: 1, Reason: FixRounded, Check: ClassOverAssigned},
	}, res.Fixings)

	require.Equal(s.T(), 0.0, session.solved(0).Lower(4))
	require.Equal(s.T(), 1.0, session.solved(1).Lower(4))
	require.Equal(s.T(), Done, d.Phase())
	require.Equal(s.T(), []BoundChange{{Col: 4, Kind: Lower, Value: 1}}, d.Bounds().Changes())
	require.Eventually(s.T(), session.released.Load, time.Second, 5*time.Millisecond)
}

func (s *DivingSuite) TestClassesBeforeItems() {
	session := &scriptedSession{steps: []step{
		relaxed(2.7, 0.9, 0, 0, 0, 0.3, 0),
		relaxed(3, 1, 0, 0, 0, 1, 0),
	}}

	res, err := s.dive(s.scenarioC, session, DefaultDivingOptions())
	require.NoError(s.T(), err)
	require.Len(s.T(), res.Fixings, 1)
	require.Equal(s.T(), 4, res.Fixings[0].Col)
}

func (s *DivingSuite) TestExactOnesAreLocked() {
	session := &scriptedSession{steps: []step{
		relaxed(4.5, 1, 0.5, 0, 0, 1, 0),
		relaxed(3, 1, 0, 0, 0, 1, 0),
	}}

	res, err := s.dive(s.scenarioC, session, DefaultDivingOptions())
	require.NoError(s.T(), err)
	require.Equal(s.T(), Success, res.Status)
	require.Equal(s.T(), []Fixing{
		{Iteration: 1, Col: 4, Kind: Lower, Value: 1, Reason: FixIntegral, Check: OK},
		{Iteration: 1, Col: 0, Kind: Lower, Value: 1, Reason: FixIntegral, Check: OK},
		{Iteration: 1, Col: 1, Kind: Upper, Value: 0, Reason: FixForbidden, Check: CapacityViolated},
	}, res.Fixings)

	bounds := session.solved(1)
	require.Equal(s.T(), 1.0, bounds.Lower(4))
	require.Equal(s.T(), 1.0, bounds.Lower(0))
	require.Equal(s.T(), 0.0, bounds.Upper(1))
}

func (s *DivingSuite) TestInfeasibleRelaxation() {
	session := &scriptedSession{steps: []step{
		func(context.Context, *BoundSet) (*Relaxation, error) {
			return &Relaxation{Status: Infeasible}, nil
		},
	}}

	res, err := s.dive(s.scenarioC, session, DefaultDivingOptions())
	require.True(s.T(), errors.Is(err, ErrSolverInfeasible), "got %v", err)
	require.Equal(s.T(), StatusInfeasible, res.Status)
	require.False(s.T(), res.Confirmed)
}

func (s *DivingSuite) TestSolverFailure() {
	session := &scriptedSession{steps: []step{
		relaxed(6, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5),
		func(context.Context, *BoundSet) (*Relaxation, error) {
			return nil, errors.New("singular basis")
		},
	}}

	res, err := s.dive(s.scenarioC, session, DefaultDivingOptions())
	require.True(s.T(), errors.Is(err, ErrSolverError), "got %v", err)
	require.Equal(s.T(), StatusError, res.Status)
	require.Len(s.T(), res.Fixings, 1)
	require.Eventually(s.T(), session.released.Load, time.Second, 5*time.Millisecond)

	_, err = s.dive(s.scenarioC, failingEngine{}, DefaultDivingOptions())
	require.True(s.T(), errors.Is(err, ErrSolverError), "got %v", err)
}

func (s *DivingSuite) TestBudgetExceededAtRoot() {
	session := &scriptedSession{steps: []step{blocked}}
	opts := DefaultDivingOptions()
	opts.TimeBudget = 20 * time.Millisecond

	res, err := s.dive(s.scenarioC, session, opts)
	require.True(s.T(), errors.Is(err, ErrBudgetExceeded), "got %v", err)
	require.Equal(s.T(), BudgetExceeded, res.Status)
	require.False(s.T(), res.Confirmed)
	require.Equal(s.T(), make([]float64, 6), res.Solution.Vars())
	require.Eventually(s.T(), session.released.Load, time.Second, 5*time.Millisecond)
}

func (s *DivingSuite) TestBudgetExceededMidDive() {
	session := &scriptedSession{steps: []step{
		relaxed(6, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5),
		blocked,
	}}
	opts := DefaultDivingOptions()
	opts.TimeBudget = 20 * time.Millisecond

	res, err := s.dive(s.scenarioC, session, opts)
	require.True(s.T(), errors.Is(err, ErrBudgetExceeded), "got %v", err)
	require.Equal(s.T(), BudgetExceeded, res.Status)
	require.Equal(s.T(), 6.0, res.Objective)
	require.Equal(s.T(), []float64{1, 1, 1, 1, 1, 1}, res.Solution.Vars())
	require.Len(s.T(), res.Fixings, 1)
	require.Error(s.T(), res.Warning)
}

func (s *DivingSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	res, err := s.scenarioC.SolveDiving(ctx, NewSimplexEngine(), DefaultDivingOptions())
	require.True(s.T(), errors.Is(err, ErrBudgetExceeded), "got %v", err)
	require.Equal(s.T(), BudgetExceeded, res.Status)
}

func (s *DivingSuite) TestIterationLimit() {
	// the session ignores the bounds, so the same candidate keeps coming back
	session := &scriptedSession{steps: []step{relaxed(6, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5)}}
	opts := DefaultDivingOptions()
	opts.MaxIterations = 3

	res, err := s.dive(s.scenarioC, session, opts)
	require.True(s.T(), errors.Is(err, ErrIterationLimit), "got %v", err)
	require.Equal(s.T(), StatusError, res.Status)
	require.Equal(s.T(), 3, res.Iterations)
	require.Len(s.T(), res.Fixings, 1)
}

func (s *DivingSuite) TestIntegralVectorWithFractionalObjective() {
	session := &scriptedSession{steps: []step{relaxed(2.5, 1, 0, 0, 0, 1, 0)}}
	opts := DefaultDivingOptions()
	opts.StopRule = StopIntegralObjective

	res, err := s.dive(s.scenarioC, session, opts)
	require.True(s.T(), errors.Is(err, ErrNoFractionalVariable), "got %v", err)
	require.Equal(s.T(), StatusError, res.Status)
}

// TestRandomInstances checks on small random instances that the dive ends
// on a valid solution within one re-solve per column and that every column
// is fixed at most once.
func (s *DivingSuite) TestRandomInstances() {
	for seed := int64(1); seed <= 8; seed++ {
		inst := RandomInstance(rand.New(rand.NewSource(seed)), 5, 2, 2)

		res, err := s.dive(inst, NewSimplexEngine(), DefaultDivingOptions())
		require.NoError(s.T(), err, "seed %d", seed)
		require.Equal(s.T(), Success, res.Status, "seed %d", seed)
		require.Nil(s.T(), res.Warning, "seed %d", seed)
		require.LessOrEqual(s.T(), res.Iterations, inst.BuildModel().NumCols(), "seed %d", seed)
		require.Equal(s.T(), OK, inst.CheckSolution(res.Solution.Vars(), res.Solution.TotalProfit), "seed %d", seed)

		fixed := map[int]bool{}
		last := 0
		for _, f := range res.Fixings {
			require.False(s.T(), fixed[f.Col], "seed %d: column %d fixed twice", seed, f.Col)
			require.GreaterOrEqual(s.T(), f.Iteration, last, "seed %d", seed)
			fixed[f.Col] = true
			last = f.Iteration
		}
	}
}

func TestDivingSuite(t *testing.T) {
	suite.Run(t, new(DivingSuite))
}

func TestParseStopRule(t *testing.T) {
	rule, err := ParseStopRule("Objective")
	require.NoError(t, err)
	require.Equal(t, StopIntegralObjective, rule)

	rule, err = ParseStopRule("")
	require.NoError(t, err)
	require.Equal(t, StopIntegralVector, rule)

	_, err = ParseStopRule("never")
	require.Error(t, err)
	require.Equal(t, `unknown stop rule "never"`, err.Error())
	// errors built with pkg/errors carry the call stack
	require.Contains(t, fmt.Sprintf("%+v", err), "ParseStopRule")
}
