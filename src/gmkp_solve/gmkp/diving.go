package gmkp

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
)

const defaultTolerance = 1e-6

type StopRule int

const (
	// StopIntegralVector ends the dive once every variable is integral.
	StopIntegralVector StopRule = iota
	// StopIntegralObjective ends the dive as soon as the relaxed objective
	// is integral, whatever the vector looks like. A Success result may then
	// carry a vector that breaks the instance constraints; Result.Warning
	// names the violation.
	StopIntegralObjective
)

func (r StopRule) String() string {
	if r == StopIntegralObjective {
		return "objective"
	}
	return "vector"
}

func ParseStopRule(s string) (StopRule, error) {
	switch strings.ToLower(s) {
	case "", "vector":
		return StopIntegralVector, nil
	case "objective":
		return StopIntegralObjective, nil
	}
	return 0, errors.Errorf("unknown stop rule %q", s)
}

type DivingOptions struct {
	// TimeBudget bounds the whole dive; zero means no limit.
	TimeBudget time.Duration
	// Tolerance is the integrality tolerance.
	Tolerance float64
	StopRule  StopRule
	// MaxIterations caps the number of re-solves; zero means one per column.
	MaxIterations int
}

func DefaultDivingOptions() DivingOptions {
	return DivingOptions{
		Tolerance: defaultTolerance,
		StopRule:  StopIntegralVector,
	}
}

type Phase int

const (
	Relaxed Phase = iota
	Integral
	Repairing
	Done
)

func (p Phase) String() string {
	switch p {
	case Relaxed:
		return "RELAXED"
	case Integral:
		return "INTEGRAL"
	case Repairing:
		return "REPAIRING"
	case Done:
		return "DONE"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

type Status int

const (
	Success Status = iota
	StatusInfeasible
	StatusError
	BudgetExceeded
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case StatusInfeasible:
		return "Infeasible"
	case StatusError:
		return "Error"
	case BudgetExceeded:
		return "BudgetExceeded"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type FixReason int

const (
	// FixIntegral locks a variable the relaxation already set to one.
	FixIntegral FixReason = iota
	// FixRounded commits the rounding candidate to one.
	FixRounded
	// FixForbidden forbids the rounding candidate after a capacity failure.
	FixForbidden
)

func (r FixReason) String() string {
	switch r {
	case FixIntegral:
		return "integral"
	case FixRounded:
		return "rounded"
	case FixForbidden:
		return "forbidden"
	}
	return fmt.Sprintf("FixReason(%d)", int(r))
}

// Fixing records a permanent bound commitment made by the dive.
type Fixing struct {
	Iteration int
	Col       int
	Kind      BoundKind
	Value     float64
	Reason    FixReason
	Check     Violation
}

type Result struct {
	Status Status
	// Objective is the relaxed objective of the last solve.
	Objective float64
	// Solution is the last relaxed vector rounded to {0,1}.
	Solution *Solution
	// Confirmed is false when the dive stopped before an integral
	// relaxation was reached.
	Confirmed bool
	// Warning holds a *ValidationError when the final vector fails
	// CheckSolution.
	Warning    error
	Iterations int
	Fixings    []Fixing
	Elapsed    time.Duration
}

func (res *Result) String() string {
	s := new(strings.Builder)
	fmt.Fprintf(s, "Status: %v (confirmed: %v)\n", res.Status, res.Confirmed)
	fmt.Fprintf(s, "Relaxed objective: %f\n", res.Objective)
	fmt.Fprintf(s, "Iterations: %d, fixings: %d, elapsed: %v\n", res.Iterations, len(res.Fixings), res.Elapsed)
	if res.Warning != nil {
		fmt.Fprintf(s, "Warning: %v\n", res.Warning)
	}
	if res.Solution != nil {
		s.WriteString(res.Solution.String())
	}
	return s.String()
}

// Diver runs the LP guided rounding heuristic on one instance. It owns the
// model, the bound set and the solver session for the whole dive and must
// not be shared between goroutines.
type Diver struct {
	inst    *Instance
	model   *Model
	bounds  *BoundSet
	engine  Engine
	session Session
	opts    DivingOptions

	phase    Phase
	fixings  []Fixing
	inflight chan struct{}
}

func NewDiver(inst *Instance, engine Engine, opts DivingOptions) *Diver {
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultTolerance
	}
	return &Diver{
		inst:   inst,
		engine: engine,
		opts:   opts,
	}
}

// SolveDiving builds the model of inst and dives on it with a fresh session
// of engine.
func (inst *Instance) SolveDiving(ctx context.Context, engine Engine, opts DivingOptions) (*Result, error) {
	return NewDiver(inst, engine, opts).Run(ctx)
}

func (d *Diver) Model() *Model {
	return d.model
}

func (d *Diver) Bounds() *BoundSet {
	return d.bounds
}

func (d *Diver) Phase() Phase {
	return d.phase
}

func (d *Diver) setPhase(p Phase) {
	if log.V(2) && p != d.phase {
		log.Infof("diving: %v -> %v", d.phase, p)
	}
	d.phase = p
}

func (d *Diver) isIntegral(v float64) bool {
	return math.Abs(v-math.Round(v)) <= d.opts.Tolerance
}

func (d *Diver) isOne(v float64) bool {
	return math.Abs(v-1) <= d.opts.Tolerance
}

func (d *Diver) allIntegral(values []float64) bool {
	return !slices.ContainsFunc(values, func(v float64) bool { return !d.isIntegral(v) })
}

func (d *Diver) reachedStop(rel *Relaxation) bool {
	if d.opts.StopRule == StopIntegralObjective {
		return d.isIntegral(rel.Objective)
	}
	return d.allIntegral(rel.Values)
}

func (d *Diver) maxIterations() int {
	if d.opts.MaxIterations > 0 {
		return d.opts.MaxIterations
	}
	return d.model.NumCols()
}

func (d *Diver) commit(iter, col int, kind BoundKind, value float64, reason FixReason, check Violation) error {
	changed, err := d.bounds.Tighten(col, kind, value)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	d.fixings = append(d.fixings, Fixing{
		Iteration: iter,
		Col:       col,
		Kind:      kind,
		Value:     value,
		Reason:    reason,
		Check:     check,
	})
	if log.V(2) {
		log.Infof("diving: iteration %d: %s %v=%v (%v)", iter, d.model.ColNames[col], kind, value, reason)
	}
	return nil
}

// scanBlock locks every variable of values[from:to] sitting at one and
// returns the largest fractional one, first occurrence on ties, or -1.
func (d *Diver) scanBlock(iter int, values []float64, from, to int) (int, error) {
	candidate := -1
	best := math.Inf(-1)
	for col := from; col < to; col++ {
		v := values[col]
		if d.isOne(v) {
			if err := d.commit(iter, col, Lower, 1, FixIntegral, OK); err != nil {
				return -1, err
			}
		} else if !d.isIntegral(v) && v > best {
			best = v
			candidate = col
		}
	}
	return candidate, nil
}

// selectCandidate resolves class activations before item placements: the x
// block is only looked at once every y is integral.
func (d *Diver) selectCandidate(iter int, values []float64) (int, error) {
	numX := d.model.NumItems * d.model.NumKnapsacks
	candidate, err := d.scanBlock(iter, values, numX, d.model.NumCols())
	if err != nil || candidate >= 0 {
		return candidate, err
	}
	return d.scanBlock(iter, values, 0, numX)
}

// repair commits or forbids the rounding candidate depending on whether
// rounding it to one breaks a knapsack capacity.
func (d *Diver) repair(iter int, rel *Relaxation) error {
	d.setPhase(Repairing)
	candidate, err := d.selectCandidate(iter, rel.Values)
	if err != nil {
		return err
	}
	if candidate < 0 {
		return errors.Wrapf(ErrNoFractionalVariable, "iteration %d, objective %v", iter, rel.Objective)
	}

	working := slices.Clone(rel.Values)
	working[candidate] = 1
	check := d.inst.CheckSolution(working, rel.Objective)
	if check == CapacityViolated {
		return d.commit(iter, candidate, Upper, 0, FixForbidden, check)
	}
	return d.commit(iter, candidate, Lower, 1, FixRounded, check)
}

type solveOutcome struct {
	rel *Relaxation
	err error
}

// solve runs one relaxation in its own goroutine so that the context can
// abort the dive while the engine is busy.
func (d *Diver) solve(ctx context.Context) (*Relaxation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, bounds := d.session, d.bounds.Clone()
	outcome := make(chan solveOutcome, 1)
	done := make(chan struct{})
	d.inflight = done
	go func() {
		defer close(done)
		rel, err := session.SolveRelaxation(ctx, bounds)
		outcome <- solveOutcome{rel: rel, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-outcome:
		if out.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, errors.Wrap(ErrSolverError, out.err.Error())
		}
		switch out.rel.Status {
		case Optimal:
			return out.rel, nil
		case Infeasible:
			return nil, ErrSolverInfeasible
		}
		return nil, errors.Wrapf(ErrSolverError, "relaxation status %v", out.rel.Status)
	}
}

func (d *Diver) release() {
	if d.session == nil {
		return
	}
	session, inflight := d.session, d.inflight
	d.session = nil
	releaseNow := func() {
		if err := session.Release(); err != nil {
			log.Errorf("diving: releasing solver session: %v", err)
		}
	}
	select {
	case <-inflight:
		releaseNow()
	default:
		if inflight == nil {
			releaseNow()
			return
		}
		go func() {
			<-inflight
			releaseNow()
		}()
	}
}

func (d *Diver) report(iter int, rel *Relaxation) {
	if !log.V(1) {
		return
	}
	check := d.inst.CheckSolution(rel.Values, rel.Objective)
	if check == OK {
		log.Infof("Iteration %d: objective %v, %s", iter, rel.Objective, check.Describe())
	} else {
		log.Infof("Iteration %d: objective %v, constraint violated: %s", iter, rel.Objective, check.Describe())
	}
}

func (d *Diver) result(status Status, rel *Relaxation, iterations int, start time.Time) *Result {
	res := &Result{
		Status:     status,
		Iterations: iterations,
		Fixings:    slices.Clone(d.fixings),
		Elapsed:    time.Since(start),
	}
	var values []float64
	if rel != nil {
		res.Objective = rel.Objective
		values = RoundVector(rel.Values)
	} else {
		values = make([]float64, d.model.NumCols())
	}
	res.Solution = d.inst.NewSolution(values)

	objective := res.Solution.TotalProfit
	if rel != nil && status == Success {
		objective = rel.Objective
	}
	if check := d.inst.CheckSolution(values, objective); check != OK {
		res.Warning = &ValidationError{Kind: check}
		if status == Success {
			log.Warningf("diving: final solution: %v", res.Warning)
		}
	}
	return res
}

// Run dives from the root relaxation to an integral solution. Every
// iteration fixes one more column, so the dive performs at most one re-solve
// per column. Solver failures end the dive with an error; running out of
// time returns the last vector rounded, unconfirmed, with ErrBudgetExceeded.
func (d *Diver) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if d.opts.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.TimeBudget)
		defer cancel()
	}

	d.model = d.inst.BuildModel()
	d.bounds = NewBoundSet(d.model)
	d.fixings = nil
	session, err := d.engine.NewSession(d.model)
	if err != nil {
		return &Result{Status: StatusError}, errors.Wrap(ErrSolverError, err.Error())
	}
	d.session = session
	defer d.release()

	fail := func(rel *Relaxation, iterations int, err error) (*Result, error) {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			log.Warningf("diving: stopped after %d iterations: %v", iterations, err)
			return d.result(BudgetExceeded, rel, iterations, start), errors.Wrap(ErrBudgetExceeded, err.Error())
		case errors.Is(err, ErrSolverInfeasible):
			log.Errorf("diving: iteration %d: %v", iterations, err)
			return d.result(StatusInfeasible, rel, iterations, start), err
		default:
			log.Errorf("diving: iteration %d: %v", iterations, err)
			return d.result(StatusError, rel, iterations, start), err
		}
	}

	rel, err := d.solve(ctx)
	if err != nil {
		return fail(nil, 0, err)
	}
	d.setPhase(Relaxed)
	d.report(0, rel)

	limit := d.maxIterations()
	for iter := 1; ; iter++ {
		if d.reachedStop(rel) {
			d.setPhase(Integral)
			res := d.result(Success, rel, iter-1, start)
			res.Confirmed = d.allIntegral(rel.Values)
			d.setPhase(Done)
			return res, nil
		}
		if iter > limit {
			return fail(rel, iter-1, errors.Wrapf(ErrIterationLimit, "%d re-solves", limit))
		}

		if err := d.repair(iter, rel); err != nil {
			return fail(rel, iter-1, err)
		}

		next, err := d.solve(ctx)
		if err != nil {
			return fail(rel, iter-1, err)
		}
		rel = next
		d.setPhase(Relaxed)
		d.report(iter, rel)
	}
}
