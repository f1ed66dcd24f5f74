package gmkp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// ObjectiveTolerance bounds the gap between a declared objective and the
	// profit recomputed from the vector.
	ObjectiveTolerance = 1e-6
	// FeasibilityTolerance is the slack allowed on every structural row.
	FeasibilityTolerance = 1e-6
)

// Violation classifies a solution vector. Values are ordered by the
// priority the checks run in.
type Violation int

const (
	OK Violation = iota
	CapacityViolated
	ItemMultiAssigned
	ClassOverAssigned
	DependencyViolated
	ObjectiveMismatch
)

func (v Violation) String() string {
	switch v {
	case OK:
		return "OK"
	case CapacityViolated:
		return "CAPACITY_VIOLATED"
	case ItemMultiAssigned:
		return "ITEM_MULTI_ASSIGNED"
	case ClassOverAssigned:
		return "CLASS_OVER_ASSIGNED"
	case DependencyViolated:
		return "DEPENDENCY_VIOLATED"
	case ObjectiveMismatch:
		return "OBJECTIVE_MISMATCH"
	}
	return fmt.Sprintf("Violation(%d)", int(v))
}

// Describe is the human readable form used in iteration reports.
func (v Violation) Describe() string {
	switch v {
	case OK:
		return "all constraints are ok"
	case CapacityViolated:
		return "weights of the items are greater than the capacity"
	case ItemMultiAssigned:
		return "item is assigned to more than one knapsack"
	case ClassOverAssigned:
		return "class is assigned to more knapsacks than allowed"
	case DependencyViolated:
		return "item is placed in a knapsack without its class"
	case ObjectiveMismatch:
		return "objective value does not match the assignment"
	}
	return v.String()
}

func binary(v float64) float64 {
	if v >= 0.5 {
		return 1
	}
	return 0
}

// RoundVector maps every entry to the closest of 0 and 1.
func RoundVector(vars []float64) []float64 {
	rounded := make([]float64, len(vars))
	for p, v := range vars {
		rounded[p] = binary(v)
	}
	return rounded
}

// blocks views vars as one item vector and one class vector per knapsack.
// A view is nil when the instance has no items or no classes.
func (inst *Instance) blocks(vars []float64) (items, classes []*mat.VecDense) {
	n, m, r := inst.NumItems, inst.NumKnapsacks, inst.NumClasses
	items = make([]*mat.VecDense, m)
	classes = make([]*mat.VecDense, m)
	for i := range m {
		items[i] = newVec(vars[i*n : (i+1)*n])
		classes[i] = newVec(vars[n*m+i*r : n*m+(i+1)*r])
	}
	return items, classes
}

// CheckSolution classifies vars against the instance constraints and the
// declared objective. Values are taken as they are, integral or not; the
// sums are compared with FeasibilityTolerance of slack. The first violated
// invariant wins: capacity, single placement, class fan-out, dependency,
// objective.
func (inst *Instance) CheckSolution(vars []float64, objective float64) Violation {
	n, m, r := inst.NumItems, inst.NumKnapsacks, inst.NumClasses
	if len(vars) != n*m+m*r {
		panic(fmt.Sprintf("gmkp: solution vector has %d entries, want %d", len(vars), n*m+m*r))
	}
	items, classes := inst.blocks(vars)

	for i := range m {
		load := 0.0
		if items[i] != nil {
			load += mat.Dot(inst.Weights, items[i])
		}
		if classes[i] != nil {
			load += mat.Dot(inst.Setups, classes[i])
		}
		if load > inst.Capacities.AtVec(i)+FeasibilityTolerance {
			return CapacityViolated
		}
	}

	if n > 0 && m > 0 {
		placed := mat.NewVecDense(n, nil)
		for _, x := range items {
			placed.AddVec(placed, x)
		}
		if mat.Max(placed) > 1+FeasibilityTolerance {
			return ItemMultiAssigned
		}
	}

	if r > 0 && m > 0 {
		opened := mat.NewVecDense(r, nil)
		for _, y := range classes {
			opened.AddVec(opened, y)
		}
		for k := range r {
			if opened.AtVec(k) > float64(inst.MaxKnapsacks[k])+FeasibilityTolerance {
				return ClassOverAssigned
			}
		}
	}

	for i := range m {
		for j, k := range inst.ClassOf {
			if k >= 0 && items[i].AtVec(j) > classes[i].AtVec(k)+FeasibilityTolerance {
				return DependencyViolated
			}
		}
	}

	if math.Abs(inst.Profit(vars)-objective) > ObjectiveTolerance {
		return ObjectiveMismatch
	}
	return OK
}
