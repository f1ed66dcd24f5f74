package gmkp

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Instance is the static data of a GMKP instance. Profits has one row per
// knapsack and one column per item, class members are stored flattened in
// Classes with Indexes holding the end offset of every class.
//
// gonum has no empty vectors: a matrix or vector with no entries (no items,
// no knapsacks or no classes) is nil.
type Instance struct {
	NumItems     int
	NumKnapsacks int
	NumClasses   int
	Profits      *mat.Dense
	Weights      *mat.VecDense
	Capacities   *mat.VecDense
	Setups       *mat.VecDense
	MaxKnapsacks []int
	Classes      []int
	Indexes      []int
	ClassOf      []int
}

// Solution is an assignment vector laid out as the model columns: the x
// block (knapsack-major) followed by the y block (knapsack-major).
type Solution struct {
	Assignment   *mat.VecDense
	TotalProfit  float64
	numItems     int
	numKnapsacks int
	numClasses   int
}

func newVec(data []float64) *mat.VecDense {
	if len(data) == 0 {
		return nil
	}
	return mat.NewVecDense(len(data), data)
}

func newDense(rows, cols int, data []float64) *mat.Dense {
	if rows == 0 || cols == 0 {
		return nil
	}
	return mat.NewDense(rows, cols, data)
}

func rawVec(v *mat.VecDense) []float64 {
	if v == nil {
		return nil
	}
	return v.RawVector().Data
}

// NewSolution wraps vars, which must follow the model column layout, and
// computes its profit.
func (inst *Instance) NewSolution(vars []float64) *Solution {
	return &Solution{
		Assignment:   newVec(vars),
		TotalProfit:  inst.Profit(vars),
		numItems:     inst.NumItems,
		numKnapsacks: inst.NumKnapsacks,
		numClasses:   inst.NumClasses,
	}
}

// Vars returns the backing data of the assignment.
func (sol *Solution) Vars() []float64 {
	return rawVec(sol.Assignment)
}

func (sol *Solution) X(i, j int) float64 {
	return sol.Assignment.AtVec(i*sol.numItems + j)
}

func (sol *Solution) Y(i, k int) float64 {
	return sol.Assignment.AtVec(sol.numItems*sol.numKnapsacks + i*sol.numClasses + k)
}

// Placement returns, for every item, the knapsack holding it or -1.
func (sol *Solution) Placement() []int {
	placement := make([]int, sol.numItems)
	for j := range sol.numItems {
		placement[j] = -1
		for i := range sol.numKnapsacks {
			if sol.X(i, j) > 0.5 {
				placement[j] = i
				break
			}
		}
	}
	return placement
}

func (sol *Solution) String() string {
	s := new(strings.Builder)
	s.WriteString(fmt.Sprintf("Total profit: %f\n", sol.TotalProfit))
	for i := range sol.numKnapsacks {
		fmt.Fprintf(s, "Knapsack %d: items [ ", i)
		for j := range sol.numItems {
			if sol.X(i, j) > 0.5 {
				fmt.Fprint(s, j, " ")
			}
		}
		s.WriteString("] classes [ ")
		for k := range sol.numClasses {
			if sol.Y(i, k) > 0.5 {
				fmt.Fprint(s, k, " ")
			}
		}
		s.WriteString("]\n")
	}
	return strings.TrimSuffix(s.String(), "\n")
}

// profitRow returns the profits of knapsack i, nil when there are no items.
func (inst *Instance) profitRow(i int) []float64 {
	if inst.Profits == nil {
		return nil
	}
	return mat.Row(nil, i, inst.Profits)
}

func (inst *Instance) String() string {
	s := new(strings.Builder)
	s.WriteString(fmt.Sprintf("N. items: %d\n", inst.NumItems))
	s.WriteString(fmt.Sprintf("N. knapsacks: %d\n", inst.NumKnapsacks))
	s.WriteString(fmt.Sprintf("N. classes: %d\n", inst.NumClasses))

	for i := range inst.NumKnapsacks {
		s.WriteString(fmt.Sprintf("Knapsack %d: capacity %v, profits %v\n", i, inst.Capacities.AtVec(i), inst.profitRow(i)))
	}
	s.WriteString(fmt.Sprintf("Weights: %v\n", rawVec(inst.Weights)))
	for k := range inst.NumClasses {
		s.WriteString(fmt.Sprintf("Class %d: setup %v, b %d, items %v\n", k, inst.Setups.AtVec(k), inst.MaxKnapsacks[k], inst.Members(k)))
	}
	return s.String()
}
