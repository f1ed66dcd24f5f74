package gmkp

import (
	"fmt"
)

type RowKind int

const (
	CapacityRow RowKind = iota
	SingleRow
	FanOutRow
	DependencyRow
)

func (k RowKind) String() string {
	switch k {
	case CapacityRow:
		return "capacity"
	case SingleRow:
		return "single"
	case FanOutRow:
		return "fanout"
	case DependencyRow:
		return "link"
	}
	return fmt.Sprintf("RowKind(%d)", int(k))
}

// Nonzero is an entry of the constraint matrix.
type Nonzero struct {
	Row int
	Col int
	Val float64
}

// Model is the linear relaxation of an instance: a maximization over
// columns in [ColLower, ColUpper] subject to rows sum(a*x) <= RowUpper.
// ConstMatrix is sorted by row.
type Model struct {
	NumItems     int
	NumKnapsacks int
	NumClasses   int
	ColCosts     []float64
	ColLower     []float64
	ColUpper     []float64
	ColNames     []string
	RowUpper     []float64
	RowKinds     []RowKind
	RowNames     []string
	ConstMatrix  []Nonzero
}

func (mdl *Model) NumCols() int {
	return len(mdl.ColCosts)
}

func (mdl *Model) NumRows() int {
	return len(mdl.RowUpper)
}

func (mdl *Model) XIndex(i, j int) int {
	return i*mdl.NumItems + j
}

func (mdl *Model) YIndex(i, k int) int {
	return mdl.NumItems*mdl.NumKnapsacks + i*mdl.NumClasses + k
}

// IsClassColumn tells whether col belongs to the y block.
func (mdl *Model) IsClassColumn(col int) bool {
	return col >= mdl.NumItems*mdl.NumKnapsacks
}

// RowEntries splits ConstMatrix by row.
func (mdl *Model) RowEntries() [][]Nonzero {
	rows := make([][]Nonzero, mdl.NumRows())
	start := 0
	for p := 1; p <= len(mdl.ConstMatrix); p++ {
		if p == len(mdl.ConstMatrix) || mdl.ConstMatrix[p].Row != mdl.ConstMatrix[start].Row {
			rows[mdl.ConstMatrix[start].Row] = mdl.ConstMatrix[start:p]
			start = p
		}
	}
	return rows
}

func (mdl *Model) addRow(kind RowKind, name string, upper float64, entries ...Nonzero) {
	row := mdl.NumRows()
	mdl.RowUpper = append(mdl.RowUpper, upper)
	mdl.RowKinds = append(mdl.RowKinds, kind)
	mdl.RowNames = append(mdl.RowNames, name)
	for _, e := range entries {
		if e.Val == 0 {
			continue
		}
		e.Row = row
		mdl.ConstMatrix = append(mdl.ConstMatrix, e)
	}
}

func (inst *Instance) defColumns(mdl *Model) {
	numCols := inst.NumItems*inst.NumKnapsacks + inst.NumKnapsacks*inst.NumClasses

	mdl.ColCosts = make([]float64, numCols)
	mdl.ColLower = make([]float64, numCols)
	mdl.ColUpper = make([]float64, numCols)
	mdl.ColNames = make([]string, numCols)

	for i := range inst.NumKnapsacks {
		for j := range inst.NumItems {
			col := mdl.XIndex(i, j)
			mdl.ColCosts[col] = inst.Profits.At(i, j)
			mdl.ColUpper[col] = 1
			mdl.ColNames[col] = fmt.Sprintf("x_%d_%d", i+1, j+1)
		}
		for k := range inst.NumClasses {
			col := mdl.YIndex(i, k)
			mdl.ColUpper[col] = 1
			mdl.ColNames[col] = fmt.Sprintf("y_%d_%d", i+1, k+1)
		}
	}
}

func (inst *Instance) defCapacities(mdl *Model) {
	for i := range inst.NumKnapsacks {
		entries := make([]Nonzero, 0, inst.NumItems+inst.NumClasses)
		for j := range inst.NumItems {
			entries = append(entries, Nonzero{Col: mdl.XIndex(i, j), Val: inst.Weights.AtVec(j)})
		}
		for k := range inst.NumClasses {
			entries = append(entries, Nonzero{Col: mdl.YIndex(i, k), Val: inst.Setups.AtVec(k)})
		}
		mdl.addRow(CapacityRow, fmt.Sprintf("capacity_%d", i+1), inst.Capacities.AtVec(i), entries...)
	}
}

func (inst *Instance) defSinglePlacement(mdl *Model) {
	for j := range inst.NumItems {
		entries := make([]Nonzero, inst.NumKnapsacks)
		for i := range inst.NumKnapsacks {
			entries[i] = Nonzero{Col: mdl.XIndex(i, j), Val: 1}
		}
		mdl.addRow(SingleRow, fmt.Sprintf("single_%d", j+1), 1, entries...)
	}
}

func (inst *Instance) defFanOut(mdl *Model) {
	for k := range inst.NumClasses {
		entries := make([]Nonzero, inst.NumKnapsacks)
		for i := range inst.NumKnapsacks {
			entries[i] = Nonzero{Col: mdl.YIndex(i, k), Val: 1}
		}
		mdl.addRow(FanOutRow, fmt.Sprintf("fanout_%d", k+1), float64(inst.MaxKnapsacks[k]), entries...)
	}
}

// defDependencies links every item to its class activation with one row
// x_ij - y_ik <= 0 per knapsack and classified item.
func (inst *Instance) defDependencies(mdl *Model) {
	for i := range inst.NumKnapsacks {
		for k := range inst.NumClasses {
			for _, j := range inst.Members(k) {
				mdl.addRow(
					DependencyRow,
					fmt.Sprintf("link_%d_%d", i+1, j+1),
					0,
					Nonzero{Col: mdl.XIndex(i, j), Val: 1},
					Nonzero{Col: mdl.YIndex(i, k), Val: -1},
				)
			}
		}
	}
}

// BuildModel translates the instance into the relaxation consumed by the
// solver engines. Rows come in the order capacity, single placement, class
// fan-out, dependency.
func (inst *Instance) BuildModel() *Model {
	mdl := &Model{
		NumItems:     inst.NumItems,
		NumKnapsacks: inst.NumKnapsacks,
		NumClasses:   inst.NumClasses,
	}
	inst.defColumns(mdl)
	inst.defCapacities(mdl)
	inst.defSinglePlacement(mdl)
	inst.defFanOut(mdl)
	inst.defDependencies(mdl)
	return mdl
}
