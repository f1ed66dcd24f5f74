package gmkp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildModelShape(t *testing.T) {
	inst, err := ParseInstance(twoClassText)
	require.NoError(t, err)
	mdl := inst.BuildModel()

	n, m, r := 4, 2, 2
	require.Equal(t, n*m+m*r, mdl.NumCols())
	// capacity + single placement + fan-out + one link per knapsack and item
	require.Equal(t, m+n+r+m*n, mdl.NumRows())

	assert.Equal(t, "x_1_1", mdl.ColNames[mdl.XIndex(0, 0)])
	assert.Equal(t, "x_2_4", mdl.ColNames[mdl.XIndex(1, 3)])
	assert.Equal(t, "y_1_1", mdl.ColNames[mdl.YIndex(0, 0)])
	assert.Equal(t, "y_2_2", mdl.ColNames[mdl.YIndex(1, 1)])
	assert.Equal(t, n*m, mdl.YIndex(0, 0))
	assert.False(t, mdl.IsClassColumn(mdl.XIndex(1, 3)))
	assert.True(t, mdl.IsClassColumn(mdl.YIndex(0, 0)))

	for col := range mdl.NumCols() {
		assert.Equal(t, 0.0, mdl.ColLower[col])
		assert.Equal(t, 1.0, mdl.ColUpper[col])
	}
	assert.Equal(t, 9.0, mdl.ColCosts[mdl.XIndex(1, 1)])
	assert.Equal(t, 0.0, mdl.ColCosts[mdl.YIndex(1, 1)])

	kinds := []RowKind{CapacityRow, CapacityRow, SingleRow, SingleRow, SingleRow, SingleRow, FanOutRow, FanOutRow}
	assert.Equal(t, kinds, mdl.RowKinds[:len(kinds)])
	for _, kind := range mdl.RowKinds[len(kinds):] {
		assert.Equal(t, DependencyRow, kind)
	}
}

func TestBuildModelRows(t *testing.T) {
	inst, err := ParseInstance(twoClassText)
	require.NoError(t, err)
	mdl := inst.BuildModel()
	rows := mdl.RowEntries()

	// capacity of the second knapsack: weights on x, setups on y
	assert.Equal(t, 7.0, mdl.RowUpper[1])
	assert.Equal(t, []Nonzero{
		{Row: 1, Col: mdl.XIndex(1, 0), Val: 2},
		{Row: 1, Col: mdl.XIndex(1, 1), Val: 3},
		{Row: 1, Col: mdl.XIndex(1, 2), Val: 4},
		{Row: 1, Col: mdl.XIndex(1, 3), Val: 5},
		{Row: 1, Col: mdl.YIndex(1, 0), Val: 1},
		{Row: 1, Col: mdl.YIndex(1, 1), Val: 2},
	}, rows[1])

	// single placement of item 3
	assert.Equal(t, "single_3", mdl.RowNames[4])
	assert.Equal(t, 1.0, mdl.RowUpper[4])
	assert.Len(t, rows[4], 2)

	// fan-out of class 2 is bounded by b
	assert.Equal(t, "fanout_2", mdl.RowNames[7])
	assert.Equal(t, 2.0, mdl.RowUpper[7])

	// every link row is x_ij - y_ik <= 0 for the class k of item j
	for row := 8; row < mdl.NumRows(); row++ {
		require.Len(t, rows[row], 2)
		x, y := rows[row][0], rows[row][1]
		assert.Equal(t, 1.0, x.Val)
		assert.Equal(t, -1.0, y.Val)
		assert.Equal(t, 0.0, mdl.RowUpper[row])

		i, j := x.Col/inst.NumItems, x.Col%inst.NumItems
		assert.Equal(t, mdl.YIndex(i, inst.ClassOf[j]), y.Col)
	}
}

func TestBuildModelIsDeterministic(t *testing.T) {
	inst, err := ParseInstance(twoClassText)
	require.NoError(t, err)
	assert.Equal(t, inst.BuildModel(), inst.BuildModel())
}

func TestModelIntegralPointsMatchValidator(t *testing.T) {
	inst, err := ParseInstance(twoClassText)
	require.NoError(t, err)
	mdl := inst.BuildModel()
	bounds := NewBoundSet(mdl)

	// enumerate every 0/1 vector over a subset of columns and compare
	// feasibility in the model with the structural checks of the validator
	cols := []int{mdl.XIndex(0, 0), mdl.XIndex(1, 0), mdl.XIndex(0, 2), mdl.YIndex(0, 0), mdl.YIndex(1, 0)}
	for mask := range 1 << len(cols) {
		vars := make([]float64, mdl.NumCols())
		for p, col := range cols {
			if mask&(1<<p) != 0 {
				vars[col] = 1
			}
		}
		feasible := satisfies(mdl, vars, bounds, 1e-9)
		check := inst.CheckSolution(vars, inst.Profit(vars))
		assert.Equal(t, feasible, check == OK, "mask %b: model %v, validator %v", mask, feasible, check)
	}
}

// satisfies reports whether vars is inside the bounds and rows of the model
// up to tol.
func satisfies(mdl *Model, vars []float64, bounds *BoundSet, tol float64) bool {
	for col, v := range vars {
		if v < bounds.Lower(col)-tol || v > bounds.Upper(col)+tol {
			return false
		}
	}
	activity := make([]float64, mdl.NumRows())
	for _, nz := range mdl.ConstMatrix {
		activity[nz.Row] += nz.Val * vars[nz.Col]
	}
	for r, a := range activity {
		if a > mdl.RowUpper[r]+tol || math.IsNaN(a) {
			return false
		}
	}
	return true
}
