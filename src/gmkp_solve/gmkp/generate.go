package gmkp

import (
	"math"
	"math/rand"

	"github.com/samber/lo"
)

// RandomInstance draws an instance with n items, m knapsacks and r classes.
// Every item goes to one class (none when r is 0), capacities hold about
// half of the total weight spread over the knapsacks.
func RandomInstance(rng *rand.Rand, n, m, r int) *Instance {
	weights := make([]float64, n)
	for j := range weights {
		weights[j] = float64(1 + rng.Intn(20))
	}

	profits := make([][]float64, m)
	for i := range profits {
		profits[i] = make([]float64, n)
		for j := range profits[i] {
			profits[i][j] = float64(1 + rng.Intn(30))
		}
	}

	setups := make([]float64, r)
	b := make([]int, r)
	for k := range r {
		setups[k] = float64(rng.Intn(6))
		b[k] = 1 + rng.Intn(max(m, 1))
	}

	members := make([][]int, r)
	if r > 0 {
		for _, j := range rng.Perm(n) {
			k := rng.Intn(r)
			members[k] = append(members[k], j)
		}
	}
	classes := lo.Flatten(members)
	indexes := make([]int, r)
	end := 0
	for k := range r {
		end += len(members[k])
		indexes[k] = end
	}

	capacities := make([]float64, m)
	total := lo.Sum(weights) + lo.Sum(setups)
	for i := range capacities {
		capacities[i] = math.Max(1, math.Round(total/float64(2*max(m, 1))*(0.75+0.5*rng.Float64())))
	}

	inst, err := NewInstance(profits, weights, capacities, setups, b, classes, indexes)
	if err != nil {
		panic(err)
	}
	return inst
}
