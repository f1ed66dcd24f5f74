package gmkp

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/dnaeon/go-priorityqueue.v1"
)

func density(profit, weight float64) float64 {
	if weight == 0 {
		return math.Inf(1)
	}
	return profit / weight
}

// Greedy places items in order of decreasing profit density, opening a
// class in a knapsack when its first item goes in. The result satisfies
// every constraint of the instance.
func (inst *Instance) Greedy() *Solution {
	n, m, r := inst.NumItems, inst.NumKnapsacks, inst.NumClasses
	vars := make([]float64, n*m+m*r)
	if n == 0 || m == 0 {
		return inst.NewSolution(vars)
	}
	items, classes := inst.blocks(vars)
	load := mat.NewVecDense(m, nil)
	opened := make([]int, r)
	placed := make([]bool, n)

	pq := priorityqueue.New[int, float64](priorityqueue.MinHeap)
	for i := range m {
		for j := range n {
			if p := inst.Profits.At(i, j); p > 0 {
				pq.Put(i*n+j, -density(p, inst.Weights.AtVec(j)))
			}
		}
	}

	for pq.Len() > 0 {
		item := pq.Get()
		i, j := item.Value/n, item.Value%n
		if placed[j] {
			continue
		}

		need := inst.Weights.AtVec(j)
		k := inst.ClassOf[j]
		open := k < 0 || classes[i].AtVec(k) > 0.5
		if !open {
			if opened[k] >= inst.MaxKnapsacks[k] {
				continue
			}
			need += inst.Setups.AtVec(k)
		}
		if load.AtVec(i)+need > inst.Capacities.AtVec(i) {
			continue
		}

		if !open {
			classes[i].SetVec(k, 1)
			opened[k]++
		}
		items[i].SetVec(j, 1)
		load.SetVec(i, load.AtVec(i)+need)
		placed[j] = true
	}

	// the views write through to vars
	return inst.NewSolution(vars)
}
