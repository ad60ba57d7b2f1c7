package matching

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// integralityTol decides when an LP value counts as 0 or 1.
	integralityTol = 1e-6

	// simplexTol is the pivot tolerance handed to the simplex solver.
	simplexTol = 1e-10

	// maxBranchNodes bounds the branch-and-bound search. The incumbent at
	// exhaustion is returned; the LP relaxation of a packing model is rarely
	// fractional, so the bound is almost never hit.
	maxBranchNodes = 200
)

// ipModel is the set-packing program behind the optimal matcher: binary
// variables select (group, driver) pairs, each request joins at most one
// selected group, each driver serves at most one. The quit penalty is folded
// into the objective, so minimizing adjusted cost trades route cost against
// requests left unserved.
type ipModel struct {
	adjCost []float64 // adjusted objective coefficient per pair
	members [][]int   // request indices per pair
	driver  []int     // driver index per pair

	numRequests int
	numDrivers  int
}

type branchNode struct {
	fixed map[int]int // pair index -> 0 or 1
}

// solve returns the selected pair indices, or nil when selecting nothing is
// optimal. Solves the LP relaxation with slack variables and branches on the
// most fractional pair variable, one-branch first, depth first.
func (m *ipModel) solve() []int {
	if len(m.adjCost) == 0 {
		return nil
	}

	bestVal := 0.0 // empty selection is always feasible at cost zero
	var best []int

	stack := []branchNode{{fixed: map[int]int{}}}
	nodes := 0

	for len(stack) > 0 && nodes < maxBranchNodes {
		nodes++
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		lpVal, x, feasible := m.solveRelaxation(node.fixed)
		if !feasible || lpVal >= bestVal-integralityTol {
			continue
		}

		branchVar := -1
		branchFrac := integralityTol
		for j, v := range x {
			if _, isFixed := node.fixed[j]; isFixed {
				continue
			}
			frac := math.Min(v, 1-v)
			if frac > branchFrac {
				branchFrac = frac
				branchVar = j
			}
		}

		if branchVar < 0 {
			// Integral: round and record the incumbent.
			var selected []int
			for j, v := range x {
				if v > 0.5 {
					selected = append(selected, j)
				}
			}
			bestVal = lpVal
			best = selected
			continue
		}

		zero := copyFixed(node.fixed)
		zero[branchVar] = 0
		one := copyFixed(node.fixed)
		one[branchVar] = 1
		// Push the zero branch first so the one branch is explored first.
		stack = append(stack, branchNode{fixed: zero}, branchNode{fixed: one})
	}

	return best
}

// solveRelaxation solves the LP relaxation with the given variables fixed.
// Fixed-one variables are folded into the right-hand side; the model is put
// in standard equality form with one slack column per row.
func (m *ipModel) solveRelaxation(fixed map[int]int) (float64, []float64, bool) {
	numRows := m.numRequests + m.numDrivers

	b := make([]float64, numRows)
	for i := range b {
		b[i] = 1
	}

	fixedCost := 0.0
	var free []int
	for j := range m.adjCost {
		switch fixed[j] {
		case 1:
			fixedCost += m.adjCost[j]
			for _, r := range m.members[j] {
				b[r]--
			}
			b[m.numRequests+m.driver[j]]--
		case 0:
			if _, isFixed := fixed[j]; isFixed {
				continue
			}
			free = append(free, j)
		}
	}
	for _, rhs := range b {
		if rhs < 0 {
			return 0, nil, false // fixed-one pairs conflict
		}
	}

	numCols := len(free) + numRows
	c := make([]float64, numCols)
	a := mat.NewDense(numRows, numCols, nil)

	for col, j := range free {
		c[col] = m.adjCost[j]
		for _, r := range m.members[j] {
			a.Set(r, col, 1)
		}
		a.Set(m.numRequests+m.driver[j], col, 1)
	}
	for i := 0; i < numRows; i++ {
		a.Set(i, len(free)+i, 1) // slack
	}

	opt, xFree, err := lp.Simplex(c, a, b, simplexTol, nil)
	if err != nil {
		return 0, nil, false
	}

	x := make([]float64, len(m.adjCost))
	for j, v := range fixed {
		x[j] = float64(v)
	}
	for col, j := range free {
		x[j] = xFree[col]
	}
	return opt + fixedCost, x, true
}

func copyFixed(fixed map[int]int) map[int]int {
	out := make(map[int]int, len(fixed)+1)
	for k, v := range fixed {
		out[k] = v
	}
	return out
}
