// Package opt implements the optimisation driver of spec.md §4.8: starting
// from a model, repeatedly try to falsify one more candidate literal while
// keeping every earlier commitment, re-solving under the strengthened
// assumptions each time. A literal that can be falsified stays falsified
// for good; one that can't is locked true by adding it as a unit clause.
// What's left once every candidate has been tried is subset-minimal: no
// proper subset of its true literals is also a model.
//
// Grounded on original_source/solvers/Main.cpp's optimise loop (solve, fix
// the best literal found so far, re-solve, repeat until no more progress).
package opt

import (
	"github.com/cespare/ecnf/internal/sat"
	"github.com/cespare/ecnf/internal/trail"
)

// Mode selects which of spec.md §4.8's optimisation criteria orders the
// shrink loop's candidates.
type Mode uint8

const (
	// MinimizeSubset shrinks Candidates in the order given, with no
	// preference among them beyond that order.
	MinimizeSubset Mode = iota
	// MinimizeOrdered treats Candidates as a strict priority list:
	// earlier literals are more important to falsify than later ones,
	// regardless of how many end up true overall.
	MinimizeOrdered
	// MinimizeWeightedSum shrinks Candidates in descending Weight order,
	// greedily preferring to falsify the heaviest literals first. This
	// finds a locally weight-minimal model, not necessarily the globally
	// minimum weighted sum, which would need a cardinality/PB encoding
	// this package does not build (see DESIGN.md).
	MinimizeWeightedSum
)

// Problem is one optimisation request over an already-built driver.
type Problem struct {
	Mode       Mode
	Candidates []trail.Literal
	Weights    []int64 // parallel to Candidates; read only for MinimizeWeightedSum
}

// Result is the best model the shrink loop found, and its cost under the
// problem's Mode (a plain count for MinimizeSubset/MinimizeOrdered, a
// weighted sum for MinimizeWeightedSum).
type Result struct {
	Status sat.Status
	Model  []trail.Value
	Cost   int64
}

// Minimize runs d's shrink loop to completion. d must already have every
// problem clause added; Minimize adds further unit clauses of its own as it
// locks candidates true, so d is left strengthened by the optimal model's
// fixed literals when this returns.
func Minimize(d *sat.Driver, p Problem) Result {
	order := order(p)

	res := d.Solve(nil)
	if res.Status != sat.StatusSat {
		return Result{Status: res.Status}
	}
	model := res.Model

	for _, idx := range order {
		lit := p.Candidates[idx]
		if model[lit.Atom()] != trueValue(lit) {
			// Already false in the current model; nothing to try.
			continue
		}
		// Solve leaves the trail fully assigned from the previous round;
		// back it out to level 0 so the trial assumption below is
		// actually re-explored rather than just checked against a
		// trail that already has every atom decided.
		d.BacktrackTo(0)
		trial := d.Solve([]trail.Literal{lit.Negate()})
		d.BacktrackTo(0)
		if trial.Status == sat.StatusSat {
			if !d.AddClause([]trail.Literal{lit.Negate()}) {
				break
			}
			model = trial.Model
			continue
		}
		if !d.AddClause([]trail.Literal{lit}) {
			break
		}
	}

	return Result{Status: sat.StatusSat, Model: model, Cost: cost(p, model)}
}

// order returns indices into p.Candidates in the sequence the shrink loop
// should try them: as given for MinimizeSubset/MinimizeOrdered, heaviest
// weight first for MinimizeWeightedSum.
func order(p Problem) []int {
	idx := make([]int, len(p.Candidates))
	for i := range idx {
		idx[i] = i
	}
	if p.Mode != MinimizeWeightedSum {
		return idx
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && p.Weights[idx[j]] > p.Weights[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

func trueValue(l trail.Literal) trail.Value {
	if l.Negated() {
		return trail.False
	}
	return trail.True
}

func cost(p Problem, model []trail.Value) int64 {
	var c int64
	for i, l := range p.Candidates {
		if model[l.Atom()] != trueValue(l) {
			continue
		}
		if p.Mode == MinimizeWeightedSum {
			c += p.Weights[i]
		} else {
			c++
		}
	}
	return c
}
