package sat

import (
	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/trail"
)

// RegisterEngine associates an EngineTag with the Propagator that owns
// it, so that conflict analysis can resolve theory-propagated reasons by
// calling back into the right engine, per spec.md §4.2: "the driver
// requests its reason clause from the owning engine".
func (d *Driver) RegisterEngine(tag trail.EngineTag, p bus.Propagator) {
	if d.engines == nil {
		d.engines = make(map[trail.EngineTag]bus.Propagator)
	}
	d.engines[tag] = p
}

// reasonClauseFor resolves the reason for atom a into a concrete clause,
// materializing it from the owning theory engine if necessary.
func (d *Driver) reasonClauseFor(a trail.Atom) *trail.Clause {
	r := d.Tr.ReasonOf(a)
	switch r.Kind {
	case trail.ReasonClause:
		return r.Clause
	case trail.ReasonTheory:
		if p, ok := d.engines[r.Engine]; ok {
			return p.Explain(a)
		}
	}
	return nil
}

// analyze performs 1UIP conflict analysis: it resolves backward through
// reasons (bumping variable activity as it goes) until exactly one
// literal of the current decision level remains in the working clause,
// then returns the asserting learnt clause and the level to backtrack to.
// assumptionConflict is true when the derived clause can only be
// satisfied by retracting a pushed assumption, per spec.md §4.2.
func (d *Driver) analyze(conflict *trail.Clause) (learnt *trail.Clause, backtrackLevel int, assumptionConflict bool) {
	level := d.Tr.CurrentLevel()
	for i := range d.seen {
		d.seen[i] = false
	}

	var outLits []trail.Literal
	outLits = append(outLits, 0) // placeholder for the asserting literal

	counter := 0
	var p trail.Literal
	havep := false
	reasonClause := conflict
	trailIdx := d.Tr.Len() - 1

	for {
		if reasonClause.Learnt {
			d.bumpClauseActivity(reasonClause)
		}
		for _, lit := range reasonClause.Lits {
			if havep && lit == p {
				continue
			}
			a := lit.Atom()
			if d.seen[a] {
				continue
			}
			d.seen[a] = true
			d.bumpVarActivity(a)
			litLevel := d.Tr.LevelOf(a)
			switch {
			case litLevel == level:
				counter++
			case litLevel > 0:
				outLits = append(outLits, lit)
				if litLevel > backtrackLevel {
					backtrackLevel = litLevel
				}
			}
		}

		for trailIdx >= 0 && !d.seen[d.Tr.RecordAt(trailIdx).Lit.Atom()] {
			trailIdx--
		}
		if trailIdx < 0 {
			// Exhausted the trail without closing the resolution; this
			// can only happen on a root-level conflict, already handled
			// by the caller.
			break
		}
		p = d.Tr.RecordAt(trailIdx).Lit
		havep = true
		d.seen[p.Atom()] = false
		counter--
		trailIdx--
		if counter == 0 {
			break
		}
		reasonClause = d.reasonClauseFor(p.Atom())
		if reasonClause == nil {
			break
		}
	}

	if havep {
		outLits[0] = p.Negate()
	} else {
		outLits = outLits[1:]
	}
	for _, lit := range outLits {
		d.seen[lit.Atom()] = false
	}

	// Keep the second watch on the highest-level non-asserting literal so
	// the learnt clause's two-watched-literal invariant holds immediately
	// after backtracking.
	if len(outLits) > 1 {
		best := 1
		bestLevel := -1
		for i := 1; i < len(outLits); i++ {
			lvl := d.Tr.LevelOf(outLits[i].Atom())
			if lvl > bestLevel {
				bestLevel = lvl
				best = i
			}
		}
		outLits[1], outLits[best] = outLits[best], outLits[1]
	}

	if backtrackLevel < d.assumptionDepth {
		return nil, 0, true
	}

	return &trail.Clause{Lits: outLits}, backtrackLevel, false
}
