package agg

import (
	"sort"

	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/trail"
)

// SetPropagator is the partial-watch propagator of spec.md §4.4: one
// instance per weighted set, shared by every aggregate defined over that
// set. It maintains `optim` (best case assuming unknowns favor the
// aggregate) and `pess` (true bound from currently-assigned literals),
// and a watched/unwatched partition of the set's weighted literals
// satisfying invariant (4): even if every unwatched WL takes its
// worst-case value, some watched WL's assignment is still needed to
// falsify or satisfy the most stringent aggregate.
type SetPropagator struct {
	Tr  *trail.Trail
	Bus *bus.Bus
	cfg Cfg

	set  *Set
	aggs []*Aggregate

	watched   map[int]bool // indices into set.WLs currently watched
	nextToken uint64
	tokens    map[uint64]*trail.Clause
}

// NewSetPropagator builds the propagator for one weighted set and
// registers it with tr/bus so that every WL's literal (both polarities)
// wakes it.
func NewSetPropagator(tr *trail.Trail, b *bus.Bus, set *Set, aggs []*Aggregate, cfg Cfg) *SetPropagator {
	p := &SetPropagator{
		Tr:      tr,
		Bus:     b,
		cfg:     cfg,
		set:     set,
		aggs:    aggs,
		watched: make(map[int]bool),
		tokens:  make(map[uint64]*trail.Clause),
	}
	for i, wl := range set.WLs {
		b.Subscribe(wl.Lit, p, bus.Fast)
		b.Subscribe(wl.Lit.Negate(), p, bus.Fast)
		p.watched[i] = true
	}
	for _, a := range aggs {
		b.Subscribe(a.Head, p, bus.Fast)
		b.Subscribe(a.Head.Negate(), p, bus.Fast)
	}
	return p
}

func (p *SetPropagator) Kind() trail.EngineTag { return trail.EngineAggregate }

func (p *SetPropagator) value(l trail.Literal) trail.Value { return p.Tr.Value(l) }

// mostStringent returns the aggregate whose bound rules out the largest
// region of optim, i.e. the hardest one to keep satisfied, per spec.md
// §4.4.
func (p *SetPropagator) mostStringent(optim, pess int64) *Aggregate {
	var best *Aggregate
	bestMargin := int64(1) << 62
	for _, a := range p.aggs {
		var margin int64
		if a.Sign == AtLeast {
			margin = optim - a.Bound
		} else {
			margin = a.Bound - pess
		}
		if margin < bestMargin {
			bestMargin = margin
			best = a
		}
	}
	return best
}

// OnAssign recomputes optim (best case: every still-undefined literal
// favors the aggregate) and pess (worst case: only currently-true
// literals count), applies the propagation rules of spec.md §4.4, and
// re-derives the watch partition via reconstructSet.
func (p *SetPropagator) OnAssign(l trail.Literal) *trail.Clause {
	pess, optim, err := bounds(p.set.WLs, p.aggType(), p.value)
	if err != nil {
		return p.overflowConflict()
	}

	a := p.mostStringent(optim, pess)
	if a == nil {
		return nil
	}

	guaranteedSat := a.Sign == AtLeast && pess >= a.Bound || a.Sign == AtMost && optim <= a.Bound
	guaranteedViol := a.Sign == AtLeast && optim < a.Bound || a.Sign == AtMost && pess > a.Bound
	headVal := p.Tr.Value(a.Head)
	violNeed := func(v int64) bool { return !a.Satisfied(v) }

	// (i) optim/pess already decide the aggregate: propagate the head.
	if guaranteedViol && headVal != trail.False {
		reason := p.headReason(a, a.Head.Negate(), a.Sign == AtMost, violNeed)
		if c := p.propagate(a.Head.Negate(), reason); c != nil {
			return c
		}
		headVal = trail.False
	} else if guaranteedSat && headVal != trail.True {
		reason := p.headReason(a, a.Head, a.Sign == AtLeast, a.Satisfied)
		if c := p.propagate(a.Head, reason); c != nil {
			return c
		}
		headVal = trail.True
	}

	// (ii) head is already known and the current bounds contradict it
	// outright.
	if headVal == trail.True && guaranteedViol {
		return p.headReason(a, a.Head.Negate(), a.Sign == AtMost, violNeed)
	}
	if headVal == trail.False && guaranteedSat {
		return p.headReason(a, a.Head, a.Sign == AtLeast, a.Satisfied)
	}
	// (iii) head is already known: propagate any set literal whose
	// assignment is the last thing standing between the current bounds
	// and a verdict that would contradict the head.
	if lit, reason, ok := p.forcedLiteral(a, headVal, optim, pess); ok {
		if c := p.propagate(lit, reason); c != nil {
			return c
		}
	}

	p.reconstructSet()
	return nil
}

func (p *SetPropagator) aggType() Type {
	if len(p.aggs) == 0 {
		return Sum
	}
	return p.aggs[0].Type
}

// forcedLiteral finds the unassigned WL, if any, whose value is implied
// by the head's already-known truth together with the current
// optim/pess bounds, and the reason clause justifying it: the four cases
// are the sign/head combinations of spec.md §4.4's partial-watch
// propagator.
func (p *SetPropagator) forcedLiteral(a *Aggregate, headVal trail.Value, optim, pess int64) (trail.Literal, *trail.Clause, bool) {
	if headVal == trail.Undef {
		return 0, nil, false
	}
	wantSat := headVal == trail.True
	headAnte := a.Head
	if wantSat {
		headAnte = a.Head.Negate()
	}
	for _, wl := range p.set.WLs {
		if p.Tr.Value(wl.Lit) != trail.Undef {
			continue
		}
		w := wl.Weight
		switch {
		case a.Sign == AtLeast && wantSat:
			// Without wl's contribution, optim would drop below the
			// bound: wl must be true to keep satisfaction possible.
			if !a.Satisfied(optim - w) {
				need := func(ceiling int64) bool { return !a.Satisfied(ceiling - w) }
				return wl.Lit, p.setLiteralReason(wl.Lit, headAnte, false, need), true
			}
		case a.Sign == AtMost && wantSat:
			// If wl were true, pess would exceed the bound: wl must
			// be false.
			if !a.Satisfied(pess + w) {
				need := func(floor int64) bool { return !a.Satisfied(floor + w) }
				return wl.Lit.Negate(), p.setLiteralReason(wl.Lit.Negate(), headAnte, true, need), true
			}
		case a.Sign == AtMost && !wantSat:
			// Without wl's contribution, optim would already satisfy
			// the bound: wl must be true for violation to stay
			// reachable.
			if a.Satisfied(optim - w) {
				need := func(ceiling int64) bool { return a.Satisfied(ceiling - w) }
				return wl.Lit, p.setLiteralReason(wl.Lit, headAnte, false, need), true
			}
		default: // AtLeast, !wantSat
			// If wl were true, pess would already reach the bound:
			// wl must be false for the aggregate to stay unsatisfied.
			if a.Satisfied(pess + w) {
				need := func(floor int64) bool { return a.Satisfied(floor + w) }
				return wl.Lit.Negate(), p.setLiteralReason(wl.Lit.Negate(), headAnte, true, need), true
			}
		}
	}
	return 0, nil, false
}

func (p *SetPropagator) propagate(l trail.Literal, reason *trail.Clause) *trail.Clause {
	token := p.nextToken
	p.nextToken++
	p.tokens[token] = reason
	conflict, ok := p.Tr.Assign(l, trail.TheoryReason(trail.EngineAggregate, token))
	if !ok {
		// l is already false on the trail: the aggregate and the rest of
		// the problem disagree. Theory reasons don't carry a ready-made
		// clause the way Assign does for clause reasons, so fall back to
		// the one we just built: it asserts l, which is exactly what a
		// conflict clause needs when l is already false.
		if conflict != nil {
			return conflict
		}
		return reason
	}
	p.Bus.Notify(l)
	return nil
}

func (p *SetPropagator) overflowConflict() *trail.Clause {
	// An overflow is a limits error at the declaration boundary; by the
	// time propagation runs it should have already been rejected, so
	// this path only guards against a lazily-widened set.
	return &trail.Clause{}
}

// Explain looks up the reason clause built at propagation time for a's
// forcing assignment. Every such clause was constructed to contain a's
// own trail literal in its asserted orientation, satisfying analyze's
// 1UIP pivot convention (see headReason/setLiteralReason).
func (p *SetPropagator) Explain(a trail.Atom) *trail.Clause {
	token := p.Tr.ReasonOf(a).Token
	if c, ok := p.tokens[token]; ok {
		return c
	}
	return &trail.Clause{}
}

// headReason builds the reason/conflict clause asserting head — in the
// orientation being derived, or, for an outright conflict, in whichever
// orientation is currently false — from whichever of pess/optim is
// driving the verdict. A pess-driven verdict replays the set's currently
// true literals (the ones responsible for pess); an optim-driven one
// replays the currently false ones (the ones excluded from optim), per
// spec.md §4.4.
func (p *SetPropagator) headReason(a *Aggregate, head trail.Literal, pessDriven bool, need func(int64) bool) *trail.Clause {
	lits := []trail.Literal{head}
	if pessDriven {
		lits = append(lits, p.trueExplain(need)...)
	} else {
		lits = append(lits, p.falseExplain(need)...)
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}

// setLiteralReason builds the reason clause asserting a non-head set
// literal, given the head's already-known value (cited as headAnte, in
// its currently-false antecedent orientation) and the rest of the set's
// literals that pin pess/optim as tightly as they do.
func (p *SetPropagator) setLiteralReason(asserted, headAnte trail.Literal, pessDriven bool, need func(int64) bool) *trail.Clause {
	lits := []trail.Literal{asserted, headAnte}
	if pessDriven {
		lits = append(lits, p.trueExplain(need)...)
	} else {
		lits = append(lits, p.falseExplain(need)...)
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}

// falseExplain returns a subset of the set's currently-false literals (in
// their positive, already-falsified orientation) sufficient on its own to
// reproduce the present ceiling on the aggregate's value: treating every
// other literal as unassigned (the most favorable case for the
// aggregate), the subset alone already makes need true of the resulting
// ceiling. It tries the heaviest literals first so the subset stays
// small, then reorders the result into trail-assignment order so the
// learnt clause replays the actual falsification sequence.
func (p *SetPropagator) falseExplain(need func(ceiling int64) bool) []trail.Literal {
	typ := p.aggType()
	idx := make([]int, 0, len(p.set.WLs))
	for i, wl := range p.set.WLs {
		if p.Tr.Value(wl.Lit) == trail.False {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(i, j int) bool {
		return p.set.WLs[idx[i]].Weight > p.set.WLs[idx[j]].Weight
	})

	chosen := make(map[trail.Atom]bool, len(idx))
	value := func(l trail.Literal) trail.Value {
		if chosen[l.Atom()] {
			return trail.False
		}
		return trail.Undef
	}

	var lits []trail.Literal
	for _, i := range idx {
		wl := p.set.WLs[i]
		chosen[wl.Lit.Atom()] = true
		lits = append(lits, wl.Lit)
		if _, ceiling, err := bounds(p.set.WLs, typ, value); err == nil && need(ceiling) {
			break
		}
	}
	sort.Slice(lits, func(i, j int) bool {
		return p.Tr.TimeOf(lits[i].Atom()) < p.Tr.TimeOf(lits[j].Atom())
	})
	return lits
}

// trueExplain is falseExplain's mirror image for a floor driven by the
// set's currently-true literals.
func (p *SetPropagator) trueExplain(need func(floor int64) bool) []trail.Literal {
	typ := p.aggType()
	idx := make([]int, 0, len(p.set.WLs))
	for i, wl := range p.set.WLs {
		if p.Tr.Value(wl.Lit) == trail.True {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(i, j int) bool {
		return p.set.WLs[idx[i]].Weight > p.set.WLs[idx[j]].Weight
	})

	chosen := make(map[trail.Atom]bool, len(idx))
	value := func(l trail.Literal) trail.Value {
		if chosen[l.Atom()] {
			return trail.True
		}
		return trail.Undef
	}

	var lits []trail.Literal
	for _, i := range idx {
		wl := p.set.WLs[i]
		chosen[wl.Lit.Atom()] = true
		lits = append(lits, wl.Lit.Negate())
		if floor, _, err := bounds(p.set.WLs, typ, value); err == nil && need(floor) {
			break
		}
	}
	sort.Slice(lits, func(i, j int) bool {
		return p.Tr.TimeOf(lits[i].Atom()) < p.Tr.TimeOf(lits[j].Atom())
	})
	return lits
}

// reconstructSet re-derives the watched/unwatched partition after a
// watched literal stops contributing to optim, extending the watch list
// from the unwatched pool in weight order until invariant (4) holds
// again, per spec.md §4.4's "reconstructSet" step.
func (p *SetPropagator) reconstructSet() {
	if p.cfg.AggSaving == 0 {
		// Mode 0 recomputes from scratch every time: nothing to carry
		// over, so clear the cache entirely.
		p.watched = make(map[int]bool, len(p.set.WLs))
	}
	running := int64(0)
	for i, wl := range p.set.WLs {
		if p.Tr.Value(wl.Lit) == trail.Undef {
			p.watched[i] = true
			running += wl.Weight
			if running >= p.set.EmptyMax {
				break
			}
		}
	}
}

func (p *SetPropagator) OnNewDecisionLevel() {}

func (p *SetPropagator) OnBacktrack(level int) {
	if p.cfg.AggSaving == 0 {
		p.reconstructSet()
	}
}

func (p *SetPropagator) OnFullAssignment() *trail.Clause {
	total, _, err := bounds(p.set.WLs, p.aggType(), p.value)
	if err != nil {
		return p.overflowConflict()
	}
	for _, a := range p.aggs {
		want := p.Tr.Value(a.Head) == trail.True
		if a.Satisfied(total) == want {
			continue
		}
		if want {
			violNeed := func(v int64) bool { return !a.Satisfied(v) }
			return p.headReason(a, a.Head.Negate(), a.Sign == AtMost, violNeed)
		}
		return p.headReason(a, a.Head, a.Sign == AtLeast, a.Satisfied)
	}
	return nil
}
