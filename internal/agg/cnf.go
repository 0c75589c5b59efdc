package agg

import (
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/cespare/ecnf/internal/trail"
)

// clauseSink implements gini's inter.Adder: CnfSince/ToCnf feed it one
// 0-terminated DIMACS-style clause at a time via repeated Add calls, the
// same protocol OLM's litMapping.AddConstraints teaches to a live
// inter.S. Here the clauses are captured instead of asserted, and every
// gini z.Lit is remapped onto a trail.Literal, allocating a fresh trail
// atom for internal AIG gates that have no counterpart set literal.
type clauseSink struct {
	atomOf  map[z.Var]trail.Atom
	newAtom func() trail.Atom
	cur     []trail.Literal
	out     [][]trail.Literal
}

func newClauseSink(atomOf map[z.Var]trail.Atom, newAtom func() trail.Atom) *clauseSink {
	return &clauseSink{atomOf: atomOf, newAtom: newAtom}
}

// resolve maps a gini literal onto a trail.Literal using the same
// atomOf table Add populates, allocating a fresh atom if this is the
// first time the wire is referenced (can happen for a wire that turns
// out to be constant and so never appears in an emitted clause).
func (s *clauseSink) resolve(m z.Lit) trail.Literal {
	v := m.Var()
	a, ok := s.atomOf[v]
	if !ok {
		a = s.newAtom()
		s.atomOf[v] = a
	}
	return trail.NewLiteral(a, !m.IsPos())
}

func (s *clauseSink) Add(m z.Lit) {
	if m == z.LitNull {
		s.out = append(s.out, s.cur)
		s.cur = nil
		return
	}
	v := m.Var()
	a, ok := s.atomOf[v]
	if !ok {
		a = s.newAtom()
		s.atomOf[v] = a
	}
	s.cur = append(s.cur, trail.NewLiteral(a, !m.IsPos()))
}

// CompileToCNF rewrites a cardinality or sum aggregate with Equivalence
// semantics into plain clauses using gini's sorting-network cardinality
// constrainer, the same construction OLM's litMapping.CardinalityConstrainer
// builds for its "at most N installed" constraints. Max aggregates compile
// directly to an OR/AND pair and need no sorter.
func CompileToCNF(a *Aggregate, newAtom func() trail.Atom) ([][]trail.Literal, error) {
	if a.Type == Max {
		return compileMaxToCNF(a), nil
	}
	if a.Semantics != Equivalence {
		return nil, plainError("only equivalence-semantics aggregates compile to CNF")
	}
	if a.Sign == AtLeast && a.Bound <= 0 {
		// Trivially satisfied regardless of the set's literals: the
		// equivalence collapses to a unit clause on the head.
		return [][]trail.Literal{{a.Head}}, nil
	}

	c := logic.NewC()
	atomOf := make(map[z.Var]trail.Atom, len(a.Set.WLs))
	litOf := make(map[trail.Atom]z.Lit, len(a.Set.WLs))
	gini := func(l trail.Literal) z.Lit {
		g, ok := litOf[l.Atom()]
		if !ok {
			g = c.Lit()
			litOf[l.Atom()] = g
			atomOf[g.Var()] = l.Atom()
		}
		if l.Negated() {
			return g.Not()
		}
		return g
	}

	// Weighted sums widen into unary repeats of the literal, the
	// standard reduction from weighted PB to cardinality before
	// sorting; cardinality aggregates need no widening.
	var ms []z.Lit
	for _, wl := range a.Set.WLs {
		g := gini(wl.Lit)
		reps := wl.Weight
		if a.Type == Cardinality {
			reps = 1
		}
		for i := int64(0); i < reps; i++ {
			ms = append(ms, g)
		}
	}
	if a.Bound < 0 || a.Bound > int64(len(ms)) {
		return nil, plainError("aggregate bound exceeds the cardinality of its weighted set")
	}

	cs := c.CardSort(ms)
	var thresholdLit z.Lit
	if a.Sign == AtMost {
		thresholdLit = cs.Leq(int(a.Bound))
	} else {
		// sum/card >= bound  ==  not (sum/card <= bound-1)
		thresholdLit = cs.Leq(int(a.Bound) - 1).Not()
	}

	headLit := gini(a.Head)

	sink := newClauseSink(atomOf, newAtom)
	c.ToCnf(sink)

	headOut := sink.resolve(headLit)
	thresholdOut := sink.resolve(thresholdLit)
	sink.out = append(sink.out,
		[]trail.Literal{headOut.Negate(), thresholdOut},
		[]trail.Literal{headOut, thresholdOut.Negate()},
	)
	return sink.out, nil
}

// compileMaxToCNF rewrites a max aggregate's head equivalence directly:
// a max aggregate's value is exactly the greatest weight among true
// literals, so it needs no sorting network at all.
func compileMaxToCNF(a *Aggregate) [][]trail.Literal {
	if a.Sign == AtLeast {
		// max>=bound iff some literal whose own weight already clears
		// the bound is true: head <-> OR(satisfying).
		var satisfying []trail.Literal
		for _, wl := range a.Set.WLs {
			if a.Satisfied(wl.Weight) {
				satisfying = append(satisfying, wl.Lit)
			}
		}
		clauses := [][]trail.Literal{append([]trail.Literal{a.Head.Negate()}, satisfying...)}
		for _, l := range satisfying {
			clauses = append(clauses, []trail.Literal{l.Negate(), a.Head})
		}
		return clauses
	}

	// max<=bound iff every literal whose own weight would already exceed
	// the bound is false: head <-> AND(not violating).
	var violating []trail.Literal
	for _, wl := range a.Set.WLs {
		if !a.Satisfied(wl.Weight) {
			violating = append(violating, wl.Lit)
		}
	}
	clauses := [][]trail.Literal{append([]trail.Literal{a.Head}, violating...)}
	for _, l := range violating {
		clauses = append(clauses, []trail.Literal{a.Head.Negate(), l.Negate()})
	}
	return clauses
}

type plainError string

func (e plainError) Error() string { return string(e) }
