package fd

import (
	"github.com/pkg/errors"

	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/trail"
)

// Op is a binary comparison operator, normalised internally to the
// order-atom primitives LeqLit/GeqLit/EqLit per spec.md §4.6.
type Op uint8

const (
	LE Op = iota
	LT
	EQ
	NE
	GE
	GT
)

var ErrOverflow = errors.New("fd: integer overflow computing constraint bounds")

func addOv(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, true
	}
	return s, false
}

func mulOv(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	p := a * b
	if p/b != a {
		return 0, true
	}
	return p, false
}

// CompareLit resolves v ∼ c to a single order atom, per spec.md §4.6's
// "normalised to a ≤ propagator" note.
func (e *Engine) CompareLit(v *IntVar, op Op, c int64) (BoundLit, [][]trail.Literal) {
	switch op {
	case LE:
		return e.LeqLit(v, c)
	case LT:
		return e.LeqLit(v, c-1)
	case GE:
		return e.GeqLit(v, c)
	case GT:
		return e.GeqLit(v, c+1)
	case EQ:
		return e.EqLit(v, c)
	default: // NE
		r, clauses := e.EqLit(v, c)
		if r.Const != trail.Undef {
			return decided(r.Const.Negate()), clauses
		}
		return BoundLit{Lit: r.Lit.Negate()}, clauses
	}
}

// ReifyCompare builds "head <-> (v op c)", the var-const half of spec.md
// §4.6's binary comparison constraint: since CompareLit already returns the
// canonical atom (or a decided constant), reification needs nothing beyond
// the two equivalence clauses, no separate propagator.
func (e *Engine) ReifyCompare(v *IntVar, op Op, c int64, head trail.Literal) [][]trail.Literal {
	r, clauses := e.CompareLit(v, op, c)
	switch r.Const {
	case trail.True:
		return append(clauses, []trail.Literal{head})
	case trail.False:
		return append(clauses, []trail.Literal{head.Negate()})
	default:
		return append(clauses,
			[]trail.Literal{head.Negate(), r.Lit},
			[]trail.Literal{head, r.Lit.Negate()},
		)
	}
}

// LEProp maintains the order atom Lit <-> (X<=Y) by range propagation over
// X and Y's current bounds, per spec.md §4.6's var-var binary comparison.
// It works only over eagerly (range-)encoded variables: the per-term
// subscriptions below are taken against the fixed eager atom list, which a
// lazily-encoded variable does not populate up front. DESIGN.md records
// this as the accepted scope cut for the var-var case.
type LEProp struct {
	Tr   *trail.Trail
	Bus  *bus.Bus
	X, Y *IntVar
	Lit  trail.Literal

	nextToken uint64
	tokens    map[uint64][2]trail.Literal
}

// NewLEProp builds and subscribes the X<=Y propagator, minting a fresh
// atom for Lit via newAtom.
func NewLEProp(tr *trail.Trail, b *bus.Bus, x, y *IntVar, newAtom func() trail.Atom) *LEProp {
	p := &LEProp{
		Tr: tr, Bus: b, X: x, Y: y,
		Lit:    trail.NewLiteral(newAtom(), false),
		tokens: make(map[uint64][2]trail.Literal),
	}
	for _, l := range x.eager {
		b.Subscribe(l, p, bus.Slow)
		b.Subscribe(l.Negate(), p, bus.Slow)
	}
	for _, l := range y.eager {
		b.Subscribe(l, p, bus.Slow)
		b.Subscribe(l.Negate(), p, bus.Slow)
	}
	b.Subscribe(p.Lit, p, bus.Slow)
	b.Subscribe(p.Lit.Negate(), p, bus.Slow)
	return p
}

func (p *LEProp) Kind() trail.EngineTag { return trail.EngineFD }

func (p *LEProp) OnAssign(l trail.Literal) *trail.Clause {
	guaranteedTrue := p.X.CurMax <= p.Y.CurMin
	guaranteedFalse := p.X.CurMin > p.Y.CurMax
	headVal := p.Tr.Value(p.Lit)

	if guaranteedFalse && headVal != trail.False {
		if c := p.forceLit(p.Lit.Negate()); c != nil {
			return c
		}
		headVal = trail.False
	} else if guaranteedTrue && headVal != trail.True {
		if c := p.forceLit(p.Lit); c != nil {
			return c
		}
		headVal = trail.True
	}
	if headVal == trail.True && guaranteedFalse {
		return p.conflict()
	}
	if headVal == trail.False && guaranteedTrue {
		return p.conflict()
	}

	switch headVal {
	case trail.True:
		// X<=Y: X's upper atom cannot exceed Y's current max, and Y's
		// lower atom cannot fall below X's current min.
		if bl := boundaryLit(p.X, p.Y.CurMax); bl != 0 && p.Tr.Value(bl) == trail.Undef {
			if c := p.forceLit(bl); c != nil {
				return c
			}
		}
		if bl := boundaryLit(p.Y, p.X.CurMin-1); bl != 0 && p.Tr.Value(bl) == trail.Undef {
			if c := p.forceLit(bl.Negate()); c != nil {
				return c
			}
		}
	case trail.False:
		// X>Y, i.e. X>=Y+1: X's lower atom cannot fall below Y's
		// current min, and Y's upper atom cannot reach X's current max.
		if bl := boundaryLit(p.X, p.Y.CurMin); bl != 0 && p.Tr.Value(bl) == trail.Undef {
			if c := p.forceLit(bl.Negate()); c != nil {
				return c
			}
		}
		if bl := boundaryLit(p.Y, p.X.CurMax-1); bl != 0 && p.Tr.Value(bl) == trail.Undef {
			if c := p.forceLit(bl); c != nil {
				return c
			}
		}
	}
	return nil
}

// forceLit assigns l and records the witnessing X/Y bound atoms for
// Explain; it is used both to force Lit itself (the reified X<=Y truth)
// and to tighten X/Y's own order atoms once Lit's value is known.
func (p *LEProp) forceLit(l trail.Literal) *trail.Clause {
	token := p.nextToken
	p.nextToken++
	p.tokens[token] = [2]trail.Literal{
		boundaryLit(p.X, p.X.CurMax),
		boundaryLit(p.Y, p.Y.CurMin),
	}
	conflict, ok := p.Tr.Assign(l, trail.TheoryReason(trail.EngineFD, token))
	if !ok {
		if conflict != nil {
			return conflict
		}
		return p.conflict()
	}
	p.Bus.Notify(l)
	return nil
}

func boundaryLit(v *IntVar, value int64) trail.Literal {
	if value >= v.Hi {
		return 0
	}
	if i := value - v.Lo; i >= 0 && int(i) < len(v.eager) {
		return v.eager[i]
	}
	return 0
}

func (p *LEProp) conflict() *trail.Clause {
	lits := []trail.Literal{p.Lit.Negate(), p.Lit}
	if bx := boundaryLit(p.X, p.X.CurMax); bx != 0 {
		lits = append(lits, bx.Negate())
	}
	if by := boundaryLit(p.Y, p.Y.CurMin); by != 0 {
		lits = append(lits, by)
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}

func (p *LEProp) Explain(a trail.Atom) *trail.Clause {
	token := p.Tr.ReasonOf(a).Token
	w, ok := p.tokens[token]
	lits := []trail.Literal{trail.NewLiteral(a, true)}
	if ok {
		if w[0] != 0 {
			lits = append(lits, w[0].Negate())
		}
		if w[1] != 0 {
			lits = append(lits, w[1])
		}
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}

func (p *LEProp) OnNewDecisionLevel()          {}
func (p *LEProp) OnBacktrack(level int)        {}
func (p *LEProp) OnFullAssignment() *trail.Clause {
	if (p.X.CurMax <= p.Y.CurMin) != (p.Tr.Value(p.Lit) == trail.True) {
		return p.conflict()
	}
	return nil
}

// WeightedTerm is one wᵢ·xᵢ term of a weighted-sum or weighted-product
// constraint.
type WeightedTerm struct {
	Var    *IntVar
	Weight int64
}

// SumConstraint is the reified range propagator for "Σ wᵢxᵢ <= bound <-> head"
// of spec.md §4.6. Like LEProp it is scoped to range-encoded variables.
type SumConstraint struct {
	Tr    *trail.Trail
	Bus   *bus.Bus
	Terms []WeightedTerm
	Bound int64
	Head  trail.Literal

	nextToken uint64
	tokens    map[uint64][]trail.Literal
}

func NewSumConstraint(tr *trail.Trail, b *bus.Bus, terms []WeightedTerm, bound int64, head trail.Literal) *SumConstraint {
	s := &SumConstraint{Tr: tr, Bus: b, Terms: terms, Bound: bound, Head: head, tokens: make(map[uint64][]trail.Literal)}
	for _, t := range terms {
		for _, l := range t.Var.eager {
			b.Subscribe(l, s, bus.Slow)
			b.Subscribe(l.Negate(), s, bus.Slow)
		}
	}
	b.Subscribe(head, s, bus.Slow)
	b.Subscribe(head.Negate(), s, bus.Slow)
	return s
}

func (s *SumConstraint) Kind() trail.EngineTag { return trail.EngineFD }

// bounds returns the sum's current [min,max] under every term's current
// [CurMin,CurMax], per spec.md §4.6's "compute min, max of the sum under
// current bounds".
func (s *SumConstraint) bounds() (min, max int64, err error) {
	for _, t := range s.Terms {
		lo, hi := t.Var.CurMin, t.Var.CurMax
		if t.Weight < 0 {
			lo, hi = hi, lo
		}
		loC, ov1 := mulOv(t.Weight, lo)
		hiC, ov2 := mulOv(t.Weight, hi)
		if ov1 || ov2 {
			return 0, 0, ErrOverflow
		}
		var ov3, ov4 bool
		min, ov3 = addOv(min, loC)
		max, ov4 = addOv(max, hiC)
		if ov3 || ov4 {
			return 0, 0, ErrOverflow
		}
	}
	return min, max, nil
}

func (s *SumConstraint) OnAssign(l trail.Literal) *trail.Clause {
	min, max, err := s.bounds()
	if err != nil {
		return &trail.Clause{}
	}
	guaranteedTrue := max <= s.Bound
	guaranteedFalse := min > s.Bound
	headVal := s.Tr.Value(s.Head)

	if guaranteedFalse && headVal != trail.False {
		if c := s.forceLit(s.Head.Negate()); c != nil {
			return c
		}
		headVal = trail.False
	} else if guaranteedTrue && headVal != trail.True {
		if c := s.forceLit(s.Head); c != nil {
			return c
		}
		headVal = trail.True
	}
	if headVal == trail.True && guaranteedFalse {
		return s.conflict()
	}
	if headVal == trail.False && guaranteedTrue {
		return s.conflict()
	}
	if headVal == trail.Undef {
		return nil
	}

	wantSat := headVal == trail.True
	for _, t := range s.Terms {
		if t.Var.CurMin == t.Var.CurMax {
			continue
		}
		if c := s.tightenTerm(t, min, max, wantSat); c != nil {
			return c
		}
	}
	return nil
}

// tightenTerm derives t's forced tighter bound from the slack between the
// sum's current extreme (given every other term at its favorable value)
// and the bound, per spec.md §4.6's "propagate each xᵢ's tighter bound
// from the inequality and the other xᵢ-bounds".
func (s *SumConstraint) tightenTerm(t WeightedTerm, min, max int64, wantSat bool) *trail.Clause {
	w := t.Weight
	if w == 0 {
		return nil
	}
	if wantSat {
		// Σ<=Bound must hold: even with every other term at its most
		// favorable (minimum) contribution, t's variable cannot exceed
		// the slack left.
		otherMin := min - favorable(t, false)
		return s.excludeAbove(t, s.Bound-otherMin)
	}
	// Σ>Bound must hold: even with every other term at its most
	// favorable (maximum) contribution, t's variable cannot stay at or
	// below the threshold that would keep the sum from exceeding Bound.
	otherMax := max - favorable(t, true)
	return s.excludeAtOrBelow(t, s.Bound-otherMax)
}

func favorable(t WeightedTerm, wantMax bool) int64 {
	hi, lo := t.Weight*t.Var.CurMax, t.Weight*t.Var.CurMin
	if t.Weight < 0 {
		hi, lo = lo, hi
	}
	if wantMax {
		return hi
	}
	return lo
}

// excludeAbove forces t.Var<=floor(slack/w) (w>0) or t.Var>=ceil(slack/w)
// (w<0): the variable's already-excluded values have no witnessing order
// atom yet, so propagate the one at the new boundary.
func (s *SumConstraint) excludeAbove(t WeightedTerm, slack int64) *trail.Clause {
	w := t.Weight
	if w > 0 {
		bound := floorDiv(slack, w)
		if bound >= t.Var.CurMax {
			return nil
		}
		if bl := boundaryLit(t.Var, bound); bl != 0 && s.Tr.Value(bl) == trail.Undef {
			return s.forceLit(bl)
		}
		return nil
	}
	bound := ceilDiv(slack, w)
	if bound <= t.Var.CurMin {
		return nil
	}
	if bl := boundaryLit(t.Var, bound-1); bl != 0 && s.Tr.Value(bl) == trail.Undef {
		return s.forceLit(bl.Negate())
	}
	return nil
}

// excludeAtOrBelow forces t.Var>=floor(threshold/w)+1 (w>0) or
// t.Var<=ceil(threshold/w)-1 (w<0).
func (s *SumConstraint) excludeAtOrBelow(t WeightedTerm, threshold int64) *trail.Clause {
	w := t.Weight
	if w > 0 {
		bound := floorDiv(threshold, w) + 1
		if bound <= t.Var.CurMin {
			return nil
		}
		if bl := boundaryLit(t.Var, bound-1); bl != 0 && s.Tr.Value(bl) == trail.Undef {
			return s.forceLit(bl.Negate())
		}
		return nil
	}
	bound := ceilDiv(threshold, w) - 1
	if bound >= t.Var.CurMax {
		return nil
	}
	if bl := boundaryLit(t.Var, bound); bl != 0 && s.Tr.Value(bl) == trail.Undef {
		return s.forceLit(bl)
	}
	return nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}

// witness snapshots, for each term, the order atom standing for its current
// extreme contribution (CurMax if the weight pushes the sum up, CurMin if
// it pushes the sum down), recorded positive-or-negated so Explain can cite
// exactly the bounds that were in force when a literal was forced.
func (s *SumConstraint) witness() []trail.Literal {
	var lits []trail.Literal
	if hv := s.Tr.Value(s.Head); hv != trail.Undef {
		if hv == trail.True {
			lits = append(lits, s.Head)
		} else {
			lits = append(lits, s.Head.Negate())
		}
	}
	for _, t := range s.Terms {
		if t.Weight > 0 {
			if bl := boundaryLit(t.Var, t.Var.CurMax); bl != 0 {
				lits = append(lits, bl)
			}
		} else if t.Weight < 0 {
			if bl := boundaryLit(t.Var, t.Var.CurMin); bl != 0 {
				lits = append(lits, bl.Negate())
			}
		}
	}
	return lits
}

func (s *SumConstraint) forceLit(l trail.Literal) *trail.Clause {
	token := s.nextToken
	s.nextToken++
	s.tokens[token] = s.witness()
	conflict, ok := s.Tr.Assign(l, trail.TheoryReason(trail.EngineFD, token))
	if !ok {
		if conflict != nil {
			return conflict
		}
		return s.conflict()
	}
	s.Bus.Notify(l)
	return nil
}

func (s *SumConstraint) conflict() *trail.Clause {
	lits := []trail.Literal{s.Head.Negate(), s.Head}
	for _, t := range s.Terms {
		if l := boundaryLit(t.Var, t.Var.CurMax); l != 0 {
			lits = append(lits, l.Negate())
		}
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}

func (s *SumConstraint) Explain(a trail.Atom) *trail.Clause {
	token := s.Tr.ReasonOf(a).Token
	w, ok := s.tokens[token]
	if !ok {
		return s.conflict()
	}
	lits := []trail.Literal{trail.NewLiteral(a, true)}
	for _, l := range w {
		lits = append(lits, l.Negate())
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}
func (s *SumConstraint) OnNewDecisionLevel() {}
func (s *SumConstraint) OnBacktrack(level int) {}
func (s *SumConstraint) OnFullAssignment() *trail.Clause {
	min, max, err := s.bounds()
	if err != nil {
		return &trail.Clause{}
	}
	want := s.Tr.Value(s.Head) == trail.True
	got := max <= s.Bound && min <= s.Bound
	if want != got {
		return s.conflict()
	}
	return nil
}

// ProductConstraint reifies "w·∏xᵢ <= bound <-> head" for non-negative
// variables, per spec.md §4.6. It propagates only the head: once the
// product's [min,max] range under the terms' current bounds is entirely
// at or below bound (head true) or entirely above it (head false). Unlike
// SumConstraint it never narrows a term's bounds, not even when every
// other term is already known exactly (see DESIGN.md).
type ProductConstraint struct {
	Tr     *trail.Trail
	Bus    *bus.Bus
	Weight int64
	Terms  []*IntVar
	Bound  int64
	Head   trail.Literal

	nextToken uint64
	tokens    map[uint64][]trail.Literal
}

func NewProductConstraint(tr *trail.Trail, b *bus.Bus, weight int64, terms []*IntVar, bound int64, head trail.Literal) *ProductConstraint {
	p := &ProductConstraint{Tr: tr, Bus: b, Weight: weight, Terms: terms, Bound: bound, Head: head, tokens: make(map[uint64][]trail.Literal)}
	for _, v := range terms {
		for _, l := range v.eager {
			b.Subscribe(l, p, bus.Slow)
			b.Subscribe(l.Negate(), p, bus.Slow)
		}
	}
	b.Subscribe(head, p, bus.Slow)
	b.Subscribe(head.Negate(), p, bus.Slow)
	return p
}

func (p *ProductConstraint) Kind() trail.EngineTag { return trail.EngineFD }

func (p *ProductConstraint) bounds() (min, max int64, err error) {
	min, max = p.Weight, p.Weight
	for _, v := range p.Terms {
		loC, ov1 := mulOv(min, v.CurMin)
		hiC, ov2 := mulOv(max, v.CurMax)
		if ov1 || ov2 {
			return 0, 0, ErrOverflow
		}
		min, max = loC, hiC
	}
	return min, max, nil
}

func (p *ProductConstraint) OnAssign(l trail.Literal) *trail.Clause {
	min, max, err := p.bounds()
	if err != nil {
		return &trail.Clause{}
	}
	guaranteedTrue := max <= p.Bound
	guaranteedFalse := min > p.Bound
	headVal := p.Tr.Value(p.Head)
	if guaranteedFalse && headVal != trail.False {
		return p.forceLit(p.Head.Negate(), false)
	} else if guaranteedTrue && headVal != trail.True {
		return p.forceLit(p.Head, true)
	}
	return nil
}

// forceLit assigns l and records the CurMin (wantMax=false) or CurMax
// (wantMax=true) boundary atom of every term that justified it, so Explain
// can cite the bounds actually in force at assignment time.
func (p *ProductConstraint) forceLit(l trail.Literal, wantMax bool) *trail.Clause {
	token := p.nextToken
	p.nextToken++
	var witness []trail.Literal
	for _, v := range p.Terms {
		var bl trail.Literal
		if wantMax {
			bl = boundaryLit(v, v.CurMax)
		} else if bg := boundaryLit(v, v.CurMin-1); bg != 0 {
			bl = bg.Negate()
		}
		if bl != 0 {
			witness = append(witness, bl)
		}
	}
	p.tokens[token] = witness
	conflict, ok := p.Tr.Assign(l, trail.TheoryReason(trail.EngineFD, token))
	if !ok {
		if conflict != nil {
			return conflict
		}
		return p.conflict()
	}
	p.Bus.Notify(l)
	return nil
}

func (p *ProductConstraint) conflict() *trail.Clause {
	return &trail.Clause{Lits: []trail.Literal{p.Head.Negate(), p.Head}, Learnt: true}
}

func (p *ProductConstraint) Explain(a trail.Atom) *trail.Clause {
	token := p.Tr.ReasonOf(a).Token
	w, ok := p.tokens[token]
	if !ok {
		return p.conflict()
	}
	lits := []trail.Literal{trail.NewLiteral(a, true)}
	for _, l := range w {
		lits = append(lits, l.Negate())
	}
	return &trail.Clause{Lits: lits, Learnt: true}
}
func (p *ProductConstraint) OnNewDecisionLevel() {}
func (p *ProductConstraint) OnBacktrack(level int) {}
func (p *ProductConstraint) OnFullAssignment() *trail.Clause {
	min, max, err := p.bounds()
	if err != nil {
		return &trail.Clause{}
	}
	want := p.Tr.Value(p.Head) == trail.True
	got := min <= p.Bound && max <= p.Bound
	if want != got {
		return p.conflict()
	}
	return nil
}

// ElementClauses compiles "a[x] = y" to clauses, per spec.md §4.6: for
// each position i, x=i implies y=a[i]; x is additionally bounded to
// [1,len(a)].
func ElementClauses(e *Engine, x, y *IntVar, a []int64) ([][]trail.Literal, error) {
	var clauses [][]trail.Literal
	lo, _ := e.LeqLit(x, 0)
	if lo.Const != trail.False {
		geq1, c := e.GeqLit(x, 1)
		clauses = append(clauses, c...)
		if geq1.Const == trail.Undef {
			clauses = append(clauses, []trail.Literal{geq1.Lit})
		} else if geq1.Const == trail.False {
			return nil, errors.New("fd: element index variable's range excludes 1")
		}
	}
	leqN, c := e.LeqLit(x, int64(len(a)))
	clauses = append(clauses, c...)
	if leqN.Const == trail.Undef {
		clauses = append(clauses, []trail.Literal{leqN.Lit})
	} else if leqN.Const == trail.False {
		return nil, errors.New("fd: element index variable's range exceeds len(a)")
	}

	for i, val := range a {
		idx := int64(i + 1)
		xi, c := e.EqLit(x, idx)
		clauses = append(clauses, c...)
		if xi.Const == trail.False {
			continue
		}
		yv, c := e.EqLit(y, val)
		clauses = append(clauses, c...)
		if yv.Const == trail.True {
			continue
		}
		if xi.Const == trail.True {
			if yv.Const == trail.False {
				return nil, errors.New("fd: element constraint is unsatisfiable for a fixed index")
			}
			clauses = append(clauses, []trail.Literal{yv.Lit})
			continue
		}
		if yv.Const == trail.False {
			clauses = append(clauses, []trail.Literal{xi.Lit.Negate()})
			continue
		}
		clauses = append(clauses, []trail.Literal{xi.Lit.Negate(), yv.Lit})
	}
	return clauses, nil
}

// AllDifferentClauses compiles the pairwise-≠ decomposition of spec.md
// §4.6's all-different constraint.
func AllDifferentClauses(e *Engine, vars []*IntVar) [][]trail.Literal {
	var clauses [][]trail.Literal
	for i := 0; i < len(vars); i++ {
		for j := i + 1; j < len(vars); j++ {
			lo := vars[i].Lo
			if vars[j].Lo > lo {
				lo = vars[j].Lo
			}
			hi := vars[i].Hi
			if vars[j].Hi < hi {
				hi = vars[j].Hi
			}
			for v := lo; v <= hi; v++ {
				ei, c1 := e.EqLit(vars[i], v)
				ej, c2 := e.EqLit(vars[j], v)
				clauses = append(clauses, c1...)
				clauses = append(clauses, c2...)
				if ei.Const == trail.False || ej.Const == trail.False {
					continue
				}
				if ei.Const == trail.True && ej.Const == trail.True {
					// both forced to the same value: unsatisfiable: a
					// unit-false clause so the driver reports UNSAT
					// rather than silently accepting it.
					clauses = append(clauses, []trail.Literal{})
					continue
				}
				clauses = append(clauses, []trail.Literal{ei.Lit.Negate(), ej.Lit.Negate()})
			}
		}
	}
	return clauses
}

// LazyAtomPredicate represents spec.md §4.6's "lazy atom-predicate":
// p(t1,...,tn) is only expanded, via Produce, once every argument
// variable is fully determined, and then at most once.
type LazyAtomPredicate struct {
	Tr      *trail.Trail
	Bus     *bus.Bus
	Args    []*IntVar
	Produce func(args []int64) ([][]trail.Literal, error)

	produced bool
}

func (p *LazyAtomPredicate) Kind() trail.EngineTag { return trail.EngineFD }

func (p *LazyAtomPredicate) ready() ([]int64, bool) {
	vals := make([]int64, len(p.Args))
	for i, v := range p.Args {
		if v.CurMin != v.CurMax {
			return nil, false
		}
		vals[i] = v.CurMin
	}
	return vals, true
}

func (p *LazyAtomPredicate) OnAssign(l trail.Literal) *trail.Clause { return nil }
func (p *LazyAtomPredicate) OnNewDecisionLevel()                    {}
func (p *LazyAtomPredicate) OnBacktrack(level int)                  {}
func (p *LazyAtomPredicate) Explain(a trail.Atom) *trail.Clause     { return &trail.Clause{} }

// OnFullAssignment is where the grounder hook actually fires: by the time
// the trail is total every argument is known exactly, so this is a safe
// (if not maximally eager) point to ground the predicate at most once.
func (p *LazyAtomPredicate) OnFullAssignment() *trail.Clause {
	if p.produced {
		return nil
	}
	vals, ok := p.ready()
	if !ok {
		return nil
	}
	clauses, err := p.Produce(vals)
	if err != nil {
		return &trail.Clause{}
	}
	p.produced = true
	for _, c := range clauses {
		satisfied := false
		for _, l := range c {
			if p.Tr.Value(l) == trail.True {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return &trail.Clause{Lits: c}
		}
	}
	return nil
}
