// Package fd implements the order-encoded finite-domain integer engine of
// spec.md §4.6: each integer variable owns, at most, hi-lo+1 order atoms
// "x<=v", linked by consistency clauses so that x<=v implies x<=v+1. Range
// variables allocate every atom eagerly; lazy variables introduce atoms on
// demand, keeping only the ones a query or propagation actually touched,
// using a github.com/google/btree index over introduced bounds so the
// nearest already-introduced neighbors can be found without a linear scan.
package fd

import (
	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/trail"
)

// VarID names an integer variable in the builder's external namespace.
type VarID uint32

// ErrOutOfDomain is returned when a comparison constraint references a
// variable/value pair that cannot arise for any declared domain.
var ErrOutOfDomain = errors.New("fd: value outside variable's declared range")

// BoundLit is the result of resolving an order atom: either a literal whose
// truth tracks the bound, or a compile-time-decided constant when the
// queried value falls outside the variable's original range.
type BoundLit struct {
	Lit   trail.Literal
	Const trail.Value // Undef if Lit is meaningful; True/False if trivially decided
}

func decided(v trail.Value) BoundLit { return BoundLit{Const: v} }

// boundAtom is one entry of a lazy variable's introduced-bounds index,
// ordered by value.
type boundAtom struct {
	value int64
	lit   trail.Literal
}

func (b boundAtom) Less(than btree.Item) bool { return b.value < than.(boundAtom).value }

// IntVar is one order-encoded integer variable, per
// original_source/modules/IntVar.hpp's IntVar/BasicIntVar/LazyIntVar split.
type IntVar struct {
	ID     VarID
	Lo, Hi int64

	CurMin, CurMax int64

	lazy   bool
	eager  []trail.Literal // eager[i] is the atom for x<=Lo+i (i in [0,Hi-Lo)); x<=Hi is implicit true
	tree   *btree.BTree    // lazy only: boundAtom ordered by value
	byLit  map[trail.Literal]int64
	eqLits map[int64]trail.Atom
}

// NewRangeVar builds an eagerly-encoded variable, allocating every order
// atom x<=Lo .. x<=Hi-1 up front (x<=Hi needs no atom, it is always true)
// and returning the consistency clauses linking adjacent atoms.
func NewRangeVar(id VarID, lo, hi int64, newAtom func() trail.Atom) (*IntVar, [][]trail.Literal) {
	v := &IntVar{
		ID: id, Lo: lo, Hi: hi, CurMin: lo, CurMax: hi,
		byLit:  make(map[trail.Literal]int64),
		eqLits: make(map[int64]trail.Atom),
	}
	n := int(hi - lo)
	v.eager = make([]trail.Literal, n)
	var clauses [][]trail.Literal
	for i := 0; i < n; i++ {
		l := trail.NewLiteral(newAtom(), false)
		v.eager[i] = l
		v.byLit[l] = lo + int64(i)
		if i > 0 {
			clauses = append(clauses, []trail.Literal{v.eager[i-1].Negate(), v.eager[i]})
		}
	}
	return v, clauses
}

// NewLazyVar builds a lazily-encoded variable with no order atoms yet;
// LeqLit introduces them on first query, per LazyIntVar's addVariable.
func NewLazyVar(id VarID, lo, hi int64) *IntVar {
	return &IntVar{
		ID: id, Lo: lo, Hi: hi, CurMin: lo, CurMax: hi,
		lazy:   true,
		tree:   btree.New(32),
		byLit:  make(map[trail.Literal]int64),
		eqLits: make(map[int64]trail.Atom),
	}
}

func (v *IntVar) InRange(val int64) bool { return val >= v.Lo && val <= v.Hi }

// Engine owns every declared IntVar and hands out order atoms through
// LeqLit/GeqLit/EqLit, generating fresh atoms via newAtom and returning any
// consistency clauses the caller must add to the clause database (and
// notify the bus about) before relying on the returned literal.
type Engine struct {
	Tr      *trail.Trail
	Bus     *bus.Bus
	newAtom func() trail.Atom

	vars map[VarID]*IntVar
}

func NewEngine(tr *trail.Trail, b *bus.Bus, newAtom func() trail.Atom) *Engine {
	return &Engine{Tr: tr, Bus: b, newAtom: newAtom, vars: make(map[VarID]*IntVar)}
}

func (e *Engine) AddVar(v *IntVar) { e.vars[v.ID] = v }

func (e *Engine) Var(id VarID) (*IntVar, bool) { v, ok := e.vars[id]; return v, ok }

// LeqLit returns the order atom for "v<=bound", introducing it lazily if
// v is lazy-encoded and the atom does not exist yet, per spec.md §4.6.
func (e *Engine) LeqLit(v *IntVar, bound int64) (BoundLit, [][]trail.Literal) {
	if bound >= v.Hi {
		return decided(trail.True), nil
	}
	if bound < v.Lo {
		return decided(trail.False), nil
	}
	if !v.lazy {
		return BoundLit{Lit: v.eager[bound-v.Lo]}, nil
	}
	return e.lazyLeqLit(v, bound)
}

// GeqLit returns the order atom for "v>=bound": the negation of x<=bound-1.
func (e *Engine) GeqLit(v *IntVar, bound int64) (BoundLit, [][]trail.Literal) {
	r, clauses := e.LeqLit(v, bound-1)
	if r.Const != trail.Undef {
		return decided(r.Const.Negate()), clauses
	}
	return BoundLit{Lit: r.Lit.Negate()}, clauses
}

func (e *Engine) lazyLeqLit(v *IntVar, bound int64) (BoundLit, [][]trail.Literal) {
	if existing := v.tree.Get(boundAtom{value: bound}); existing != nil {
		return BoundLit{Lit: existing.(boundAtom).lit}, nil
	}

	var next, prev *boundAtom
	v.tree.AscendGreaterOrEqual(boundAtom{value: bound}, func(i btree.Item) bool {
		b := i.(boundAtom)
		next = &b
		return false
	})
	v.tree.DescendLessOrEqual(boundAtom{value: bound}, func(i btree.Item) bool {
		b := i.(boundAtom)
		prev = &b
		return false
	})

	lit := trail.NewLiteral(e.newAtom(), false)
	v.tree.ReplaceOrInsert(boundAtom{value: bound, lit: lit})
	v.byLit[lit] = bound

	var clauses [][]trail.Literal
	if prev != nil {
		clauses = append(clauses, []trail.Literal{prev.lit.Negate(), lit})
	}
	if next != nil {
		clauses = append(clauses, []trail.Literal{lit.Negate(), next.lit})
	}
	return BoundLit{Lit: lit}, clauses
}

// EqLit returns the order atom for "v=bound": leq(bound) AND NOT leq(bound-1),
// reified through a fresh atom the first time bound is queried for v.
func (e *Engine) EqLit(v *IntVar, bound int64) (BoundLit, [][]trail.Literal) {
	if !v.InRange(bound) {
		return decided(trail.False), nil
	}
	if a, ok := v.eqLits[bound]; ok {
		return BoundLit{Lit: trail.NewLiteral(a, false)}, nil
	}

	leq, c1 := e.LeqLit(v, bound)
	leqPrev, c2 := e.LeqLit(v, bound-1)
	clauses := append(c1, c2...)

	if leq.Const == trail.False || leqPrev.Const == trail.True {
		return decided(trail.False), clauses
	}
	if leq.Const == trail.True && leqPrev.Const == trail.False {
		return decided(trail.True), clauses
	}

	eq := trail.NewLiteral(e.newAtom(), false)
	v.eqLits[bound] = eq.Atom()

	leqLit, leqPrevLit := leq.Lit, leqPrev.Lit
	switch {
	case leq.Const == trail.True:
		// eq <-> NOT leqPrev
		clauses = append(clauses,
			[]trail.Literal{eq.Negate(), leqPrevLit.Negate()},
			[]trail.Literal{eq, leqPrevLit},
		)
	case leqPrev.Const == trail.False:
		// eq <-> leq
		clauses = append(clauses,
			[]trail.Literal{eq.Negate(), leqLit},
			[]trail.Literal{eq, leqLit.Negate()},
		)
	default:
		clauses = append(clauses,
			[]trail.Literal{eq.Negate(), leqLit},
			[]trail.Literal{eq.Negate(), leqPrevLit.Negate()},
			[]trail.Literal{eq, leqLit.Negate(), leqPrevLit},
		)
	}
	return BoundLit{Lit: eq}, clauses
}

// VarWatcher is the bus.Propagator that keeps CurMin/CurMax current: it
// narrows the cached bounds whenever an order atom it subscribes to flips,
// per spec.md §4.6's "updates cached current_min, current_max".
// NewVarWatcher subscribes to every eager atom. An atom LeqLit introduces
// for a lazy variable is subscribed only through Watch, which nothing in
// this module calls, and engine.Context.NewLazyVar creates no watcher, so
// a lazy variable's CurMin/CurMax stay at Lo/Hi.
type VarWatcher struct {
	Tr  *trail.Trail
	Bus *bus.Bus
	v   *IntVar
}

func NewVarWatcher(tr *trail.Trail, b *bus.Bus, v *IntVar) *VarWatcher {
	w := &VarWatcher{Tr: tr, Bus: b, v: v}
	for _, l := range v.eager {
		b.Subscribe(l, w, bus.Fast)
		b.Subscribe(l.Negate(), w, bus.Fast)
	}
	return w
}

// Watch subscribes w to a single lazily-introduced order atom and its
// negation.
func (w *VarWatcher) Watch(l trail.Literal) {
	w.Bus.Subscribe(l, w, bus.Fast)
	w.Bus.Subscribe(l.Negate(), w, bus.Fast)
}

func (w *VarWatcher) Kind() trail.EngineTag { return trail.EngineFD }

func (w *VarWatcher) OnAssign(l trail.Literal) *trail.Clause {
	val, ok := w.v.byLit[trail.NewLiteral(l.Atom(), false)]
	if !ok {
		return nil
	}
	if l.Negated() {
		// x > val
		if val+1 > w.v.CurMin {
			w.v.CurMin = val + 1
		}
	} else {
		// x <= val
		if val < w.v.CurMax {
			w.v.CurMax = val
		}
	}
	return nil
}

func (w *VarWatcher) OnNewDecisionLevel() {}

func (w *VarWatcher) OnBacktrack(level int) {
	lo, hi := w.v.Lo, w.v.Hi
	for i, l := range w.v.eager {
		val := w.v.Lo + int64(i)
		if w.Tr.Value(l) == trail.True && val < hi {
			hi = val
		}
		if w.Tr.Value(l) == trail.False && val+1 > lo {
			lo = val + 1
		}
	}
	if w.v.lazy {
		w.v.tree.Ascend(func(item btree.Item) bool {
			b := item.(boundAtom)
			if w.Tr.Value(b.lit) == trail.True && b.value < hi {
				hi = b.value
			}
			if w.Tr.Value(b.lit) == trail.False && b.value+1 > lo {
				lo = b.value + 1
			}
			return true
		})
	}
	w.v.CurMin, w.v.CurMax = lo, hi
}

func (w *VarWatcher) OnFullAssignment() *trail.Clause { return nil }

func (w *VarWatcher) Explain(a trail.Atom) *trail.Clause { return nil }
