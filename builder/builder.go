// Package builder is the public declaration API of spec.md §6: disjunction,
// implication, definitional rule, weighted-set/aggregate, integer-variable
// range/enum, binary integer relation, weighted integer sum/product,
// optimisation, and lazy residual declarations. It defers only what the
// underlying engines themselves require deferring — a definitional rule's
// completion clauses need every rule present first (id.Engine.Finish), and
// an aggregate set's propagator needs every aggregate over it at once
// (agg.NewSetPropagator) — wiring everything else onto the engine.Context
// immediately, the way an incremental solver's assert API normally works.
package builder

import (
	"github.com/pkg/errors"

	"github.com/cespare/ecnf/internal/agg"
	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/engine"
	"github.com/cespare/ecnf/internal/fd"
	"github.com/cespare/ecnf/internal/id"
	"github.com/cespare/ecnf/internal/opt"
	"github.com/cespare/ecnf/internal/trail"
)

// Builder accumulates one ground problem's declarations before Finish
// wires the deferred ones onto a fresh engine.Context.
type Builder struct {
	ctx *engine.Context

	pendingAggs map[int]*pendingAggSet
}

type pendingAggSet struct {
	set  *agg.Set
	typ  agg.Type
	aggs []*agg.Aggregate
	cfg  agg.Cfg
}

// New starts a builder over nAtoms pre-existing atoms (e.g. a DIMACS
// header's variable count); declarations that introduce new variables
// allocate further atoms past this as needed.
func New(nAtoms int, cfg config.Config) *Builder {
	return &Builder{
		ctx:         engine.New(nAtoms, cfg),
		pendingAggs: make(map[int]*pendingAggSet),
	}
}

// Disjunction declares "at least one of lits holds".
func (b *Builder) Disjunction(lits []trail.Literal) bool {
	return b.ctx.Driver.AddClause(lits)
}

// Implication declares "body -> head": every literal of body must hold for
// head to be forced.
func (b *Builder) Implication(body []trail.Literal, head trail.Literal) bool {
	lits := make([]trail.Literal, 0, len(body)+1)
	lits = append(lits, head)
	for _, l := range body {
		lits = append(lits, l.Negate())
	}
	return b.ctx.Driver.AddClause(lits)
}

// Rule declares a disjunctive or conjunctive definitional rule for r.Head,
// per spec.md §4.5. Its completion clauses are added once Finish runs.
func (b *Builder) Rule(r *id.Rule) {
	b.ctx.Defs.AddRule(r)
}

// WeightedSet begins a weighted-set declaration; follow with one or more
// Aggregate calls using the same setID before Finish.
func (b *Builder) WeightedSet(setID int, wls []agg.WeightedLiteral, typ agg.Type) {
	b.pendingAggs[setID] = &pendingAggSet{
		set: &agg.Set{ID: setID, WLs: wls},
		typ: typ,
		cfg: agg.Cfg{ToCNF: b.ctx.Cfg.ToCNF, AggSaving: b.ctx.Cfg.AggSaving},
	}
}

// Aggregate declares one reified aggregate over a weighted set previously
// begun with WeightedSet.
func (b *Builder) Aggregate(setID int, bound int64, sign agg.Sign, head trail.Literal, sem agg.Semantics) error {
	p, ok := b.pendingAggs[setID]
	if !ok {
		return errors.Errorf("builder: aggregate over undeclared set %d", setID)
	}
	p.aggs = append(p.aggs, &agg.Aggregate{
		Set: p.set, Type: p.typ, Bound: bound, Sign: sign, Head: head, Semantics: sem,
	})
	return nil
}

// ChoiceRule declares an ASP choice construct: whenever body holds, each of
// heads may independently be derived, per spec.md §4's choice rules. It is
// sugar over Rule: every head gets its own fresh auxiliary atom, added to
// body in a conjunctive rule for that head, so the head is only derivable
// when body holds AND its auxiliary is chosen true; since no rule defines
// the auxiliary itself, it is free for the search to set either way. The
// auxiliaries are branching-deprioritized unless
// Config.ChoiceAuxiliariesDecidable is set, per the engine.Context they're
// allocated on. It returns the auxiliary atoms, one per head, in order.
func (b *Builder) ChoiceRule(heads []trail.Atom, body []trail.Literal) []trail.Atom {
	auxes := make([]trail.Atom, len(heads))
	for i, head := range heads {
		aux := b.ctx.AllocAtom()
		auxes[i] = aux
		ruleBody := make([]trail.Literal, 0, len(body)+1)
		ruleBody = append(ruleBody, body...)
		ruleBody = append(ruleBody, trail.NewLiteral(aux, false))
		b.ctx.Defs.AddRule(&id.Rule{Head: head, Body: ruleBody, Type: id.Conj})
		b.ctx.Deprioritize(aux)
	}
	return auxes
}

// IntRange declares an eagerly order-encoded integer variable over [lo,hi].
func (b *Builder) IntRange(id fd.VarID, lo, hi int64) *fd.IntVar {
	return b.ctx.NewRangeVar(id, lo, hi)
}

// IntEnum declares an integer variable whose domain is exactly values,
// encoded as a range over their span with every gap value excluded. It
// reports false if ExcludeValue reports a gap exclusion contradictory,
// per spec.md §7's declaration-error path; a gap value already assigned
// true on the trail is instead reported as UNSAT by the next Solve.
// Duplicate values are accepted and count once.
func (b *Builder) IntEnum(id fd.VarID, values []int64) (*fd.IntVar, bool) {
	lo, hi := values[0], values[0]
	member := make(map[int64]bool, len(values))
	for _, v := range values {
		member[v] = true
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	v := b.ctx.NewRangeVar(id, lo, hi)
	for val := lo; val <= hi; val++ {
		if member[val] {
			continue
		}
		if !b.ctx.ExcludeValue(v, val) {
			return v, false
		}
	}
	return v, true
}

// LazyIntVar declares a lazily order-encoded integer variable: no atoms
// are allocated until LazyBound queries one.
func (b *Builder) LazyIntVar(id fd.VarID, lo, hi int64) *fd.IntVar {
	return b.ctx.NewLazyVar(id, lo, hi)
}

// LazyBound is spec.md §6's lazy residual declaration: the order atom for
// "v<=bound", introduced on demand for a lazily-encoded variable (a no-op
// lookup for an eager one). Any consistency clauses the introduction needs
// are added immediately.
func (b *Builder) LazyBound(v *fd.IntVar, bound int64) fd.BoundLit {
	lit, clauses := b.ctx.FD.LeqLit(v, bound)
	b.ctx.AddClauses(clauses)
	return lit
}

// BinaryIntRel declares the reified X<=Y relation between two variables.
func (b *Builder) BinaryIntRel(x, y *fd.IntVar) *fd.LEProp {
	return b.ctx.NewLEConstraint(x, y)
}

// BinaryIntRelConst declares the reified X<=bound relation against a
// constant: the "without var" half of spec.md §6's binary relation pair,
// which needs no fresh propagator since LeqLit already is the reification.
func (b *Builder) BinaryIntRelConst(x *fd.IntVar, bound int64) fd.BoundLit {
	return b.LazyBound(x, bound)
}

// WeightedSum declares the reified Σ wᵢxᵢ<=bound propagator.
func (b *Builder) WeightedSum(terms []fd.WeightedTerm, bound int64, head trail.Literal) *fd.SumConstraint {
	return b.ctx.NewSumConstraint(terms, bound, head)
}

// WeightedProduct declares the reified weight·Πxᵢ<=bound propagator.
func (b *Builder) WeightedProduct(weight int64, terms []*fd.IntVar, bound int64, head trail.Literal) *fd.ProductConstraint {
	return b.ctx.NewProductConstraint(weight, terms, bound, head)
}

// Minimize runs spec.md §4.8's optimisation shrink loop. Call only after
// Finish, once every clause/rule/aggregate declaration is in place.
func (b *Builder) Minimize(p opt.Problem) opt.Result {
	return b.ctx.Minimize(p)
}

// Finish wires every deferred declaration onto the context — rule
// completion clauses and aggregate-set propagators — and returns it, ready
// to Solve. Call once, after every other declaration.
func (b *Builder) Finish() (*engine.Context, error) {
	if idx := b.ctx.AddClauses(b.ctx.FinishDefinitions()); idx >= 0 {
		return nil, errors.Errorf("builder: rule completion clause %d rejected as contradictory", idx)
	}
	for _, p := range b.pendingAggs {
		if err := b.ctx.AddAggregateSet(p.set, p.typ, p.aggs, p.cfg); err != nil {
			return nil, errors.Wrapf(err, "builder: aggregate set %d", p.set.ID)
		}
	}
	return b.ctx, nil
}
