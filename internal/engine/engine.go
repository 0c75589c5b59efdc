// Package engine wires the SAT driver and every theory engine together
// behind one owner, per spec.md §9's note that the trail/bus/driver/theory
// graph is naturally cyclic (engines reach back into the trail and bus that
// drive them) and so needs a single non-owning-handle owner rather than
// each piece owning the next. Context is that owner; builder.Builder's
// Finish returns one fully wired from its declarations.
package engine

import (
	"github.com/pkg/errors"

	"github.com/cespare/ecnf/internal/agg"
	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/fd"
	"github.com/cespare/ecnf/internal/id"
	"github.com/cespare/ecnf/internal/modal"
	"github.com/cespare/ecnf/internal/opt"
	"github.com/cespare/ecnf/internal/sat"
	"github.com/cespare/ecnf/internal/trail"
)

// Context owns the trail, bus, SAT driver, and every theory engine for one
// ground problem. Everything else in this repo reaches the solve machinery
// only through a *Context.
type Context struct {
	Driver *sat.Driver
	Cfg    config.Config

	nAtoms trail.Atom

	Defs *id.Engine
	FD   *fd.Engine

	aggSets map[int]*agg.SetPropagator

	// modalRegistry is registered once, lazily, the first time NewModalRoot
	// or NewModalChild is called, so a Context that never declares a
	// second-order problem doesn't pay for an unused EngineModal slot.
	modalRegistry *modal.Registry
}

// New builds an empty Context with room for nAtoms atoms; the caller grows
// it further (via AllocAtom) as declarations introduce fresh atoms.
func New(nAtoms int, cfg config.Config) *Context {
	d := sat.NewDriver(nAtoms, cfg)
	c := &Context{
		Driver:  d,
		Cfg:     cfg,
		nAtoms:  trail.Atom(nAtoms),
		aggSets: make(map[int]*agg.SetPropagator),
	}
	c.FD = fd.NewEngine(d.Tr, d.Bus, c.AllocAtom)
	c.Defs = id.NewEngine(d.Tr, d.Bus, cfg)
	return c
}

// AllocAtom mints a fresh atom and grows the driver to accommodate it; it
// is the newAtom callback every theory engine that introduces atoms on
// demand (fd's lazy variables, fd's LEProp/EqLit reification atoms) is
// given.
func (c *Context) AllocAtom() trail.Atom {
	c.nAtoms++
	c.Driver.Grow(int(c.nAtoms))
	return c.nAtoms
}

// AddClauses adds a batch of plain clauses (disjunctions, implications,
// rule completion clauses, FD consistency clauses) to the driver. It
// reports the first rejected clause's index, or -1 if all were accepted.
func (c *Context) AddClauses(clauses [][]trail.Literal) int {
	for i, cl := range clauses {
		if !c.Driver.AddClause(cl) {
			return i
		}
	}
	return -1
}

// FinishDefinitions registers every rule added to c.Defs, returning its
// completion clauses for the caller to add via AddClauses. Call once, after
// every id.Rule has been added and before Solve.
func (c *Context) FinishDefinitions() [][]trail.Literal {
	return c.Defs.Finish()
}

// AddAggregateSet prepares set for typ and wires it onto the driver: when
// cfg.ToCNF asks for the pre-search rewrite and every aggregate over set
// uses Equivalence semantics, each one compiles directly to plain clauses
// via agg.CompileToCNF, per spec.md §4.4's pseudo-Boolean-to-CNF path.
// Otherwise (or for any aggregate agg.CompileToCNF can't take, such as
// Implication/Defined semantics) it builds the shared watch propagator
// over aggs instead. Every aggregate sharing one Set must be passed
// together in a single call, since agg.NewSetPropagator's watch invariant
// is maintained across the whole aggregate list at once.
func (c *Context) AddAggregateSet(set *agg.Set, typ agg.Type, aggs []*agg.Aggregate, cfg agg.Cfg) error {
	if err := agg.Prepare(set, typ); err != nil {
		return err
	}
	if cfg.ToCNF && allEquivalence(aggs) {
		for _, a := range aggs {
			clauses, err := agg.CompileToCNF(a, c.AllocAtom)
			if err != nil {
				return err
			}
			if idx := c.AddClauses(clauses); idx >= 0 {
				return errors.Errorf("engine: aggregate set %d: CNF clause %d rejected as contradictory", set.ID, idx)
			}
		}
		return nil
	}
	c.aggSets[set.ID] = agg.NewSetPropagator(c.Driver.Tr, c.Driver.Bus, set, aggs, cfg)
	return nil
}

func allEquivalence(aggs []*agg.Aggregate) bool {
	for _, a := range aggs {
		if a.Semantics != agg.Equivalence {
			return false
		}
	}
	return true
}

// NewRangeVar allocates an eagerly-encoded integer variable and adds its
// consistency clauses, registering it with the FD engine.
func (c *Context) NewRangeVar(id fd.VarID, lo, hi int64) *fd.IntVar {
	v, clauses := fd.NewRangeVar(id, lo, hi, c.AllocAtom)
	c.FD.AddVar(v)
	fd.NewVarWatcher(c.Driver.Tr, c.Driver.Bus, v)
	c.AddClauses(clauses)
	return v
}

// NewLazyVar registers a lazily-encoded integer variable with no order
// atoms allocated yet; LeqLit/GeqLit/EqLit introduce them on first query.
func (c *Context) NewLazyVar(id fd.VarID, lo, hi int64) *fd.IntVar {
	v := fd.NewLazyVar(id, lo, hi)
	c.FD.AddVar(v)
	return v
}

// ExcludeValue removes val from v's domain by forcing its EqLit false, for
// spec.md §6's enumerated (non-contiguous) integer domains: declare the
// variable as a range spanning the enum's min/max, then exclude every
// value in the gaps. It reports false if val's EqLit is the constant True
// (v's whole range is val), which makes the exclusion itself
// unsatisfiable. An EqLit already assigned true on the trail is not
// reported here; the kept exclusion makes the next Solve report UNSAT.
func (c *Context) ExcludeValue(v *fd.IntVar, val int64) bool {
	eq, clauses := c.FD.EqLit(v, val)
	c.AddClauses(clauses)
	if eq.Const == trail.False {
		return true
	}
	if eq.Const == trail.True {
		return false
	}
	return c.Driver.AddClause([]trail.Literal{eq.Lit.Negate()})
}

// NewLEConstraint builds and wires the reified X<=Y propagator.
func (c *Context) NewLEConstraint(x, y *fd.IntVar) *fd.LEProp {
	return fd.NewLEProp(c.Driver.Tr, c.Driver.Bus, x, y, c.AllocAtom)
}

// NewSumConstraint builds and wires the reified Σ wᵢxᵢ<=bound propagator.
func (c *Context) NewSumConstraint(terms []fd.WeightedTerm, bound int64, head trail.Literal) *fd.SumConstraint {
	return fd.NewSumConstraint(c.Driver.Tr, c.Driver.Bus, terms, bound, head)
}

// NewProductConstraint builds and wires the reified weight·Πxᵢ<=bound
// propagator.
func (c *Context) NewProductConstraint(weight int64, terms []*fd.IntVar, bound int64, head trail.Literal) *fd.ProductConstraint {
	return fd.NewProductConstraint(c.Driver.Tr, c.Driver.Bus, weight, terms, bound, head)
}

// registry lazily builds and registers the one EngineModal Propagator this
// Context's driver needs, per modal.Registry's doc comment on why a tree of
// children can't each register their own.
func (c *Context) registry() *modal.Registry {
	if c.modalRegistry == nil {
		c.modalRegistry = modal.NewRegistry(c.Driver.Tr)
		c.Driver.RegisterEngine(trail.EngineModal, c.modalRegistry)
	}
	return c.modalRegistry
}

// NewModalRoot starts a second-order tree whose subsolvers live on top of
// this Context's own driver/trail, per spec.md §4.7.
func (c *Context) NewModalRoot() *modal.Node {
	return &modal.Node{Core: c.Driver}
}

// NewModalChild adds a child subsolver under parent, over its own
// independent *sat.Driver but the same global atom namespace.
func (c *Context) NewModalChild(id int, quant modal.Quantifier, head trail.Literal, rigid []trail.Atom, core *sat.Driver, parent *modal.Node) *modal.Node {
	return modal.NewNode(id, quant, head, rigid, core, parent, c.registry())
}

// Deprioritize sinks a's branching priority unless Cfg.ChoiceAuxiliariesDecidable
// opts back into ordinary VSIDS treatment, per spec.md §9's choice-rule
// auxiliary open question.
func (c *Context) Deprioritize(a trail.Atom) {
	if !c.Cfg.ChoiceAuxiliariesDecidable {
		c.Driver.Deprioritize(a)
	}
}

// Solve runs the driver to completion under the given assumptions.
func (c *Context) Solve(assumptions []trail.Literal) sat.Result {
	return c.Driver.Solve(assumptions)
}

// Minimize runs the optimisation shrink loop of spec.md §4.8 over this
// Context's driver.
func (c *Context) Minimize(p opt.Problem) opt.Result {
	return opt.Minimize(c.Driver, p)
}
