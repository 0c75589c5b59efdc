// Package id implements the inductive-definition engine of spec.md §4.5:
// disjunctive and conjunctive rules, completion-clause generation, and the
// unfounded-set machinery that the completion alone cannot capture (a
// purely self-supporting loop of atoms can satisfy completion while having
// no justification in any stable or well-founded model).
package id

import (
	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/trail"
)

// DefType classifies a defined atom's rule, mirroring
// original_source/solvers/IDTypes.h's {NONDEFTYPE, DISJ, CONJ}.
type DefType uint8

const (
	NonDef DefType = iota
	Disj
	Conj
)

// Rule is the single completion-forming rule for a defined atom: a
// disjunctive rule is true iff any body literal is true, a conjunctive
// rule iff all of them are.
type Rule struct {
	Head trail.Atom
	Body []trail.Literal
	Type DefType
}

// CompletionClauses returns the plain clauses equivalent to "head <-> rule
// body", per spec.md §4.5. These are added to the SAT driver directly; the
// Engine itself only needs to handle the non-clausal unfounded-set check.
func (r *Rule) CompletionClauses() [][]trail.Literal {
	h := trail.NewLiteral(r.Head, false)
	var out [][]trail.Literal
	switch r.Type {
	case Disj:
		disj := append([]trail.Literal{h.Negate()}, r.Body...)
		out = append(out, disj)
		for _, l := range r.Body {
			out = append(out, []trail.Literal{l.Negate(), h})
		}
	case Conj:
		conj := []trail.Literal{h}
		for _, l := range r.Body {
			conj = append(conj, l.Negate())
		}
		out = append(out, conj)
		for _, l := range r.Body {
			out = append(out, []trail.Literal{h.Negate(), l})
		}
	}
	return out
}

// Engine is the definitional theory's bus.Propagator: it tracks, for every
// disjunctive head, a current supporting body literal, and reacts when that
// support disappears by searching for an unfounded set rooted at the head
// (the cycle source), per original_source/solvers/IDSolver.cpp's
// `indirectPropagate`/`unfounded`.
type Engine struct {
	Tr  *trail.Trail
	Bus *bus.Bus
	cfg config.Config

	rules   map[trail.Atom]*Rule
	defType map[trail.Atom]DefType

	// bodyOccurs maps a body atom to every head whose rule contains it,
	// positively or negatively, used to find candidate cycle sources
	// when a literal flips.
	bodyOccurs map[trail.Atom][]trail.Atom

	support map[trail.Atom]trail.Literal // current justifying literal per Disj head

	scc      []int // 1-based SCC id per atom, 0 if NonDef or not in any positive loop
	posLoops map[int]bool

	semantics config.DefinitionSemantics
	ufsAlgo   config.UnfoundedSetAlgo

	tokenSeq  uint64
	tokenInfo map[uint64][]trail.Literal
}

// NewEngine builds an empty definition engine; call AddRule for every
// defined atom, then Finish to build the dependency graph and completion
// clauses before wiring it onto the bus.
func NewEngine(tr *trail.Trail, b *bus.Bus, cfg config.Config) *Engine {
	return &Engine{
		Tr:         tr,
		Bus:        b,
		cfg:        cfg,
		rules:      make(map[trail.Atom]*Rule),
		defType:    make(map[trail.Atom]DefType),
		bodyOccurs: make(map[trail.Atom][]trail.Atom),
		support:    make(map[trail.Atom]trail.Literal),
		posLoops:   make(map[int]bool),
		semantics:  cfg.DefnSemantics,
		ufsAlgo:    cfg.UFSAlgo,
		tokenInfo:  make(map[uint64][]trail.Literal),
	}
}

// AddRule registers r as the completion rule for r.Head.
func (e *Engine) AddRule(r *Rule) {
	e.rules[r.Head] = r
	e.defType[r.Head] = r.Type
}

// Finish computes the positive dependency graph's strongly connected
// components (via the single Tarjan pass in scc.go), builds the
// body-occurrence index, and returns every rule's completion clauses for
// the caller to add to the SAT driver. Must be called once, after every
// AddRule.
func (e *Engine) Finish() [][]trail.Literal {
	var clauses [][]trail.Literal
	for head, r := range e.rules {
		clauses = append(clauses, r.CompletionClauses()...)
		for _, l := range r.Body {
			e.bodyOccurs[l.Atom()] = append(e.bodyOccurs[l.Atom()], head)
		}
	}
	e.scc, e.posLoops = computeSCC(e.rules)

	for head, r := range e.rules {
		if r.Type != Disj {
			continue
		}
		b := e.Bus
		head := head
		_ = b
		e.subscribeRule(head, r)
	}
	return clauses
}

func (e *Engine) subscribeRule(head trail.Atom, r *Rule) {
	h := trail.NewLiteral(head, false)
	e.Bus.Subscribe(h, e, bus.Slow)
	e.Bus.Subscribe(h.Negate(), e, bus.Slow)
	for _, l := range r.Body {
		e.Bus.Subscribe(l, e, bus.Slow)
		e.Bus.Subscribe(l.Negate(), e, bus.Slow)
	}
}

func (e *Engine) Kind() trail.EngineTag { return trail.EngineDefinition }

// inPosLoop reports whether head participates in a positive loop, i.e.
// spec.md §4.5's condition for the unfounded-set check to even be
// necessary (acyclic or negatively-cyclic heads are fully decided by their
// completion clauses alone).
func (e *Engine) inPosLoop(head trail.Atom) bool {
	if int(head) >= len(e.scc) {
		return false
	}
	c := e.scc[head]
	return c != 0 && e.posLoops[c]
}

// OnAssign reacts to a flip of a literal relevant to some rule: it
// refreshes support for every head whose rule contains the literal and, for
// any head that just lost support while still being a positive-loop member,
// runs the unfounded-set search rooted at that head.
func (e *Engine) OnAssign(l trail.Literal) *trail.Clause {
	candidates := e.bodyOccurs[l.Atom()]
	if e.rules[l.Atom()] != nil {
		candidates = append(candidates, l.Atom())
	}
	for _, head := range candidates {
		r := e.rules[head]
		if r == nil || r.Type != Disj || !e.inPosLoop(head) {
			continue
		}
		if e.Tr.Value(trail.NewLiteral(head, false)) != trail.True {
			continue
		}
		if cur, ok := e.support[head]; ok && e.Tr.Value(cur) != trail.False {
			continue // still supported
		}
		if lit, ok := e.findSupport(r); ok {
			e.support[head] = lit
			continue
		}
		delete(e.support, head)
		if e.cfg.DefnStrategy == config.DefnLazy {
			// Lazy strategy defers the search entirely to the
			// well-founded recheck once the trail is total.
			continue
		}
		if c := e.searchUnfounded(head); c != nil {
			return c
		}
	}
	return nil
}

// findSupport scans r's body for any literal that is not currently false,
// the cheapest possible witness of support (it need not be true yet, only
// not yet ruled out).
func (e *Engine) findSupport(r *Rule) (trail.Literal, bool) {
	for _, l := range r.Body {
		if e.Tr.Value(l) != trail.False {
			return l, true
		}
	}
	return 0, false
}

// hasExternalSupport reports whether head's rule currently has a body
// literal that is true and either negative, or a positive occurrence of an
// atom outside candidate: a witness that head's truth does not depend
// solely on other members of candidate, per spec.md §4.5.
func (e *Engine) hasExternalSupport(head trail.Atom, candidate map[trail.Atom]bool) bool {
	r := e.rules[head]
	if r == nil {
		return true
	}
	for _, l := range r.Body {
		if e.Tr.Value(l) != trail.True {
			continue
		}
		if l.Negated() || !candidate[l.Atom()] {
			return true
		}
	}
	return false
}

// searchUnfounded builds the maximal candidate unfounded set reachable from
// cs within its SCC (every currently-true, positive-loop member of the same
// component) and repeatedly prunes members that turn out to have external
// support, until the set is either empty (cs was a false alarm; nothing to
// do once findSupport is rechecked by the caller) or stable (a genuine
// unfounded set to assert). --ufsalgo controls only the order members are
// revisited during pruning, per spec.md §4.5's depth/breadth knob.
func (e *Engine) searchUnfounded(cs trail.Atom) *trail.Clause {
	candidate := e.sccMembers(cs)
	if len(candidate) == 0 {
		return nil
	}

	order := make([]trail.Atom, 0, len(candidate))
	for a := range candidate {
		order = append(order, a)
	}
	if e.ufsAlgo == config.UFSDepthFirst {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	for {
		changed := false
		for _, head := range order {
			if !candidate[head] {
				continue
			}
			if e.hasExternalSupport(head, candidate) {
				delete(candidate, head)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if len(candidate) == 0 {
		return nil
	}
	return e.assertUnfoundedSet(candidate)
}

// sccMembers returns every atom in cs's strongly connected component that
// is currently assigned true and defined by a rule: the maximal possible
// unfounded set rooted at cs.
func (e *Engine) sccMembers(cs trail.Atom) map[trail.Atom]bool {
	if !e.inPosLoop(cs) {
		return nil
	}
	comp := e.scc[cs]
	out := make(map[trail.Atom]bool)
	for a := range e.rules {
		if int(a) < len(e.scc) && e.scc[a] == comp && e.Tr.Value(trail.NewLiteral(a, false)) == trail.True {
			out[a] = true
		}
	}
	return out
}

// assertUnfoundedSet builds the loop formula for ufs: every member head is
// implied false unless some body literal outside the set (an "external
// disjunct") is true, per original_source's `addLoopfClause`/
// `assertUnfoundedSet`.
func (e *Engine) assertUnfoundedSet(ufs map[trail.Atom]bool) *trail.Clause {
	var external []trail.Literal
	for head := range ufs {
		r := e.rules[head]
		if r == nil {
			continue
		}
		for _, l := range r.Body {
			if !l.Negated() && ufs[l.Atom()] {
				continue
			}
			external = append(external, l)
		}
	}

	token := e.tokenSeq
	e.tokenSeq++
	e.tokenInfo[token] = external

	var conflict *trail.Clause
	for head := range ufs {
		h := trail.NewLiteral(head, false)
		if e.Tr.Value(h) != trail.True {
			continue
		}
		c, ok := e.Tr.Assign(h.Negate(), trail.TheoryReason(trail.EngineDefinition, token))
		if !ok {
			if c != nil {
				return c
			}
			return e.loopFormula(external, head)
		}
		e.Bus.Notify(h.Negate())
	}
	return conflict
}

func (e *Engine) loopFormula(external []trail.Literal, head trail.Atom) *trail.Clause {
	lits := append([]trail.Literal{trail.NewLiteral(head, true)}, external...)
	return &trail.Clause{Lits: lits, Learnt: true}
}

// Explain rebuilds the loop formula asserted against a at the time it was
// forced false by assertUnfoundedSet, using the external-support literal
// list recorded under that call's token rather than a's full rule body
// (which would wrongly include literals internal to the unfounded set
// itself).
func (e *Engine) Explain(a trail.Atom) *trail.Clause {
	token := e.Tr.ReasonOf(a).Token
	if external, ok := e.tokenInfo[token]; ok {
		return e.loopFormula(external, a)
	}
	r, ok := e.rules[a]
	if !ok {
		return &trail.Clause{}
	}
	return e.loopFormula(r.Body, a)
}

func (e *Engine) OnNewDecisionLevel() {}

func (e *Engine) OnBacktrack(level int) {
	for head := range e.support {
		r := e.rules[head]
		if r == nil {
			continue
		}
		if e.Tr.Value(trail.NewLiteral(head, false)) != trail.True {
			delete(e.support, head)
		}
	}
}

// OnFullAssignment runs the well-founded recheck: a final Tarjan pass over
// the *current model's* positive justification graph, rejecting any atom
// that is true only because of a cycle with no externally-true support
// literal. Stable semantics (spec.md §4.5's --idsem stable) skips this
// entirely, since completion plus any stable supported-model check is
// already enforced by the unfounded-set search during propagation.
func (e *Engine) OnFullAssignment() *trail.Clause {
	if e.semantics == config.SemanticsStable {
		return nil
	}
	unsupported := findUnsupportedCycle(e.Tr, e.rules)
	if unsupported == nil {
		return nil
	}
	return e.assertUnfoundedSet(unsupported)
}
