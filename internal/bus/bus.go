// Package bus implements the propagation bus described in spec.md §4.3: a
// per-literal subscriber list, segregated into fast and slow priority
// queues, that wakes theory engines when a literal is assigned and drains
// to a fixpoint before the SAT driver is allowed to choose another
// decision.
package bus

import "github.com/cespare/ecnf/internal/trail"

// Priority controls whether a propagator drains before (Fast) or after
// (Slow) every Fast-priority propagator has been run to fixpoint.
type Priority uint8

const (
	Fast Priority = iota
	Slow
)

// Propagator is the tagged-dispatch interface every theory engine
// implements, per spec.md §9's note to prefer a closed interface over
// open polymorphism for the hot dispatch path. A Propagator subscribes to
// specific literals via Bus.Subscribe; Kind identifies which concrete
// engine it is, for diagnostics and for the "theory-propagated" reason
// tag.
type Propagator interface {
	Kind() trail.EngineTag
	// OnAssign is called when a literal this propagator subscribed to
	// becomes true. It may assign further literals on the trail and must
	// return a conflict clause if doing so is impossible.
	OnAssign(l trail.Literal) *trail.Clause
	// Explain resolves a previously-theory-propagated atom into a
	// fresh reason clause. Called only while the propagation that
	// produced the literal is still on the trail.
	Explain(a trail.Atom) *trail.Clause
	// OnNewDecisionLevel and OnBacktrack mirror the trail's own hooks.
	OnNewDecisionLevel()
	OnBacktrack(level int)
	// OnFullAssignment runs once the trail is totally valued; it may
	// report a conflict (e.g. the definition engine's well-founded
	// check). Returning nil means the engine is satisfied.
	OnFullAssignment() *trail.Clause
}

// BranchOverride lets a propagator rewrite the SAT driver's chosen
// decision variable (spec.md §4.3's "Branch-decision is an overridable
// hook").
type BranchOverride interface {
	OverrideBranch(proposed trail.Literal) trail.Literal
}

type subscription struct {
	prop     Propagator
	priority Priority
}

// Bus dispatches literal assignments to subscribed propagators.
type Bus struct {
	subs [][]subscription // indexed by literal

	fastQueue []trail.Literal
	slowQueue []trail.Literal
	// queued prevents a propagator from being enqueued twice for the
	// same literal before it runs, per spec.md §4.3.
	queuedFast map[queueKey]bool
	queuedSlow map[queueKey]bool

	overrides []BranchOverride

	// StopSignal is polled at every propagator-queue boundary for
	// cooperative cancellation (spec.md §5).
	StopSignal func() bool
}

type queueKey struct {
	lit  trail.Literal
	prop Propagator
}

// New allocates a Bus sized for literals over atoms [0, nAtoms].
func New(nAtoms int) *Bus {
	return &Bus{
		subs:       make([][]subscription, 2*(nAtoms+1)),
		queuedFast: make(map[queueKey]bool),
		queuedSlow: make(map[queueKey]bool),
	}
}

// Grow extends the bus to accommodate newly introduced atoms.
func (b *Bus) Grow(nAtoms int) {
	need := 2 * (nAtoms + 1)
	if len(b.subs) >= need {
		return
	}
	b.subs = append(b.subs, make([][]subscription, need-len(b.subs))...)
}

// Subscribe registers p to be woken whenever l is assigned true, at the
// given priority. A propagator that wants both fast and slow semantics
// for the same literal must be represented as two distinct Propagator
// values (spec.md §9's open question on double-firing).
func (b *Bus) Subscribe(l trail.Literal, p Propagator, pr Priority) {
	b.subs[l] = append(b.subs[l], subscription{prop: p, priority: pr})
}

// RegisterBranchOverride adds an engine that may rewrite decisions.
func (b *Bus) RegisterBranchOverride(o BranchOverride) {
	b.overrides = append(b.overrides, o)
}

// OverrideBranch runs every registered override in registration order,
// threading the (possibly rewritten) literal through each.
func (b *Bus) OverrideBranch(proposed trail.Literal) trail.Literal {
	for _, o := range b.overrides {
		proposed = o.OverrideBranch(proposed)
	}
	return proposed
}

// Notify enqueues every subscriber of l (which has just become true) onto
// its priority queue, unless already queued.
func (b *Bus) Notify(l trail.Literal) {
	for _, s := range b.subs[l] {
		key := queueKey{lit: l, prop: s.prop}
		switch s.priority {
		case Fast:
			if !b.queuedFast[key] {
				b.queuedFast[key] = true
				b.fastQueue = append(b.fastQueue, l)
			}
		default:
			if !b.queuedSlow[key] {
				b.queuedSlow[key] = true
				b.slowQueue = append(b.slowQueue, l)
			}
		}
	}
}

// PropagateUntilFixpoint drains the fast queue, then the slow queue,
// calling each queued propagator's OnAssign for the literal that woke it.
// It stops and returns the first conflict clause produced; on success
// both queues are empty. If StopSignal reports true at a queue boundary it
// returns nil at once, leaving whatever is still queued in place.
func (b *Bus) PropagateUntilFixpoint() *trail.Clause {
	for {
		if b.StopSignal != nil && b.StopSignal() {
			return nil
		}
		if len(b.fastQueue) > 0 {
			l := b.fastQueue[0]
			b.fastQueue = b.fastQueue[1:]
			if c := b.runSubs(l, Fast); c != nil {
				return c
			}
			continue
		}
		if len(b.slowQueue) > 0 {
			l := b.slowQueue[0]
			b.slowQueue = b.slowQueue[1:]
			if c := b.runSubs(l, Slow); c != nil {
				return c
			}
			continue
		}
		return nil
	}
}

func (b *Bus) runSubs(l trail.Literal, pr Priority) *trail.Clause {
	for _, s := range b.subs[l] {
		if s.priority != pr {
			continue
		}
		key := queueKey{lit: l, prop: s.prop}
		if pr == Fast {
			if !b.queuedFast[key] {
				continue
			}
			delete(b.queuedFast, key)
		} else {
			if !b.queuedSlow[key] {
				continue
			}
			delete(b.queuedSlow, key)
		}
		if c := s.prop.OnAssign(l); c != nil {
			return c
		}
	}
	return nil
}

// Reset clears both queues without running any propagator; used after a
// conflict is handled and the driver is about to backtrack.
func (b *Bus) Reset() {
	b.fastQueue = b.fastQueue[:0]
	b.slowQueue = b.slowQueue[:0]
	for k := range b.queuedFast {
		delete(b.queuedFast, k)
	}
	for k := range b.queuedSlow {
		delete(b.queuedSlow, k)
	}
}

// allPropagators collects the distinct set of propagators registered on
// the bus, used for per-level hooks and the full-assignment poll.
func (b *Bus) allPropagators() []Propagator {
	seen := make(map[Propagator]bool)
	var out []Propagator
	for _, subs := range b.subs {
		for _, s := range subs {
			if !seen[s.prop] {
				seen[s.prop] = true
				out = append(out, s.prop)
			}
		}
	}
	return out
}

// OnNewDecisionLevel notifies every registered propagator.
func (b *Bus) OnNewDecisionLevel() {
	for _, p := range b.allPropagators() {
		p.OnNewDecisionLevel()
	}
}

// OnBacktrack notifies every registered propagator that the trail
// backtracked to level.
func (b *Bus) OnBacktrack(level int) {
	for _, p := range b.allPropagators() {
		p.OnBacktrack(level)
	}
	b.Reset()
}

// OnFullAssignment polls every propagator once the trail is total,
// returning the first conflict reported, if any.
func (b *Bus) OnFullAssignment() *trail.Clause {
	for _, p := range b.allPropagators() {
		if c := p.OnFullAssignment(); c != nil {
			return c
		}
	}
	return nil
}
