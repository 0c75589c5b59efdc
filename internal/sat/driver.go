// Package sat implements the CDCL search driver of spec.md §4.2: VSIDS
// branching, geometric/Luby restarts, an activity-bumped learnt-clause
// database with periodic reduction, and 1UIP conflict analysis that treats
// theory-propagated literals the same as clause-propagated ones.
package sat

import (
	"container/heap"
	"math/rand"

	"github.com/cespare/ecnf/internal/bus"
	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/trail"
)

// Status is the outcome of a Solve call.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusSat
	StatusUnsat
	StatusStopped
)

// Result carries the outcome of Solve, and the model if satisfiable.
type Result struct {
	Status Status
	Model  []trail.Value // indexed by atom; valid only when Status == StatusSat
}

// Stats are informational counters, exposed the way the teacher's
// cmd/saturday -v flag reports sv.numDecisions/numImplications.
type Stats struct {
	Decisions   int64
	Conflicts   int64
	Restarts    int64
	Propagations int64
	LearntsReduced int64
}

// Driver is the CDCL search engine. It owns the trail and the problem's
// clause database; theory engines are reached only through the Bus.
type Driver struct {
	Tr  *trail.Trail
	Bus *bus.Bus

	cfg config.Config

	clauses []*trail.Clause
	learnts []*trail.Clause

	watchers [][]*trail.Clause // indexed by literal

	activity []float64
	varInc   float64
	heap     *varHeap

	polarity []trail.Value // saved phase per atom

	rng *rand.Rand

	propHead int // index into the trail already passed through clause propagation

	seen     []bool // scratch buffer for conflict analysis
	stopped  bool

	luby lubyState

	conflictsSinceRestart int64
	nextRestart           int64

	Stats Stats

	// assumptionDepth is how many of the currently-open decision levels
	// were pushed as assumptions rather than free branching decisions.
	assumptionDepth int

	// engines maps an EngineTag to the Propagator that owns it, so
	// conflict analysis can materialize theory reasons on demand.
	engines map[trail.EngineTag]bus.Propagator

	// suppressed atoms are immune to activity bumps, per Deprioritize.
	suppressed map[trail.Atom]bool
}

// NewDriver allocates a driver over atoms [1, nAtoms].
func NewDriver(nAtoms int, cfg config.Config) *Driver {
	d := &Driver{
		Tr:       trail.New(nAtoms),
		Bus:      bus.New(nAtoms),
		cfg:      cfg,
		watchers: make([][]*trail.Clause, 2*(nAtoms+1)),
		activity: make([]float64, nAtoms+1),
		varInc:   1,
		polarity: make([]trail.Value, nAtoms+1),
		rng:        rand.New(rand.NewSource(cfg.RandomSeed)),
		seen:       make([]bool, nAtoms+1),
		suppressed: make(map[trail.Atom]bool),
	}
	d.heap = newVarHeap(&d.activity)
	d.heap.ensure(nAtoms + 1)
	for a := 1; a <= nAtoms; a++ {
		heap.Push(d.heap, trail.Atom(a))
	}
	d.luby = newLubyState()
	d.nextRestart = d.luby.next() * 100
	d.Tr.UnassignHooks = append(d.Tr.UnassignHooks, d.onUnassign)
	return d
}

// Grow extends the driver to accommodate newly introduced atoms (e.g.
// lazy FD order atoms or ID loop-formula auxiliaries).
func (d *Driver) Grow(nAtoms int) {
	if nAtoms+1 <= len(d.activity) {
		return
	}
	d.Tr.Grow(nAtoms)
	d.Bus.Grow(nAtoms)
	old := len(d.activity)
	d.activity = append(d.activity, make([]float64, nAtoms+1-old)...)
	d.polarity = append(d.polarity, make([]trail.Value, nAtoms+1-old)...)
	d.seen = append(d.seen, make([]bool, nAtoms+1-old)...)
	need := 2 * (nAtoms + 1)
	if len(d.watchers) < need {
		d.watchers = append(d.watchers, make([][]*trail.Clause, need-len(d.watchers))...)
	}
	d.heap.ensure(nAtoms + 1)
	for a := old; a <= nAtoms; a++ {
		heap.Push(d.heap, trail.Atom(a))
	}
}

func (d *Driver) onUnassign(rec trail.Record) {
	a := rec.Lit.Atom()
	d.polarity[a] = d.Tr.Value(rec.Lit)
	if !d.heap.contains(a) {
		heap.Push(d.heap, a)
	}
}

// AddClause registers a problem clause. Unit clauses are assigned directly
// at the current level instead of being watched; a unit whose literal is
// already false is kept instead as a watched clause listing that literal
// twice, so the next propagation pass reports the conflict. An empty
// clause is reported by returning ok=false (the caller should treat this
// as an immediate UNSAT).
func (d *Driver) AddClause(lits []trail.Literal) (ok bool) {
	if len(lits) == 0 {
		return false
	}
	c := &trail.Clause{Lits: append([]trail.Literal(nil), lits...)}
	if len(lits) == 1 {
		if _, assigned := d.Tr.Assign(lits[0], trail.ClauseReason(c)); !assigned {
			c.Lits = append(c.Lits, lits[0])
			d.clauses = append(d.clauses, c)
			d.watch(c)
		}
		d.propHead = 0 // re-run clause propagation to pick up the new unit
		return true
	}
	d.clauses = append(d.clauses, c)
	d.watch(c)
	return true
}

// addLearnt inserts a freshly derived clause into the learnt database and
// watches it.
func (d *Driver) addLearnt(c *trail.Clause) {
	c.Learnt = true
	d.learnts = append(d.learnts, c)
	if len(c.Lits) == 1 {
		d.Tr.Assign(c.Lits[0], trail.ClauseReason(c))
		return
	}
	d.watch(c)
}

func (d *Driver) watch(c *trail.Clause) {
	d.watchers[c.Lits[0]] = append(d.watchers[c.Lits[0]], c)
	d.watchers[c.Lits[1]] = append(d.watchers[c.Lits[1]], c)
}

// Deprioritize marks a as immune to activity bumps and sinks its activity
// below every ordinary atom's, so the VSIDS heap only ever picks it once
// every other unassigned atom is already decided. Used for choice-rule
// auxiliaries when Config.ChoiceAuxiliariesDecidable is false (spec.md
// §9's "not decidable", matching the original's --lazy default): they
// still get a value from the ordinary search, just last.
func (d *Driver) Deprioritize(a trail.Atom) {
	if int(a) >= len(d.activity) {
		return
	}
	d.suppressed[a] = true
	d.activity[a] = -1
	if d.heap.contains(a) {
		heap.Fix(d.heap, d.heap.indexOf(a))
	}
}

// bumpVarActivity implements VSIDS activity bumping with periodic
// rescaling, grounded on rhartert/yass's varInc/varDecay fields.
func (d *Driver) bumpVarActivity(a trail.Atom) {
	if d.suppressed[a] {
		return
	}
	d.activity[a] += d.varInc
	if d.activity[a] > 1e100 {
		for i := range d.activity {
			d.activity[i] *= 1e-100
		}
		d.varInc *= 1e-100
	}
	if d.heap.contains(a) {
		heap.Fix(d.heap, d.heap.indexOf(a))
	}
}

func (d *Driver) decayVarActivity() {
	d.varInc /= d.cfg.VarDecay
}

func (d *Driver) bumpClauseActivity(c *trail.Clause) {
	c.Activity++
}

// pickPolarity decides which phase to try first for atom a, per the
// configured PolarityMode.
func (d *Driver) pickPolarity(a trail.Atom) bool { // returns true => negate
	switch d.cfg.Polarity {
	case config.PolarityTrue:
		return false
	case config.PolarityFalse:
		return true
	case config.PolarityRandom:
		return d.rng.Intn(2) == 0
	default: // PolarityStored
		if d.polarity[a] == trail.False {
			return true
		}
		return false
	}
}

// decide pops the highest-activity unassigned atom and returns the
// literal to assign next, applying random-decision and polarity-mode
// policy, and letting theory engines override the choice of variable.
func (d *Driver) decide() (trail.Literal, bool) {
	var a trail.Atom
	for {
		if d.heap.Len() == 0 {
			return 0, false
		}
		if d.cfg.RandomFreq > 0 && d.rng.Float64() < d.cfg.RandomFreq {
			idx := d.rng.Intn(d.heap.Len())
			a = d.heap.items[idx]
		} else {
			a = d.heap.items[0]
		}
		if d.Tr.AtomValue(a) == trail.Undef {
			break
		}
		// Stale heap entry (shouldn't normally happen since we pop on
		// assign), drop it and retry.
		heap.Remove(d.heap, d.heap.indexOf(a))
	}
	heap.Remove(d.heap, d.heap.indexOf(a))
	lit := trail.NewLiteral(a, d.pickPolarity(a))
	lit = d.Bus.OverrideBranch(lit)
	return lit, true
}

// propagateClause runs the two-watched-literal update for the literal
// that was just assigned true, moving watches or reporting a unit
// implication / conflict, in the manner of the teacher's bcp but
// operating on the trail's Assign instead of a raw array.
func (d *Driver) propagateClause(assigned trail.Literal) *trail.Clause {
	neg := assigned.Negate()
	watches := d.watchers[neg]
	i := 0
watchLoop:
	for i < len(watches) {
		c := watches[i]
		if c.Lits[0] == neg {
			c.Lits[0], c.Lits[1] = c.Lits[1], c.Lits[0]
		}
		first := c.Lits[0]
		if d.Tr.Value(first) == trail.True {
			i++
			continue
		}
		for j := 2; j < len(c.Lits); j++ {
			lj := c.Lits[j]
			if d.Tr.Value(lj) != trail.False {
				c.Lits[1], c.Lits[j] = c.Lits[j], c.Lits[1]
				d.watchers[lj] = append(d.watchers[lj], c)
				watches[i] = watches[len(watches)-1]
				watches = watches[:len(watches)-1]
				d.watchers[neg] = watches
				continue watchLoop
			}
		}
		// No replacement watch: c is unit on `first`, or conflicting.
		i++
		conflict, ok := d.Tr.Assign(first, trail.ClauseReason(c))
		if !ok {
			return conflict
		}
		d.Stats.Propagations++
		d.Bus.Notify(first)
	}
	return nil
}

// propagateUntilFixpoint alternates draining clausal unit propagation
// (the hot, built-in fast path) with the theory Bus's own fast/slow
// queues, since a theory propagation can unblock further clause
// propagation and vice versa. It returns the first conflict clause found.
func (d *Driver) propagateUntilFixpoint() *trail.Clause {
	for {
		for d.propHead < d.Tr.Len() {
			rec := d.Tr.RecordAt(d.propHead)
			d.propHead++
			if c := d.propagateClause(rec.Lit); c != nil {
				return c
			}
			d.Bus.Notify(rec.Lit)
		}
		if c := d.Bus.PropagateUntilFixpoint(); c != nil {
			return c
		}
		if d.propHead >= d.Tr.Len() {
			return nil
		}
	}
}

// PropagateOnly drains the propagation queue to a fixpoint without making
// any new decision. It is the primitive the second-order driver
// (internal/modal) needs to push a parent-assigned rigid atom or head
// through a child's own CORE instance before deciding whether that child
// is ready to search.
func (d *Driver) PropagateOnly() *trail.Clause {
	return d.propagateUntilFixpoint()
}

// BacktrackTo undoes this driver's trail/bus state back to level, for a
// second-order driver node unwinding past a level its parent pushed a
// literal down at.
func (d *Driver) BacktrackTo(level int) {
	d.backtrackTo(level)
}

// Solve runs CDCL search under the given assumption literals (pushed as
// decisions before free branching begins), per spec.md §4.2. It returns
// StatusUnsat if the assumptions themselves are contradictory (without
// permanently adding a clause against them), StatusSat with a full model
// otherwise, or StatusStopped if StopSignal fired.
func (d *Driver) Solve(assumptions []trail.Literal) Result {
	assumeIdx := 0
	d.assumptionDepth = d.Tr.CurrentLevel()
	for {
		if d.Bus.StopSignal != nil && d.Bus.StopSignal() {
			return Result{Status: StatusStopped}
		}
		conflict := d.propagateUntilFixpoint()
		if conflict != nil {
			if d.Tr.CurrentLevel() == 0 {
				return Result{Status: StatusUnsat}
			}
			learnt, level, assumptionConflict := d.analyze(conflict)
			if assumptionConflict {
				d.backtrackTo(0)
				return Result{Status: StatusUnsat}
			}
			d.Stats.Conflicts++
			d.conflictsSinceRestart++
			d.backtrackTo(level)
			d.addLearnt(learnt)
			d.decayVarActivity()
			if d.Stats.Conflicts%512 == 0 {
				d.reduceLearnts()
			}
			continue
		}

		if assumeIdx < len(assumptions) {
			lit := assumptions[assumeIdx]
			assumeIdx++
			d.assumptionDepth++
			d.Tr.NewDecisionLevel()
			d.Bus.OnNewDecisionLevel()
			if d.heap.contains(lit.Atom()) {
				heap.Remove(d.heap, d.heap.indexOf(lit.Atom()))
			}
			_, ok := d.Tr.Assign(lit, trail.DecisionReason)
			if !ok {
				// The assumption directly contradicts an existing
				// assignment: UNSAT under these assumptions, without
				// adding any permanent clause against them.
				d.backtrackTo(0)
				return Result{Status: StatusUnsat}
			}
			continue
		}

		if d.Tr.IsTotal() {
			if c := d.Bus.OnFullAssignment(); c != nil {
				// A theory engine rejected the full model (e.g. the ID
				// engine's well-founded check); treat it as a conflict.
				d.backtrackTo(0)
				d.addLearnt(c)
				continue
			}
			return Result{Status: StatusSat, Model: d.currentModel()}
		}

		if d.shouldRestart() {
			d.restart()
			continue
		}

		lit, ok := d.decide()
		if !ok {
			continue // nothing left unassigned but not "total"; re-check
		}
		d.Stats.Decisions++
		d.Tr.NewDecisionLevel()
		d.Bus.OnNewDecisionLevel()
		d.Tr.Assign(lit, trail.DecisionReason)
	}
}

func (d *Driver) currentModel() []trail.Value {
	model := make([]trail.Value, d.Tr.NumAtoms())
	for a := 1; a < d.Tr.NumAtoms(); a++ {
		model[a] = d.Tr.AtomValue(trail.Atom(a))
	}
	return model
}

// backtrackTo undoes the trail, the bus's per-level state, and resets
// clause propagation bookkeeping and assumption tracking.
func (d *Driver) backtrackTo(level int) {
	if level < d.assumptionDepth {
		// We are unwinding past pushed assumptions; they no longer
		// apply for the remainder of this Solve call.
		d.assumptionDepth = level
	}
	d.Tr.BacktrackTo(level)
	d.Bus.OnBacktrack(level)
	if d.propHead > d.Tr.Len() {
		d.propHead = d.Tr.Len()
	}
}

func (d *Driver) shouldRestart() bool {
	if d.Tr.CurrentLevel() <= d.assumptionDepth {
		return false
	}
	return d.conflictsSinceRestart >= d.nextRestart
}

func (d *Driver) restart() {
	d.Stats.Restarts++
	d.conflictsSinceRestart = 0
	switch d.cfg.Restart {
	case config.RestartGeometric:
		d.nextRestart = d.nextRestart * 3 / 2
		if d.nextRestart < 100 {
			d.nextRestart = 100
		}
	default:
		d.nextRestart = d.luby.next() * 100
	}
	d.backtrackTo(d.assumptionDepth)
}
