// Package trail implements the clause store and assignment trail shared by
// every engine in the propagation core: the SAT driver, the propagation
// bus, and the theory engines all read and write through a single *Trail.
package trail

import "fmt"

// Atom is a dense propositional atom identifier. The universe of atoms is
// contiguous starting from 1; atom 0 is reserved and never assigned.
type Atom uint32

// Literal is an atom plus a sign, encoded so that a literal and its negation
// index two adjacent slots: Literal(2*atom) is the positive occurrence,
// Literal(2*atom+1) is the negated one. This is the teacher's encoding
// (saturday.go's `literal` type), generalized from 0-based internal vars to
// 1-based atoms with atom 0 reserved.
type Literal uint32

// NewLiteral builds the literal for atom a with the given sign.
func NewLiteral(a Atom, negated bool) Literal {
	l := Literal(a) << 1
	if negated {
		l |= 1
	}
	return l
}

// Atom returns the underlying atom of l.
func (l Literal) Atom() Atom { return Atom(l >> 1) }

// Negated reports whether l is the negated occurrence of its atom.
func (l Literal) Negated() bool { return l&1 == 1 }

// Negate returns the complementary literal.
func (l Literal) Negate() Literal { return l ^ 1 }

func (l Literal) String() string {
	if l.Negated() {
		return fmt.Sprintf("-%d", l.Atom())
	}
	return fmt.Sprintf("%d", l.Atom())
}

// Value is a three-valued truth assignment.
type Value uint8

const (
	Undef Value = iota
	True
	False
)

func (v Value) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "undef"
	}
}

// Negate flips True/False; Undef is unaffected.
func (v Value) Negate() Value {
	switch v {
	case True:
		return False
	case False:
		return True
	default:
		return Undef
	}
}

// ReasonKind tags why a literal became assigned, per spec.md's assignment
// record: {decision, unit-propagated-by-clause, theory-propagated-by-engine}.
type ReasonKind uint8

const (
	ReasonDecision ReasonKind = iota
	ReasonClause
	ReasonTheory
)

// EngineTag identifies which theory engine owns a theory-propagated reason.
type EngineTag uint8

const (
	EngineNone EngineTag = iota
	EngineAggregate
	EngineDefinition
	EngineFD
	EngineModal
)

func (t EngineTag) String() string {
	switch t {
	case EngineAggregate:
		return "aggregate"
	case EngineDefinition:
		return "definition"
	case EngineFD:
		return "fd"
	case EngineModal:
		return "modal"
	default:
		return "none"
	}
}

// Reason is the variant described in spec.md §9: a reason is either absent
// (a decision), a concrete clause, or an opaque token that the owning
// engine can resolve into a freshly materialized clause on demand.
type Reason struct {
	Kind   ReasonKind
	Clause *Clause
	Engine EngineTag
	Token  uint64
}

// DecisionReason is the reason recorded for a branching decision.
var DecisionReason = Reason{Kind: ReasonDecision}

// ClauseReason wraps a clause reason.
func ClauseReason(c *Clause) Reason { return Reason{Kind: ReasonClause, Clause: c} }

// TheoryReason wraps an opaque per-engine token reason.
func TheoryReason(engine EngineTag, token uint64) Reason {
	return Reason{Kind: ReasonTheory, Engine: engine, Token: token}
}

// Clause is an ordered list of literals (length >= 1), plus the
// learnt/problem flag and activity score used by clause-DB reduction. The
// invariant maintained by the watch scheme (enforced by internal/bus and
// internal/sat, not by Clause itself) is that while a clause is not
// satisfied, its first two literals are non-false.
type Clause struct {
	Lits     []Literal
	Learnt   bool
	Activity float64
	// LBD is the literal-block distance. Nothing in the module sets or
	// reads it; learnt-clause reduction ranks clauses by Activity alone.
	LBD uint32
}

// Record is one entry in the trail: a literal assignment, the decision
// level it happened at, the reason for it, and its position ("time") in
// the global assignment order.
type Record struct {
	Lit    Literal
	Level  int
	Reason Reason
	Time   int
}

// Trail is the append-only-during-forward-search, shrinkable-on-backtrack
// assignment stack. It owns per-atom value/level/reason/time arrays so
// that lookups are O(1) without walking the record list.
type Trail struct {
	values []Value
	level  []int32
	reason []Reason
	time   []int32

	records   []Record
	levelEnds []int // records[levelEnds[i]:levelEnds[i+1]] is decision level i+1

	// UnassignHooks are called, most-recently-pushed first, for every
	// record popped by BacktrackTo, so engines can drop cached state tied
	// to an atom's assignment.
	UnassignHooks []func(Record)
}

// New allocates a Trail over atoms [1, nAtoms].
func New(nAtoms int) *Trail {
	n := nAtoms + 1
	return &Trail{
		values: make([]Value, n),
		level:  make([]int32, n),
		reason: make([]Reason, n),
		time:   make([]int32, n),
	}
}

// Grow extends the trail to cover at least nAtoms atoms; used when the
// builder or a lazy theory introduces new atoms after initial allocation.
func (t *Trail) Grow(nAtoms int) {
	n := nAtoms + 1
	if len(t.values) >= n {
		return
	}
	t.values = append(t.values, make([]Value, n-len(t.values))...)
	t.level = append(t.level, make([]int32, n-len(t.level))...)
	t.reason = append(t.reason, make([]Reason, n-len(t.reason))...)
	t.time = append(t.time, make([]int32, n-len(t.time))...)
}

// NumAtoms reports how many atoms the trail currently has slots for
// (including the reserved atom 0).
func (t *Trail) NumAtoms() int { return len(t.values) }

// CurrentLevel is the number of decision levels currently open.
func (t *Trail) CurrentLevel() int { return len(t.levelEnds) }

// Len is the number of assigned literals (trail length).
func (t *Trail) Len() int { return len(t.records) }

// Value returns the current truth value of a literal (not an atom): for a
// negated literal whose atom is True, Value returns False, and so on.
func (t *Trail) Value(l Literal) Value {
	v := t.values[l.Atom()]
	if v == Undef || !l.Negated() {
		return v
	}
	return v.Negate()
}

// AtomValue returns the current truth value of an atom directly.
func (t *Trail) AtomValue(a Atom) Value { return t.values[a] }

// LevelOf returns the decision level at which a's assignment happened, or
// -1 if a is unassigned.
func (t *Trail) LevelOf(a Atom) int {
	if t.values[a] == Undef {
		return -1
	}
	return int(t.level[a])
}

// TimeOf returns the trail index of a's assignment, used to decide which
// of two true literals was asserted first.
func (t *Trail) TimeOf(a Atom) int { return int(t.time[a]) }

// ReasonOf returns the reason recorded for a's current assignment.
func (t *Trail) ReasonOf(a Atom) Reason { return t.reason[a] }

// NewDecisionLevel opens a new decision level boundary.
func (t *Trail) NewDecisionLevel() {
	t.levelEnds = append(t.levelEnds, len(t.records))
}

// Assign pushes an assignment record for l. It returns (conflict, false) if
// l is already false (the returned clause, if non-nil, is the reason that
// conflicts); it is a no-op returning (nil, true) if l is already true;
// otherwise it commits the assignment and returns (nil, true).
func (t *Trail) Assign(l Literal, reason Reason) (conflict *Clause, ok bool) {
	switch t.Value(l) {
	case True:
		return nil, true
	case False:
		if reason.Kind == ReasonClause {
			return reason.Clause, false
		}
		return nil, false
	}
	a := l.Atom()
	v := True
	if l.Negated() {
		v = False
	}
	t.values[a] = v
	t.level[a] = int32(t.CurrentLevel())
	t.reason[a] = reason
	t.time[a] = int32(len(t.records))
	t.records = append(t.records, Record{Lit: l, Level: t.CurrentLevel(), Reason: reason, Time: len(t.records)})
	return nil, true
}

// RecordsFrom returns the slice of records assigned at or after index from;
// used by propagation loops that resume where they left off.
func (t *Trail) RecordsFrom(from int) []Record { return t.records[from:] }

// RecordAt returns the i'th record.
func (t *Trail) RecordAt(i int) Record { return t.records[i] }

// BacktrackTo pops assignments until decision level `level`'s boundary
// (level 0 clears everything). Each popped record is reported, most
// recent first, to every registered UnassignHooks callback before its
// atom's value is actually cleared.
func (t *Trail) BacktrackTo(level int) {
	if level >= t.CurrentLevel() {
		return
	}
	end := t.levelEnds[level]
	for i := len(t.records) - 1; i >= end; i-- {
		rec := t.records[i]
		for _, hook := range t.UnassignHooks {
			hook(rec)
		}
		a := rec.Lit.Atom()
		t.values[a] = Undef
		t.level[a] = 0
		t.reason[a] = Reason{}
		t.time[a] = 0
	}
	t.records = t.records[:end]
	t.levelEnds = t.levelEnds[:level]
}

// Explain returns the reason clause for a theory- or clause-propagated
// literal. For theory-propagated literals the caller must resolve the
// token itself (Trail has no engine registry); Explain only returns a
// directly-stored clause reason, or nil otherwise.
func (t *Trail) Explain(a Atom) *Clause {
	r := t.reason[a]
	if r.Kind == ReasonClause {
		return r.Clause
	}
	return nil
}

// IsTotal reports whether every atom from 1..NumAtoms()-1 is assigned.
func (t *Trail) IsTotal() bool {
	for a := 1; a < len(t.values); a++ {
		if t.values[a] == Undef {
			return false
		}
	}
	return true
}
