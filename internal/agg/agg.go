// Package agg implements the aggregate engine of spec.md §4.4: weighted
// sets, the four aggregate types (sum, cardinality, product, max), set
// preparation/normalization, and the generic partial-watch propagator
// that generalizes two-watched-literals to arbitrary weighted bounds.
package agg

import (
	"math"
	"sort"

	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/trail"
	"github.com/pkg/errors"
)

// Type is an aggregate operation kind.
type Type uint8

const (
	Sum Type = iota
	Cardinality
	Product
	Max
)

// Sign is the aggregate's comparison direction against its bound.
type Sign uint8

const (
	AtMost Sign = iota // <=
	AtLeast            // >=
)

// Semantics controls how the aggregate's reification head relates to the
// aggregate's truth.
type Semantics uint8

const (
	Equivalence Semantics = iota
	Implication
	Defined
)

// WeightedLiteral pairs a literal with its contribution weight.
type WeightedLiteral struct {
	Lit    trail.Literal
	Weight int64
}

// Set is a finite, immutable-after-parsing multiset of weighted literals,
// sorted ascending by weight once Prepare is called.
type Set struct {
	ID  int
	WLs []WeightedLiteral

	// Bounds computed over the empty interpretation (spec.md §4.4):
	// every subsequent optim/pess computation is framed by these.
	EmptyMin, EmptyMax int64
}

// ErrNegativeProductWeight is raised when a product set contains a
// non-positive weight (spec.md §4.4 and the declaration-error taxonomy in
// §7).
var ErrNegativeProductWeight = errors.New("product set contains a zero or negative weight")

// ErrOverflow is the limits-error raised when a sum/product bound would
// overflow int64, per spec.md §9's instruction that silent wraparound is
// never permitted.
var ErrOverflow = errors.New("aggregate bound computation overflowed")

// Prepare rewrites s in place so all weights are non-negative and the
// aggregate type is one this engine natively understands, then computes
// the empty-interpretation bound pair. Min aggregates must be rewritten
// by the caller (builder) as Max over negated weights before Prepare is
// called, per spec.md §4.4.
func Prepare(s *Set, typ Type) error {
	sort.Slice(s.WLs, func(i, j int) bool { return s.WLs[i].Weight < s.WLs[j].Weight })
	if typ == Product {
		for _, wl := range s.WLs {
			if wl.Weight <= 0 {
				return ErrNegativeProductWeight
			}
		}
	}
	min, max, err := bounds(s.WLs, typ, nil)
	if err != nil {
		return err
	}
	s.EmptyMin, s.EmptyMax = min, max
	return nil
}

// bounds computes the [min,max] bound of typ over wls, given an optional
// per-literal current value function (nil means "treat every literal as
// unknown", i.e. the empty interpretation).
func bounds(wls []WeightedLiteral, typ Type, value func(trail.Literal) trail.Value) (min, max int64, err error) {
	switch typ {
	case Sum, Cardinality:
		for _, wl := range wls {
			w := wl.Weight
			if typ == Cardinality {
				w = 1
			}
			v := trail.Undef
			if value != nil {
				v = value(wl.Lit)
			}
			switch v {
			case trail.True:
				if addOverflows(min, w) || addOverflows(max, w) {
					return 0, 0, ErrOverflow
				}
				min += w
				max += w
			case trail.False:
				// contributes nothing to either bound
			default:
				if addOverflows(max, w) {
					return 0, 0, ErrOverflow
				}
				max += w
			}
		}
	case Product:
		min, max = 1, 1
		for _, wl := range wls {
			v := trail.Undef
			if value != nil {
				v = value(wl.Lit)
			}
			switch v {
			case trail.True:
				if mulOverflows(min, wl.Weight) || mulOverflows(max, wl.Weight) {
					return 0, 0, ErrOverflow
				}
				min *= wl.Weight
				max *= wl.Weight
			case trail.False:
				// factor of 1, no-op
			default:
				if mulOverflows(max, wl.Weight) {
					return 0, 0, ErrOverflow
				}
				max *= wl.Weight
			}
		}
	case Max:
		min, max = math.MinInt64, math.MinInt64
		any := false
		for _, wl := range wls {
			v := trail.Undef
			if value != nil {
				v = value(wl.Lit)
			}
			switch v {
			case trail.True:
				if wl.Weight > min {
					min = wl.Weight
				}
				if wl.Weight > max {
					max = wl.Weight
				}
				any = true
			case trail.False:
			default:
				if wl.Weight > max {
					max = wl.Weight
				}
			}
		}
		if !any {
			min = math.MinInt64
		}
	}
	return min, max, nil
}

func addOverflows(a, b int64) bool {
	if b > 0 && a > math.MaxInt64-b {
		return true
	}
	if b < 0 && a < math.MinInt64-b {
		return true
	}
	return false
}

func mulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	r := a * b
	return r/b != a
}

// Aggregate is the quadruple of spec.md's data model plus its
// reification head and semantics.
type Aggregate struct {
	Set       *Set
	Type      Type
	Bound     int64
	Sign      Sign
	Head      trail.Literal
	Semantics Semantics
}

// Satisfied reports whether the aggregate holds given a bound value v.
func (a *Aggregate) Satisfied(v int64) bool {
	if a.Sign == AtLeast {
		return v >= a.Bound
	}
	return v <= a.Bound
}

// Cfg bundles the subset of global configuration the aggregate engine
// consults: the --tocnf and --aggsaving flags.
type Cfg struct {
	ToCNF     bool
	AggSaving config.AggregateSaving
}
