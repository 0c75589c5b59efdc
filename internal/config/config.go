// Package config collects every configuration flag into the single
// immutable struct described in spec.md §9: built once at startup (by the
// CLI adapter or any other embedder) and passed by value into the engine
// context, never consulted as process-wide global state afterward.
package config

import "time"

// PolarityMode controls which phase an unassigned variable is decided to
// first, per spec.md §4.2.
type PolarityMode uint8

const (
	PolarityStored PolarityMode = iota // "last-stored-value"
	PolarityTrue
	PolarityFalse
	PolarityRandom
)

// RestartSchedule selects the restart sequence generator.
type RestartSchedule uint8

const (
	RestartLuby RestartSchedule = iota
	RestartGeometric
)

// DefinitionStrategy selects when unfounded-set search runs, per §4.5.
type DefinitionStrategy uint8

const (
	DefnAlways DefinitionStrategy = iota
	DefnAdaptive
	DefnLazy
)

// DefinitionSemantics selects well-founded vs stable interpretation of
// inductive definitions, per §4.5 and the --idsem flag.
type DefinitionSemantics uint8

const (
	SemanticsWellFounded DefinitionSemantics = iota
	SemanticsStable
)

// UnfoundedSetAlgo selects the unfounded-set search strategy, per the
// --ufsalgo flag documented in SPEC_FULL.md §4.
type UnfoundedSetAlgo uint8

const (
	UFSDepthFirst UnfoundedSetAlgo = iota
	UFSBreadthFirst
)

// AggregateSaving selects how much partial-watch propagator state survives
// backtracking, per the --aggsaving flag documented in SPEC_FULL.md §4.
// Only AggSaveNone changes behaviour: it clears the watch partition on
// every rebuild and on backtrack. AggSaveBounds and AggSaveWatches both
// keep the partition and behave identically; optim/pess are recomputed on
// every assignment in all three modes.
type AggregateSaving uint8

const (
	AggSaveNone     AggregateSaving = iota // 0: recompute from scratch
	AggSaveBounds                          // 1: keep the watch partition
	AggSaveWatches                         // 2: keep the watch partition (same as 1)
)

// Config is the engine-wide, immutable set of tunables. A zero Config is
// not valid; use Default() as a starting point.
type Config struct {
	// SAT driver.
	Polarity        PolarityMode
	VarDecay        float64
	ClauseDecay     float64
	RandomFreq      float64 // probability of a random decision, in [0,1]
	RandomSeed      int64
	Restart         RestartSchedule
	MaxLearnt       int
	NumModels       int // 0 = all models

	// Aggregate engine.
	ToCNF       bool
	AggSaving   AggregateSaving

	// Inductive-definition engine.
	DefnStrategy DefinitionStrategy
	DefnSemantics DefinitionSemantics
	UFSAlgo      UnfoundedSetAlgo
	// ChoiceAuxiliariesDecidable resolves spec.md §9's open question on
	// lparse ASP choice-rule auxiliaries; default false ("not decidable"),
	// matching the original's --lazy default.
	ChoiceAuxiliariesDecidable bool

	// Reporting.
	Verbosity int

	// Resource limits / cancellation.
	Timeout time.Duration
}

// Default returns the engine's out-of-the-box configuration, matching the
// defaults implied by spec.md §6's CLI surface.
func Default() Config {
	return Config{
		Polarity:      PolarityStored,
		VarDecay:      0.95,
		ClauseDecay:   0.999,
		RandomFreq:    0,
		RandomSeed:    1,
		Restart:       RestartLuby,
		MaxLearnt:     -1,
		NumModels:     1,
		ToCNF:         false,
		AggSaving:     AggSaveBounds,
		DefnStrategy:  DefnAdaptive,
		DefnSemantics: SemanticsWellFounded,
		UFSAlgo:       UFSDepthFirst,
		Verbosity:     0,
	}
}
