package modal

import "github.com/cespare/ecnf/internal/trail"

// Registry is the single trail.EngineModal Propagator registered on a
// parent driver via sat.Driver.RegisterEngine: RegisterEngine keeps only
// one Propagator per EngineTag, but a node commonly has several children,
// each minting its own upward-assignment tokens. Registry hands out
// globally-unique tokens across all of a parent's children and remembers
// which Node minted each one, so conflict analysis's reasonClauseFor can
// still resolve any of them through one registered Propagator.
type Registry struct {
	tr        *trail.Trail
	nextToken uint64
	owners    map[uint64]*Node
}

// NewRegistry builds a registry for the given parent's trail. Every Node
// whose Parent's core uses tr must share this same Registry so their
// tokens don't collide.
func NewRegistry(tr *trail.Trail) *Registry {
	return &Registry{tr: tr, owners: make(map[uint64]*Node)}
}

func (r *Registry) mint(owner *Node) uint64 {
	token := r.nextToken
	r.nextToken++
	r.owners[token] = owner
	return token
}

func (r *Registry) Kind() trail.EngineTag { return trail.EngineModal }

func (r *Registry) OnAssign(trail.Literal) *trail.Clause { return nil }

func (r *Registry) OnNewDecisionLevel() {}

func (r *Registry) OnBacktrack(int) {}

func (r *Registry) OnFullAssignment() *trail.Clause { return nil }

// Explain routes a theory-propagated atom back to whichever Node minted
// the token recorded on its reason.
func (r *Registry) Explain(a trail.Atom) *trail.Clause {
	token := r.tr.ReasonOf(a).Token
	owner, ok := r.owners[token]
	if !ok {
		return &trail.Clause{}
	}
	return owner.explainToken(token, a)
}
