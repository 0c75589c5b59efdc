package id

import "github.com/cespare/ecnf/internal/trail"

// computeSCC runs Tarjan's algorithm once over the positive dependency
// graph (an edge head -> a for every positive body literal referencing a
// defined atom a). original_source/solvers/IDSolver.cpp splits this into a
// mixed-graph `visitFull` pass and a positive-edge `visit` pass; here the
// only step before Tarjan is marking which atoms have a rule. Returned scc is 1-based per atom (0 meaning
// "not part of any positive loop"); posLoops marks which component ids
// contain at least one positive cycle.
func computeSCC(rules map[trail.Atom]*Rule) ([]int, map[int]bool) {
	maxAtom := trail.Atom(0)
	for a, r := range rules {
		if a > maxAtom {
			maxAtom = a
		}
		for _, l := range r.Body {
			if l.Atom() > maxAtom {
				maxAtom = l.Atom()
			}
		}
	}
	n := int(maxAtom) + 1

	// Mark every atom that has a rule; the positive-edge walk below
	// follows only edges into such defined atoms.
	defined := make([]bool, n)
	for a := range rules {
		defined[a] = true
	}

	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	visited := make([]bool, n)
	var stack []trail.Atom
	counter := 0
	sccOf := make([]int, n)
	nextComp := 1
	posLoops := make(map[int]bool)

	posEdges := func(a trail.Atom) []trail.Atom {
		r := rules[a]
		if r == nil {
			return nil
		}
		var out []trail.Atom
		for _, l := range r.Body {
			if !l.Negated() && defined[l.Atom()] {
				out = append(out, l.Atom())
			}
		}
		return out
	}

	var strongconnect func(v trail.Atom)
	strongconnect = func(v trail.Atom) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true
		visited[v] = true

		for _, w := range posEdges(v) {
			if !visited[w] {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			comp := nextComp
			nextComp++
			size := 0
			selfLoop := false
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				sccOf[w] = comp
				size++
				if w == v {
					break
				}
			}
			for _, w := range posEdges(v) {
				if sccOf[w] == comp {
					selfLoop = true
				}
			}
			if size > 1 || selfLoop {
				posLoops[comp] = true
			}
		}
	}

	// Tarjan restricted to the positive subgraph.
	for a := range rules {
		if !visited[a] {
			strongconnect(a)
		}
	}

	// Components with no positive cycle are reported as 0 (NonDef-like,
	// per IDSolver.h's "scc is zero iff defType[v]==NONDEF" convention,
	// generalized here to "no positive loop").
	scc := make([]int, n)
	for a := range rules {
		if posLoops[sccOf[a]] {
			scc[a] = sccOf[a]
		}
	}
	return scc, posLoops
}

// findUnsupportedCycle performs the well-founded bottom-up recheck of
// spec.md §4.5 once the trail is total: build the maximal candidate set of
// currently-true, positive-loop atoms, then prune away every member that
// has external support, exactly like searchUnfounded but scanning the
// whole positive-loop universe instead of a single component.
func findUnsupportedCycle(tr *trail.Trail, rules map[trail.Atom]*Rule) map[trail.Atom]bool {
	scc, posLoops := computeSCC(rules)
	candidate := make(map[trail.Atom]bool)
	for a := range rules {
		if int(a) < len(scc) && scc[a] != 0 && posLoops[scc[a]] && tr.Value(trail.NewLiteral(a, false)) == trail.True {
			candidate[a] = true
		}
	}
	if len(candidate) == 0 {
		return nil
	}

	for {
		changed := false
		for head := range candidate {
			r := rules[head]
			supported := false
			for _, l := range r.Body {
				if tr.Value(l) != trail.True {
					continue
				}
				if l.Negated() || !candidate[l.Atom()] {
					supported = true
					break
				}
			}
			if supported {
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
	return candidate
}
