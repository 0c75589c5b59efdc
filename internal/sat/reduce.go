package sat

import (
	"sort"

	"github.com/cespare/ecnf/internal/trail"
)

// reduceLearnts compacts the learnt-clause database when it exceeds the
// configured cap, keeping the most active clauses and never dropping a
// clause currently serving as a reason on the trail (it cannot be
// dropped without leaving a dangling explanation), per spec.md §4.2's
// "periodic reduction bounded by a configurable learnt-clause cap".
func (d *Driver) reduceLearnts() {
	if d.cfg.MaxLearnt < 0 || len(d.learnts) <= d.cfg.MaxLearnt {
		return
	}
	locked := make(map[*trail.Clause]bool)
	for a := 1; a < d.Tr.NumAtoms(); a++ {
		atom := trail.Atom(a)
		if d.Tr.AtomValue(atom) == trail.Undef {
			continue
		}
		r := d.Tr.ReasonOf(atom)
		if r.Kind == trail.ReasonClause && r.Clause.Learnt {
			locked[r.Clause] = true
		}
	}

	sort.Slice(d.learnts, func(i, j int) bool {
		li, lj := d.learnts[i], d.learnts[j]
		if locked[li] != locked[lj] {
			return locked[li] // locked clauses sort first, are never dropped
		}
		return li.Activity > lj.Activity
	})

	keep := d.cfg.MaxLearnt
	if keep < len(locked) {
		keep = len(locked)
	}
	if keep >= len(d.learnts) {
		return
	}
	dropped := d.learnts[keep:]
	d.learnts = d.learnts[:keep:keep]
	for _, c := range dropped {
		d.unwatch(c)
	}
	d.Stats.LearntsReduced += int64(len(dropped))
}

func (d *Driver) unwatch(c *trail.Clause) {
	if len(c.Lits) < 2 {
		return
	}
	d.watchers[c.Lits[0]] = removeClause(d.watchers[c.Lits[0]], c)
	d.watchers[c.Lits[1]] = removeClause(d.watchers[c.Lits[1]], c)
}

func removeClause(list []*trail.Clause, c *trail.Clause) []*trail.Clause {
	for i, x := range list {
		if x == c {
			list[i] = list[len(list)-1]
			return list[:len(list)-1]
		}
	}
	return list
}
