package sat

import "github.com/cespare/ecnf/internal/trail"

// varHeap is the VSIDS activity-ordered max-heap of currently-unassigned
// atoms. It generalizes the teacher's litHeap (saturday.go), which
// ordered literals by watch-list size; here atoms are ordered by
// activity score, the standard VSIDS heuristic.
type varHeap struct {
	activity *[]float64
	items    []trail.Atom
	pos      []int // atom -> index in items, or -1
}

func newVarHeap(activity *[]float64) *varHeap {
	return &varHeap{activity: activity}
}

func (h *varHeap) ensure(n int) {
	for len(h.pos) < n {
		h.pos = append(h.pos, -1)
	}
}

func (h *varHeap) Len() int { return len(h.items) }

func (h *varHeap) Less(i, j int) bool {
	act := *h.activity
	return act[h.items[i]] > act[h.items[j]]
}

func (h *varHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.pos[h.items[i]] = i
	h.pos[h.items[j]] = j
}

func (h *varHeap) Push(x interface{}) {
	a := x.(trail.Atom)
	h.ensure(int(a) + 1)
	h.pos[a] = len(h.items)
	h.items = append(h.items, a)
}

func (h *varHeap) Pop() interface{} {
	a := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	h.pos[a] = -1
	return a
}

func (h *varHeap) contains(a trail.Atom) bool {
	return int(a) < len(h.pos) && h.pos[a] != -1
}

func (h *varHeap) indexOf(a trail.Atom) int { return h.pos[a] }
