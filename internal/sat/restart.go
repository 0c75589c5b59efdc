package sat

// lubyState generates successive terms of the Luby restart sequence
// 1,1,2,1,1,2,4,1,1,2,1,1,2,4,8,... used when config.RestartLuby is
// selected (spec.md §4.2). The recurrence follows the standard
// MiniSat-style formulation.
type lubyState struct {
	i int64
}

func newLubyState() lubyState { return lubyState{} }

func luby(i int64) int64 {
	k := int64(1)
	for k < i+1 {
		k = 2*k + 1
	}
	if k == i+1 {
		return (k + 1) / 2
	}
	return luby(i - k/2)
}

// next returns the next value in the sequence and advances the state.
func (l *lubyState) next() int64 {
	v := luby(l.i)
	l.i++
	return v
}
