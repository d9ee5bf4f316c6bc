package broadphase

import (
	"broadphase/internal/geom"

	"golang.org/x/exp/constraints"
)

// sweep appends to out[:0] every pair of entries whose boxes overlap on the
// sweep axis and on all of others. entries must be sorted by minimum on axis.
// Returns the pairs and the number of pair tests performed.
func sweep[ID constraints.Ordered](entries []Entry[ID], axis geom.Axis, others []geom.Axis, out []Pair[ID]) ([]Pair[ID], int) {
	out = out[:0]
	tests := 0

	for i := range entries {
		a := &entries[i]
		maxA := a.AABB.Max[axis]

	scan:
		for j := i + 1; j < len(entries); j++ {
			b := &entries[j]

			// Sorted by minimum: nothing further can reach a on this axis.
			if b.AABB.Min[axis] > maxA {
				break
			}
			tests++

			for _, ax := range others {
				if a.AABB.Min[ax] > b.AABB.Max[ax] || a.AABB.Max[ax] < b.AABB.Min[ax] {
					continue scan
				}
			}

			out = append(out, Pair[ID]{A: a.ID, B: b.ID})
		}
	}

	return out, tests
}
