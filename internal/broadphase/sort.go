package broadphase

import (
	"broadphase/internal/geom"

	"golang.org/x/exp/constraints"
)

// insertionSort orders entries by their minimum on axis, in place.
// Cost is proportional to the number of inversions, which stays small when
// bodies move little between steps. Equal keys keep their prior order.
// Returns the number of element shifts performed.
func insertionSort[ID constraints.Ordered](entries []Entry[ID], axis geom.Axis) int {
	shifts := 0
	for i := 1; i < len(entries); i++ {
		key := entries[i]
		k := key.AABB.Min[axis]
		j := i - 1
		for j >= 0 && entries[j].AABB.Min[axis] > k {
			entries[j+1] = entries[j]
			j--
		}
		if j+1 != i {
			entries[j+1] = key
			shifts += i - (j + 1)
		}
	}
	return shifts
}

// isSorted reports whether entries are non-decreasing in minimum on axis.
func isSorted[ID constraints.Ordered](entries []Entry[ID], axis geom.Axis) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i-1].AABB.Min[axis] > entries[i].AABB.Min[axis] {
			return false
		}
	}
	return true
}
