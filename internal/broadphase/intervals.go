package broadphase

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// intervals is the working set of (identity, AABB) entries kept in
// near-sorted order along the sweep axis. It persists across steps so the
// sorter only has to repair what moved.
type intervals[ID constraints.Ordered] struct {
	entries []Entry[ID]
}

// remove drops every entry whose identity is in set, keeping the relative
// order of the survivors. Identities not present are ignored.
func (iv *intervals[ID]) remove(set map[ID]struct{}) int {
	if len(set) == 0 {
		return 0
	}
	kept := iv.entries[:0]
	for _, e := range iv.entries {
		if _, gone := set[e.ID]; gone {
			continue
		}
		kept = append(kept, e)
	}
	n := len(iv.entries) - len(kept)
	clear(iv.entries[len(kept):])
	iv.entries = kept
	return n
}

// refresh overwrites every entry's AABB with the current one from src.
// Every held identity must resolve; removal must already have happened.
func (iv *intervals[ID]) refresh(src Source[ID]) {
	for i := range iv.entries {
		box, ok := src.AABB(iv.entries[i].ID)
		if !ok {
			panic(fmt.Sprintf("broadphase: no AABB for held identity %v (removed out of order?)", iv.entries[i].ID))
		}
		iv.entries[i].AABB = box
	}
}

// add appends new entries at the end, unsorted. The next sort pass places
// them.
func (iv *intervals[ID]) add(es []Entry[ID]) int {
	iv.entries = append(iv.entries, es...)
	return len(es)
}
