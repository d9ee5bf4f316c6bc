package collider

import "broadphase/internal/broadphase"

// Tracker observes the live population between steps and reports the set
// difference: handles that disappeared and handles seen for the first time.
type Tracker struct {
	prev map[ID]struct{}
	next map[ID]struct{}
}

// NewTracker returns a tracker that has seen no bodies.
func NewTracker() *Tracker {
	return &Tracker{
		prev: make(map[ID]struct{}),
		next: make(map[ID]struct{}),
	}
}

// Diff compares live with the population passed to the previous call.
// added keeps the order of live.
func (t *Tracker) Diff(live []ID) (removed map[ID]struct{}, added []ID) {
	clear(t.next)
	for _, id := range live {
		t.next[id] = struct{}{}
		if _, seen := t.prev[id]; !seen {
			added = append(added, id)
		}
	}
	for id := range t.prev {
		if _, alive := t.next[id]; !alive {
			if removed == nil {
				removed = make(map[ID]struct{})
			}
			removed[id] = struct{}{}
		}
	}
	t.prev, t.next = t.next, t.prev
	return removed, added
}

// Known returns how many bodies the tracker saw in the last Diff.
func (t *Tracker) Known() int { return len(t.prev) }

// Update diffs the world's population and packages it for the broad phase,
// with the world as the AABB source.
func (t *Tracker) Update(w *World) broadphase.Update[ID] {
	removed, added := t.Diff(w.order)

	entries := make([]broadphase.Entry[ID], 0, len(added))
	for _, id := range added {
		entries = append(entries, broadphase.Entry[ID]{ID: id, AABB: w.aabbs[id]})
	}

	return broadphase.Update[ID]{
		Removed: removed,
		Source:  w,
		Added:   entries,
	}
}
