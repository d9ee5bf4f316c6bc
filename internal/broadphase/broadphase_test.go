package broadphase

import (
	"fmt"
	"math/rand"
	"testing"

	"broadphase/internal/geom"
)

// boxes is a map-backed Source used as the collider stand-in in tests.
type boxes map[uint32]geom.AABB

func (b boxes) AABB(id uint32) (geom.AABB, bool) {
	box, ok := b[id]
	return box, ok
}

func (b boxes) entries(ids ...uint32) []Entry[uint32] {
	out := make([]Entry[uint32], 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry[uint32]{ID: id, AABB: b[id]})
	}
	return out
}

func pairSet(pairs []Pair[uint32]) map[Pair[uint32]]int {
	set := make(map[Pair[uint32]]int, len(pairs))
	for _, p := range pairs {
		set[p.Canonical()]++
	}
	return set
}

// bruteForce returns every overlapping pair of src, canonicalized.
func bruteForce(src boxes, dims geom.Dims) map[Pair[uint32]]int {
	ids := make([]uint32, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	set := make(map[Pair[uint32]]int)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if src[ids[i]].Overlaps(src[ids[j]], dims) {
				set[Pair[uint32]{A: ids[i], B: ids[j]}.Canonical()]++
			}
		}
	}
	return set
}

func randomBoxes(rng *rand.Rand, n int, dims geom.Dims, world, maxSize float64) boxes {
	src := make(boxes, n)
	for i := 0; i < n; i++ {
		var lo, size [3]float64
		for a := 0; a < int(dims); a++ {
			lo[a] = rng.Float64() * world
			size[a] = rng.Float64() * maxSize
		}
		src[uint32(i)] = geom.NewAABB3(lo[0], lo[1], lo[2], lo[0]+size[0], lo[1]+size[1], lo[2]+size[2])
	}
	return src
}

func allIDs(src boxes) []uint32 {
	ids := make([]uint32, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	return ids
}

// TestThreeBodyScenario checks the planar A/B/C example.
func TestThreeBodyScenario(t *testing.T) {
	const a, b, c = 1, 2, 3
	src := boxes{
		a: geom.NewAABB2(0, 0, 10, 10),
		b: geom.NewAABB2(5, 5, 15, 15),
		c: geom.NewAABB2(20, 20, 30, 30),
	}

	bp := New[uint32](DefaultConfig())
	pairs := bp.Step(Update[uint32]{Source: src, Added: src.entries(c, b, a)})

	if len(pairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d: %v", len(pairs), pairs)
	}
	if got := pairs[0].Canonical(); got != (Pair[uint32]{A: a, B: b}) {
		t.Errorf("Expected pair {1,2}, got %v", got)
	}
}

// TestTouchingBoxesOverlap checks closed-interval semantics on every axis.
func TestTouchingBoxesOverlap(t *testing.T) {
	tests := []struct {
		name string
		dims geom.Dims
		a, b geom.AABB
	}{
		{"planar", geom.Planar, geom.NewAABB2(0, 0, 10, 10), geom.NewAABB2(10, 10, 20, 20)},
		{"spatial", geom.Spatial, geom.NewAABB3(0, 0, 0, 10, 10, 10), geom.NewAABB3(10, 10, 10, 20, 20, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := boxes{1: tt.a, 2: tt.b}
			bp := New[uint32](Config{Dims: tt.dims, Axis: geom.AxisX})
			pairs := bp.Step(Update[uint32]{Source: src, Added: src.entries(1, 2)})
			if len(pairs) != 1 {
				t.Errorf("Expected touching boxes to pair, got %v", pairs)
			}
		})
	}
}

func TestEmptyAndSingle(t *testing.T) {
	bp := New[uint32](DefaultConfig())

	if pairs := bp.Step(Update[uint32]{}); len(pairs) != 0 {
		t.Errorf("Expected no pairs for empty population, got %v", pairs)
	}

	src := boxes{7: geom.NewAABB2(0, 0, 1, 1)}
	if pairs := bp.Step(Update[uint32]{Source: src, Added: src.entries(7)}); len(pairs) != 0 {
		t.Errorf("Expected no pairs for a single body, got %v", pairs)
	}
	if bp.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", bp.Len())
	}
}

// TestSecondaryAxisMissDoesNotStopSweep guards against breaking on a y miss.
func TestSecondaryAxisMissDoesNotStopSweep(t *testing.T) {
	src := boxes{
		1: geom.NewAABB2(0, 0, 100, 10),  // wide on x
		2: geom.NewAABB2(10, 50, 20, 60), // overlaps 1 on x only
		3: geom.NewAABB2(30, 0, 40, 10),  // overlaps 1 on x and y
	}
	bp := New[uint32](DefaultConfig())
	set := pairSet(bp.Step(Update[uint32]{Source: src, Added: src.entries(1, 2, 3)}))

	if set[Pair[uint32]{A: 1, B: 3}] != 1 {
		t.Errorf("Expected pair {1,3} after a y miss on {1,2}, got %v", set)
	}
	if len(set) != 1 {
		t.Errorf("Expected exactly 1 pair, got %v", set)
	}
}

// TestMatchesBruteForce checks soundness, uniqueness and no self-pairs on
// random populations for both builds and every sweep axis.
func TestMatchesBruteForce(t *testing.T) {
	tests := []struct {
		dims geom.Dims
		axis geom.Axis
	}{
		{geom.Planar, geom.AxisX},
		{geom.Planar, geom.AxisY},
		{geom.Spatial, geom.AxisX},
		{geom.Spatial, geom.AxisY},
		{geom.Spatial, geom.AxisZ},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dd-%s", tt.dims, tt.axis), func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			for round := 0; round < 20; round++ {
				src := randomBoxes(rng, 150, tt.dims, 500, 60)
				bp := New[uint32](Config{Dims: tt.dims, Axis: tt.axis})
				pairs := bp.Step(Update[uint32]{Source: src, Added: src.entries(allIDs(src)...)})

				for _, p := range pairs {
					if p.A == p.B {
						t.Fatalf("Self pair %v", p)
					}
				}
				got := pairSet(pairs)
				for p, n := range got {
					if n != 1 {
						t.Fatalf("Pair %v emitted %d times", p, n)
					}
				}
				want := bruteForce(src, tt.dims)
				if len(got) != len(want) {
					t.Fatalf("Round %d: expected %d pairs, got %d", round, len(want), len(got))
				}
				for p := range want {
					if got[p] == 0 {
						t.Fatalf("Round %d: missing pair %v", round, p)
					}
				}
			}
		})
	}
}

// TestCoherentMotion moves bodies a little each step and checks every step
// against the brute-force reference, including the sort invariant.
func TestCoherentMotion(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	src := randomBoxes(rng, 200, geom.Planar, 1000, 40)
	bp := New[uint32](DefaultConfig())

	bp.Step(Update[uint32]{Source: src, Added: src.entries(allIDs(src)...)})

	for step := 0; step < 50; step++ {
		for id, box := range src {
			dx := (rng.Float64() - 0.5) * 8
			dy := (rng.Float64() - 0.5) * 8
			box.Min[0] += dx
			box.Max[0] += dx
			box.Min[1] += dy
			box.Max[1] += dy
			src[id] = box
		}

		got := pairSet(bp.Step(Update[uint32]{Source: src}))
		if !bp.Sorted() {
			t.Fatalf("Step %d: interval list not sorted", step)
		}
		want := bruteForce(src, geom.Planar)
		if len(got) != len(want) {
			t.Fatalf("Step %d: expected %d pairs, got %d", step, len(want), len(got))
		}
		for p := range want {
			if got[p] == 0 {
				t.Fatalf("Step %d: missing pair %v", step, p)
			}
		}
	}
}

func TestRemovedBodyNeverPairs(t *testing.T) {
	src := boxes{
		1: geom.NewAABB2(0, 0, 10, 10),
		2: geom.NewAABB2(5, 5, 15, 15),
		3: geom.NewAABB2(8, 8, 12, 12),
	}
	bp := New[uint32](DefaultConfig())
	if pairs := bp.Step(Update[uint32]{Source: src, Added: src.entries(1, 2, 3)}); len(pairs) != 3 {
		t.Fatalf("Expected 3 pairs, got %v", pairs)
	}

	delete(src, 2)
	pairs := bp.Step(Update[uint32]{Removed: map[uint32]struct{}{2: {}}, Source: src})

	for _, p := range pairs {
		if p.Has(2) {
			t.Errorf("Removed body appears in pair %v", p)
		}
	}
	for _, e := range bp.Entries() {
		if e.ID == 2 {
			t.Error("Removed body still held in interval list")
		}
	}
	if len(pairs) != 1 {
		t.Errorf("Expected 1 pair after removal, got %v", pairs)
	}
	if st := bp.Stats(); st.Removed != 1 || st.Entries != 2 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestRemovePreservesOrder(t *testing.T) {
	iv := intervals[uint32]{}
	for id := uint32(0); id < 10; id++ {
		iv.add([]Entry[uint32]{{ID: id}})
	}

	n := iv.remove(map[uint32]struct{}{1: {}, 4: {}, 5: {}, 9: {}, 42: {}})
	if n != 4 {
		t.Errorf("Expected 4 removed, got %d", n)
	}

	want := []uint32{0, 2, 3, 6, 7, 8}
	if len(iv.entries) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(iv.entries))
	}
	for i, e := range iv.entries {
		if e.ID != want[i] {
			t.Errorf("Position %d: expected %d, got %d", i, want[i], e.ID)
		}
	}

	if n := iv.remove(nil); n != 0 {
		t.Errorf("Expected nil set to remove nothing, got %d", n)
	}
}

func TestRefreshPanicsOnUnknownIdentity(t *testing.T) {
	src := boxes{1: geom.NewAABB2(0, 0, 1, 1), 2: geom.NewAABB2(0, 0, 1, 1)}
	bp := New[uint32](DefaultConfig())
	bp.Step(Update[uint32]{Source: src, Added: src.entries(1, 2)})

	// Body 2 vanished from the source but was not reported as removed.
	delete(src, 2)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for an unresolvable identity")
		}
	}()
	bp.Step(Update[uint32]{Source: src})
}

func TestIdempotentUnchangedStep(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := randomBoxes(rng, 100, geom.Spatial, 200, 30)
	bp := New[uint32](Config{Dims: geom.Spatial, Axis: geom.AxisX})

	bp.Step(Update[uint32]{Source: src, Added: src.entries(allIDs(src)...)})
	first := append([]Pair[uint32](nil), bp.Pairs()...)

	second := bp.Step(Update[uint32]{Source: src})
	if bp.Stats().Shifts != 0 {
		t.Errorf("Expected no shifts on an unchanged step, got %d", bp.Stats().Shifts)
	}
	if len(first) != len(second) {
		t.Fatalf("Expected %d pairs, got %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Pair %d changed: %v -> %v", i, first[i], second[i])
		}
	}
}

func TestAppendedEntriesSortedNextPass(t *testing.T) {
	src := boxes{
		1: geom.NewAABB2(50, 0, 60, 10),
		2: geom.NewAABB2(0, 0, 10, 10),
	}
	bp := New[uint32](DefaultConfig())
	bp.Step(Update[uint32]{Source: src, Added: src.entries(1)})

	src[3] = geom.NewAABB2(-20, 0, -10, 10)
	bp.Step(Update[uint32]{Source: src, Added: src.entries(2, 3)})

	got := bp.Entries()
	want := []uint32{3, 2, 1}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
	if st := bp.Stats(); st.Appended != 2 || st.Shifts == 0 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestInsertionSortStable(t *testing.T) {
	entries := []Entry[uint32]{
		{ID: 1, AABB: geom.NewAABB2(5, 0, 6, 1)},
		{ID: 2, AABB: geom.NewAABB2(1, 0, 2, 1)},
		{ID: 3, AABB: geom.NewAABB2(5, 0, 9, 1)},
		{ID: 4, AABB: geom.NewAABB2(1, 0, 3, 1)},
		{ID: 5, AABB: geom.NewAABB2(0, 0, 1, 1)},
	}
	shifts := insertionSort(entries, geom.AxisX)

	want := []uint32{5, 2, 4, 1, 3}
	for i, e := range entries {
		if e.ID != want[i] {
			t.Fatalf("Expected order %v, got %v", want, entries)
		}
	}
	// Inversions: (1,2) (1,4) (1,5) (2,5) (3,4) (3,5) (4,5)
	if shifts != 7 {
		t.Errorf("Expected 7 shifts, got %d", shifts)
	}
	if !isSorted(entries, geom.AxisX) {
		t.Error("Entries should be sorted")
	}
}

func TestInsertionSortRandomPermutations(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 100; round++ {
		n := rng.Intn(64)
		entries := make([]Entry[uint32], n)
		for i := range entries {
			x := float64(rng.Intn(20))
			entries[i] = Entry[uint32]{ID: uint32(i), AABB: geom.NewAABB2(x, 0, x+1, 1)}
		}
		insertionSort(entries, geom.AxisX)
		for i := 1; i < n; i++ {
			prev, cur := entries[i-1], entries[i]
			if prev.AABB.Min[0] > cur.AABB.Min[0] {
				t.Fatalf("Round %d: not sorted at %d", round, i)
			}
			if prev.AABB.Min[0] == cur.AABB.Min[0] && prev.ID > cur.ID {
				t.Fatalf("Round %d: tie order not preserved at %d", round, i)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"spatial z", Config{Dims: geom.Spatial, Axis: geom.AxisZ}, false},
		{"planar z", Config{Dims: geom.Planar, Axis: geom.AxisZ}, true},
		{"bad dims", Config{Dims: 4, Axis: geom.AxisX}, true},
		{"negative capacity", Config{Dims: geom.Planar, Capacity: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}

	defer func() {
		if recover() == nil {
			t.Error("New should panic on invalid config")
		}
	}()
	New[uint32](Config{Dims: geom.Planar, Axis: geom.AxisZ})
}

func TestSourceFunc(t *testing.T) {
	src := SourceFunc[string](func(id string) (geom.AABB, bool) {
		return geom.NewAABB2(0, 0, 1, 1), id != ""
	})
	bp := New[string](DefaultConfig())
	bp.Step(Update[string]{Added: []Entry[string]{{ID: "a"}, {ID: "b"}}})
	pairs := bp.Step(Update[string]{Source: src})
	if len(pairs) != 1 || pairs[0].Canonical() != (Pair[string]{A: "a", B: "b"}) {
		t.Errorf("Expected pair {a,b}, got %v", pairs)
	}
	if bp.Steps() != 2 {
		t.Errorf("Expected 2 steps, got %d", bp.Steps())
	}
}
