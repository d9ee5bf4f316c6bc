// Package broadphase implements a sweep-and-prune broad phase with temporal
// coherence for rigid-body collision detection.
//
// The broad phase keeps a persistent list of (identity, AABB) intervals along
// one sweep axis. Every step it reconciles that list with the live collider
// population, repairs the order with an insertion sort (near O(n) when bodies
// move little between steps) and sweeps once to collect every pair whose
// boxes overlap on all axes. Pairs are a conservative superset of touching
// bodies; exact geometry is the narrow phase's job.
//
// A BroadPhase is not safe for concurrent use. The pair slice returned by
// Step is reused by the next Step, so consumers must finish reading it first.
//
// Origin: Baraff & Witkin (SIGGRAPH 1992); Bullet Physics (2003)
package broadphase

import (
	"fmt"

	"broadphase/internal/geom"

	"golang.org/x/exp/constraints"
)

// Entry is one body's interval: its identity and the AABB snapshot taken at
// the last refresh.
type Entry[ID constraints.Ordered] struct {
	ID   ID
	AABB geom.AABB
}

// Pair is an unordered pair of body identities whose AABBs overlap.
// A is the entry found first in sweep order.
type Pair[ID constraints.Ordered] struct {
	A ID `json:"a"`
	B ID `json:"b"`
}

// Canonical returns the pair with A <= B, for comparing pair sets.
func (p Pair[ID]) Canonical() Pair[ID] {
	if p.B < p.A {
		return Pair[ID]{A: p.B, B: p.A}
	}
	return p
}

// Has reports whether id is one of the pair's members.
func (p Pair[ID]) Has(id ID) bool {
	return p.A == id || p.B == id
}

// Source resolves a body identity to its current AABB.
type Source[ID constraints.Ordered] interface {
	AABB(id ID) (geom.AABB, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc[ID constraints.Ordered] func(id ID) (geom.AABB, bool)

// AABB calls f(id).
func (f SourceFunc[ID]) AABB(id ID) (geom.AABB, bool) { return f(id) }

// Update carries one step's view of the collider population.
//
// Removed holds identities whose collider disappeared since the previous
// step. Source must resolve every identity still held after Removed is
// applied. Added holds colliders first observed this step.
type Update[ID constraints.Ordered] struct {
	Removed map[ID]struct{}
	Source  Source[ID]
	Added   []Entry[ID]
}

// Config selects the build and the sweep axis.
type Config struct {
	Dims     geom.Dims // Planar tests x,y; Spatial tests x,y,z
	Axis     geom.Axis // Sweep and sort axis
	Capacity int       // Preallocation hint for entries and pairs
}

// DefaultConfig returns a planar build sweeping along x.
func DefaultConfig() Config {
	return Config{
		Dims:     geom.Planar,
		Axis:     geom.AxisX,
		Capacity: 64,
	}
}

// Validate reports whether the build and axis are consistent.
func (c Config) Validate() error {
	if !c.Dims.Valid() {
		return fmt.Errorf("invalid dims %d (want 2 or 3)", int(c.Dims))
	}
	if !c.Dims.Has(c.Axis) {
		return fmt.Errorf("sweep axis %s not in a %d-axis build", c.Axis, int(c.Dims))
	}
	if c.Capacity < 0 {
		return fmt.Errorf("negative capacity %d", c.Capacity)
	}
	return nil
}

// Stats describes the work done by the last Step.
type Stats struct {
	Entries  int `json:"entries"`  // Intervals held after the step
	Removed  int `json:"removed"`  // Intervals dropped
	Appended int `json:"appended"` // Intervals added
	Shifts   int `json:"shifts"`   // Insertion-sort element moves (inversions repaired)
	Tests    int `json:"tests"`    // Pairs that survived the sweep-axis prune and were tested
	Pairs    int `json:"pairs"`    // Candidate pairs emitted
}

// BroadPhase owns the interval list and the candidate pair set.
type BroadPhase[ID constraints.Ordered] struct {
	cfg    Config
	others []geom.Axis
	store  intervals[ID]
	pairs  []Pair[ID]
	stats  Stats
	steps  uint64
}

// New creates a broad phase. It panics if cfg is invalid; callers building
// cfg from user input should call cfg.Validate first.
func New[ID constraints.Ordered](cfg Config) *BroadPhase[ID] {
	if err := cfg.Validate(); err != nil {
		panic("broadphase: " + err.Error())
	}
	return &BroadPhase[ID]{
		cfg:    cfg,
		others: cfg.Dims.Others(cfg.Axis),
		store:  intervals[ID]{entries: make([]Entry[ID], 0, cfg.Capacity)},
		pairs:  make([]Pair[ID], 0, cfg.Capacity),
	}
}

// Step runs one broad-phase pass: remove, refresh, append, sort, sweep.
// The stages always run in that order and to completion.
//
// The returned slice replaces the previous step's pairs and is reused by the
// next call. It panics if u.Source cannot resolve a held identity.
func (bp *BroadPhase[ID]) Step(u Update[ID]) []Pair[ID] {
	var st Stats

	st.Removed = bp.store.remove(u.Removed)
	if len(bp.store.entries) > 0 {
		if u.Source == nil {
			panic("broadphase: Step with held intervals and nil Source")
		}
		bp.store.refresh(u.Source)
	}
	st.Appended = bp.store.add(u.Added)

	st.Shifts = insertionSort(bp.store.entries, bp.cfg.Axis)

	bp.pairs, st.Tests = sweep(bp.store.entries, bp.cfg.Axis, bp.others, bp.pairs)

	st.Entries = len(bp.store.entries)
	st.Pairs = len(bp.pairs)
	bp.stats = st
	bp.steps++

	return bp.pairs
}

// Pairs returns the candidate pairs of the last Step. The slice is owned by
// the broad phase and valid until the next Step.
func (bp *BroadPhase[ID]) Pairs() []Pair[ID] {
	return bp.pairs
}

// Stats returns the statistics of the last Step.
func (bp *BroadPhase[ID]) Stats() Stats {
	return bp.stats
}

// Steps returns how many times Step has run.
func (bp *BroadPhase[ID]) Steps() uint64 {
	return bp.steps
}

// Len returns the number of intervals held.
func (bp *BroadPhase[ID]) Len() int {
	return len(bp.store.entries)
}

// Entries returns a copy of the interval list in its current order.
func (bp *BroadPhase[ID]) Entries() []Entry[ID] {
	out := make([]Entry[ID], len(bp.store.entries))
	copy(out, bp.store.entries)
	return out
}

// Sorted reports whether the interval list is ordered on the sweep axis.
// It holds after every Step.
func (bp *BroadPhase[ID]) Sorted() bool {
	return isSorted(bp.store.entries, bp.cfg.Axis)
}

// Config returns the configuration the broad phase was built with.
func (bp *BroadPhase[ID]) Config() Config {
	return bp.cfg
}
