package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"broadphase/internal/broadphase"
	"broadphase/internal/collider"
	"broadphase/internal/geom"

	"github.com/go-gl/mathgl/mgl64"
)

// BodySnapshot is an immutable copy of a body for rendering and the API.
type BodySnapshot struct {
	ID       collider.ID `json:"id"`
	Shape    string      `json:"shape"`
	Position mgl64.Vec3  `json:"position"`
	AABB     geom.AABB   `json:"aabb"`
}

// Snapshot is a complete immutable view of one step.
// Pairs are copied out of the broad phase, so a Snapshot stays valid after
// later steps.
type Snapshot struct {
	Sequence     uint64                         `json:"sequence"`
	Tick         uint64                         `json:"tick"`
	Timestamp    time.Time                      `json:"timestamp"`
	Dims         geom.Dims                      `json:"dims"`
	Axis         string                         `json:"axis"`
	Bounds       geom.AABB                      `json:"bounds"`
	Bodies       []BodySnapshot                 `json:"bodies"`
	Pairs        []broadphase.Pair[collider.ID] `json:"pairs"`
	Stats        broadphase.Stats               `json:"stats"`
	StepDuration time.Duration                  `json:"stepDurationNs"`
	Skipped      bool                           `json:"skipped"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Bodies = append([]BodySnapshot(nil), s.Bodies...)
	c.Pairs = append([]broadphase.Pair[collider.ID](nil), s.Pairs...)
	return &c
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering: the producer fills a slot that is never the
// published one, then publishes it under a short write lock. Readers clone
// the published slot under a read lock.
type SnapshotPool struct {
	mu        sync.RWMutex
	snapshots [3]Snapshot
	writeIdx  uint32 // producer only
	readIdx   uint32 // guarded by mu
	sequence  uint64 // atomic
}

// NewSnapshotPool creates a pool with slices sized for capacity bodies.
func NewSnapshotPool(capacity int) *SnapshotPool {
	pool := &SnapshotPool{}
	for i := 0; i < 3; i++ {
		pool.snapshots[i] = Snapshot{
			Bodies: make([]BodySnapshot, 0, capacity),
			Pairs:  make([]broadphase.Pair[collider.ID], 0, capacity),
		}
	}
	return pool
}

// AcquireWrite gets the next write slot (producer only, called from the tick).
// Returns a snapshot with reset slices but preserved capacity.
func (p *SnapshotPool) AcquireWrite() *Snapshot {
	p.mu.RLock()
	read := p.readIdx
	p.mu.RUnlock()

	idx := (p.writeIdx + 1) % 3
	if idx == read {
		idx = (idx + 1) % 3
	}
	p.writeIdx = idx

	snap := &p.snapshots[idx]
	snap.Bodies = snap.Bodies[:0]
	snap.Pairs = snap.Pairs[:0]
	snap.Stats = broadphase.Stats{}
	snap.Skipped = false

	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()

	return snap
}

// PublishWrite makes the last acquired slot the readable one.
func (p *SnapshotPool) PublishWrite() {
	p.mu.Lock()
	p.readIdx = p.writeIdx
	p.mu.Unlock()
}

// Latest returns a copy of the most recently published snapshot.
// Before the first publish it is an empty snapshot with Sequence 0.
func (p *SnapshotPool) Latest() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshots[p.readIdx].Clone()
}
