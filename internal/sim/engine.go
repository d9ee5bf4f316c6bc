// Package sim schedules the broad phase: it advances the collider world at a
// fixed tick rate, feeds population changes and fresh AABBs to the broad phase
// once per substep and publishes an immutable snapshot of every step.
package sim

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"broadphase/internal/broadphase"
	"broadphase/internal/collider"
	"broadphase/internal/config"
	"broadphase/internal/geom"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrBodyLimit is returned by Spawn when the world is full.
var ErrBodyLimit = errors.New("body limit reached")

// EngineConfig contains everything needed to build an Engine.
type EngineConfig struct {
	Sim        config.SimConfig
	BroadPhase broadphase.Config
	MaxBodies  int // Hard cap on live bodies (0 = 10 × initial population, at least 1000)
}

// StepResult summarizes one tick for metrics hooks.
type StepResult struct {
	Tick     uint64
	Bodies   int
	Stats    broadphase.Stats
	Duration time.Duration
	Skipped  int // Substeps skipped because nothing moved or changed
}

// Engine owns the world, the population tracker and the broad phase.
// All three are touched only under mu, so the broad phase always has a
// single writer and the pair set a single reader per step.
type Engine struct {
	mu      sync.Mutex
	cfg     EngineConfig
	world   *collider.World
	tracker *collider.Tracker
	bp      *broadphase.BroadPhase[collider.ID]

	rng       *rand.Rand
	rngSeed   int64
	churnDebt float64

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	doneChan chan struct{}

	tickCount    uint64
	skippedTotal uint64

	snapshots *SnapshotPool
	trace     *TraceLog

	// OnStep is called after every tick, outside the engine lock.
	OnStep func(StepResult)
}

// NewEngine creates an engine with an empty world.
// It panics if cfg.BroadPhase is invalid.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Sim.TickRate <= 0 {
		cfg.Sim.TickRate = config.DefaultSim().TickRate
	}
	if cfg.Sim.Substeps <= 0 {
		cfg.Sim.Substeps = 1
	}
	if cfg.MaxBodies <= 0 {
		cfg.MaxBodies = max(1000, cfg.Sim.Bodies*10)
	}
	if cfg.BroadPhase.Capacity < cfg.Sim.Bodies {
		cfg.BroadPhase.Capacity = cfg.Sim.Bodies
	}

	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	depth := cfg.Sim.WorldDepth
	if cfg.BroadPhase.Dims == geom.Planar {
		depth = 0
	}
	bounds := geom.NewAABB3(0, 0, 0, cfg.Sim.WorldWidth, cfg.Sim.WorldHeight, depth)

	return &Engine{
		cfg:       cfg,
		world:     collider.NewWorld(cfg.BroadPhase.Dims, bounds),
		tracker:   collider.NewTracker(),
		bp:        broadphase.New[collider.ID](cfg.BroadPhase),
		rng:       rand.New(rand.NewSource(seed)),
		rngSeed:   seed,
		snapshots: NewSnapshotPool(cfg.BroadPhase.Capacity),
		trace:     NewTraceLog(),
	}
}

// Populate spawns the configured initial population at random positions.
func (e *Engine) Populate() error {
	for i := 0; i < e.cfg.Sim.Bodies; i++ {
		if _, err := e.SpawnRandom(); err != nil {
			return fmt.Errorf("populate body %d: %w", i, err)
		}
	}
	log.Printf("🧱 Spawned %d bodies (%dD, sweep %s, seed %d)",
		e.cfg.Sim.Bodies, e.cfg.BroadPhase.Dims, e.cfg.BroadPhase.Axis, e.rngSeed)
	return nil
}

// Start begins the step loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true

	// New channels each run; Stop closes them.
	ticker := time.NewTicker(time.Second / time.Duration(e.cfg.Sim.TickRate))
	stop := make(chan struct{})
	done := make(chan struct{})
	e.ticker, e.stopChan, e.doneChan = ticker, stop, done
	e.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ticker.C:
				e.Tick()
			case <-stop:
				return
			}
		}
	}()

	log.Printf("⚙️ Broad phase engine started at %d TPS (%d substeps)", e.cfg.Sim.TickRate, e.cfg.Sim.Substeps)
}

// Stop stops the step loop and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	if e.ticker != nil {
		e.ticker.Stop()
	}
	close(e.stopChan)
	done := e.doneChan
	e.mu.Unlock()

	<-done
	log.Println("🛑 Broad phase engine stopped")
}

// StartTrace begins writing the step trace to path.
func (e *Engine) StartTrace(path string) error {
	return e.trace.Start(path)
}

// StopTrace flushes and closes the step trace.
func (e *Engine) StopTrace() {
	e.trace.Stop()
}

// TraceStats returns the trace log counters.
func (e *Engine) TraceStats() map[string]interface{} {
	return e.trace.GetStats()
}

// Tick advances the world by one step and runs the broad phase once per
// substep: integrate, diff the population, then Step.
func (e *Engine) Tick() {
	start := time.Now()
	dt := 1.0 / float64(e.cfg.Sim.TickRate)
	sub := dt / float64(e.cfg.Sim.Substeps)

	e.mu.Lock()

	e.churn(dt)

	skipped := 0
	var total broadphase.Stats
	for s := 0; s < e.cfg.Sim.Substeps; s++ {
		e.world.Integrate(sub)
		u := e.tracker.Update(e.world)

		// Nothing moved and nobody came or went: last step's pairs still hold.
		if e.cfg.Sim.SkipIdle && e.bp.Steps() > 0 && !e.world.Moved() &&
			len(u.Removed) == 0 && len(u.Added) == 0 {
			skipped++
			continue
		}
		e.bp.Step(u)
		addStats(&total, e.bp.Stats())
	}
	total.Entries = e.bp.Len()
	total.Pairs = len(e.bp.Pairs())

	e.tickCount++
	e.skippedTotal += uint64(skipped)
	elapsed := time.Since(start)

	res := StepResult{
		Tick:     e.tickCount,
		Bodies:   e.world.Len(),
		Stats:    total,
		Duration: elapsed,
		Skipped:  skipped,
	}
	e.produceSnapshot(res)

	e.mu.Unlock()

	stats := res.Stats
	e.trace.Emit(TraceEvent{Type: TraceStep, Tick: res.Tick, Time: start, Stats: &stats, Duration: elapsed})

	if e.OnStep != nil {
		e.OnStep(res)
	}
}

// addStats sums the per-substep work counters into total.
func addStats(total *broadphase.Stats, st broadphase.Stats) {
	total.Removed += st.Removed
	total.Appended += st.Appended
	total.Shifts += st.Shifts
	total.Tests += st.Tests
}

// churn despawns and respawns bodies at the configured rate so the broad
// phase sees removals and additions every few steps. Caller holds mu.
func (e *Engine) churn(dt float64) {
	if e.cfg.Sim.ChurnPerSecond <= 0 || e.world.Len() == 0 {
		return
	}
	e.churnDebt += e.cfg.Sim.ChurnPerSecond * dt
	for e.churnDebt >= 1 {
		e.churnDebt--

		ids := e.world.IDs()
		victim := ids[e.rng.Intn(len(ids))]
		if err := e.world.Despawn(victim); err == nil {
			e.trace.Emit(TraceEvent{Type: TraceDespawn, Tick: e.tickCount, Time: time.Now(), Body: victim})
		}
		if id, err := e.spawnRandomLocked(); err == nil {
			e.trace.Emit(TraceEvent{Type: TraceSpawn, Tick: e.tickCount, Time: time.Now(), Body: id})
		}
	}
}

// produceSnapshot copies the step into the next pool slot. Caller holds mu.
func (e *Engine) produceSnapshot(res StepResult) {
	snap := e.snapshots.AcquireWrite()
	snap.Tick = res.Tick
	snap.Dims = e.cfg.BroadPhase.Dims
	snap.Axis = e.cfg.BroadPhase.Axis.String()
	snap.Bounds = e.world.Bounds()
	snap.Stats = res.Stats
	snap.StepDuration = res.Duration
	snap.Skipped = res.Skipped == e.cfg.Sim.Substeps

	for _, b := range e.world.Bodies() {
		box, _ := e.world.AABB(b.ID)
		snap.Bodies = append(snap.Bodies, BodySnapshot{
			ID:       b.ID,
			Shape:    b.Shape.Kind.String(),
			Position: b.Position,
			AABB:     box,
		})
	}
	snap.Pairs = append(snap.Pairs, e.bp.Pairs()...)

	e.snapshots.PublishWrite()
}

// Snapshot returns a copy of the latest published step.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshots.Latest()
}

// Spawn adds a body. It enters the broad phase on the next step.
func (e *Engine) Spawn(shape collider.Shape, pos, vel mgl64.Vec3) (collider.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.world.Len() >= e.cfg.MaxBodies {
		return 0, ErrBodyLimit
	}
	id, err := e.world.Spawn(shape, pos, vel)
	if err != nil {
		return 0, err
	}
	e.trace.Emit(TraceEvent{Type: TraceSpawn, Tick: e.tickCount, Time: time.Now(), Body: id})
	return id, nil
}

// SpawnRandom adds a body with a random shape, position and velocity.
func (e *Engine) SpawnRandom() (collider.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.world.Len() >= e.cfg.MaxBodies {
		return 0, ErrBodyLimit
	}
	return e.spawnRandomLocked()
}

func (e *Engine) spawnRandomLocked() (collider.ID, error) {
	sc := e.cfg.Sim
	r := sc.MinRadius + e.rng.Float64()*(sc.MaxRadius-sc.MinRadius)

	var shape collider.Shape
	if e.rng.Intn(2) == 0 {
		shape = collider.Circle(r)
	} else {
		shape = collider.Box(mgl64.Vec3{r, r * (0.5 + e.rng.Float64()), r})
	}

	bounds := e.world.Bounds()
	var pos, vel mgl64.Vec3
	for a := 0; a < int(e.cfg.BroadPhase.Dims); a++ {
		pos[a] = bounds.Min[a] + e.rng.Float64()*(bounds.Max[a]-bounds.Min[a])
		vel[a] = (e.rng.Float64()*2 - 1) * sc.MaxSpeed
	}

	return e.world.Spawn(shape, pos, vel)
}

// Despawn removes a body. It leaves the broad phase on the next step.
func (e *Engine) Despawn(id collider.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.world.Despawn(id); err != nil {
		return fmt.Errorf("despawn %d: %w", id, err)
	}
	e.trace.Emit(TraceEvent{Type: TraceDespawn, Tick: e.tickCount, Time: time.Now(), Body: id})
	return nil
}

// SetVelocity changes a body's velocity from the next step on.
func (e *Engine) SetVelocity(id collider.ID, vel mgl64.Vec3) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.world.SetVelocity(id, vel); err != nil {
		return fmt.Errorf("set velocity %d: %w", id, err)
	}
	return nil
}

// Body returns a copy of a live body.
func (e *Engine) Body(id collider.ID) (collider.Body, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Get(id)
}

// Bodies returns copies of the live bodies in spawn order.
func (e *Engine) Bodies() []collider.Body {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Bodies()
}

// BodyCount returns the number of live bodies.
func (e *Engine) BodyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Len()
}

// MaxBodies returns the body cap.
func (e *Engine) MaxBodies() int {
	return e.cfg.MaxBodies
}

// Config returns the engine configuration after defaults were applied.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Seed returns the RNG seed in use, for reproducing a run.
func (e *Engine) Seed() int64 {
	return e.rngSeed
}

// Skipped returns how many substeps were skipped as idle since start.
func (e *Engine) Skipped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skippedTotal
}
