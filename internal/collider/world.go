package collider

import (
	"errors"
	"fmt"

	"broadphase/internal/geom"

	"github.com/go-gl/mathgl/mgl64"
)

// ID is a body handle. Handles are never reused within a World.
type ID uint32

// ErrUnknownBody is returned when an operation names a body that does not
// exist.
var ErrUnknownBody = errors.New("unknown body")

// Body is a rigid body's collision-relevant state.
type Body struct {
	ID       ID
	Shape    Shape
	Position mgl64.Vec3
	Velocity mgl64.Vec3
}

// World owns the live bodies and their current AABBs.
// It is not safe for concurrent use.
type World struct {
	dims   geom.Dims
	bounds geom.AABB

	bodies map[ID]*Body
	aabbs  map[ID]geom.AABB
	order  []ID // spawn order, for deterministic iteration
	nextID ID
	moved  bool
}

// NewWorld creates an empty world. Bodies bounce off bounds.
func NewWorld(dims geom.Dims, bounds geom.AABB) *World {
	return &World{
		dims:   dims,
		bounds: bounds,
		bodies: make(map[ID]*Body),
		aabbs:  make(map[ID]geom.AABB),
		nextID: 1,
	}
}

// Dims returns the world's build.
func (w *World) Dims() geom.Dims { return w.dims }

// Bounds returns the world bounds.
func (w *World) Bounds() geom.AABB { return w.bounds }

// Spawn adds a body and returns its handle.
func (w *World) Spawn(shape Shape, pos, vel mgl64.Vec3) (ID, error) {
	if err := shape.Validate(); err != nil {
		return 0, err
	}
	if w.dims == geom.Planar {
		pos[2], vel[2] = 0, 0
	}

	box := shape.AABB(pos, w.dims)
	if !box.Valid(w.dims) {
		return 0, fmt.Errorf("invalid AABB %v at position %v", box, pos)
	}

	id := w.nextID
	w.nextID++

	b := &Body{ID: id, Shape: shape, Position: pos, Velocity: vel}
	w.bodies[id] = b
	w.aabbs[id] = box
	w.order = append(w.order, id)
	return id, nil
}

// Despawn removes a body.
func (w *World) Despawn(id ID) error {
	if _, ok := w.bodies[id]; !ok {
		return ErrUnknownBody
	}
	delete(w.bodies, id)
	delete(w.aabbs, id)
	for i, o := range w.order {
		if o == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of a body.
func (w *World) Get(id ID) (Body, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return Body{}, false
	}
	return *b, true
}

// SetVelocity overrides a body's velocity.
func (w *World) SetVelocity(id ID, vel mgl64.Vec3) error {
	b, ok := w.bodies[id]
	if !ok {
		return ErrUnknownBody
	}
	if w.dims == geom.Planar {
		vel[2] = 0
	}
	b.Velocity = vel
	return nil
}

// AABB returns the body's AABB as of the last Integrate or Spawn.
func (w *World) AABB(id ID) (geom.AABB, bool) {
	box, ok := w.aabbs[id]
	return box, ok
}

// IDs returns the live handles in spawn order.
func (w *World) IDs() []ID {
	out := make([]ID, len(w.order))
	copy(out, w.order)
	return out
}

// Bodies returns copies of the live bodies in spawn order.
func (w *World) Bodies() []Body {
	out := make([]Body, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, *w.bodies[id])
	}
	return out
}

// Len returns the number of live bodies.
func (w *World) Len() int { return len(w.bodies) }

// Moved reports whether the last Integrate changed any body's position.
func (w *World) Moved() bool { return w.moved }

// Integrate advances every body by dt, reflects velocities at the world
// bounds and recomputes AABBs.
func (w *World) Integrate(dt float64) {
	w.moved = false
	for _, id := range w.order {
		b := w.bodies[id]
		if b.Velocity == (mgl64.Vec3{}) {
			continue
		}
		w.moved = true
		b.Position = b.Position.Add(b.Velocity.Mul(dt))

		half := b.Shape.half(w.dims)
		for a := 0; a < int(w.dims); a++ {
			lo := w.bounds.Min[a] + half[a]
			hi := w.bounds.Max[a] - half[a]
			if b.Position[a] < lo {
				b.Position[a] = lo
				b.Velocity[a] = -b.Velocity[a]
			} else if b.Position[a] > hi {
				b.Position[a] = hi
				b.Velocity[a] = -b.Velocity[a]
			}
		}

		w.aabbs[id] = b.Shape.AABB(b.Position, w.dims)
	}
}
