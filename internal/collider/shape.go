// Package collider stores bodies, their shapes and poses, computes each
// body's AABB every step and reports population changes to the broad phase.
package collider

import (
	"fmt"
	"math"

	"broadphase/internal/geom"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeKind selects the collider geometry.
type ShapeKind int

const (
	KindCircle ShapeKind = iota // Circle in planar worlds, sphere in spatial ones
	KindBox
)

func (k ShapeKind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindBox:
		return "box"
	}
	return fmt.Sprintf("shape(%d)", int(k))
}

// Shape is a body's collider geometry in local space.
type Shape struct {
	Kind        ShapeKind
	Radius      float64    // KindCircle
	HalfExtents mgl64.Vec3 // KindBox
}

// Circle returns a circle (or sphere) of radius r.
func Circle(r float64) Shape {
	return Shape{Kind: KindCircle, Radius: r}
}

// Box returns an axis-aligned box with the given half extents.
func Box(half mgl64.Vec3) Shape {
	return Shape{Kind: KindBox, HalfExtents: half}
}

// Validate rejects degenerate or negative geometry.
func (s Shape) Validate() error {
	switch s.Kind {
	case KindCircle:
		if !finite(s.Radius) || s.Radius <= 0 {
			return fmt.Errorf("circle radius must be positive and finite, got %g", s.Radius)
		}
	case KindBox:
		for i := 0; i < 3; i++ {
			if !finite(s.HalfExtents[i]) || s.HalfExtents[i] < 0 {
				return fmt.Errorf("box half extent %d must be non-negative and finite, got %g", i, s.HalfExtents[i])
			}
		}
	default:
		return fmt.Errorf("unknown shape kind %d", int(s.Kind))
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// half returns the shape's half extents for a build; planar builds collapse z.
func (s Shape) half(dims geom.Dims) mgl64.Vec3 {
	var h mgl64.Vec3
	switch s.Kind {
	case KindCircle:
		h = mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	case KindBox:
		h = s.HalfExtents
	}
	if dims == geom.Planar {
		h[2] = 0
	}
	return h
}

// AABB returns the shape's bounding box at pos.
func (s Shape) AABB(pos mgl64.Vec3, dims geom.Dims) geom.AABB {
	if dims == geom.Planar {
		pos[2] = 0
	}
	return geom.FromCenter(pos, s.half(dims))
}
