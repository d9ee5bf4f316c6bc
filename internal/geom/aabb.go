// Package geom provides the axis-aligned bounding box value type shared by
// the collider collaborator and the broad phase.
//
// Planar builds use the x and y components of each vector; spatial builds use
// all three. The z component of a planar AABB is ignored by every overlap test.
package geom

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Axis identifies a coordinate axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// String returns the lowercase axis name.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// ParseAxis parses "x", "y" or "z".
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// Dims is the number of axes a build tests: Planar (2) or Spatial (3).
type Dims int

const (
	Planar  Dims = 2
	Spatial Dims = 3
)

// Valid reports whether d is Planar or Spatial.
func (d Dims) Valid() bool {
	return d == Planar || d == Spatial
}

// Has reports whether axis a takes part in overlap tests for this build.
func (d Dims) Has(a Axis) bool {
	return a >= AxisX && int(a) < int(d)
}

// Others returns the axes of this build other than a, in x, y, z order.
func (d Dims) Others(a Axis) []Axis {
	out := make([]Axis, 0, int(d)-1)
	for ax := AxisX; int(ax) < int(d); ax++ {
		if ax != a {
			out = append(out, ax)
		}
	}
	return out
}

// AABB is an axis-aligned bounding box. Min <= Max on every axis in use.
type AABB struct {
	Min mgl64.Vec3 `json:"min"`
	Max mgl64.Vec3 `json:"max"`
}

// NewAABB2 builds a planar box from x and y extents.
func NewAABB2(minX, minY, maxX, maxY float64) AABB {
	return AABB{
		Min: mgl64.Vec3{minX, minY, 0},
		Max: mgl64.Vec3{maxX, maxY, 0},
	}
}

// NewAABB3 builds a spatial box.
func NewAABB3(minX, minY, minZ, maxX, maxY, maxZ float64) AABB {
	return AABB{
		Min: mgl64.Vec3{minX, minY, minZ},
		Max: mgl64.Vec3{maxX, maxY, maxZ},
	}
}

// FromCenter builds a box from its center and half extents.
func FromCenter(center, half mgl64.Vec3) AABB {
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

// Center returns the box center.
func (b AABB) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// OverlapsOn reports whether the closed intervals of b and o on axis a
// intersect. Touching boundaries count as overlap.
func (b AABB) OverlapsOn(o AABB, a Axis) bool {
	return b.Min[a] <= o.Max[a] && o.Min[a] <= b.Max[a]
}

// Overlaps reports whether b and o overlap on every axis of the build.
func (b AABB) Overlaps(o AABB, d Dims) bool {
	for a := AxisX; int(a) < int(d); a++ {
		if !b.OverlapsOn(o, a) {
			return false
		}
	}
	return true
}

// Valid reports whether Min <= Max on every axis of the build.
// NaN bounds are invalid.
func (b AABB) Valid(d Dims) bool {
	for a := AxisX; int(a) < int(d); a++ {
		if !(b.Min[a] <= b.Max[a]) {
			return false
		}
	}
	return true
}

// String formats the box as [minx,maxx]x[miny,maxy]x[minz,maxz].
func (b AABB) String() string {
	return fmt.Sprintf("[%g,%g]x[%g,%g]x[%g,%g]",
		b.Min[0], b.Max[0], b.Min[1], b.Max[1], b.Min[2], b.Max[2])
}
