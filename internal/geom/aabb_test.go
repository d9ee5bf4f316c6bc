package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestAABBOverlaps_Separated(t *testing.T) {
	tests := []struct {
		name string
		a, b AABB
		dims Dims
	}{
		{"separated on x", NewAABB2(0, 0, 1, 1), NewAABB2(2, 0, 3, 1), Planar},
		{"separated on x (negative)", NewAABB2(0, 0, 1, 1), NewAABB2(-3, 0, -2, 1), Planar},
		{"separated on y", NewAABB2(0, 0, 1, 1), NewAABB2(0, 2, 1, 3), Planar},
		{"separated on z", NewAABB3(0, 0, 0, 1, 1, 1), NewAABB3(0, 0, 2, 1, 1, 3), Spatial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a.Overlaps(tt.b, tt.dims) {
				t.Errorf("Expected no overlap for %v and %v", tt.a, tt.b)
			}
			if tt.b.Overlaps(tt.a, tt.dims) {
				t.Errorf("Expected no overlap (symmetry) for %v and %v", tt.b, tt.a)
			}
		})
	}
}

func TestAABBOverlaps_Touching(t *testing.T) {
	tests := []struct {
		name string
		a, b AABB
		dims Dims
	}{
		{"touching on x", NewAABB2(0, 0, 10, 10), NewAABB2(10, 0, 20, 10), Planar},
		{"touching on y", NewAABB2(0, 0, 10, 10), NewAABB2(0, 10, 10, 20), Planar},
		{"touching corner", NewAABB3(0, 0, 0, 10, 10, 10), NewAABB3(10, 10, 10, 20, 20, 20), Spatial},
		{"identical", NewAABB2(0, 0, 1, 1), NewAABB2(0, 0, 1, 1), Planar},
		{"contained", NewAABB3(0, 0, 0, 10, 10, 10), NewAABB3(2, 2, 2, 3, 3, 3), Spatial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.a.Overlaps(tt.b, tt.dims) || !tt.b.Overlaps(tt.a, tt.dims) {
				t.Errorf("Expected overlap for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestPlanarIgnoresZ(t *testing.T) {
	a := NewAABB3(0, 0, 0, 1, 1, 1)
	b := NewAABB3(0, 0, 5, 1, 1, 6)

	if !a.Overlaps(b, Planar) {
		t.Error("Planar overlap should ignore z")
	}
	if a.Overlaps(b, Spatial) {
		t.Error("Spatial overlap should test z")
	}
}

func TestDimsOthers(t *testing.T) {
	tests := []struct {
		dims Dims
		axis Axis
		want []Axis
	}{
		{Planar, AxisX, []Axis{AxisY}},
		{Planar, AxisY, []Axis{AxisX}},
		{Spatial, AxisX, []Axis{AxisY, AxisZ}},
		{Spatial, AxisY, []Axis{AxisX, AxisZ}},
		{Spatial, AxisZ, []Axis{AxisX, AxisY}},
	}

	for _, tt := range tests {
		t.Run(tt.axis.String(), func(t *testing.T) {
			got := tt.dims.Others(tt.axis)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
				}
			}
		})
	}

	if Planar.Has(AxisZ) {
		t.Error("Planar build should not have z")
	}
}

func TestParseAxis(t *testing.T) {
	for _, s := range []string{"x", "Y", "z"} {
		if _, err := ParseAxis(s); err != nil {
			t.Errorf("ParseAxis(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("Expected error for unknown axis")
	}
}

func TestFromCenterAndValid(t *testing.T) {
	b := FromCenter(mgl64.Vec3{5, 5, 0}, mgl64.Vec3{2, 3, 0})
	if b.Min != (mgl64.Vec3{3, 2, 0}) || b.Max != (mgl64.Vec3{7, 8, 0}) {
		t.Errorf("Unexpected box %v", b)
	}
	if c := b.Center(); c != (mgl64.Vec3{5, 5, 0}) {
		t.Errorf("Expected center (5,5,0), got %v", c)
	}

	if !b.Valid(Planar) {
		t.Error("Box should be valid")
	}
	if NewAABB2(2, 0, 1, 1).Valid(Planar) {
		t.Error("Inverted box should be invalid")
	}
	if NewAABB2(math.NaN(), 0, 1, 1).Valid(Planar) {
		t.Error("NaN box should be invalid")
	}
}
