package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"broadphase/internal/broadphase"
	"broadphase/internal/collider"
	"broadphase/internal/geom"
	"broadphase/internal/sim"
)

func testSnapshot() *sim.Snapshot {
	return &sim.Snapshot{
		Sequence: 3,
		Tick:     3,
		Dims:     geom.Planar,
		Axis:     "x",
		Bounds:   geom.NewAABB2(0, 0, 1280, 720),
		Bodies: []sim.BodySnapshot{
			{ID: 1, Shape: "box", AABB: geom.NewAABB2(100, 100, 120, 120)},
			{ID: 2, Shape: "box", AABB: geom.NewAABB2(110, 110, 130, 130)},
			{ID: 3, Shape: "circle", AABB: geom.NewAABB2(600, 300, 620, 320)},
		},
		Pairs: []broadphase.Pair[collider.ID]{{A: 1, B: 2}},
	}
}

func TestViewMapping(t *testing.T) {
	v := newView(geom.NewAABB2(0, 0, 100, 100), 120, 120)

	x, y := v.point(0, 0)
	if x != 10 || y != 10 {
		t.Errorf("Expected (10,10), got (%f,%f)", x, y)
	}
	x, y = v.point(100, 100)
	if x != 110 || y != 110 {
		t.Errorf("Expected (110,110), got (%f,%f)", x, y)
	}

	_, _, w, h := v.rect(geom.NewAABB2(10, 20, 30, 60))
	if w != 20 || h != 40 {
		t.Errorf("Expected 20x40, got %fx%f", w, h)
	}
}

func TestViewDegenerateBounds(t *testing.T) {
	v := newView(geom.AABB{}, 100, 100)
	if v.scale != 1 {
		t.Errorf("Expected scale 1 for empty bounds, got %f", v.scale)
	}
}

func TestRenderBackground(t *testing.T) {
	r := NewRenderer(320, 180)
	img := r.Render(testSnapshot())

	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 180 {
		t.Fatalf("Expected 320x180, got %dx%d", b.Dx(), b.Dy())
	}

	got := color.RGBAModel.Convert(img.At(5, 5)).(color.RGBA)
	if got != colorBackground {
		t.Errorf("Expected background %v, got %v", colorBackground, got)
	}
}

func TestEncodePNG(t *testing.T) {
	r := NewRenderer(160, 90)

	var buf bytes.Buffer
	if err := r.EncodePNG(&buf, testSnapshot()); err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 90 {
		t.Errorf("Expected 160x90, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderEmptySnapshot(t *testing.T) {
	r := NewRenderer(64, 64)
	// Before the first step the snapshot has no bounds and no bodies
	img := r.Render(&sim.Snapshot{})
	if img.Bounds().Dx() != 64 {
		t.Errorf("Expected width 64, got %d", img.Bounds().Dx())
	}
}

func BenchmarkRender(b *testing.B) {
	r := NewRenderer(1280, 720)
	snap := testSnapshot()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Render(snap)
	}
}
