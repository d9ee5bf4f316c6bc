// Package render draws a debug frame of a published step: every body's AABB,
// highlighted when it belongs to a candidate pair, and a line joining the
// centers of each pair. Spatial builds are projected onto the x/y plane.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"broadphase/internal/collider"
	"broadphase/internal/geom"
	"broadphase/internal/sim"

	"github.com/fogleman/gg"
)

var (
	colorBackground = color.RGBA{12, 12, 28, 255}
	colorGrid       = color.RGBA{30, 30, 45, 255}
	colorBounds     = color.RGBA{90, 90, 120, 255}
	colorBox        = color.RGBA{120, 200, 255, 160}
	colorPaired     = color.RGBA{255, 90, 60, 220}
	colorPairLine   = color.RGBA{255, 220, 80, 200}
	colorText       = color.RGBA{230, 230, 240, 255}
)

// Renderer draws snapshots into a reusable canvas.
type Renderer struct {
	width  int
	height int

	mu sync.Mutex
	dc *gg.Context
}

// NewRenderer creates a renderer producing width x height frames.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		width:  width,
		height: height,
		dc:     gg.NewContext(width, height),
	}
}

// Size returns the frame size in pixels.
func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// view maps world x/y onto the canvas, preserving aspect ratio.
type view struct {
	scale  float64
	offX   float64
	offY   float64
	bounds geom.AABB
}

func newView(bounds geom.AABB, width, height int) view {
	const margin = 10.0
	w := bounds.Max.X() - bounds.Min.X()
	h := bounds.Max.Y() - bounds.Min.Y()
	if w <= 0 || h <= 0 {
		return view{scale: 1, bounds: bounds}
	}
	sx := (float64(width) - 2*margin) / w
	sy := (float64(height) - 2*margin) / h
	scale := min(sx, sy)
	return view{
		scale:  scale,
		offX:   (float64(width) - w*scale) / 2,
		offY:   (float64(height) - h*scale) / 2,
		bounds: bounds,
	}
}

func (v view) point(x, y float64) (float64, float64) {
	return v.offX + (x-v.bounds.Min.X())*v.scale, v.offY + (y-v.bounds.Min.Y())*v.scale
}

func (v view) rect(box geom.AABB) (x, y, w, h float64) {
	x, y = v.point(box.Min.X(), box.Min.Y())
	w = (box.Max.X() - box.Min.X()) * v.scale
	h = (box.Max.Y() - box.Min.Y()) * v.scale
	return x, y, w, h
}

// Render draws snap and returns a copy of the frame.
func (r *Renderer) Render(snap *sim.Snapshot) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.draw(snap)

	src := r.dc.Image()
	out := image.NewRGBA(src.Bounds())
	if rgba, ok := src.(*image.RGBA); ok {
		copy(out.Pix, rgba.Pix)
	}
	return out
}

// EncodePNG draws snap and writes it to w as PNG.
func (r *Renderer) EncodePNG(w io.Writer, snap *sim.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.draw(snap)
	if err := r.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return nil
}

func (r *Renderer) draw(snap *sim.Snapshot) {
	dc := r.dc

	dc.SetColor(colorBackground)
	dc.DrawRectangle(0, 0, float64(r.width), float64(r.height))
	dc.Fill()

	r.drawGrid(dc)

	v := newView(snap.Bounds, r.width, r.height)

	dc.SetColor(colorBounds)
	dc.SetLineWidth(2)
	dc.DrawRectangle(v.rect(snap.Bounds))
	dc.Stroke()

	paired := make(map[collider.ID]struct{}, len(snap.Pairs)*2)
	for _, p := range snap.Pairs {
		paired[p.A] = struct{}{}
		paired[p.B] = struct{}{}
	}

	centers := make(map[collider.ID][2]float64, len(snap.Bodies))
	dc.SetLineWidth(1)
	for _, b := range snap.Bodies {
		if _, ok := paired[b.ID]; ok {
			dc.SetColor(colorPaired)
		} else {
			dc.SetColor(colorBox)
		}
		dc.DrawRectangle(v.rect(b.AABB))
		dc.Stroke()

		c := b.AABB.Center()
		x, y := v.point(c.X(), c.Y())
		centers[b.ID] = [2]float64{x, y}
	}

	// Pair links
	dc.SetColor(colorPairLine)
	for _, p := range snap.Pairs {
		a, okA := centers[p.A]
		b, okB := centers[p.B]
		if !okA || !okB {
			continue
		}
		dc.DrawLine(a[0], a[1], b[0], b[1])
		dc.Stroke()
	}

	r.drawHUD(dc, snap)
}

func (r *Renderer) drawGrid(dc *gg.Context) {
	dc.SetColor(colorGrid)
	dc.SetLineWidth(1)

	gridSize := 100.0
	for x := 0.0; x < float64(r.width); x += gridSize {
		dc.DrawLine(x, 0, x, float64(r.height))
		dc.Stroke()
	}
	for y := 0.0; y < float64(r.height); y += gridSize {
		dc.DrawLine(0, y, float64(r.width), y)
		dc.Stroke()
	}
}

func (r *Renderer) drawHUD(dc *gg.Context, snap *sim.Snapshot) {
	dc.SetColor(colorText)
	lines := []string{
		fmt.Sprintf("tick %d  seq %d", snap.Tick, snap.Sequence),
		fmt.Sprintf("bodies %d  pairs %d  sweep %s", len(snap.Bodies), len(snap.Pairs), snap.Axis),
		fmt.Sprintf("shifts %d  tests %d  step %s", snap.Stats.Shifts, snap.Stats.Tests, snap.StepDuration),
	}
	for i, line := range lines {
		dc.DrawString(line, 16, 24+float64(i)*16)
	}
}
