package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"broadphase/internal/broadphase"
	"broadphase/internal/collider"
	"broadphase/internal/sim"

	"github.com/go-chi/chi/v5"
	"github.com/go-gl/mathgl/mgl64"
)

// MaxSpawnBatch caps POST /api/bodies with "count".
const MaxSpawnBatch = 200

// BodyJSON is the API view of a live body.
type BodyJSON struct {
	ID          collider.ID `json:"id"`
	Shape       string      `json:"shape"`
	Radius      float64     `json:"radius,omitempty"`
	HalfExtents *mgl64.Vec3 `json:"halfExtents,omitempty"`
	Position    mgl64.Vec3  `json:"position"`
	Velocity    mgl64.Vec3  `json:"velocity"`
}

func bodyToJSON(b collider.Body) BodyJSON {
	out := BodyJSON{
		ID:       b.ID,
		Shape:    b.Shape.Kind.String(),
		Position: b.Position,
		Velocity: b.Velocity,
	}
	switch b.Shape.Kind {
	case collider.KindCircle:
		out.Radius = b.Shape.Radius
	case collider.KindBox:
		half := b.Shape.HalfExtents
		out.HalfExtents = &half
	}
	return out
}

// SpawnRequest is the body of POST /api/bodies. With Count > 0 the shape
// fields are ignored and Count random bodies are spawned.
type SpawnRequest struct {
	Shape       string     `json:"shape"`
	Radius      float64    `json:"radius"`
	HalfExtents mgl64.Vec3 `json:"halfExtents"`
	Position    mgl64.Vec3 `json:"position"`
	Velocity    mgl64.Vec3 `json:"velocity"`
	Count       int        `json:"count"`
}

// ToShape converts the request into a validated collider shape.
func (req SpawnRequest) ToShape() (collider.Shape, error) {
	var shape collider.Shape
	switch req.Shape {
	case "circle":
		shape = collider.Circle(req.Radius)
	case "box":
		shape = collider.Box(req.HalfExtents)
	default:
		return shape, errors.New("shape must be circle or box")
	}
	if err := shape.Validate(); err != nil {
		return shape, err
	}
	return shape, nil
}

func (h *routerHandlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"service": "broadphase",
		"endpoints": []string{
			"GET /api/stats",
			"GET /api/pairs",
			"GET /api/bodies",
			"POST /api/bodies",
			"DELETE /api/bodies/{id}",
			"POST /api/bodies/{id}/velocity",
			"GET /api/frame.png",
			"GET /ws?format=json|msgpack",
		},
	})
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	writeJSON(w, map[string]interface{}{
		"sequence":       snap.Sequence,
		"tick":           snap.Tick,
		"timestamp":      snap.Timestamp,
		"dims":           snap.Dims,
		"axis":           snap.Axis,
		"bodies":         len(snap.Bodies),
		"pairs":          len(snap.Pairs),
		"stats":          snap.Stats,
		"stepDurationNs": snap.StepDuration,
		"skipped":        snap.Skipped,
	})
}

func (h *routerHandlers) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()

	pairs := snap.Pairs
	if pairs == nil {
		pairs = []broadphase.Pair[collider.ID]{}
	}

	// ?canonical=true orders each pair (A < B) for stable diffs
	if r.URL.Query().Get("canonical") == "true" {
		out := make([]broadphase.Pair[collider.ID], len(pairs))
		for i, p := range pairs {
			out[i] = p.Canonical()
		}
		pairs = out
	}

	writeJSON(w, map[string]interface{}{
		"sequence": snap.Sequence,
		"tick":     snap.Tick,
		"count":    len(pairs),
		"pairs":    pairs,
	})
}

func (h *routerHandlers) handleGetBodies(w http.ResponseWriter, r *http.Request) {
	bodies := h.engine.Bodies()
	out := make([]BodyJSON, 0, len(bodies))
	for _, b := range bodies {
		out = append(out, bodyToJSON(b))
	}
	writeJSON(w, out)
}

func (h *routerHandlers) handleSpawnBody(w http.ResponseWriter, r *http.Request) {
	var req SpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Count > 0 {
		h.spawnBatch(w, min(req.Count, MaxSpawnBatch))
		return
	}

	shape, err := req.ToShape()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.engine.Spawn(shape, req.Position, req.Velocity)
	if err != nil {
		writeSpawnError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
}

func (h *routerHandlers) spawnBatch(w http.ResponseWriter, count int) {
	ids := make([]collider.ID, 0, count)
	for i := 0; i < count; i++ {
		id, err := h.engine.SpawnRandom()
		if err != nil {
			if len(ids) == 0 {
				writeSpawnError(w, err)
				return
			}
			break
		}
		ids = append(ids, id)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count": len(ids),
		"ids":   ids,
	})
}

func writeSpawnError(w http.ResponseWriter, err error) {
	if errors.Is(err, sim.ErrBodyLimit) {
		writeError(w, "Body limit reached", http.StatusServiceUnavailable)
		return
	}
	log.Printf("❌ Spawn failed: %v", err)
	writeError(w, err.Error(), http.StatusInternalServerError)
}

func bodyID(r *http.Request) (collider.ID, bool) {
	raw, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		return 0, false
	}
	return collider.ID(raw), true
}

func (h *routerHandlers) handleDespawnBody(w http.ResponseWriter, r *http.Request) {
	id, ok := bodyID(r)
	if !ok {
		writeError(w, "Invalid body id", http.StatusBadRequest)
		return
	}

	if err := h.engine.Despawn(id); err != nil {
		if errors.Is(err, collider.ErrUnknownBody) {
			writeError(w, "Body not found", http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleSetVelocity(w http.ResponseWriter, r *http.Request) {
	id, ok := bodyID(r)
	if !ok {
		writeError(w, "Invalid body id", http.StatusBadRequest)
		return
	}

	var req struct {
		Velocity mgl64.Vec3 `json:"velocity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.engine.SetVelocity(id, req.Velocity); err != nil {
		if errors.Is(err, collider.ErrUnknownBody) {
			writeError(w, "Body not found", http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()

	start := time.Now()
	var buf bytes.Buffer
	if err := h.renderer.EncodePNG(&buf, snap); err != nil {
		log.Printf("❌ Frame render failed: %v", err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	RecordRender(time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
