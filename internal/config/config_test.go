package config

import (
	"testing"

	"broadphase/internal/geom"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Sim.TickRate != 60 {
		t.Errorf("Expected tick rate 60, got %d", cfg.Sim.TickRate)
	}
	if cfg.BroadPhase.Dims != geom.Planar || cfg.BroadPhase.Axis != geom.AxisX {
		t.Errorf("Expected planar x sweep, got %+v", cfg.BroadPhase)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Expected port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Trace.Path != "" {
		t.Errorf("Expected trace disabled, got %q", cfg.Trace.Path)
	}
}

func TestSimFromEnv(t *testing.T) {
	t.Setenv("SIM_TICK_RATE", "30")
	t.Setenv("SIM_BODIES", "0")
	t.Setenv("SIM_SUBSTEPS", "not-a-number")
	t.Setenv("SIM_SKIP_IDLE", "false")

	cfg := SimFromEnv()
	if cfg.TickRate != 30 {
		t.Errorf("Expected tick rate 30, got %d", cfg.TickRate)
	}
	if cfg.Bodies != 0 {
		t.Errorf("Expected 0 bodies, got %d", cfg.Bodies)
	}
	if cfg.Substeps != 1 {
		t.Errorf("Invalid value should keep default substeps, got %d", cfg.Substeps)
	}
	if cfg.SkipIdle {
		t.Error("Expected SkipIdle disabled")
	}
}

func TestBroadPhaseFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		dims     string
		axis     string
		wantDims geom.Dims
		wantAxis geom.Axis
	}{
		{"spatial z", "3", "z", geom.Spatial, geom.AxisZ},
		{"planar y", "2", "y", geom.Planar, geom.AxisY},
		{"planar z falls back", "2", "z", geom.Planar, geom.AxisX},
		{"unknown axis ignored", "3", "w", geom.Spatial, geom.AxisX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BROADPHASE_DIMS", tt.dims)
			t.Setenv("BROADPHASE_AXIS", tt.axis)

			cfg := BroadPhaseFromEnv()
			if cfg.Dims != tt.wantDims || cfg.Axis != tt.wantAxis {
				t.Errorf("Expected %d/%s, got %d/%s", tt.wantDims, tt.wantAxis, cfg.Dims, cfg.Axis)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Loaded config should validate: %v", err)
			}
		})
	}
}
