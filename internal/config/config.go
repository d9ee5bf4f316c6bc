// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for simulation, broad-phase and server
// settings.
//
// Every concern has a DefaultX() and an XFromEnv() that applies environment
// overrides. Invalid environment values are ignored and the default is kept.
package config

import (
	"log"
	"os"
	"strconv"

	"broadphase/internal/broadphase"
	"broadphase/internal/geom"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig drives the stand-in collider world and the step scheduler.
type SimConfig struct {
	TickRate       int     // Steps per second
	Substeps       int     // Broad-phase runs per step
	Bodies         int     // Initial population
	WorldWidth     float64 // World extent on x
	WorldHeight    float64 // World extent on y
	WorldDepth     float64 // World extent on z (spatial builds only)
	MinRadius      float64 // Smallest spawned body radius
	MaxRadius      float64 // Largest spawned body radius
	MaxSpeed       float64 // Units per second
	Seed           int64   // RNG seed, 0 = time-based
	ChurnPerSecond float64 // Bodies despawned and respawned per second
	SkipIdle       bool    // Skip the broad phase when nothing moved or changed
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:       60,
		Substeps:       1,
		Bodies:         500,
		WorldWidth:     1280,
		WorldHeight:    720,
		WorldDepth:     720,
		MinRadius:      4,
		MaxRadius:      16,
		MaxSpeed:       120,
		Seed:           0,
		ChurnPerSecond: 5,
		SkipIdle:       true,
	}
}

// SimFromEnv returns simulation configuration with environment overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if v := getEnvInt("SIM_TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("SIM_SUBSTEPS", 0); v > 0 {
		cfg.Substeps = v
	}
	if v := getEnvInt("SIM_BODIES", -1); v >= 0 {
		cfg.Bodies = v
	}
	if v := getEnvFloat("SIM_MAX_SPEED", -1); v >= 0 {
		cfg.MaxSpeed = v
	}
	if v := getEnvFloat("SIM_CHURN", -1); v >= 0 {
		cfg.ChurnPerSecond = v
	}
	if v := getEnvInt("SIM_SEED", 0); v != 0 {
		cfg.Seed = int64(v)
	}
	if os.Getenv("SIM_SKIP_IDLE") == "false" {
		cfg.SkipIdle = false
	}

	return cfg
}

// =============================================================================
// BROAD PHASE CONFIGURATION
// =============================================================================

// DefaultBroadPhase returns the default broad-phase configuration.
func DefaultBroadPhase() broadphase.Config {
	cfg := broadphase.DefaultConfig()
	cfg.Capacity = 1024
	return cfg
}

// BroadPhaseFromEnv returns broad-phase configuration with environment
// overrides. An inconsistent combination falls back to the defaults.
func BroadPhaseFromEnv() broadphase.Config {
	cfg := DefaultBroadPhase()

	switch getEnvInt("BROADPHASE_DIMS", 0) {
	case 2:
		cfg.Dims = geom.Planar
	case 3:
		cfg.Dims = geom.Spatial
	}
	if s := os.Getenv("BROADPHASE_AXIS"); s != "" {
		if axis, err := geom.ParseAxis(s); err == nil {
			cfg.Axis = axis
		}
	}
	if v := getEnvInt("BROADPHASE_CAPACITY", 0); v > 0 {
		cfg.Capacity = v
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("⚠️ Broad phase config rejected (%v), using defaults", err)
		return DefaultBroadPhase()
	}
	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int
	FrameWidth  int // Debug frame size in pixels
	FrameHeight int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:        3000,
		FrameWidth:  1280,
		FrameHeight: 720,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if w := getEnvInt("FRAME_WIDTH", 0); w > 0 {
		cfg.FrameWidth = w
	}
	if h := getEnvInt("FRAME_HEIGHT", 0); h > 0 {
		cfg.FrameHeight = h
	}

	return cfg
}

// =============================================================================
// TRACE CONFIGURATION
// =============================================================================

// TraceConfig controls the step trace log.
type TraceConfig struct {
	Path string // JSONL output, empty disables the trace
}

// TraceFromEnv returns trace configuration with environment overrides.
func TraceFromEnv() TraceConfig {
	return TraceConfig{Path: os.Getenv("TRACE_PATH")}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim        SimConfig
	BroadPhase broadphase.Config
	Server     ServerConfig
	Trace      TraceConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Sim:        SimFromEnv(),
		BroadPhase: BroadPhaseFromEnv(),
		Server:     ServerFromEnv(),
		Trace:      TraceFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
