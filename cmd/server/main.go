package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"broadphase/internal/api"
	"broadphase/internal/config"
	"broadphase/internal/sim"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🧱 ================================")
	log.Println("🧱  SWEEP AND PRUNE BROAD PHASE")
	log.Println("🧱 ================================")

	appConfig := config.Load()
	simCfg := appConfig.Sim
	bpCfg := appConfig.BroadPhase
	serverCfg := appConfig.Server

	log.Printf("🧱 Config: %d TPS, %d substeps, %d bodies, %dD sweep %s, churn %.1f/s",
		simCfg.TickRate, simCfg.Substeps, simCfg.Bodies, bpCfg.Dims, bpCfg.Axis, simCfg.ChurnPerSecond)

	engine := sim.NewEngine(sim.EngineConfig{
		Sim:        simCfg,
		BroadPhase: bpCfg,
	})
	log.Printf("🛡️ Body limit: %d (seed %d)", engine.MaxBodies(), engine.Seed())

	if err := engine.Populate(); err != nil {
		log.Fatalf("Failed to populate world: %v", err)
	}

	// Start step trace
	if appConfig.Trace.Path != "" {
		if err := engine.StartTrace(appConfig.Trace.Path); err != nil {
			log.Printf("⚠️ Step trace disabled: %v", err)
		} else {
			log.Printf("📝 Step trace: %s", appConfig.Trace.Path)
		}
	}

	// Start debug server
	debugServer, err := api.StartDebugServer(api.ObservabilityFromEnv())
	if err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	engine.OnStep = api.RecordStep

	server := api.NewServer(engine, api.ServerOptions{
		FrameWidth:  serverCfg.FrameWidth,
		FrameHeight: serverCfg.FrameHeight,
	})

	engine.Start()
	log.Println("✅ Broad phase engine started")

	// Mirror trace counters into metrics
	stopStats := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stopStats:
				return
			case <-ticker.C:
				stats := engine.TraceStats()
				total, _ := stats["total"].(uint64)
				dropped, _ := stats["dropped"].(uint64)
				api.UpdateTraceStats(total, dropped)
			}
		}
	}()

	// Start API server in goroutine
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🌐 API:    http://localhost%s/api/stats", addr)
		log.Printf("🖼️ Frame:  http://localhost%s/api/frame.png", addr)
		log.Printf("📡 Stream: ws://localhost%s/ws?format=msgpack", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if err := debugServer.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Debug server shutdown: %v", err)
	}
	close(stopStats)
	engine.Stop()
	engine.StopTrace()
	log.Println("👋 Goodbye!")
}
