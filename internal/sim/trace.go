package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"broadphase/internal/broadphase"
	"broadphase/internal/collider"

	"golang.org/x/time/rate"
)

const (
	TraceBufferSize    = 1024                   // Circular buffer size
	MaxTraceEventsPerS = 2000                   // Global rate limit
	TraceFlushSize     = 64                     // Events per batch write
	TraceFlushInterval = 100 * time.Millisecond // How often to flush
)

// TraceType identifies a trace record.
type TraceType string

const (
	TraceStep    TraceType = "step"
	TraceSpawn   TraceType = "spawn"
	TraceDespawn TraceType = "despawn"
)

// TraceEvent is one line of the step trace.
type TraceEvent struct {
	Sequence uint64            `json:"seq"`
	Type     TraceType         `json:"type"`
	Tick     uint64            `json:"tick"`
	Time     time.Time         `json:"time"`
	Body     collider.ID       `json:"body,omitempty"`
	Stats    *broadphase.Stats `json:"stats,omitempty"`
	Duration time.Duration     `json:"durationNs,omitempty"`
}

// TraceLog provides bounded, rate-limited JSONL tracing with backpressure.
// Emit never blocks the step loop; under pressure events are dropped.
type TraceLog struct {
	// Circular buffer (SPSC: Emit from the tick, collect from the writer)
	buffer    [TraceBufferSize]TraceEvent
	bufMu     sync.Mutex
	writeHead uint64
	readHead  uint64

	limiter *rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

// NewTraceLog creates a stopped trace log.
func NewTraceLog() *TraceLog {
	return &TraceLog{
		limiter:  rate.NewLimiter(MaxTraceEventsPerS, MaxTraceEventsPerS/10),
		stopChan: make(chan struct{}),
	}
}

// Start opens path for append and begins the async writer.
func (tl *TraceLog) Start(path string) error {
	if tl.running.Load() {
		return nil
	}
	if path == "" {
		return fmt.Errorf("trace path is empty")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	tl.file = file

	tl.running.Store(true)
	tl.writerWg.Add(1)
	go tl.writerLoop()

	return nil
}

// Stop flushes pending events and closes the file.
func (tl *TraceLog) Stop() {
	tl.stopOnce.Do(func() {
		tl.running.Store(false)
		close(tl.stopChan)
		tl.writerWg.Wait()

		tl.fileMu.Lock()
		if tl.file != nil {
			tl.file.Close()
		}
		tl.fileMu.Unlock()
	})
}

// Emit queues an event. Returns false if the log is stopped, rate limited
// or had to overwrite the oldest pending event.
func (tl *TraceLog) Emit(ev TraceEvent) bool {
	if !tl.running.Load() {
		return false
	}
	if !tl.limiter.Allow() {
		atomic.AddUint64(&tl.droppedCount, 1)
		return false
	}

	tl.bufMu.Lock()
	tl.writeHead++
	head := tl.writeHead
	dropped := false
	if head-tl.readHead > TraceBufferSize {
		// Drop oldest events (rolling window)
		tl.readHead++
		dropped = true
	}
	ev.Sequence = head
	tl.buffer[head%TraceBufferSize] = ev
	tl.bufMu.Unlock()

	atomic.AddUint64(&tl.totalCount, 1)
	if dropped {
		atomic.AddUint64(&tl.droppedCount, 1)
	}
	return !dropped
}

func (tl *TraceLog) writerLoop() {
	defer tl.writerWg.Done()

	ticker := time.NewTicker(TraceFlushInterval)
	defer ticker.Stop()

	batch := make([]TraceEvent, 0, TraceFlushSize)

	for {
		select {
		case <-tl.stopChan:
			for {
				batch = tl.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				tl.flushBatch(batch)
			}

		case <-ticker.C:
			batch = tl.collectBatch(batch[:0])
			if len(batch) > 0 {
				tl.flushBatch(batch)
			}
		}
	}
}

// collectBatch reads available events from the circular buffer.
func (tl *TraceLog) collectBatch(batch []TraceEvent) []TraceEvent {
	tl.bufMu.Lock()
	defer tl.bufMu.Unlock()

	for tl.readHead < tl.writeHead && len(batch) < TraceFlushSize {
		tl.readHead++
		batch = append(batch, tl.buffer[tl.readHead%TraceBufferSize])
	}
	return batch
}

// flushBatch writes events as newline-delimited JSON.
func (tl *TraceLog) flushBatch(batch []TraceEvent) {
	tl.fileMu.Lock()
	defer tl.fileMu.Unlock()

	if tl.file == nil {
		return
	}

	for _, ev := range batch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		tl.file.Write(data)
		tl.file.Write([]byte("\n"))
	}
}

// GetStats returns trace counters for monitoring.
func (tl *TraceLog) GetStats() map[string]interface{} {
	tl.bufMu.Lock()
	pending := tl.writeHead - tl.readHead
	tl.bufMu.Unlock()

	return map[string]interface{}{
		"total":   atomic.LoadUint64(&tl.totalCount),
		"dropped": atomic.LoadUint64(&tl.droppedCount),
		"pending": pending,
		"running": tl.running.Load(),
	}
}
