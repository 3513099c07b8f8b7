// Command framecache-demo exercises the frame cache core end to end: it
// wires an Agent against a mock frame loader simulating realistic decode
// latency, drives a synthetic access pattern, and prints published
// events plus a final aggregated stats report.
//
// Flag parsing and startup logging mirror the teacher's
// cmd/hypercache/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"framecache/agent"
	"framecache/internal/cache"
	"framecache/internal/logging"
	"framecache/pkg/config"
)

var (
	configPath = flag.String("config", "configs/framecache.yaml", "Path to configuration file")
	nodeID     = flag.String("node-id", "", "Unique node identifier")
	frameCount = flag.Int("frames", 200, "Number of synthetic frame IDs to simulate access over")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *nodeID != "" {
		cfg.Node.ID = *nodeID
	}

	logger, err := logging.InitializeFromConfig(cfg.Node.ID, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	startupCorrelationID := logging.NewCorrelationID()
	ctx := logging.WithCorrelationID(context.Background(), startupCorrelationID)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info(ctx, logging.ComponentMain, logging.ActionStart, "frame cache demo starting", map[string]interface{}{
		"node_id": cfg.Node.ID,
		"frames":  *frameCount,
	})

	a, err := agent.Open(ctx, cfg, mockFrameLoader{}, nil)
	if err != nil {
		logging.Fatal(ctx, logging.ComponentMain, logging.ActionStart, "failed to open agent", err)
		os.Exit(1)
	}
	defer a.Close(ctx)

	_, events := a.Subscribe(64)
	go printEvents(ctx, events)

	driveSyntheticAccess(ctx, a, *frameCount)

	stats := a.Stats()
	fmt.Printf("\nfinal stats: entries=%d bytes_used=%d hit_rate=%.2f pressure=%s pattern=%s\n",
		stats.Store.Entries, stats.Store.BytesUsed, stats.Store.HitRate(), stats.PressureLevel, stats.Verdict.Kind)
}

// mockFrameLoader simulates decoding a frame from disk/video at roughly
// the 20-45ms p99 the core is designed against (spec.md 4.6).
type mockFrameLoader struct{}

func (mockFrameLoader) Load(ctx context.Context, frameID string) (cache.Frame, error) {
	delay := time.Duration(20+rand.Intn(25)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return cache.Frame{}, ctx.Err()
	}
	return cache.Frame{Data: make([]byte, 15<<20)}, nil // ~15MB decoded frame
}

func printEvents(ctx context.Context, ch <-chan cache.Event) {
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Printf("event: %s frame=%s elapsed_ms=%.2f\n", evt.Kind, evt.FrameID, evt.ElapsedMS)
		case <-ctx.Done():
			return
		}
	}
}

// driveSyntheticAccess simulates a user scrubbing forward through frames
// with a 50-frame jump every 20 accesses. The jumps are isolated rather
// than evenly strided, so the stream classifies as sequential, not jump;
// each jump moves the sequential preload window to the new position.
func driveSyntheticAccess(ctx context.Context, a *agent.Agent, frames int) {
	pos := 0
	for i := 0; i < frames; i++ {
		if i > 0 && i%20 == 0 {
			pos += 50 // simulate a scrub jump
		} else {
			pos++
		}

		frameID := fmt.Sprintf("frame_%06d", pos)
		if _, err := a.Get(ctx, frameID); err != nil {
			logging.Error(ctx, logging.ComponentMain, logging.ActionGet, "get failed", err)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
