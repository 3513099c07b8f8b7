package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"framecache/internal/cache"
	"framecache/pkg/config"
)

func testConfig() *config.Config {
	c, _ := config.Load("/nonexistent/path.yaml")
	c.Store.MaxEntries = 50
	c.Store.ByteLimit = "10MB"
	c.Monitor.SampleIntervalMS = 3600_000 // effectively disabled for unit tests
	c.Optimizer.RoutineIntervalS = 3600
	c.Optimizer.WarnLatencyMS = 1000
	c.Agent.GetDeadlineMS = 2000
	return c
}

type countingLoader struct {
	calls int32
}

func (l *countingLoader) Load(ctx context.Context, frameID string) (cache.Frame, error) {
	atomic.AddInt32(&l.calls, 1)
	return cache.Frame{Data: []byte("payload-" + frameID)}, nil
}

func TestAgent_GetMissThenHit(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{}
	a, err := Open(ctx, testConfig(), loader, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close(ctx)

	frame, err := a.Get(ctx, "frame_000001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(frame.Data) == 0 {
		t.Fatal("expected non-empty frame")
	}

	if _, err := a.Get(ctx, "frame_000001"); err != nil {
		t.Fatalf("Get (hit): %v", err)
	}

	if atomic.LoadInt32(&loader.calls) != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
}

func TestAgent_StatsAggregation(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{}
	a, err := Open(ctx, testConfig(), loader, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close(ctx)

	for i := 0; i < 6; i++ {
		if _, err := a.Get(ctx, seqKey(i)); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}

	stats := a.Stats()
	if stats.Store.Entries == 0 {
		t.Fatal("expected non-zero entries in store stats")
	}
}

func seqKey(n int) string {
	digits := "000000"
	s := itoa(n)
	pad := digits[:len(digits)-len(s)]
	return "frame_" + pad + s
}

func TestAgent_SubscribeReceivesEvents(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{}
	a, err := Open(ctx, testConfig(), loader, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close(ctx)

	_, ch := a.Subscribe(8)

	if _, err := a.Get(ctx, "frame_000042"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != cache.EventCacheMiss {
			t.Fatalf("expected cache_miss event first, got %v", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an event to be published")
	}
}

func TestAgent_PreloadHintSubmitsDirectionalTargets(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{}
	a, err := Open(ctx, testConfig(), loader, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close(ctx)

	a.Preload("frame_000100", cache.DirectionBackward)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.preloader.Stats().Submitted > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if a.preloader.Stats().Submitted == 0 {
		t.Fatal("expected Preload to submit at least one target")
	}
}

func TestInferDirection(t *testing.T) {
	cases := []struct {
		prev, cur string
		want      cache.Direction
	}{
		{"", "frame_000001", cache.DirectionForward},
		{"frame_000001", "frame_000002", cache.DirectionForward},
		{"frame_000005", "frame_000002", cache.DirectionBackward},
		{"frame_000005", "frame_000005", cache.DirectionForward},
	}
	for _, c := range cases {
		if got := inferDirection(c.prev, c.cur); got != c.want {
			t.Errorf("inferDirection(%q, %q) = %v, want %v", c.prev, c.cur, got, c.want)
		}
	}
}

func TestAgent_RunClosesOnReturn(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{}

	called := false
	err := Run(ctx, testConfig(), loader, nil, func(a *Agent) error {
		called = true
		_, err := a.Get(ctx, "frame_000001")
		return err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be invoked")
	}
}
