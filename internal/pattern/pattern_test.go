package pattern

import (
	"fmt"
	"testing"
	"time"

	"framecache/internal/cache"
)

func TestExtractIndex(t *testing.T) {
	cases := []struct {
		key     string
		want    int
		wantHas bool
	}{
		{"frame_000123", 123, true},
		{"frame_000124", 124, true},
		{"no-digits-here", 0, false},
		{"v2_frame_7", 2, true}, // first maximal run wins
	}
	for _, c := range cases {
		got, has := extractIndex(c.key)
		if has != c.wantHas || (has && got != c.want) {
			t.Errorf("extractIndex(%q) = (%d, %v), want (%d, %v)", c.key, got, has, c.want, c.wantHas)
		}
	}
}

func seqKey(n int) string { return fmt.Sprintf("frame_%06d", n) }

func TestAnalyzer_InsufficientSamples(t *testing.T) {
	a := New(DefaultConfig())
	for i := 0; i < 9; i++ {
		a.Record(seqKey(i))
	}

	v := a.Analyze()
	if v.Kind != cache.PatternInsufficient {
		t.Fatalf("expected insufficient verdict, got %v", v.Kind)
	}
	if v.Confidence != 0 {
		t.Fatalf("expected zero confidence below min samples, got %f", v.Confidence)
	}
}

func TestAnalyzer_SequentialPattern(t *testing.T) {
	a := New(DefaultConfig())
	for i := 0; i < 12; i++ {
		a.Record(seqKey(i))
	}

	v := a.Analyze()
	if v.Kind != cache.PatternSequential {
		t.Fatalf("expected sequential, got %v (confidence %f)", v.Kind, v.Confidence)
	}
	if v.Confidence <= 0.9 {
		t.Fatalf("expected high confidence for pure run, got %f", v.Confidence)
	}
	if v.PreloadRadius != radiusFor(cache.PatternSequential, DefaultConfig().PreloadRadiusBase) {
		t.Fatalf("unexpected preload radius %d", v.PreloadRadius)
	}
}

func TestAnalyzer_JumpPattern(t *testing.T) {
	a := New(DefaultConfig())
	// constant stride of +10, never +-1
	for i := 0; i < 12; i++ {
		a.Record(seqKey(i * 10))
	}

	v := a.Analyze()
	if v.Kind != cache.PatternJump {
		t.Fatalf("expected jump, got %v", v.Kind)
	}
	if v.StrideAligned != 10 {
		t.Fatalf("expected stride 10, got %d", v.StrideAligned)
	}
}

func TestAnalyzer_HotspotPattern(t *testing.T) {
	a := New(DefaultConfig())
	// One frame (500) revisited repeatedly between scattered, irregularly
	// spaced fillers — no +-1 step and no repeated-equal-gap triples, so
	// this can't also read as sequential or jump.
	indices := []int{500, 10, 500, 850, 500, 33, 500, 920, 500, 77, 500}
	for _, n := range indices {
		a.Record(seqKey(n))
	}

	v := a.Analyze()
	if v.Kind != cache.PatternHotspot {
		t.Fatalf("expected hotspot, got %v (confidence %f)", v.Kind, v.Confidence)
	}
	if len(v.HotspotKeys) == 0 {
		t.Fatalf("expected hotspot keys recorded")
	}
}

func TestAnalyzer_RandomPatternBelowFloor(t *testing.T) {
	a := New(DefaultConfig())
	// Distinct indices with irregular, never-repeating gaps: no +-1 step
	// (rules out sequential), no two consecutive gaps equal (rules out
	// jump), and too few repeats to clear the hotspot floor.
	indices := []int{2, 9, 23, 34, 58, 66, 99, 111, 150, 172, 200, 250}
	for _, n := range indices {
		a.Record(seqKey(n))
	}

	v := a.Analyze()
	if v.Kind != cache.PatternRandom {
		t.Fatalf("expected random, got %v (confidence %f)", v.Kind, v.Confidence)
	}
}

func TestAnalyzer_VerdictCaching(t *testing.T) {
	a := New(Config{WindowCapacity: 200, MinSamples: 10, VerdictCacheTTL: time.Minute, PreloadRadiusBase: 25})
	for i := 0; i < 12; i++ {
		a.Record(seqKey(i))
	}
	first := a.Analyze()
	second := a.Analyze()
	if first.ComputedAt != second.ComputedAt {
		t.Fatalf("expected the cached verdict to be reused within the TTL")
	}
	if second.Kind != cache.PatternSequential {
		t.Fatalf("expected consistent classification on repeated Analyze, got %v", second.Kind)
	}
}
