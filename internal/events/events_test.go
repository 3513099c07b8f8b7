package events

import (
	"testing"
	"time"

	"framecache/internal/cache"
)

func TestBus_PublishDeliversToSubscribers(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(4)

	b.Publish(cache.Event{Kind: cache.EventCacheHit, FrameID: "a"})

	select {
	case evt := <-ch:
		if evt.FrameID != "a" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBus_PublishDropsWhenBufferFull(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(1)

	b.Publish(cache.Event{Kind: cache.EventCacheHit})
	b.Publish(cache.Event{Kind: cache.EventCacheMiss}) // must not block

	got := <-ch
	if got.Kind != cache.EventCacheHit {
		t.Fatalf("expected first event retained, got %v", got.Kind)
	}
	select {
	case <-ch:
		t.Fatal("expected second event to have been dropped")
	default:
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	handle, ch := b.Subscribe(1)
	b.Unsubscribe(handle)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}
