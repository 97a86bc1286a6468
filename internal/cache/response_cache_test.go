package cache

import (
	"testing"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

func TestResponseCache_MissThenHit(t *testing.T) {
	c := New(time.Minute, 10)
	key := Key("gpt-4o", "hello", model.Options{})

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(key, model.Response{Content: "hi"})
	resp, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if resp.Content != "hi" {
		t.Errorf("expected content 'hi', got %q", resp.Content)
	}
}

func TestResponseCache_TTLExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	key := Key("gpt-4o", "hello", model.Options{})
	c.Set(key, model.Response{Content: "hi"})

	time.Sleep(15 * time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Error("expected miss after TTL expiry")
	}
	if c.Len() != 0 {
		t.Error("expected stale entry to be deleted on read")
	}
}

func TestResponseCache_EvictsLRUAtCapacity(t *testing.T) {
	c := New(time.Minute, 2)

	k1 := Key("m1", "p", model.Options{})
	k2 := Key("m2", "p", model.Options{})
	k3 := Key("m3", "p", model.Options{})

	c.Set(k1, model.Response{Content: "1"})
	c.Set(k2, model.Response{Content: "2"})
	c.Get(k1) // promote k1 so k2 becomes LRU
	c.Set(k3, model.Response{Content: "3"})

	if _, ok := c.Get(k2); ok {
		t.Error("expected k2 evicted as least-recently-used")
	}
	if _, ok := c.Get(k1); !ok {
		t.Error("expected k1 to survive eviction")
	}
	if _, ok := c.Get(k3); !ok {
		t.Error("expected k3 to survive (just inserted)")
	}
	if c.Len() != 2 {
		t.Errorf("expected exactly 2 entries, got %d", c.Len())
	}
}

func TestKey_DeterministicAndDistinguishesOptions(t *testing.T) {
	k1 := Key("gpt-4o", "hello", model.Options{})
	k2 := Key("gpt-4o", "hello", model.Options{})
	if k1 != k2 {
		t.Error("expected identical inputs to produce identical keys")
	}

	temp := 0.5
	k3 := Key("gpt-4o", "hello", model.Options{Temperature: &temp})
	if k1 == k3 {
		t.Error("expected differing temperature to change the key")
	}
}

func TestModelListCache_FreshThenExpired(t *testing.T) {
	c := NewModelListCache(10 * time.Millisecond)
	if _, ok := c.Get(); ok {
		t.Fatal("expected miss before any Set")
	}

	c.Set([]model.Info{{ID: "m1"}})
	if _, ok := c.Get(); !ok {
		t.Fatal("expected hit immediately after Set")
	}

	time.Sleep(15 * time.Millisecond)
	if _, ok := c.Get(); ok {
		t.Error("expected miss after TTL expiry")
	}
}
