package cache

import (
	"strconv"
	"testing"
	"time"
)

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Set("key4", "value4")

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have been evicted")
	}
	for _, key := range []string{"key2", "key3", "key4"} {
		if _, found := c.Get(key); !found {
			t.Errorf("%s should still exist", key)
		}
	}
}

func TestLRUCacheRecencyOrder(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, found := c.Get("b"); found {
		t.Error("b was least recently used and should have been evicted")
	}
	if _, found := c.Get("a"); !found {
		t.Error("a was touched and should survive")
	}
}

func TestLRUCacheTTLExpiration(t *testing.T) {
	c := NewLRUCache[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	if _, found := c.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	time.Sleep(60 * time.Millisecond)

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have expired")
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c := NewLRUCache[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")

	time.Sleep(60 * time.Millisecond)

	if removed := c.CleanExpired(); removed != 3 {
		t.Errorf("expected 3 items cleaned, got %d", removed)
	}
	if c.Size() != 0 {
		t.Errorf("size = %d after cleanup", c.Size())
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[string](100, time.Hour)

	c.Set("v1|2026-08-01|2026-08-31", "a")
	c.Set("v1|2026-07-01|2026-07-31", "b")
	c.Set("v2|2026-08-01|2026-08-31", "c")

	if removed := c.DeletePrefix("v1|"); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if _, found := c.Get("v2|2026-08-01|2026-08-31"); !found {
		t.Error("unrelated key should survive")
	}
}

func TestLRUCacheClear(t *testing.T) {
	c := NewLRUCache[string](100, time.Hour)
	c.Set("key1", "value1")
	c.Set("key2", "value2")

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("size = %d after clear", c.Size())
	}
	if _, found := c.Get("key1"); found {
		t.Error("key1 should be gone after clear")
	}
}

func BenchmarkLRUCache(b *testing.B) {
	c := NewLRUCache[string](1000, time.Hour)
	for i := 0; i < 1000; i++ {
		c.Set("key-"+strconv.Itoa(i), "value")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := "key-" + strconv.Itoa(i%1000)
		if i%10 == 0 {
			c.Set(key, "value")
		} else {
			c.Get(key)
		}
	}
}
