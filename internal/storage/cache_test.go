package storage

import (
	"testing"
	"time"
)

func TestLRUCacheBasic(t *testing.T) {
	cache := NewLRUCache(2, time.Minute)

	cache.Set("a", 1)
	cache.Set("b", 2)

	if v, ok := cache.Get("a"); !ok || v.(int) != 1 {
		t.Errorf("Expected a=1, got %v (found %v)", v, ok)
	}

	// "a" was just touched, so adding "c" should evict "b"
	cache.Set("c", 3)

	if _, ok := cache.Get("b"); ok {
		t.Error("Expected b to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("Expected a to survive eviction")
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 items, got %d", cache.Len())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	cache := NewLRUCache(10, 10*time.Millisecond)

	cache.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.Get("k"); ok {
		t.Error("Expected expired entry to be gone")
	}
}

func TestLRUCacheCleanupExpired(t *testing.T) {
	cache := NewLRUCache(10, 10*time.Millisecond)

	cache.Set("a", 1)
	cache.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	cache.Set("c", 3)

	removed := cache.CleanupExpired()
	if removed != 2 {
		t.Errorf("Expected 2 expired entries removed, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 item left, got %d", cache.Len())
	}
}

func TestLRUCacheDeleteAndClear(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Delete("a")

	if _, ok := cache.Get("a"); ok {
		t.Error("Expected deleted entry to be gone")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d items", cache.Len())
	}
}
