package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string](time.Minute, 8)

	c.Set("doc.md", "findings-a", "digest-a")

	got, ok := c.Get("doc.md")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "findings-a" {
		t.Errorf("got %q, want %q", got, "findings-a")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_OverwriteLastWriteWins(t *testing.T) {
	c := New[string](time.Minute, 8)

	c.Set("doc.md", "old", "digest-old")
	c.Set("doc.md", "new", "digest-new")

	got, ok := c.Get("doc.md")
	if !ok || got != "new" {
		t.Fatalf("got (%q, %v), want (new, true)", got, ok)
	}
	if c.ValidForDigest("doc.md", "digest-old") {
		t.Error("old digest should no longer validate")
	}
	if !c.ValidForDigest("doc.md", "digest-new") {
		t.Error("new digest should validate")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New(time.Minute, 8, WithClock[string](clock))

	c.Set("doc.md", "findings", "digest")

	// Advance past the TTL: a matching digest must still read as absent.
	now = now.Add(time.Minute + time.Second)

	if c.ValidForDigest("doc.md", "digest") {
		t.Error("expired entry reported valid despite digest match")
	}
	if _, ok := c.Get("doc.md"); ok {
		t.Error("expired entry returned from Get")
	}

	// The expired entry was evicted, not just hidden.
	if got := c.Stats().Size; got != 0 {
		t.Errorf("size after expiry eviction = %d, want 0", got)
	}
}

func TestCache_DigestMismatch(t *testing.T) {
	c := New[int](time.Minute, 8)
	c.Set("doc.md", 42, "digest-a")

	if c.ValidForDigest("doc.md", "digest-b") {
		t.Error("mismatched digest reported valid")
	}
	// A mismatch is not an eviction: the entry itself remains readable.
	if _, ok := c.Get("doc.md"); !ok {
		t.Error("digest mismatch should not evict the entry")
	}
}

func TestCache_ClearAndStats(t *testing.T) {
	c := New[string](time.Minute, 8)
	c.Set("a.md", "x", "d1")
	c.Set("b.md", "y", "d2")

	stats := c.Stats()
	if stats.Size != 2 {
		t.Errorf("size = %d, want 2", stats.Size)
	}
	if len(stats.Keys) != 2 {
		t.Errorf("keys = %v, want 2 entries", stats.Keys)
	}

	c.Clear()
	if got := c.Stats().Size; got != 0 {
		t.Errorf("size after clear = %d, want 0", got)
	}
	if _, ok := c.Get("a.md"); ok {
		t.Error("entry survived Clear")
	}
}

func TestCache_CapacityBound(t *testing.T) {
	c := New[int](time.Minute, 2)
	c.Set("a", 1, "d")
	c.Set("b", 2, "d")
	c.Set("c", 3, "d")

	if got := c.Stats().Size; got != 2 {
		t.Errorf("size = %d, want 2 (LRU bound)", got)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("least recently used entry should have been evicted")
	}
}
