package cache

import (
	"sync"
	"testing"

	"github.com/menta2k/plate-analyzer/pkg/fingerprint"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

func key(n int) fingerprint.Fingerprint {
	var fp fingerprint.Fingerprint
	fp[0] = uint64(n)
	fp[1] = uint64(n) * 31
	return fp
}

func shortlist(text string) []types.RecognitionResult {
	return []types.RecognitionResult{{Text: text, Confidence: 0.9}}
}

func TestGetPut(t *testing.T) {
	c := New(4)
	if _, ok := c.Get(key(1)); ok {
		t.Fatal("Expected miss on empty cache")
	}
	c.Put(key(1), shortlist("AB12CD"))
	got, ok := c.Get(key(1))
	if !ok {
		t.Fatal("Expected hit after Put")
	}
	if got[0].Text != "AB12CD" {
		t.Errorf("Expected AB12CD, got %s", got[0].Text)
	}

	got[0].Text = "changed"
	again, _ := c.Get(key(1))
	if again[0].Text != "AB12CD" {
		t.Error("Expected stored shortlist to be isolated from callers")
	}

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d and %d", s.Hits, s.Misses)
	}
}

func TestFIFOEviction(t *testing.T) {
	const capacity = 3
	c := New(capacity)
	for i := 0; i <= capacity; i++ {
		c.Put(key(i), shortlist("X"))
		// reads must not refresh the oldest entry
		c.Get(key(0))
	}
	if c.Len() != capacity {
		t.Errorf("Expected %d entries, got %d", capacity, c.Len())
	}
	if _, ok := c.Get(key(0)); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	for i := 1; i <= capacity; i++ {
		if _, ok := c.Get(key(i)); !ok {
			t.Errorf("Expected entry %d to survive", i)
		}
	}
}

func TestReplaceDoesNotDoubleCount(t *testing.T) {
	c := New(2)
	c.Put(key(1), shortlist("A"))
	c.Put(key(2), shortlist("B"))
	c.Put(key(1), shortlist("C"))
	if c.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", c.Len())
	}
	got, _ := c.Get(key(1))
	if got[0].Text != "C" {
		t.Errorf("Expected replaced value C, got %s", got[0].Text)
	}

	// key 1 kept its original slot, so it is evicted first
	c.Put(key(3), shortlist("D"))
	if _, ok := c.Get(key(1)); ok {
		t.Error("Expected key 1 to be evicted first")
	}
}

func TestZeroCapacityDisables(t *testing.T) {
	c := New(0)
	c.Put(key(1), shortlist("A"))
	if _, ok := c.Get(key(1)); ok {
		t.Error("Expected disabled cache to miss")
	}
}

func TestConcurrentPut(t *testing.T) {
	const capacity = 16
	c := New(capacity)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Put(key(i), shortlist("X"))
				c.Get(key(i + g))
			}
		}(g)
	}
	wg.Wait()

	if c.Len() != capacity {
		t.Errorf("Expected %d entries, got %d", capacity, c.Len())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) != c.order.Len() {
		t.Errorf("Index and order disagree: %d vs %d", len(c.entries), c.order.Len())
	}
}
