package cache

import (
	"testing"
	"time"

	"github.com/ppiankov/attest/internal/match"
)

func TestDocCache(t *testing.T) {
	c := NewDocCache(time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("expected miss for unknown hash")
	}

	doc := match.NewDoc("some source content")
	c.Set("hash-a", doc)

	got, found := c.Get("hash-a")
	if !found {
		t.Fatal("expected hit after Set")
	}
	if got != doc {
		t.Error("expected the same preprocessed document back")
	}

	c.Clear()
	if _, found := c.Get("hash-a"); found {
		t.Error("expected miss after Clear")
	}
}

func TestDocCacheExpiry(t *testing.T) {
	c := NewDocCache(10 * time.Millisecond)
	c.Set("hash-a", match.NewDoc("content"))

	time.Sleep(30 * time.Millisecond)
	if _, found := c.Get("hash-a"); found {
		t.Error("expected entry to expire")
	}
}

func TestDocCacheDefaultTTL(t *testing.T) {
	c := NewDocCache(0)
	c.Set("hash-a", match.NewDoc("content"))
	if _, found := c.Get("hash-a"); !found {
		t.Error("expected hit with default TTL")
	}
}
