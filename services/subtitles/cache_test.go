package subtitles

import (
	"bytes"
	"fmt"
	"testing"
	"time"
)

func TestBlobCacheRoundTrip(t *testing.T) {
	c := newBlobCache(1<<20, time.Minute)

	payload := []byte("WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhi\n")
	handle := c.Put(payload)
	if handle == "" {
		t.Fatal("empty handle")
	}
	if handle != BlobHandle(payload) {
		t.Error("handle must be the content hash")
	}

	got, ok := c.Get(handle)
	if !ok || !bytes.Equal(got, payload) {
		t.Fatalf("Get returned ok=%v", ok)
	}
	if _, ok := c.Get("deadbeef"); ok {
		t.Error("unknown handle must miss")
	}
}

func TestBlobCachePutIsIdempotent(t *testing.T) {
	c := newBlobCache(1<<20, time.Minute)
	payload := []byte("same bytes")

	h1 := c.Put(payload)
	h2 := c.Put(payload)
	if h1 != h2 {
		t.Fatalf("handles differ: %q vs %q", h1, h2)
	}
	entries, size := c.Stats()
	if entries != 1 {
		t.Errorf("entries = %d, want 1", entries)
	}
	if size != int64(len(payload)) {
		t.Errorf("bytes = %d, want %d", size, len(payload))
	}
}

func TestBlobCacheEvictsOverByteBudget(t *testing.T) {
	c := newBlobCache(1024, time.Minute)

	for i := 0; i < 8; i++ {
		c.Put([]byte(fmt.Sprintf("%0256d", i)))
	}

	entries, size := c.Stats()
	if size > 1024 {
		t.Errorf("resident bytes %d exceed budget", size)
	}
	if entries >= 8 {
		t.Errorf("nothing was evicted: %d entries", entries)
	}
}
