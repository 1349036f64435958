package peersync

import (
	"context"
	"testing"
	"time"
)

func TestMemoryFailureCache_Expires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryFailureCache()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, &PeerError{StatusCode: 500, Message: "boom"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, _ := cache.Get(ctx)
	if got == nil || !got.Cached || got.StatusCode != 500 {
		t.Fatalf("Get() = %+v, want cached 500", got)
	}

	now = now.Add(time.Minute)
	if got, _ = cache.Get(ctx); got != nil {
		t.Errorf("Get() after ttl = %+v, want nil", got)
	}
}
