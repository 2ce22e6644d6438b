package dedup

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGuardMarksAndDetects(t *testing.T) {
	guard := NewMemory(time.Minute)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("CheckAndMark failed: %v", err)
	}
	if seen {
		t.Error("first sighting reported as seen")
	}

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("CheckAndMark failed: %v", err)
	}
	if !seen {
		t.Error("replay not detected")
	}

	seen, _ = guard.CheckAndMark(ctx, "evt_2")
	if seen {
		t.Error("distinct event reported as seen")
	}
}

func TestMemoryGuardForget(t *testing.T) {
	guard := NewMemory(time.Minute)
	ctx := context.Background()

	if _, err := guard.CheckAndMark(ctx, "evt_1"); err != nil {
		t.Fatalf("CheckAndMark failed: %v", err)
	}
	if err := guard.Forget(ctx, "evt_1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	seen, _ := guard.CheckAndMark(ctx, "evt_1")
	if seen {
		t.Error("forgotten event still reported as seen")
	}
}

func TestMemoryGuardExpiry(t *testing.T) {
	guard := NewMemory(20 * time.Millisecond)
	ctx := context.Background()

	if _, err := guard.CheckAndMark(ctx, "evt_1"); err != nil {
		t.Fatalf("CheckAndMark failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	seen, _ := guard.CheckAndMark(ctx, "evt_1")
	if seen {
		t.Error("expired mark still reported as seen")
	}
}
