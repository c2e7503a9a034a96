package memlayer

import (
	"context"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	l := New(10, nil)
	ctx := context.Background()

	if ok := l.Set(ctx, "a", []byte("1"), 0); !ok {
		t.Fatalf("Set returned false")
	}
	v, ok := l.Get(ctx, "a")
	if !ok {
		t.Fatalf("expected hit for key a")
	}
	if string(v) != "1" {
		t.Fatalf("got %q, want %q", v, "1")
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	// Concrete scenario 4 from spec.md §8.
	l := New(3, nil)
	ctx := context.Background()

	l.Set(ctx, "a", []byte("1"), 0)
	l.Set(ctx, "b", []byte("2"), 0)
	l.Set(ctx, "c", []byte("3"), 0)
	l.Get(ctx, "a")
	l.Set(ctx, "d", []byte("4"), 0)

	if l.Size() != 3 {
		t.Fatalf("expected size 3, got %d", l.Size())
	}
	for _, want := range []string{"a", "c", "d"} {
		if !l.Exists(ctx, want) {
			t.Fatalf("expected %q to remain", want)
		}
	}
	if l.Exists(ctx, "b") {
		t.Fatalf("expected b to have been evicted as LRU victim")
	}
}

func TestTTLExpiry(t *testing.T) {
	l := New(10, nil)
	ctx := context.Background()

	l.Set(ctx, "t", []byte("1"), 20*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := l.Get(ctx, "t"); ok {
		t.Fatalf("expected t to have expired")
	}
	if l.Size() != 0 {
		t.Fatalf("expected size 0 after lazy expiry eviction, got %d", l.Size())
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	l := New(10, nil)
	ctx := context.Background()

	l.Set(ctx, "a", []byte("1"), 10*time.Millisecond)
	l.Set(ctx, "b", []byte("2"), 0)
	time.Sleep(20 * time.Millisecond)

	n := l.Cleanup(ctx)
	if n != 1 {
		t.Fatalf("expected 1 entry cleaned up, got %d", n)
	}
	if l.Size() != 1 {
		t.Fatalf("expected size 1 after cleanup, got %d", l.Size())
	}
}

func TestIncrementFromAbsent(t *testing.T) {
	l := New(10, nil)
	ctx := context.Background()

	v, err := l.Increment(ctx, "c", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5 {
		t.Fatalf("got %d, want 5", v)
	}

	v, err = l.Increment(ctx, "c", 3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 8 {
		t.Fatalf("got %d, want 8", v)
	}
}

func TestPing(t *testing.T) {
	l := New(10, nil)
	if !l.Ping(context.Background()) {
		t.Fatalf("expected ping to succeed")
	}
	if l.Size() != 0 {
		t.Fatalf("expected ping to leave no residual entries, got size %d", l.Size())
	}
}

func TestDeleteAndClear(t *testing.T) {
	l := New(10, nil)
	ctx := context.Background()
	l.Set(ctx, "a", []byte("1"), 0)
	l.Set(ctx, "b", []byte("2"), 0)

	if !l.Delete(ctx, "a") {
		t.Fatalf("expected delete of present key to return true")
	}
	if l.Delete(ctx, "a") {
		t.Fatalf("expected delete of absent key to return false")
	}

	if err := l.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Size() != 0 {
		t.Fatalf("expected empty layer after Clear, got size %d", l.Size())
	}
}

func TestBoundMaintainedAcrossManyInserts(t *testing.T) {
	// Invariant I4: |L1| <= maxSize at all times after any public op returns.
	l := New(5, nil)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		l.Set(ctx, string(rune('a'+i%26))+string(rune(i)), []byte("v"), 0)
		if l.Size() > 5 {
			t.Fatalf("size exceeded maxSize: %d", l.Size())
		}
	}
}
