package vector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingDialer(calls *atomic.Int32, delay time.Duration) DialFunc {
	return func(context.Context) (Store, error) {
		calls.Add(1)
		time.Sleep(delay)
		return NewMemoryStore("")
	}
}

func TestConnectionManager_SingleDialUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	m := NewConnectionManager(countingDialer(&calls, 10*time.Millisecond))
	defer m.Close()

	var wg sync.WaitGroup
	stores := make([]Store, 16)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Get(context.Background())
			if err != nil {
				t.Error(err)
			}
			stores[i] = s
		}(i)
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("dial calls = %d, want 1", calls.Load())
	}
	for _, s := range stores[1:] {
		if s != stores[0] {
			t.Fatal("all callers should share one handle")
		}
	}
}

func TestConnectionManager_CloseIsIdempotentAndRedials(t *testing.T) {
	var calls atomic.Int32
	m := NewConnectionManager(countingDialer(&calls, 0))
	if err := m.Close(); err != nil {
		t.Fatalf("Close before Get: %v", err)
	}
	if _, err := m.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if m.Connected() {
		t.Error("no handle expected after Close")
	}
	if _, err := m.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("dial calls = %d, want 2", calls.Load())
	}
}

func TestConnectionManager_FailedDialIsNotCached(t *testing.T) {
	fail := true
	m := NewConnectionManager(func(context.Context) (Store, error) {
		if fail {
			return nil, errors.New("unreachable")
		}
		return NewMemoryStore("")
	})
	if _, err := m.Get(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	fail = false
	if _, err := m.Get(context.Background()); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestConnectionManager_InvalidateOnlyCurrent(t *testing.T) {
	var calls atomic.Int32
	m := NewConnectionManager(countingDialer(&calls, 0))
	first, _ := m.Get(context.Background())
	m.Invalidate(first)
	second, _ := m.Get(context.Background())
	if first == second {
		t.Fatal("expected a new handle after Invalidate")
	}
	m.Invalidate(first) // stale handle, must not drop second
	third, _ := m.Get(context.Background())
	if third != second {
		t.Error("stale Invalidate dropped the current handle")
	}
	if calls.Load() != 2 {
		t.Errorf("dial calls = %d, want 2", calls.Load())
	}
}
