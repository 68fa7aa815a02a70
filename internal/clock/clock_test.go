package clock

import (
	"testing"
	"time"
)

func TestFakeFireRunsCallbacks(t *testing.T) {
	f := NewFake()

	var order []int
	f.After(time.Second, func() { order = append(order, 1) })
	f.After(time.Minute, func() { order = append(order, 2) })

	if got := f.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}

	f.Fire()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("callbacks ran as %v, want [1 2]", order)
	}
	if got := f.Pending(); got != 0 {
		t.Errorf("Pending() = %d after Fire, want 0", got)
	}
}

func TestFakeCancelRemovesCallback(t *testing.T) {
	f := NewFake()

	fired := false
	cancel := f.After(time.Second, func() { fired = true })
	cancel()

	if got := f.Pending(); got != 0 {
		t.Fatalf("Pending() = %d after cancel, want 0", got)
	}

	f.Fire()
	if fired {
		t.Error("cancelled callback still ran")
	}
}

func TestFakeCancelIsIdempotent(t *testing.T) {
	f := NewFake()

	kept := false
	cancel := f.After(time.Second, func() {})
	f.After(time.Second, func() { kept = true })

	cancel()
	cancel() // second cancel must not disturb other timers

	if got := f.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	f.Fire()
	if !kept {
		t.Error("unrelated callback did not run")
	}
}

func TestFakeCancelAfterFireIsNoop(t *testing.T) {
	f := NewFake()

	cancel := f.After(time.Second, func() {})
	f.Fire()
	cancel()

	if got := f.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestRealAfterFires(t *testing.T) {
	r := New()

	done := make(chan struct{})
	r.After(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
}

func TestRealAfterCancel(t *testing.T) {
	r := New()

	fired := make(chan struct{}, 1)
	cancel := r.After(50*time.Millisecond, func() { fired <- struct{}{} })
	cancel()

	select {
	case <-fired:
		t.Fatal("cancelled callback fired")
	case <-time.After(150 * time.Millisecond):
	}
}
