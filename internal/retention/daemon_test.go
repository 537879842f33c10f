package retention

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeRetirer struct {
	mu     sync.Mutex
	cycles int
	ids    []string
}

func (f *fakeRetirer) RetireEligible(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	return f.ids, nil
}

func (f *fakeRetirer) cycleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}

func TestDaemonRunsImmediatelyOnStart(t *testing.T) {
	retirer := &fakeRetirer{ids: []string{"bookings_2025_q1"}}
	d := NewDaemon(retirer, time.Hour)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer d.Stop()

	deadline := time.After(2 * time.Second)
	for retirer.cycleCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("daemon never ran a cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDaemonRejectsDoubleStart(t *testing.T) {
	d := NewDaemon(&fakeRetirer{}, time.Hour)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Error("expected second start to fail")
	}
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	d := NewDaemon(&fakeRetirer{}, time.Hour)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestDaemonTicks(t *testing.T) {
	retirer := &fakeRetirer{}
	d := NewDaemon(retirer, 20*time.Millisecond)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer d.Stop()

	deadline := time.After(2 * time.Second)
	for retirer.cycleCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 cycles, got %d", retirer.cycleCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
