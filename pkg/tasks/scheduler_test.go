package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestScheduler() *Scheduler {
	s := NewScheduler(context.Background(), 0)
	s.logger.SetLevel(logrus.WarnLevel)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_RegisterRunsPeriodically(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var runs int32
	s.Define("monitor", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	if err := s.Register("monitor"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("monitor"); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&runs) >= 2 })

	if !s.IsRegistered("monitor") {
		t.Error("expected task to be registered")
	}
}

func TestScheduler_UnregisterFromInsideTask(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var runs int32
	s.Define("once", 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return s.Unregister("once")
	})

	s.Register("once")
	waitFor(t, func() bool { return !s.IsRegistered("once") })

	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("expected exactly one run, got %d", got)
	}
}

func TestScheduler_UnregisterUnknownIsNoop(t *testing.T) {
	s := newTestScheduler()
	if err := s.Unregister("never-registered"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestScheduler_RegisterUndefined(t *testing.T) {
	s := newTestScheduler()
	if err := s.Register("missing"); err == nil {
		t.Error("expected error for undefined task")
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("expected error for undefined task")
	}
}

func TestScheduler_MinIntervalFloor(t *testing.T) {
	s := NewScheduler(context.Background(), MinInterval)
	s.logger.SetLevel(logrus.WarnLevel)

	s.Define("monitor", time.Second, func(ctx context.Context) error { return nil })

	if got := s.defs["monitor"].interval; got != MinInterval {
		t.Errorf("expected interval floored to %v, got %v", MinInterval, got)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()

	var runs int32
	s.Define("sync", time.Hour, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	if err := s.RunNow(context.Background(), "sync"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if atomic.LoadInt32(&runs) != 1 {
		t.Errorf("expected one run, got %d", runs)
	}
}
