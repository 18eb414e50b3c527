package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance-agent/internal/backend"
	"attendance-agent/internal/models"
	"attendance-agent/pkg/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:        2,
		InitialDelay:      time.Minute,
		MaxDelay:          10 * time.Minute,
		BackoffMultiplier: 2,
	}
}

func recordPending(t *testing.T, env *testEnv, trigger models.Trigger) {
	t.Helper()
	err := env.sync.Record(context.Background(), backend.ClockOutRequest{
		Email:    testEmail,
		Timezone: "Europe/Berlin",
		Trigger:  string(trigger),
	}, errors.New("connection refused"))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestCheckoutSync_FlushDelivers(t *testing.T) {
	env := newTestEnv(t)
	recordPending(t, env, models.TriggerTimerExpired)

	if !env.tasks.isRegistered(CheckoutSyncTask) {
		t.Fatal("sync task should be registered after record")
	}

	// запись еще не созрела
	if err := env.sync.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(env.backend.clockOuts()) != 0 {
		t.Fatal("pending checkout sent before its attempt time")
	}

	env.clock.Advance(time.Minute)
	if err := env.sync.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	calls := env.backend.clockOuts()
	if len(calls) != 1 || calls[0].Trigger != "timer_expired" || calls[0].Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected clock out calls %+v", calls)
	}
	if n, _ := env.sync.Pending(); n != 0 {
		t.Errorf("expected empty queue, got %d", n)
	}
	if env.tasks.isRegistered(CheckoutSyncTask) {
		t.Error("sync task should be unregistered when the queue is empty")
	}
}

func TestCheckoutSync_RetriesThenDrops(t *testing.T) {
	env := newTestEnv(t)
	env.backend.setClockOutErr(&backend.NetworkError{Op: "clockout", StatusCode: 502})
	recordPending(t, env, models.TriggerGeofenceExit)

	env.clock.Advance(time.Minute)
	if err := env.sync.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	pending := env.pending.all()
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected one retried checkout, got %+v", pending)
	}
	if want := env.clock.Now().Add(2 * time.Minute); !pending[0].NextAttemptAt.Equal(want) {
		t.Errorf("expected next attempt at %s, got %s", want, pending[0].NextAttemptAt)
	}

	env.clock.Advance(2 * time.Minute)
	if err := env.sync.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(env.pending.all()) != 0 {
		t.Error("checkout should be dropped after retries are exhausted")
	}
	if len(env.backend.clockOuts()) != 2 {
		t.Errorf("expected two attempts, got %d", len(env.backend.clockOuts()))
	}
}

func TestCheckoutSync_RejectionDrops(t *testing.T) {
	env := newTestEnv(t)
	env.backend.setClockOutErr(&backend.RejectionError{Message: "already clocked out"})
	recordPending(t, env, models.TriggerManual)

	env.clock.Advance(time.Minute)
	if err := env.sync.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(env.pending.all()) != 0 {
		t.Error("rejected checkout should be dropped")
	}
}

func TestCheckoutSync_PostponedDuringSession(t *testing.T) {
	env := newTestEnv(t)
	recordPending(t, env, models.TriggerManual)
	env.checkIn(t)

	env.clock.Advance(time.Minute)
	if err := env.sync.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(env.backend.clockOuts()) != 0 {
		t.Error("pending checkout must not be replayed while a session is open")
	}
	if len(env.pending.all()) != 1 {
		t.Error("pending checkout should stay queued")
	}
}

func TestCheckoutSync_FlushedBeforeCheckIn(t *testing.T) {
	env := newTestEnv(t)
	recordPending(t, env, models.TriggerGeofenceExit)
	env.clock.Advance(time.Minute)

	env.checkIn(t)

	calls := env.backend.clockOuts()
	if len(calls) != 1 || calls[0].Trigger != "geofence_exit" {
		t.Fatalf("pending checkout should be sent before check in, got %+v", calls)
	}
	if env.backend.clockIns() != 1 {
		t.Errorf("expected one check in, got %d", env.backend.clockIns())
	}
}

func TestNewCheckoutSync_InvalidPolicy(t *testing.T) {
	if _, err := NewCheckoutSync(newFakePendingRepo(), newFakeBackend(), nil, retry.Policy{}); err == nil {
		t.Fatal("expected error for invalid policy")
	}
}
