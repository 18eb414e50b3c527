package service

import (
	"testing"
	"time"

	"attendance-agent/internal/models"
	"attendance-agent/internal/repository"
)

func TestSessionStore_SaveLoadClear(t *testing.T) {
	kv := repository.NewMemoryKeyValueRepository()
	store := NewSessionStore(kv)

	end := time.UnixMilli(1767261600123)
	session := &models.AttendanceSession{
		SessionEndAt:    end,
		TotalSeconds:    28800,
		AnchorLatitude:  -6.2088,
		AnchorLongitude: 106.8456,
		ScheduleID:      "s-1",
		AppointmentID:   "a-1",
	}
	if err := store.Save(session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, ok, _ := kv.Get(KeyCheckinEnd)
	if !ok || raw != "1767261600123" {
		t.Errorf("checkin_end should be stored in milliseconds, got %q", raw)
	}

	loaded, err := store.Load()
	if err != nil || loaded == nil {
		t.Fatalf("Load: %v, %v", loaded, err)
	}
	if !loaded.SessionEndAt.Equal(end) || loaded.TotalSeconds != 28800 {
		t.Errorf("unexpected session %+v", loaded)
	}
	if loaded.AnchorLatitude != -6.2088 || loaded.AnchorLongitude != 106.8456 {
		t.Errorf("unexpected anchor %+v", loaded)
	}
	if loaded.ScheduleID != "s-1" || loaded.AppointmentID != "a-1" || loaded.Status != models.StatusCheckedIn {
		t.Errorf("unexpected ids %+v", loaded)
	}

	if err := store.SetUserEmail(testEmail); err != nil {
		t.Fatalf("SetUserEmail: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if loaded, _ := store.Load(); loaded != nil {
		t.Error("expected no session after clear")
	}
	if email, _ := store.UserEmail(); email != testEmail {
		t.Errorf("clear must keep the user, got %q", email)
	}
}

func TestSessionStore_LoadMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a number", "tomorrow"},
		{"zero", "0"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := repository.NewMemoryKeyValueRepository()
			store := NewSessionStore(kv)
			if err := kv.Set(KeyCheckinEnd, tt.value, 0); err != nil {
				t.Fatalf("Set: %v", err)
			}

			session, err := store.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if session != nil {
				t.Errorf("expected nil session, got %+v", session)
			}
		})
	}
}

func TestSessionStore_SaveRequiresEnd(t *testing.T) {
	store := NewSessionStore(repository.NewMemoryKeyValueRepository())
	if err := store.Save(&models.AttendanceSession{}); err == nil {
		t.Fatal("expected error for session without end time")
	}
}
