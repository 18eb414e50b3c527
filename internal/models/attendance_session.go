package models

import (
	"fmt"
	"time"
)

// Status состояние сессии учета рабочего времени
type Status int

const (
	StatusNotCheckedIn Status = iota // Не на смене
	StatusCheckedIn                  // На смене
	StatusProcessing                 // Идет запрос к серверу
)

func (s Status) String() string {
	switch s {
	case StatusNotCheckedIn:
		return "not_checked_in"
	case StatusCheckedIn:
		return "checked_in"
	case StatusProcessing:
		return "processing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger источник завершения смены
type Trigger string

const (
	TriggerManual          Trigger = "manual"
	TriggerTimerExpired    Trigger = "timer_expired"
	TriggerGeofenceExit    Trigger = "geofence_exit"
	TriggerScheduleMonitor Trigger = "schedule_monitor"
)

// IsValid проверяет, что триггер известен
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerManual, TriggerTimerExpired, TriggerGeofenceExit, TriggerScheduleMonitor:
		return true
	}
	return false
}

// IsAutomatic возвращает true для завершений без участия пользователя
func (t Trigger) IsAutomatic() bool {
	return t != TriggerManual
}

// AttendanceSession текущая смена работника
type AttendanceSession struct {
	Status          Status    `json:"status"`
	SessionEndAt    time.Time `json:"session_end_at"`
	TotalSeconds    int64     `json:"total_seconds"`
	AnchorLatitude  float64   `json:"anchor_latitude"`
	AnchorLongitude float64   `json:"anchor_longitude"`
	ScheduleID      string    `json:"schedule_id,omitempty"`
	AppointmentID   string    `json:"appointment_id,omitempty"`
}

// RemainingSeconds вычисляет оставшиеся секунды смены, не меньше нуля
func (s *AttendanceSession) RemainingSeconds(now time.Time) int64 {
	if s == nil || s.SessionEndAt.IsZero() {
		return 0
	}
	ms := s.SessionEndAt.UnixMilli() - now.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return ms / 1000
}

// IsExpired проверяет, закончилось ли время смены
func (s *AttendanceSession) IsExpired(now time.Time) bool {
	return s.RemainingSeconds(now) == 0
}

// Progress доля прошедшего времени смены от 0 до 1
func (s *AttendanceSession) Progress(now time.Time) float64 {
	if s.TotalSeconds <= 0 {
		return 0
	}
	done := 1 - float64(s.RemainingSeconds(now))/float64(s.TotalSeconds)
	if done < 0 {
		return 0
	}
	if done > 1 {
		return 1
	}
	return done
}

// RegionID идентификатор геозоны, привязанный к назначению или графику
func (s *AttendanceSession) RegionID() string {
	switch {
	case s.AppointmentID != "":
		return "appointment-" + s.AppointmentID
	case s.ScheduleID != "":
		return "schedule-" + s.ScheduleID
	default:
		return "attendance-session"
	}
}

// FormatRemaining форматирует оставшееся время как ЧЧ:ММ:СС
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
