package service

import (
	"context"

	"attendance-agent/internal/backend"
	"attendance-agent/pkg/geofence"
)

// Имена фоновых задач
const (
	ScheduleMonitorTask = "SCHEDULE_MONITOR_TASK"
	CheckoutSyncTask    = "CHECKOUT_SYNC_TASK"
)

// AttendanceBackend удаленный API учета посещаемости
type AttendanceBackend interface {
	ClockIn(ctx context.Context, req backend.ClockInRequest) (*backend.ClockInResponse, error)
	ClockOut(ctx context.Context, req backend.ClockOutRequest) (*backend.ClockOutResponse, error)
	CheckScheduleClockOut(ctx context.Context, email, scheduleID string) (*backend.ScheduleStatus, error)
}

// Locator получение текущих координат
type Locator interface {
	CurrentPosition(ctx context.Context) (geofence.Position, error)
}

// GeofenceMonitor мониторинг геозон; Disarm неизвестной геозоны не ошибка
type GeofenceMonitor interface {
	Arm(region geofence.Region) error
	Disarm(id string) error
}

// TaskRegistry регистрация фоновых задач; обе операции идемпотентны
type TaskRegistry interface {
	Register(name string) error
	Unregister(name string) error
}

// Notifier локальные уведомления пользователю
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// CheckoutRecorder очередь неподтвержденных сервером завершений смены
type CheckoutRecorder interface {
	Record(ctx context.Context, req backend.ClockOutRequest, cause error) error
	Flush(ctx context.Context) error
}

// Listener получатель изменений смены (экран, бот)
type Listener interface {
	OnTick(progress Progress)
	OnSessionEnded(result *Result)
}
