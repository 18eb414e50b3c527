package service

import (
	"context"
	"fmt"

	"attendance-agent/internal/models"

	"github.com/sirupsen/logrus"
)

// TitleShiftEnded заголовок уведомления о закрытии смены сервером
const TitleShiftEnded = "Shift Ended"

// ScheduleMonitor фоновая проверка закрытия смены на сервере
type ScheduleMonitor struct {
	attendance *AttendanceService
	backend    AttendanceBackend
	notifier   Notifier
	logger     *logrus.Logger
}

func NewScheduleMonitor(attendance *AttendanceService, api AttendanceBackend, notifier Notifier) *ScheduleMonitor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &ScheduleMonitor{
		attendance: attendance,
		backend:    api,
		notifier:   notifier,
		logger:     logger,
	}
}

// Poll спрашивает сервер о закрытии графика текущей смены. Если график закрыт,
// смена завершается локально без повторного запроса к серверу.
func (m *ScheduleMonitor) Poll(ctx context.Context) error {
	scheduleID, err := m.attendance.ActiveScheduleID()
	if err != nil {
		return fmt.Errorf("read schedule id: %w", err)
	}
	if scheduleID == "" {
		m.logger.Debug("No active schedule, nothing to poll")
		return nil
	}

	email, err := m.attendance.UserEmail()
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	if email == "" {
		m.logger.Warn("No user for schedule poll")
		return ErrNoUser
	}

	logger := m.logger.WithField("schedule_id", scheduleID)

	status, err := m.backend.CheckScheduleClockOut(ctx, email, scheduleID)
	if err != nil {
		logger.WithError(err).Warn("Schedule status check failed")
		return err
	}
	if !status.ClockedOut {
		logger.Debug("Schedule still open")
		return nil
	}

	logger.WithField("clocked_out_at", status.ClockedOutAt).Info("Schedule closed by server")

	result, err := m.attendance.RequestCheckOut(ctx, models.TriggerScheduleMonitor)
	if err != nil {
		return err
	}
	if result.Noop {
		// смену уже закрыл другой источник
		logger.WithError(ErrReconciliationConflict).Debug("Session already closed locally")
		return nil
	}

	if m.notifier != nil {
		// завершение снимает задачу монитора и отменяет ее контекст
		body := fmt.Sprintf("You were checked out at %s.", displayTime(status.ClockedOutAt))
		if err := m.notifier.Notify(context.WithoutCancel(ctx), TitleShiftEnded, body); err != nil {
			logger.WithError(err).Warn("Failed to send notification")
		}
	}

	return nil
}

func displayTime(at string) string {
	if at == "" {
		return "the end of your schedule"
	}
	return at
}
