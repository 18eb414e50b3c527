package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"attendance-agent/internal/backend"

	"github.com/sirupsen/logrus"
)

// ScheduleBackend источник графика работника
type ScheduleBackend interface {
	FetchMonthlySchedules(ctx context.Context, email string) (*backend.MonthlySchedules, error)
}

// ScheduleService график смен текущего пользователя
type ScheduleService struct {
	attendance *AttendanceService
	backend    ScheduleBackend
	logger     *logrus.Logger
}

func NewScheduleService(attendance *AttendanceService, api ScheduleBackend) *ScheduleService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &ScheduleService{
		attendance: attendance,
		backend:    api,
		logger:     logger,
	}
}

// MonthlySchedules график на месяц, отсортированный по дате и времени начала
func (s *ScheduleService) MonthlySchedules(ctx context.Context) (*backend.MonthlySchedules, error) {
	email, err := s.attendance.UserEmail()
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	if email == "" {
		return nil, ErrNoUser
	}

	schedules, err := s.backend.FetchMonthlySchedules(ctx, email)
	if err != nil {
		s.logger.WithError(err).WithField("email", email).Warn("Failed to fetch schedules")
		return nil, err
	}

	sort.SliceStable(schedules.Schedules, func(i, j int) bool {
		a, b := schedules.Schedules[i], schedules.Schedules[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.StartTime < b.StartTime
	})

	return schedules, nil
}

// FormatSchedules форматирует график для отображения, смены сгруппированы по дням
func (s *ScheduleService) FormatSchedules(schedules *backend.MonthlySchedules) string {
	if schedules == nil || len(schedules.Schedules) == 0 {
		return "📭 No schedules this month."
	}

	var result strings.Builder
	result.WriteString("📅 Your schedules:\n")

	lastDate := ""
	for _, schedule := range schedules.Schedules {
		if schedule.Date != lastDate {
			lastDate = schedule.Date
			header := formatScheduleDate(schedule.Date)
			if schedules.MarkedDates[schedule.Date] > 1 {
				header += fmt.Sprintf(" (%d shifts)", schedules.MarkedDates[schedule.Date])
			}
			result.WriteString("\n🗓 " + header + "\n")
		}

		result.WriteString(fmt.Sprintf("   %s - %s • $%.2f/hr\n", schedule.StartTime, schedule.EndTime, schedule.PayPerHour))
		if schedule.ClockIn != "" {
			clockOut := schedule.ClockOut
			if clockOut == "" {
				clockOut = "Not clocked out"
			}
			result.WriteString(fmt.Sprintf("   ⏱ Clocked: %s - %s\n", schedule.ClockIn, clockOut))
		}
	}

	return strings.TrimRight(result.String(), "\n")
}

func formatScheduleDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Monday, January 2")
}
