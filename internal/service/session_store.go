package service

import (
	"fmt"
	"strconv"
	"time"

	"attendance-agent/internal/models"
	"attendance-agent/internal/repository"

	"github.com/sirupsen/logrus"
)

// Ключи локального хранилища
const (
	KeyCheckinEnd     = "checkin_end"
	KeyCheckinTotal   = "checkin_total"
	KeyAppointmentLat = "appointmentLat"
	KeyAppointmentLng = "appointmentLng"
	KeyScheduleID     = "schedule_id"
	KeyAppointmentID  = "appointment_id"
	KeyUserToken      = "userToken"
)

// UserTokenTTL срок хранения входа пользователя
const UserTokenTTL = 30 * 24 * time.Hour

var sessionKeys = []string{
	KeyCheckinEnd,
	KeyCheckinTotal,
	KeyAppointmentLat,
	KeyAppointmentLng,
	KeyScheduleID,
	KeyAppointmentID,
}

// SessionStore сохраняет смену в хранилище ключ-значение.
// Все поля смены пишутся и удаляются одной операцией.
type SessionStore struct {
	repo   repository.KeyValueRepository
	logger *logrus.Logger
}

func NewSessionStore(repo repository.KeyValueRepository) *SessionStore {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &SessionStore{
		repo:   repo,
		logger: logger,
	}
}

// Save сохраняет открытую смену
func (s *SessionStore) Save(session *models.AttendanceSession) error {
	if session == nil || session.SessionEndAt.IsZero() {
		return fmt.Errorf("session end time is required")
	}

	values := map[string]string{
		KeyCheckinEnd:     strconv.FormatInt(session.SessionEndAt.UnixMilli(), 10),
		KeyCheckinTotal:   strconv.FormatInt(session.TotalSeconds, 10),
		KeyAppointmentLat: strconv.FormatFloat(session.AnchorLatitude, 'f', -1, 64),
		KeyAppointmentLng: strconv.FormatFloat(session.AnchorLongitude, 'f', -1, 64),
		KeyScheduleID:     session.ScheduleID,
		KeyAppointmentID:  session.AppointmentID,
	}

	if err := s.repo.SetMany(values, 0); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_end_at": session.SessionEndAt.Format(time.RFC3339),
		"schedule_id":    session.ScheduleID,
	}).Debug("Session saved")

	return nil
}

// Load читает смену; nil без ошибки, если сохраненного времени окончания нет или оно повреждено
func (s *SessionStore) Load() (*models.AttendanceSession, error) {
	endRaw, ok, err := s.repo.Get(KeyCheckinEnd)
	if err != nil {
		return nil, fmt.Errorf("load session end: %w", err)
	}
	if !ok || endRaw == "" {
		return nil, nil
	}

	endMs, err := strconv.ParseInt(endRaw, 10, 64)
	if err != nil || endMs <= 0 {
		s.logger.WithField("value", endRaw).Warn("Stored session end is malformed, ignoring")
		return nil, nil
	}

	session := &models.AttendanceSession{
		Status:       models.StatusCheckedIn,
		SessionEndAt: time.UnixMilli(endMs),
	}

	if session.TotalSeconds, err = s.getInt(KeyCheckinTotal); err != nil {
		return nil, err
	}
	if session.AnchorLatitude, err = s.getFloat(KeyAppointmentLat); err != nil {
		return nil, err
	}
	if session.AnchorLongitude, err = s.getFloat(KeyAppointmentLng); err != nil {
		return nil, err
	}
	if session.ScheduleID, err = s.getString(KeyScheduleID); err != nil {
		return nil, err
	}
	if session.AppointmentID, err = s.getString(KeyAppointmentID); err != nil {
		return nil, err
	}

	return session, nil
}

// Clear удаляет все поля смены
func (s *SessionStore) Clear() error {
	if err := s.repo.RemoveMany(sessionKeys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Debug("Session cleared")
	return nil
}

// ScheduleID идентификатор графика текущей смены, "" если его нет
func (s *SessionStore) ScheduleID() (string, error) {
	return s.getString(KeyScheduleID)
}

// UserEmail email вошедшего пользователя, "" если вход истек
func (s *SessionStore) UserEmail() (string, error) {
	return s.getString(KeyUserToken)
}

func (s *SessionStore) SetUserEmail(email string) error {
	if err := s.repo.Set(KeyUserToken, email, UserTokenTTL); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *SessionStore) ClearUserEmail() error {
	return s.repo.Remove(KeyUserToken)
}

func (s *SessionStore) getString(key string) (string, error) {
	value, _, err := s.repo.Get(key)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

func (s *SessionStore) getFloat(key string) (float64, error) {
	raw, err := s.getString(key)
	if err != nil || raw == "" {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.logger.WithField("key", key).Warn("Stored value is not a number")
		return 0, nil
	}
	return v, nil
}

func (s *SessionStore) getInt(key string) (int64, error) {
	raw, err := s.getString(key)
	if err != nil || raw == "" {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.WithField("key", key).Warn("Stored value is not an integer")
		return 0, nil
	}
	return v, nil
}
