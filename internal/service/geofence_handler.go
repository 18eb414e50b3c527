package service

import (
	"context"

	"attendance-agent/internal/models"
	"attendance-agent/pkg/geofence"

	"github.com/sirupsen/logrus"
)

// Тексты уведомлений о геозоне
const (
	TitleLeftWorkArea    = "Leaving Appointment"
	BodyLeftWorkArea     = "You're leaving your appointment location. If you move too far, you will be clocked out automatically."
	TitleEnteredWorkArea = "Appointment Location"
	BodyEnteredWorkArea  = "You are at your appointment location. Your shift is in progress."
)

// GeofenceHandler реакция на пересечение границ геозоны смены
type GeofenceHandler struct {
	attendance *AttendanceService
	notifier   Notifier
	logger     *logrus.Logger
}

func NewGeofenceHandler(attendance *AttendanceService, notifier Notifier) *GeofenceHandler {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &GeofenceHandler{
		attendance: attendance,
		notifier:   notifier,
		logger:     logger,
	}
}

// HandleEvent обрабатывает событие геозоны. Без сохраненной смены или для чужой
// геозоны событие игнорируется.
func (h *GeofenceHandler) HandleEvent(ctx context.Context, event geofence.Event) {
	logger := h.logger.WithFields(logrus.Fields{
		"type":      event.Type,
		"region_id": event.RegionID,
		"position":  event.Position.String(),
	})

	regionID, ok, err := h.attendance.ActiveRegion()
	if err != nil {
		logger.WithError(err).Error("Failed to read active session for geofence event")
		return
	}
	if !ok {
		logger.Debug("Geofence event without active session, ignored")
		return
	}
	if regionID != event.RegionID {
		logger.WithField("active_region_id", regionID).Debug("Geofence event for another region, ignored")
		return
	}

	switch event.Type {
	case geofence.EventExit:
		logger.Info("User left work area")
		h.notify(ctx, TitleLeftWorkArea, BodyLeftWorkArea)

		result, err := h.attendance.RequestCheckOut(ctx, models.TriggerGeofenceExit)
		if err != nil {
			logger.WithError(err).Error("Geofence checkout failed")
			return
		}
		if result.Noop {
			logger.Debug("Session already closed")
		}
	case geofence.EventEnter:
		logger.Info("User entered work area")
		h.notify(ctx, TitleEnteredWorkArea, BodyEnteredWorkArea)
	default:
		logger.Warn("Unknown geofence event type")
	}
}

func (h *GeofenceHandler) notify(ctx context.Context, title, body string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, title, body); err != nil {
		h.logger.WithError(err).Warn("Failed to send notification")
	}
}
