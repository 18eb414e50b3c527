package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"attendance-agent/internal/backend"
	"attendance-agent/internal/models"
	"attendance-agent/internal/service"
	"attendance-agent/pkg/geofence"

	"github.com/gin-gonic/gin"
)

// Attendance операции смены, доступные по HTTP
type Attendance interface {
	Snapshot() *service.Result
	RequestCheckIn(ctx context.Context, email string) (*service.Result, error)
	RequestCheckOut(ctx context.Context, trigger models.Trigger) (*service.Result, error)
}

// PositionFeed получатель координат
type PositionFeed interface {
	Update(ctx context.Context, pos geofence.Position) error
}

// Handler HTTP-привязка смены и прием событий геолокации
type Handler struct {
	attendance Attendance
	positions  PositionFeed
	events     geofence.Handler
}

func NewHandler(attendance Attendance, positions PositionFeed, events geofence.Handler) *Handler {
	return &Handler{
		attendance: attendance,
		positions:  positions,
		events:     events,
	}
}

type checkInRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
}

type checkOutRequest struct {
	Trigger models.Trigger `json:"trigger"`
}

type positionRequest struct {
	Latitude  *float64  `json:"latitude" binding:"required"`
	Longitude *float64  `json:"longitude" binding:"required"`
	Accuracy  float64   `json:"accuracy" binding:"gte=0"`
	Timestamp time.Time `json:"timestamp"`
}

func (r positionRequest) position() geofence.Position {
	return geofence.Position{
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		Accuracy:  r.Accuracy,
		Timestamp: r.Timestamp,
	}
}

type geofenceEventRequest struct {
	Type     geofence.EventType `json:"type" binding:"required,oneof=enter exit"`
	RegionID string             `json:"region_id" binding:"required"`
	positionRequest
}

// GetSession текущее состояние смены
// GET /api/v1/session
func (h *Handler) GetSession(c *gin.Context) {
	OK(c, h.attendance.Snapshot())
}

// CheckIn начать смену
// POST /api/v1/session/checkin
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request body")
			return
		}
	}

	result, err := h.attendance.RequestCheckIn(c.Request.Context(), req.Email)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	OK(c, result)
}

// CheckOut завершить смену; по умолчанию вручную
// POST /api/v1/session/checkout
func (h *Handler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request body")
			return
		}
	}

	if req.Trigger == "" {
		req.Trigger = models.TriggerManual
	}
	// закрытие сервером приходит только от монитора графика
	if !req.Trigger.IsValid() || req.Trigger == models.TriggerScheduleMonitor {
		BadRequest(c, "invalid trigger")
		return
	}

	result, err := h.attendance.RequestCheckOut(c.Request.Context(), req.Trigger)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	OK(c, result)
}

// PostLocation принять координаты устройства
// POST /api/v1/location
func (h *Handler) PostLocation(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "latitude and longitude are required")
		return
	}

	if err := h.positions.Update(c.Request.Context(), req.position()); err != nil {
		if errors.Is(err, geofence.ErrInvalidPosition) {
			BadRequest(c, err.Error())
			return
		}
		_ = c.Error(err)
		InternalError(c)
		return
	}

	OK(c, nil)
}

// PostGeofenceEvent принять событие геозоны от системного мониторинга
// POST /api/v1/geofence/events
func (h *Handler) PostGeofenceEvent(c *gin.Context) {
	var req geofenceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid geofence event")
		return
	}

	event := geofence.Event{
		Type:     req.Type,
		RegionID: req.RegionID,
		Position: req.position(),
	}
	if !event.Position.IsValid() {
		BadRequest(c, geofence.ErrInvalidPosition.Error())
		return
	}

	h.events(c.Request.Context(), event)

	OK(c, h.attendance.Snapshot())
}

// Health проверка живости
// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleSessionError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case backend.IsRejection(err):
		Error(c, http.StatusUnprocessableEntity, CodeRejected, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		Error(c, http.StatusConflict, CodeInvalidState, err.Error())
	case errors.Is(err, service.ErrLocationUnavailable):
		Error(c, http.StatusServiceUnavailable, CodeLocationUnavailable, err.Error())
	case errors.Is(err, service.ErrNoUser):
		Error(c, http.StatusUnauthorized, CodeNoUser, err.Error())
	case backend.IsNetwork(err):
		Error(c, http.StatusBadGateway, CodeBackendUnavailable, "attendance server is unreachable")
	default:
		InternalError(c)
	}
}
