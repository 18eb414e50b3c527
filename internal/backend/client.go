package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	actionClockIn  = "clockin"
	actionClockOut = "clockout"

	maxResponseBytes = 1 << 20
)

// Client клиент API учета посещаемости (form-encoded POST, JSON-ответы)
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ClockIn открывает смену
func (c *Client) ClockIn(ctx context.Context, req ClockInRequest) (*ClockInResponse, error) {
	form := url.Values{}
	form.Set("email", req.Email)
	form.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
	form.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
	form.Set("action", actionClockIn)
	form.Set("timezone", req.Timezone)

	var payload clockInPayload
	if err := c.post(ctx, "attendance", form, &payload); err != nil {
		return nil, err
	}

	if !payload.ok() {
		c.logger.WithField("message", payload.Message).Warn("Clock in rejected")
		return nil, &RejectionError{Message: payload.Message}
	}

	resp := &ClockInResponse{
		Message:       payload.Message,
		Latitude:      float64(payload.Latitude),
		Longitude:     float64(payload.Longitude),
		WorkSeconds:   int64(payload.WorkSeconds),
		ScheduleID:    string(payload.ScheduleID),
		AppointmentID: string(payload.AppointmentID),
	}

	c.logger.WithFields(logrus.Fields{
		"work_seconds":   resp.WorkSeconds,
		"schedule_id":    resp.ScheduleID,
		"appointment_id": resp.AppointmentID,
	}).Info("Clock in accepted")

	return resp, nil
}

// ClockOut закрывает смену
func (c *Client) ClockOut(ctx context.Context, req ClockOutRequest) (*ClockOutResponse, error) {
	form := url.Values{}
	form.Set("email", req.Email)
	form.Set("action", actionClockOut)
	form.Set("timezone", req.Timezone)
	if req.Trigger != "" {
		form.Set("trigger", req.Trigger)
	}

	var payload envelope
	if err := c.post(ctx, "attendance", form, &payload); err != nil {
		return nil, err
	}

	if !payload.ok() {
		c.logger.WithField("message", payload.Message).Warn("Clock out rejected")
		return nil, &RejectionError{Message: payload.Message}
	}

	c.logger.WithField("trigger", req.Trigger).Info("Clock out accepted")
	return &ClockOutResponse{Message: payload.Message}, nil
}

// CheckScheduleClockOut спрашивает, закрыл ли сервер смену по графику
func (c *Client) CheckScheduleClockOut(ctx context.Context, email, scheduleID string) (*ScheduleStatus, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("schedule_id", scheduleID)

	var payload scheduleStatusPayload
	if err := c.post(ctx, "checkscheduleclockout", form, &payload); err != nil {
		return nil, err
	}

	return &ScheduleStatus{
		ClockedOut:   bool(payload.ClockedOut),
		ClockedOutAt: string(payload.ClockedOutAt),
	}, nil
}

// FetchMonthlySchedules график работника на текущий месяц
func (c *Client) FetchMonthlySchedules(ctx context.Context, email string) (*MonthlySchedules, error) {
	form := url.Values{}
	form.Set("email", email)

	var payload monthlySchedulesPayload
	if err := c.post(ctx, "fetchmonthlyschedules", form, &payload); err != nil {
		return nil, err
	}

	if !payload.ok() {
		c.logger.WithField("message", payload.Message).Warn("Schedules request rejected")
		return nil, &RejectionError{Message: payload.Message}
	}

	result := &MonthlySchedules{
		Schedules:   make([]Schedule, 0, len(payload.Data.Schedules)),
		MarkedDates: make(map[string]int, len(payload.Data.MarkedDates)),
	}
	for _, s := range payload.Data.Schedules {
		result.Schedules = append(result.Schedules, Schedule{
			ID:         string(s.ID),
			Date:       string(s.Date),
			StartTime:  string(s.StartTime),
			EndTime:    string(s.EndTime),
			PayPerHour: float64(s.PayPerHour),
			ClockIn:    string(s.ClockIn),
			ClockOut:   string(s.ClockOut),
		})
	}
	for date, mark := range payload.Data.MarkedDates {
		result.MarkedDates[date] = int(mark.Count)
	}

	c.logger.WithField("schedules", len(result.Schedules)).Debug("Schedules fetched")
	return result, nil
}

// FetchProfile анкета работника
func (c *Client) FetchProfile(ctx context.Context, email string) (*Profile, error) {
	form := url.Values{}
	form.Set("email", email)

	var payload profilePayload
	if err := c.post(ctx, "fetchprofileinfo", form, &payload); err != nil {
		return nil, err
	}

	if !payload.ok() {
		c.logger.WithField("message", payload.Message).Warn("Profile request rejected")
		return nil, &RejectionError{Message: payload.Message}
	}

	data := payload.Data
	profile := &Profile{
		Address:                 string(data.Address),
		City:                    string(data.City),
		Province:                string(data.Province),
		PostalCode:              string(data.PostalCode),
		DateOfBirth:             string(data.DateOfBirth),
		ContactNumber:           string(data.ContactNumber),
		DriverLicenseExpiryDate: string(data.DriverLicenseExpiryDate),
	}
	for _, d := range data.Documents {
		profile.Documents = append(profile.Documents, d.document())
	}
	for _, d := range data.Certifications {
		profile.Certifications = append(profile.Certifications, d.document())
	}

	return profile, nil
}

// SaveNotificationToken сохраняет токен уведомлений; ответ сервера не анализируется
func (c *Client) SaveNotificationToken(ctx context.Context, email, token string) error {
	form := url.Values{}
	form.Set("email", email)
	form.Set("token", token)

	return c.post(ctx, "save_notification_token", form, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	requestID := uuid.NewString()
	logger := c.logger.WithFields(logrus.Fields{
		"endpoint":   endpoint,
		"request_id": requestID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &NetworkError{Op: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Backend request failed")
		return &NetworkError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	logger.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Backend responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &NetworkError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		logger.WithError(err).Warn("Failed to decode backend response")
		return &NetworkError{Op: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}
