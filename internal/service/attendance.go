package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"attendance-agent/internal/backend"
	"attendance-agent/internal/models"
	"attendance-agent/pkg/geofence"

	"github.com/sirupsen/logrus"
)

// Сообщения о завершении смены по источнику
const (
	MessageShiftCompleted    = "Shift completed successfully"
	MessageAutoCheckedOut    = "You have been automatically checked out"
	MessageServerCheckedOut  = "Your shift was closed by the server"
	defaultWorkSeconds int64 = 3600
)

// CheckOutMessage подтверждение для пользователя по источнику завершения
func CheckOutMessage(trigger models.Trigger) string {
	switch trigger {
	case models.TriggerManual:
		return MessageShiftCompleted
	case models.TriggerScheduleMonitor:
		return MessageServerCheckedOut
	default:
		return MessageAutoCheckedOut
	}
}

// Command команда автомату смены
type Command interface {
	isCommand()
}

// CheckIn начать смену
type CheckIn struct {
	Email string
}

// CheckOut завершить смену
type CheckOut struct {
	Trigger models.Trigger
}

func (CheckIn) isCommand()  {}
func (CheckOut) isCommand() {}

// Result состояние после команды
type Result struct {
	Status           models.Status             `json:"status"`
	Session          *models.AttendanceSession `json:"session,omitempty"`
	RemainingSeconds int64                     `json:"remaining_seconds"`
	Trigger          models.Trigger            `json:"trigger,omitempty"`
	Message          string                    `json:"message,omitempty"`
	Noop             bool                      `json:"noop,omitempty"`
	Synced           bool                      `json:"synced,omitempty"` // сервер подтвердил завершение
	Queued           bool                      `json:"queued,omitempty"` // завершение будет отправлено повторно
}

// Progress отсчет времени смены
type Progress struct {
	RemainingSeconds int64     `json:"remaining_seconds"`
	TotalSeconds     int64     `json:"total_seconds"`
	Fraction         float64   `json:"fraction"`
	SessionEndAt     time.Time `json:"session_end_at"`
}

// Options параметры автомата смены
type Options struct {
	Timezone        string
	RadiusMeters    float64
	LocationTimeout time.Duration
	TickInterval    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timezone == "" {
		o.Timezone = time.Local.String()
	}
	if o.RadiusMeters <= 0 {
		o.RadiusMeters = geofence.DefaultRadiusMeters
	}
	if o.LocationTimeout <= 0 {
		o.LocationTimeout = 15 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	return o
}

// AttendanceService автомат состояний смены. Единственный, кто пишет сохраненную смену;
// обработчик геозон и монитор графика вызывают его методы.
type AttendanceService struct {
	mu         sync.Mutex
	status     models.Status
	session    *models.AttendanceSession
	tickCancel context.CancelFunc
	listeners  []Listener

	store     *SessionStore
	backend   AttendanceBackend
	locator   Locator
	geofences GeofenceMonitor
	tasks     TaskRegistry
	pending   CheckoutRecorder
	opts      Options
	now       func() time.Time
	logger    *logrus.Logger
}

func NewAttendanceService(
	store *SessionStore,
	api AttendanceBackend,
	locator Locator,
	geofences GeofenceMonitor,
	tasks TaskRegistry,
	pending CheckoutRecorder,
	opts Options,
) *AttendanceService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &AttendanceService{
		status:    models.StatusNotCheckedIn,
		store:     store,
		backend:   api,
		locator:   locator,
		geofences: geofences,
		tasks:     tasks,
		pending:   pending,
		opts:      opts.withDefaults(),
		now:       time.Now,
		logger:    logger,
	}
}

// AddListener подписывает получателя на отсчет и завершение смены
func (s *AttendanceService) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Dispatch выполняет команду
func (s *AttendanceService) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	switch c := cmd.(type) {
	case CheckIn:
		return s.RequestCheckIn(ctx, c.Email)
	case CheckOut:
		return s.RequestCheckOut(ctx, c.Trigger)
	default:
		return nil, fmt.Errorf("unknown command %T", cmd)
	}
}

// RequestCheckIn открывает смену: координаты, запрос к серверу, сохранение,
// постановка геозоны и монитора графика
func (s *AttendanceService) RequestCheckIn(ctx context.Context, email string) (*Result, error) {
	s.mu.Lock()
	if s.status != models.StatusNotCheckedIn {
		status := s.status
		s.mu.Unlock()
		s.logger.WithField("status", status).Debug("Check in ignored")
		return nil, ErrInvalidState
	}
	s.status = models.StatusProcessing
	s.mu.Unlock()

	explicit := email != ""
	if !explicit {
		stored, err := s.store.UserEmail()
		if err != nil {
			s.rollback(models.StatusNotCheckedIn)
			return nil, err
		}
		email = stored
	}
	if email == "" {
		s.rollback(models.StatusNotCheckedIn)
		return nil, ErrNoUser
	}

	logger := s.logger.WithField("email", email)
	logger.Info("User checking in")

	if s.pending != nil {
		if err := s.pending.Flush(ctx); err != nil {
			logger.WithError(err).Warn("Failed to flush pending checkouts before check in")
		}
	}

	lctx, cancel := context.WithTimeout(ctx, s.opts.LocationTimeout)
	pos, err := s.locator.CurrentPosition(lctx)
	cancel()
	if err != nil {
		s.rollback(models.StatusNotCheckedIn)
		logger.WithError(err).Warn("Location unavailable for check in")
		return nil, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}

	resp, err := s.backend.ClockIn(ctx, backend.ClockInRequest{
		Email:     email,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Timezone:  s.opts.Timezone,
	})
	if err != nil {
		s.rollback(models.StatusNotCheckedIn)
		logger.WithError(err).Warn("Check in failed")
		return nil, err
	}

	workSeconds := resp.WorkSeconds
	if workSeconds <= 0 {
		logger.WithField("work_seconds", resp.WorkSeconds).Warn("Server returned no work duration, using default")
		workSeconds = defaultWorkSeconds
	}

	session := &models.AttendanceSession{
		Status:          models.StatusCheckedIn,
		SessionEndAt:    s.now().Add(time.Duration(workSeconds) * time.Second).Truncate(time.Millisecond),
		TotalSeconds:    workSeconds,
		AnchorLatitude:  resp.Latitude,
		AnchorLongitude: resp.Longitude,
		ScheduleID:      resp.ScheduleID,
		AppointmentID:   resp.AppointmentID,
	}
	if session.AnchorLatitude == 0 && session.AnchorLongitude == 0 {
		session.AnchorLatitude = pos.Latitude
		session.AnchorLongitude = pos.Longitude
	}

	// сервер уже открыл смену, поэтому ошибка записи не откатывает ее
	if err := s.store.Save(session); err != nil {
		logger.WithError(err).Error("Failed to persist session")
	}
	if explicit {
		if err := s.store.SetUserEmail(email); err != nil {
			logger.WithError(err).Warn("Failed to remember user")
		}
	}
	s.arm(session)

	s.mu.Lock()
	s.status = models.StatusCheckedIn
	s.session = session
	s.startCountdownLocked()
	result := s.resultLocked()
	s.mu.Unlock()

	result.Message = resp.Message

	logger.WithFields(logrus.Fields{
		"session_end_at": session.SessionEndAt.Format(time.RFC3339),
		"schedule_id":    session.ScheduleID,
		"remaining":      result.RemainingSeconds,
	}).Info("User checked in successfully")

	return result, nil
}

// RequestCheckOut завершает смену. Повторный вызов или вызов во время другого
// запроса ничего не делает и не возвращает ошибку. Локальное завершение
// не зависит от ответа сервера.
func (s *AttendanceService) RequestCheckOut(ctx context.Context, trigger models.Trigger) (*Result, error) {
	if !trigger.IsValid() {
		return nil, fmt.Errorf("unknown checkout trigger %q", trigger)
	}

	s.mu.Lock()
	if s.status != models.StatusCheckedIn {
		result := s.resultLocked()
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"trigger": trigger,
			"status":  result.Status,
		}).Debug("Check out ignored, no active session")
		result.Noop = true
		result.Trigger = trigger
		return result, nil
	}
	s.status = models.StatusProcessing
	session := s.session
	s.stopCountdownLocked()
	s.mu.Unlock()

	logger := s.logger.WithField("trigger", trigger)
	logger.Info("User checking out")

	synced, queued := false, false
	if trigger == models.TriggerScheduleMonitor {
		// сервер уже закрыл смену
		synced = true
	} else {
		synced, queued = s.confirmCheckOut(ctx, trigger)
	}

	s.disarm(session)
	if err := s.store.Clear(); err != nil {
		logger.WithError(err).Error("Failed to clear persisted session")
	}

	s.mu.Lock()
	s.status = models.StatusNotCheckedIn
	s.session = nil
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	result := &Result{
		Status:  models.StatusNotCheckedIn,
		Trigger: trigger,
		Message: CheckOutMessage(trigger),
		Synced:  synced,
		Queued:  queued,
	}

	for _, l := range listeners {
		l.OnSessionEnded(result)
	}

	logger.WithFields(logrus.Fields{
		"synced": synced,
		"queued": queued,
	}).Info("User checked out")
	return result, nil
}

// confirmCheckOut отправляет завершение на сервер; сетевые сбои ставятся в очередь.
// Возвращает, подтвердил ли сервер завершение и попало ли оно в очередь.
func (s *AttendanceService) confirmCheckOut(ctx context.Context, trigger models.Trigger) (synced, queued bool) {
	email, err := s.store.UserEmail()
	if err != nil || email == "" {
		s.logger.WithError(err).Warn("No user for checkout confirmation, skipping server call")
		return false, false
	}

	req := backend.ClockOutRequest{
		Email:    email,
		Timezone: s.opts.Timezone,
		Trigger:  string(trigger),
	}

	if _, err := s.backend.ClockOut(ctx, req); err != nil {
		if backend.IsRejection(err) {
			s.logger.WithError(err).Warn("Server rejected checkout, session closed locally")
			return false, false
		}

		if s.pending == nil {
			s.logger.WithError(err).Warn("Checkout not confirmed by server")
			return false, false
		}
		if err := s.pending.Record(context.WithoutCancel(ctx), req, err); err != nil {
			s.logger.WithError(err).Error("Failed to queue checkout for sync")
			return false, false
		}
		s.logger.WithError(err).Warn("Checkout not confirmed by server, queued for sync")
		return false, true
	}

	return true, false
}

// Resume восстанавливает смену после перезапуска
func (s *AttendanceService) Resume(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.status == models.StatusCheckedIn {
		session := s.session
		result := s.resultLocked()
		s.mu.Unlock()
		s.arm(session)
		return result, nil
	}
	if s.status == models.StatusProcessing {
		result := s.resultLocked()
		s.mu.Unlock()
		return result, nil
	}
	s.mu.Unlock()

	session, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	if session == nil {
		// остатки полей без времени окончания не должны переживать старт
		if err := s.store.Clear(); err != nil {
			s.logger.WithError(err).Warn("Failed to normalize stored session")
		}
		s.logger.Info("No stored session, not checked in")
		return &Result{Status: models.StatusNotCheckedIn}, nil
	}

	s.mu.Lock()
	if s.status != models.StatusNotCheckedIn {
		result := s.resultLocked()
		s.mu.Unlock()
		return result, nil
	}
	s.status = models.StatusCheckedIn
	s.session = session
	expired := session.IsExpired(s.now())
	if !expired {
		s.startCountdownLocked()
	}
	result := s.resultLocked()
	s.mu.Unlock()

	if expired {
		s.logger.WithField("session_end_at", session.SessionEndAt.Format(time.RFC3339)).Info("Stored session already expired")
		return s.RequestCheckOut(ctx, models.TriggerTimerExpired)
	}

	s.arm(session)

	s.logger.WithFields(logrus.Fields{
		"remaining":   result.RemainingSeconds,
		"schedule_id": session.ScheduleID,
	}).Info("Session resumed")

	return result, nil
}

// Tick пересчитывает оставшееся время и по его истечении завершает смену
func (s *AttendanceService) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.status != models.StatusCheckedIn || s.session == nil {
		s.mu.Unlock()
		return
	}
	now := s.now()
	progress := Progress{
		RemainingSeconds: s.session.RemainingSeconds(now),
		TotalSeconds:     s.session.TotalSeconds,
		Fraction:         s.session.Progress(now),
		SessionEndAt:     s.session.SessionEndAt,
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(progress)
	}

	if progress.RemainingSeconds == 0 {
		if _, err := s.RequestCheckOut(context.WithoutCancel(ctx), models.TriggerTimerExpired); err != nil {
			s.logger.WithError(err).Error("Timer checkout failed")
		}
	}
}

// Snapshot текущее состояние
func (s *AttendanceService) Snapshot() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked()
}

// Status текущее состояние автомата
func (s *AttendanceService) Status() models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsCheckedIn true, пока смена открыта
func (s *AttendanceService) IsCheckedIn() bool {
	return s.Status() == models.StatusCheckedIn
}

// ActiveRegion геозона сохраненной смены; ok=false, если смены нет
func (s *AttendanceService) ActiveRegion() (string, bool, error) {
	session, err := s.store.Load()
	if err != nil {
		return "", false, err
	}
	if session == nil {
		return "", false, nil
	}
	return session.RegionID(), true, nil
}

// ActiveScheduleID график сохраненной смены, "" если смены нет
func (s *AttendanceService) ActiveScheduleID() (string, error) {
	session, err := s.store.Load()
	if err != nil || session == nil {
		return "", err
	}
	return session.ScheduleID, nil
}

// UserEmail email вошедшего пользователя
func (s *AttendanceService) UserEmail() (string, error) {
	return s.store.UserEmail()
}

// Login запоминает пользователя
func (s *AttendanceService) Login(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if err := s.store.SetUserEmail(email); err != nil {
		return err
	}
	s.logger.WithField("email", email).Info("User logged in")
	return nil
}

// Logout забывает пользователя; во время смены запрещен
func (s *AttendanceService) Logout() error {
	if s.Status() != models.StatusNotCheckedIn {
		return ErrInvalidState
	}
	return s.store.ClearUserEmail()
}

// Shutdown останавливает отсчет; сохраненная смена остается для Resume
func (s *AttendanceService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCountdownLocked()
}

func (s *AttendanceService) rollback(to models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = to
}

func (s *AttendanceService) arm(session *models.AttendanceSession) {
	if session == nil {
		return
	}

	if s.geofences != nil {
		region := geofence.Region{
			ID:           session.RegionID(),
			Latitude:     session.AnchorLatitude,
			Longitude:    session.AnchorLongitude,
			RadiusMeters: s.opts.RadiusMeters,
		}
		if err := s.geofences.Arm(region); err != nil {
			s.logger.WithError(err).WithField("region_id", region.ID).Error("Failed to arm geofence")
		}
	}

	if s.tasks != nil && session.ScheduleID != "" {
		if err := s.tasks.Register(ScheduleMonitorTask); err != nil {
			s.logger.WithError(err).Error("Failed to register schedule monitor")
		}
	}
}

func (s *AttendanceService) disarm(session *models.AttendanceSession) {
	if s.geofences != nil && session != nil {
		if err := s.geofences.Disarm(session.RegionID()); err != nil {
			s.logger.WithError(err).Warn("Failed to disarm geofence")
		}
	}
	if s.tasks != nil {
		if err := s.tasks.Unregister(ScheduleMonitorTask); err != nil {
			s.logger.WithError(err).Warn("Failed to unregister schedule monitor")
		}
	}
}

func (s *AttendanceService) startCountdownLocked() {
	s.stopCountdownLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	go s.runCountdown(ctx, s.opts.TickInterval)
}

func (s *AttendanceService) stopCountdownLocked() {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
}

func (s *AttendanceService) runCountdown(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.Tick(ctx)
		}
	}
}

func (s *AttendanceService) resultLocked() *Result {
	result := &Result{Status: s.status}
	if s.session != nil && s.status != models.StatusNotCheckedIn {
		copied := *s.session
		result.Session = &copied
		result.RemainingSeconds = s.session.RemainingSeconds(s.now())
	}
	return result
}
