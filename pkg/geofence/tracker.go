package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrInvalidPosition = errors.New("invalid position")

// Handler получает события пересечения границ геозон
type Handler func(ctx context.Context, event Event)

type trackedRegion struct {
	region Region
	inside *bool // nil пока не было ни одной точки
}

// Tracker программный мониторинг геозон по потоку координат.
// Повторная постановка геозоны с тем же ID заменяет ее, дубликатов не бывает.
type Tracker struct {
	mu      sync.Mutex
	regions map[string]*trackedRegion
	handler Handler
	last    *Position
	waiters []chan Position
	maxAge  time.Duration
	now     func() time.Time
	logger  *logrus.Logger
}

func NewTracker(maxAge time.Duration) *Tracker {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &Tracker{
		regions: make(map[string]*trackedRegion),
		maxAge:  maxAge,
		now:     time.Now,
		logger:  logger,
	}
}

// SetHandler задает получателя событий
func (t *Tracker) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Arm ставит геозону на мониторинг
func (t *Tracker) Arm(region Region) error {
	if region.ID == "" {
		return errors.New("region id is required")
	}
	if region.RadiusMeters <= 0 {
		return fmt.Errorf("invalid radius %.1f for region %s", region.RadiusMeters, region.ID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.regions[region.ID]; ok && existing.region == region {
		t.logger.WithField("region_id", region.ID).Debug("Region already armed")
		return nil
	}

	t.regions[region.ID] = &trackedRegion{region: region}

	t.logger.WithFields(logrus.Fields{
		"region_id": region.ID,
		"center":    fmt.Sprintf("%.6f,%.6f", region.Latitude, region.Longitude),
		"radius":    region.RadiusMeters,
	}).Info("Geofence armed")

	return nil
}

// Disarm снимает геозону; отсутствие геозоны не ошибка
func (t *Tracker) Disarm(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.regions[id]; !ok {
		t.logger.WithField("region_id", id).Debug("Region not armed, nothing to disarm")
		return nil
	}

	delete(t.regions, id)
	t.logger.WithField("region_id", id).Info("Geofence disarmed")
	return nil
}

// DisarmAll снимает все геозоны
func (t *Tracker) DisarmAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.regions = make(map[string]*trackedRegion)
	return nil
}

func (t *Tracker) IsArmed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.regions[id]
	return ok
}

// ArmedCount количество геозон на мониторинге
func (t *Tracker) ArmedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regions)
}

// Update принимает новую точку, будит ожидающих CurrentPosition и рассылает события.
// Выход фиксируется только когда точка дальше радиуса с учетом точности.
func (t *Tracker) Update(ctx context.Context, pos Position) error {
	if !pos.IsValid() {
		return ErrInvalidPosition
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = t.now()
	}

	t.mu.Lock()
	t.last = &pos
	for _, w := range t.waiters {
		w <- pos
	}
	t.waiters = nil

	var events []Event
	for id, tr := range t.regions {
		distance := Distance(tr.region.Latitude, tr.region.Longitude, pos.Latitude, pos.Longitude)

		var inside bool
		switch {
		case distance <= tr.region.RadiusMeters:
			inside = true
		case distance > tr.region.RadiusMeters+pos.Accuracy:
			inside = false
		default:
			continue
		}

		if tr.inside != nil && *tr.inside == inside {
			continue
		}
		tr.inside = &inside

		eventType := EventExit
		if inside {
			eventType = EventEnter
		}
		events = append(events, Event{Type: eventType, RegionID: id, Position: pos})
	}
	handler := t.handler
	t.mu.Unlock()

	for _, event := range events {
		t.logger.WithFields(logrus.Fields{
			"region_id": event.RegionID,
			"type":      event.Type,
			"position":  pos.String(),
		}).Info("Geofence transition")

		if handler != nil {
			handler(ctx, event)
		}
	}

	return nil
}

// CurrentPosition возвращает свежую точку или ждет следующую до истечения ctx
func (t *Tracker) CurrentPosition(ctx context.Context) (Position, error) {
	t.mu.Lock()
	if t.last != nil && t.now().Sub(t.last.Timestamp) <= t.maxAge {
		pos := *t.last
		t.mu.Unlock()
		return pos, nil
	}

	w := make(chan Position, 1)
	t.waiters = append(t.waiters, w)
	t.mu.Unlock()

	select {
	case pos := <-w:
		return pos, nil
	case <-ctx.Done():
		t.removeWaiter(w)
		return Position{}, fmt.Errorf("waiting for position: %w", ctx.Err())
	}
}

func (t *Tracker) removeWaiter(w chan Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, existing := range t.waiters {
		if existing == w {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			return
		}
	}
}
