package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"attendance-agent/internal/backend"
	"attendance-agent/internal/models"
	"attendance-agent/internal/repository"
	"attendance-agent/pkg/geofence"
)

const testEmail = "worker@example.com"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeBackend struct {
	mu            sync.Mutex
	clockInResp   *backend.ClockInResponse
	clockInErr    error
	clockOutErr   error
	clockOutGate  chan struct{}
	status        *backend.ScheduleStatus
	statusErr     error
	clockInCalls  int
	clockOutCalls []backend.ClockOutRequest
	statusCalls   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		clockInResp: &backend.ClockInResponse{
			Message:     "Clocked in",
			Latitude:    52.52,
			Longitude:   13.405,
			WorkSeconds: 3600,
			ScheduleID:  "42",
		},
		status: &backend.ScheduleStatus{},
	}
}

func (b *fakeBackend) ClockIn(ctx context.Context, req backend.ClockInRequest) (*backend.ClockInResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clockInCalls++
	if b.clockInErr != nil {
		return nil, b.clockInErr
	}
	resp := *b.clockInResp
	return &resp, nil
}

func (b *fakeBackend) ClockOut(ctx context.Context, req backend.ClockOutRequest) (*backend.ClockOutResponse, error) {
	b.mu.Lock()
	gate := b.clockOutGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.clockOutCalls = append(b.clockOutCalls, req)
	if b.clockOutErr != nil {
		return nil, b.clockOutErr
	}
	return &backend.ClockOutResponse{Message: "Clocked out"}, nil
}

func (b *fakeBackend) CheckScheduleClockOut(ctx context.Context, email, scheduleID string) (*backend.ScheduleStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls++
	if b.statusErr != nil {
		return nil, b.statusErr
	}
	status := *b.status
	return &status, nil
}

func (b *fakeBackend) setClockOutErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clockOutErr = err
}

func (b *fakeBackend) clockOuts() []backend.ClockOutRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.ClockOutRequest(nil), b.clockOutCalls...)
}

func (b *fakeBackend) clockIns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clockInCalls
}

type fakeLocator struct {
	pos geofence.Position
	err error
}

func (l *fakeLocator) CurrentPosition(ctx context.Context) (geofence.Position, error) {
	if l.err != nil {
		return geofence.Position{}, l.err
	}
	return l.pos, nil
}

type fakeGeofences struct {
	mu       sync.Mutex
	armed    map[string]geofence.Region
	armCalls int
	disarmed []string
}

func newFakeGeofences() *fakeGeofences {
	return &fakeGeofences{armed: make(map[string]geofence.Region)}
}

func (g *fakeGeofences) Arm(region geofence.Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armCalls++
	g.armed[region.ID] = region
	return nil
}

func (g *fakeGeofences) Disarm(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.armed, id)
	g.disarmed = append(g.disarmed, id)
	return nil
}

func (g *fakeGeofences) regions() []geofence.Region {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]geofence.Region, 0, len(g.armed))
	for _, r := range g.armed {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeTasks struct {
	mu         sync.Mutex
	registered map[string]bool
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{registered: make(map[string]bool)}
}

func (f *fakeTasks) Register(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[name] = true
	return nil
}

func (f *fakeTasks) Unregister(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, name)
	return nil
}

func (f *fakeTasks) isRegistered(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered[name]
}

type notification struct {
	title string
	body  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title: title, body: body})
	return nil
}

func (n *fakeNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type fakeListener struct {
	mu    sync.Mutex
	ticks []Progress
	ended []*Result
}

func (l *fakeListener) OnTick(progress Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks = append(l.ticks, progress)
}

func (l *fakeListener) OnSessionEnded(result *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended = append(l.ended, result)
}

func (l *fakeListener) endings() []*Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Result(nil), l.ended...)
}

type fakePendingRepo struct {
	mu    sync.Mutex
	items map[string]*models.PendingCheckout
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{items: make(map[string]*models.PendingCheckout)}
}

func (r *fakePendingRepo) Create(checkout *models.PendingCheckout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !checkout.IsValid() {
		return errors.New("invalid pending checkout data")
	}
	copied := *checkout
	r.items[checkout.ID] = &copied
	return nil
}

func (r *fakePendingRepo) Update(checkout *models.PendingCheckout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[checkout.ID]; !ok {
		return errors.New("pending checkout not found")
	}
	copied := *checkout
	r.items[checkout.ID] = &copied
	return nil
}

func (r *fakePendingRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakePendingRepo) GetByID(id string) (*models.PendingCheckout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (r *fakePendingRepo) GetDue(now time.Time, limit int) ([]*models.PendingCheckout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.PendingCheckout
	for _, item := range r.items {
		if item.IsDue(now) {
			copied := *item
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RequestedAt.Before(due[j].RequestedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakePendingRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}

func (r *fakePendingRepo) all() []*models.PendingCheckout {
	due, _ := r.GetDue(time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	return due
}

type testEnv struct {
	svc       *AttendanceService
	store     *SessionStore
	kv        *repository.MemoryKeyValueRepository
	backend   *fakeBackend
	locator   *fakeLocator
	geofences *fakeGeofences
	tasks     *fakeTasks
	pending   *fakePendingRepo
	sync      *CheckoutSync
	notifier  *fakeNotifier
	listener  *fakeListener
	clock     *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		kv:        repository.NewMemoryKeyValueRepository(),
		backend:   newFakeBackend(),
		locator:   &fakeLocator{pos: geofence.Position{Latitude: 52.52, Longitude: 13.405, Accuracy: 5}},
		geofences: newFakeGeofences(),
		tasks:     newFakeTasks(),
		pending:   newFakePendingRepo(),
		notifier:  &fakeNotifier{},
		listener:  &fakeListener{},
		clock:     newFakeClock(),
	}
	env.store = NewSessionStore(env.kv)

	checkoutSync, err := NewCheckoutSync(env.pending, env.backend, env.tasks, testPolicy())
	if err != nil {
		t.Fatalf("NewCheckoutSync: %v", err)
	}
	checkoutSync.now = env.clock.Now
	env.sync = checkoutSync

	env.svc = NewAttendanceService(env.store, env.backend, env.locator, env.geofences, env.tasks, checkoutSync, Options{
		Timezone:     "Europe/Berlin",
		TickInterval: time.Hour,
	})
	env.svc.now = env.clock.Now
	env.svc.AddListener(env.listener)
	checkoutSync.SetSessionGuard(env.svc.IsCheckedIn)

	if err := env.svc.Login(testEmail); err != nil {
		t.Fatalf("Login: %v", err)
	}

	t.Cleanup(env.svc.Shutdown)
	return env
}

func (e *testEnv) checkIn(t *testing.T) *Result {
	t.Helper()
	result, err := e.svc.RequestCheckIn(context.Background(), "")
	if err != nil {
		t.Fatalf("RequestCheckIn: %v", err)
	}
	return result
}
