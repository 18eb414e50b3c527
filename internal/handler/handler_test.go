package handler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"attendance-agent/internal/backend"
	"attendance-agent/internal/config"
	"attendance-agent/internal/models"
	"attendance-agent/internal/repository"
	"attendance-agent/internal/service"
	"attendance-agent/pkg/geofence"
	"attendance-agent/pkg/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const testChatID int64 = 1001

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	requests int
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.messages = append(s.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Text)
	}
	return out
}

func (s *fakeSender) lastText() string {
	texts := s.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeBackend struct {
	mu       sync.Mutex
	clockIns []backend.ClockInRequest
	clockIn  error
}

func (b *fakeBackend) ClockIn(ctx context.Context, req backend.ClockInRequest) (*backend.ClockInResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clockIns = append(b.clockIns, req)
	if b.clockIn != nil {
		return nil, b.clockIn
	}
	return &backend.ClockInResponse{
		Message:     "Welcome to the site",
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		WorkSeconds: 7200,
		ScheduleID:  "9",
	}, nil
}

func (b *fakeBackend) ClockOut(ctx context.Context, req backend.ClockOutRequest) (*backend.ClockOutResponse, error) {
	return &backend.ClockOutResponse{}, nil
}

func (b *fakeBackend) CheckScheduleClockOut(ctx context.Context, email, scheduleID string) (*backend.ScheduleStatus, error) {
	return &backend.ScheduleStatus{}, nil
}

func (b *fakeBackend) FetchMonthlySchedules(ctx context.Context, email string) (*backend.MonthlySchedules, error) {
	return &backend.MonthlySchedules{
		Schedules: []backend.Schedule{
			{ID: "9", Date: "2026-03-02", StartTime: "09:00", EndTime: "17:00", PayPerHour: 20},
		},
		MarkedDates: map[string]int{"2026-03-02": 1},
	}, nil
}

func (b *fakeBackend) FetchProfile(ctx context.Context, email string) (*backend.Profile, error) {
	return &backend.Profile{
		City:      "Toronto",
		Documents: []backend.ProfileDocument{{Tag: "work_permit", FileName: "permit.pdf", Approved: true}},
	}, nil
}

type testHandler struct {
	handler    *Handler
	sender     *fakeSender
	backend    *fakeBackend
	tracker    *geofence.Tracker
	attendance *service.AttendanceService
}

func newTestHandler(t *testing.T) *testHandler {
	t.Helper()

	sender := &fakeSender{}
	client := telegram.NewClientWithSender(sender, testChatID)
	api := &fakeBackend{}
	tracker := geofence.NewTracker(time.Minute)

	attendance := service.NewAttendanceService(
		service.NewSessionStore(repository.NewMemoryKeyValueRepository()),
		api,
		tracker,
		tracker,
		nil,
		nil,
		service.Options{LocationTimeout: 2 * time.Second, TickInterval: time.Hour},
	)
	t.Cleanup(attendance.Shutdown)

	h := NewHandler(
		client,
		attendance,
		service.NewScheduleService(attendance, api),
		service.NewProfileService(attendance, api),
		tracker,
		&config.AgentConfig{TelegramChatID: testChatID},
	)
	attendance.AddListener(h)

	return &testHandler{handler: h, sender: sender, backend: api, tracker: tracker, attendance: attendance}
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{UserName: "worker"},
		Text: text,
		Date: int(time.Now().Unix()),
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(cmd)},
		},
	}}
}

func location(chatID int64, lat, lng float64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Date:     int(time.Now().Unix()),
		Location: &tgbotapi.Location{Latitude: lat, Longitude: lng, HorizontalAccuracy: 5},
	}}
}

func TestHandler_IgnoresOtherChats(t *testing.T) {
	th := newTestHandler(t)

	th.handler.HandleUpdate(context.Background(), command(42, "/help"))

	if len(th.sender.texts()) != 0 {
		t.Errorf("expected no replies, got %v", th.sender.texts())
	}
}

func TestHandler_LoginAndCheckInWithLocation(t *testing.T) {
	th := newTestHandler(t)
	ctx := context.Background()

	th.handler.HandleUpdate(ctx, command(testChatID, "/login worker@example.com"))
	if !strings.Contains(th.sender.lastText(), "worker@example.com") {
		t.Fatalf("unexpected login reply %q", th.sender.lastText())
	}

	th.handler.HandleUpdate(ctx, command(testChatID, "/in"))
	th.handler.HandleUpdate(ctx, location(testChatID, -6.2088, 106.8456))
	th.handler.Wait()

	if th.attendance.Status() != models.StatusCheckedIn {
		t.Fatalf("expected checked_in, got %s", th.attendance.Status())
	}
	if !strings.Contains(th.sender.lastText(), "Checked in") || !strings.Contains(th.sender.lastText(), "Welcome to the site") {
		t.Errorf("unexpected check in reply %q", th.sender.lastText())
	}
	if len(th.backend.clockIns) != 1 || th.backend.clockIns[0].Latitude != -6.2088 {
		t.Errorf("unexpected clock in calls %+v", th.backend.clockIns)
	}
	if !th.tracker.IsArmed("schedule-9") {
		t.Error("region should be armed")
	}

	th.handler.HandleUpdate(ctx, command(testChatID, "/status"))
	if !strings.Contains(th.sender.lastText(), "Checked in") {
		t.Errorf("unexpected status %q", th.sender.lastText())
	}

	th.handler.HandleUpdate(ctx, command(testChatID, "/out"))
	th.handler.Wait()

	if th.attendance.Status() != models.StatusNotCheckedIn {
		t.Fatalf("expected not_checked_in, got %s", th.attendance.Status())
	}
	if !strings.Contains(th.sender.lastText(), service.MessageShiftCompleted) {
		t.Errorf("unexpected checkout reply %q", th.sender.lastText())
	}
}

func TestHandler_CheckInRejected(t *testing.T) {
	th := newTestHandler(t)
	th.backend.clockIn = &backend.RejectionError{Message: "You are not at the appointment location"}
	ctx := context.Background()

	th.handler.HandleUpdate(ctx, command(testChatID, "/login worker@example.com"))
	if err := th.tracker.Update(ctx, geofence.Position{Latitude: 1, Longitude: 1}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	th.handler.HandleUpdate(ctx, command(testChatID, "/in"))
	th.handler.Wait()

	if th.sender.lastText() != "❌ You are not at the appointment location" {
		t.Errorf("rejection should be shown verbatim, got %q", th.sender.lastText())
	}
	if th.attendance.Status() != models.StatusNotCheckedIn {
		t.Errorf("expected not_checked_in, got %s", th.attendance.Status())
	}
}

func TestHandler_CheckInWithoutLogin(t *testing.T) {
	th := newTestHandler(t)
	ctx := context.Background()

	th.handler.HandleUpdate(ctx, command(testChatID, "/in"))
	th.handler.Wait()

	if !strings.Contains(th.sender.lastText(), "/login") {
		t.Errorf("expected login hint, got %q", th.sender.lastText())
	}
}

func TestHandler_OutWhenNotCheckedIn(t *testing.T) {
	th := newTestHandler(t)

	th.handler.HandleUpdate(context.Background(), command(testChatID, "/out"))
	th.handler.Wait()

	if !strings.Contains(th.sender.lastText(), "not checked in") {
		t.Errorf("unexpected reply %q", th.sender.lastText())
	}
}

func TestHandler_LoginValidation(t *testing.T) {
	th := newTestHandler(t)

	th.handler.HandleUpdate(context.Background(), command(testChatID, "/login not-an-email"))

	if th.sender.lastText() != "❌ Invalid email address." {
		t.Errorf("unexpected reply %q", th.sender.lastText())
	}
}

func TestHandler_OnTickWarnsOnce(t *testing.T) {
	th := newTestHandler(t)
	end := time.Now().Add(5 * time.Minute)

	for i := 0; i < 3; i++ {
		th.handler.OnTick(service.Progress{RemainingSeconds: 300 - int64(i), TotalSeconds: 3600, SessionEndAt: end})
	}
	th.handler.OnTick(service.Progress{RemainingSeconds: 1800, TotalSeconds: 3600, SessionEndAt: end})

	if n := len(th.sender.texts()); n != 1 {
		t.Errorf("expected one warning, got %d", n)
	}
}

func TestHandler_CallbackClockOut(t *testing.T) {
	th := newTestHandler(t)

	th.handler.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		Data: callbackClockOut,
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: testChatID},
		},
	}})
	th.handler.Wait()

	if th.sender.requests != 2 {
		t.Errorf("expected keyboard edit and callback answer, got %d requests", th.sender.requests)
	}
	if !strings.Contains(th.sender.lastText(), "not checked in") {
		t.Errorf("unexpected reply %q", th.sender.lastText())
	}
}

func TestHandler_OnSessionEndedSyncNotice(t *testing.T) {
	tests := []struct {
		name      string
		result    service.Result
		wantRetry bool
		wantLocal bool
	}{
		{"confirmed", service.Result{Trigger: models.TriggerManual, Synced: true}, false, false},
		{"queued", service.Result{Trigger: models.TriggerManual, Queued: true}, true, false},
		{"rejected", service.Result{Trigger: models.TriggerManual}, false, true},
		{"closed by server", service.Result{Trigger: models.TriggerScheduleMonitor, Synced: true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t)
			result := tt.result
			result.Message = service.CheckOutMessage(result.Trigger)

			th.handler.OnSessionEnded(&result)

			text := th.sender.lastText()
			if got := strings.Contains(text, "sent again automatically"); got != tt.wantRetry {
				t.Errorf("retry notice = %v, want %v in %q", got, tt.wantRetry, text)
			}
			if got := strings.Contains(text, "on this device only"); got != tt.wantLocal {
				t.Errorf("local notice = %v, want %v in %q", got, tt.wantLocal, text)
			}
		})
	}
}

func TestHandler_Schedules(t *testing.T) {
	th := newTestHandler(t)
	ctx := context.Background()

	th.handler.HandleUpdate(ctx, command(testChatID, "/schedules"))
	th.handler.Wait()
	if !strings.Contains(th.sender.lastText(), "/login") {
		t.Errorf("expected login hint, got %q", th.sender.lastText())
	}

	th.handler.HandleUpdate(ctx, command(testChatID, "/login worker@example.com"))
	th.handler.HandleUpdate(ctx, command(testChatID, "/schedules"))
	th.handler.Wait()

	text := th.sender.lastText()
	if !strings.Contains(text, "Monday, March 2") || !strings.Contains(text, "09:00 - 17:00 • $20.00/hr") {
		t.Errorf("unexpected schedules reply %q", text)
	}
}

func TestHandler_Profile(t *testing.T) {
	th := newTestHandler(t)
	ctx := context.Background()

	th.handler.HandleUpdate(ctx, command(testChatID, "/login worker@example.com"))
	th.handler.HandleUpdate(ctx, command(testChatID, "/profile"))
	th.handler.Wait()

	text := th.sender.lastText()
	if !strings.Contains(text, "worker@example.com") || !strings.Contains(text, "Toronto") || !strings.Contains(text, "Work permit: ✅ approved") {
		t.Errorf("unexpected profile reply %q", text)
	}
}
