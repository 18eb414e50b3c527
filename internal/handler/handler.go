package handler

import (
	"context"
	"sync"

	"attendance-agent/internal/config"
	"attendance-agent/internal/service"
	"attendance-agent/pkg/geofence"
	"attendance-agent/pkg/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const (
	callbackClockIn  = "command_clock_in"
	callbackClockOut = "command_clock_out"
)

// PositionFeed получатель координат работника
type PositionFeed interface {
	Update(ctx context.Context, pos geofence.Position) error
}

// Handler привязка смены к чату Telegram. Обслуживается только чат работника из конфига.
type Handler struct {
	client     *telegram.Client
	attendance *service.AttendanceService
	schedules  *service.ScheduleService
	profiles   *service.ProfileService
	positions  PositionFeed
	config     *config.AgentConfig

	mu            sync.Mutex
	warnedSession int64 // SessionEndAt смены, о которой уже предупредили
	wg            sync.WaitGroup
	logger        *logrus.Logger
}

func NewHandler(
	client *telegram.Client,
	attendance *service.AttendanceService,
	schedules *service.ScheduleService,
	profiles *service.ProfileService,
	positions PositionFeed,
	cfg *config.AgentConfig,
) *Handler {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &Handler{
		client:     client,
		attendance: attendance,
		schedules:  schedules,
		profiles:   profiles,
		positions:  positions,
		config:     cfg,
		logger:     logger,
	}
}

// HandleUpdates обрабатывает обновления до закрытия канала или отмены ctx
func (h *Handler) HandleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			h.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				h.wg.Wait()
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate обрабатывает одно обновление
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	// Обработка callback query (для inline кнопок)
	if update.CallbackQuery != nil {
		h.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	// Живая геопозиция приходит правками исходного сообщения
	if update.EditedMessage != nil {
		if h.allowed(update.EditedMessage.Chat) && update.EditedMessage.Location != nil {
			h.handleLocation(ctx, update.EditedMessage)
		}
		return
	}

	if update.Message == nil {
		return
	}

	h.handleMessage(ctx, update.Message)
}

// Wait ждет завершения запущенных запросов смены
func (h *Handler) Wait() {
	h.wg.Wait()
}

// handleCallbackQuery обрабатывает inline кнопки
func (h *Handler) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || !h.allowed(callback.Message.Chat) {
		return
	}
	chatID := callback.Message.Chat.ID

	// Удаляем клавиатуру
	editMsg := tgbotapi.NewEditMessageReplyMarkup(chatID, callback.Message.MessageID, tgbotapi.NewInlineKeyboardMarkup())
	h.request(editMsg)

	switch callback.Data {
	case callbackClockIn:
		h.clockIn(ctx, chatID)
	case callbackClockOut:
		h.clockOut(ctx, chatID)
	default:
		h.logger.WithField("data", callback.Data).Warn("Unknown callback")
	}

	// Отвечаем на callback (убираем "часики" у кнопки)
	h.request(tgbotapi.NewCallback(callback.ID, ""))
}

func (h *Handler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !h.allowed(message.Chat) {
		h.logger.WithField("chat_id", message.Chat).Warn("Message from unknown chat ignored")
		return
	}

	if message.From != nil {
		h.logger.Infof("[%s] %s", message.From.UserName, message.Text)
	}

	if message.Location != nil {
		h.handleLocation(ctx, message)
		return
	}

	if message.IsCommand() {
		h.handleCommand(ctx, message)
		return
	}

	h.sendUnknownCommand(message.Chat.ID)
}

func (h *Handler) allowed(chat *tgbotapi.Chat) bool {
	return chat != nil && chat.ID == h.client.ChatID
}

func (h *Handler) send(c tgbotapi.Chattable) {
	if _, err := h.client.Send(c); err != nil {
		h.logger.WithError(err).Warn("Failed to send telegram message")
	}
}

func (h *Handler) request(c tgbotapi.Chattable) {
	if _, err := h.client.Request(c); err != nil {
		h.logger.WithError(err).Warn("Failed to send telegram request")
	}
}

func (h *Handler) reply(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

// goAsync запускает запрос смены вне цикла обновлений: проверка входа ждет
// геопозицию, которая приходит следующим обновлением
func (h *Handler) goAsync(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}
