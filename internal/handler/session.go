package handler

import (
	"context"
	"errors"
	"fmt"

	"attendance-agent/internal/backend"
	"attendance-agent/internal/models"
	"attendance-agent/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// warnBeforeEndSeconds за сколько до конца смены предупредить работника
const warnBeforeEndSeconds = 10 * 60

// clockIn начинает смену. Запрос ждет геопозицию, поэтому выполняется вне цикла обновлений.
func (h *Handler) clockIn(ctx context.Context, chatID int64) {
	if h.attendance.Status() != models.StatusNotCheckedIn {
		h.reply(chatID, "❌ "+userMessage(service.ErrInvalidState))
		return
	}

	prompt := tgbotapi.NewMessage(chatID, "📍 Checking in... Share your current location if you have not shared a live location.")
	prompt.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation("📍 Share location")),
	)
	h.send(prompt)

	h.goAsync(func() {
		result, err := h.attendance.RequestCheckIn(ctx, "")
		if err != nil {
			h.logger.WithError(err).Warn("Check in failed")
			msg := tgbotapi.NewMessage(chatID, "❌ "+userMessage(err))
			msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
			h.send(msg)
			return
		}

		text := fmt.Sprintf(`✅ Checked in!

⏳ Time remaining: %s
🏁 Shift ends at: %s`,
			models.FormatRemaining(result.RemainingSeconds),
			result.Session.SessionEndAt.Local().Format("15:04"),
		)
		if result.Message != "" {
			text += "\n\n💬 " + result.Message
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = clockOutKeyboard()
		h.send(msg)
	})
}

// clockOut завершает смену вручную; итог приходит через OnSessionEnded
func (h *Handler) clockOut(ctx context.Context, chatID int64) {
	h.goAsync(func() {
		result, err := h.attendance.RequestCheckOut(ctx, models.TriggerManual)
		if err != nil {
			h.logger.WithError(err).Error("Check out failed")
			h.reply(chatID, "❌ "+userMessage(err))
			return
		}
		if result.Noop {
			h.reply(chatID, "ℹ️ You are not checked in.")
		}
	})
}

func (h *Handler) showStatus(chatID int64) {
	snapshot := h.attendance.Snapshot()

	var text string
	switch snapshot.Status {
	case models.StatusCheckedIn:
		text = fmt.Sprintf(`🟢 Checked in

⏳ Time remaining: %s
🏁 Shift ends at: %s`,
			models.FormatRemaining(snapshot.RemainingSeconds),
			snapshot.Session.SessionEndAt.Local().Format("15:04"),
		)
		if snapshot.Session.ScheduleID != "" {
			text += "\n🗓 Schedule: " + snapshot.Session.ScheduleID
		}
	case models.StatusProcessing:
		text = "⏳ Request in progress..."
	default:
		text = "⚪️ Not checked in"
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = h.sessionKeyboard()
	h.send(msg)
}

// OnTick предупреждает один раз за смену о скором окончании
func (h *Handler) OnTick(progress service.Progress) {
	if progress.RemainingSeconds <= 0 || progress.RemainingSeconds > warnBeforeEndSeconds {
		return
	}

	sessionKey := progress.SessionEndAt.UnixMilli()

	h.mu.Lock()
	if h.warnedSession == sessionKey {
		h.mu.Unlock()
		return
	}
	h.warnedSession = sessionKey
	h.mu.Unlock()

	h.reply(h.client.ChatID, fmt.Sprintf("⏰ Your shift ends in %s.", models.FormatRemaining(progress.RemainingSeconds)))
}

// OnSessionEnded сообщает итог завершения смены
func (h *Handler) OnSessionEnded(result *service.Result) {
	text := "✅ " + result.Message
	switch {
	case result.Queued:
		text += "\n\n⚠️ The server has not confirmed the checkout yet. It will be sent again automatically."
	case !result.Synced:
		text += "\n\n⚠️ The server did not confirm the checkout. Your shift was closed on this device only."
	}

	msg := tgbotapi.NewMessage(h.client.ChatID, text)
	msg.ReplyMarkup = clockInKeyboard()
	h.send(msg)
}

func (h *Handler) sessionKeyboard() tgbotapi.InlineKeyboardMarkup {
	if h.attendance.IsCheckedIn() {
		return clockOutKeyboard()
	}
	return clockInKeyboard()
}

func clockInKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("▶️ Check in", callbackClockIn)),
	)
}

func clockOutKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⏹ Check out", callbackClockOut)),
	)
}

// userMessage текст ошибки для работника; отказ сервера показывается как есть
func userMessage(err error) string {
	switch {
	case backend.IsRejection(err):
		return err.Error()
	case errors.Is(err, service.ErrLocationUnavailable):
		return "Location is unavailable. Share your location and try again."
	case errors.Is(err, service.ErrNoUser):
		return "You are not logged in. Use /login <email>."
	case errors.Is(err, service.ErrInvalidState):
		return "This action is not available right now. Check /status."
	case backend.IsNetwork(err):
		return "The attendance server is unreachable. Try again later."
	default:
		return "Something went wrong: " + err.Error()
	}
}
