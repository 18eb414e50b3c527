package handler

import (
	"context"
)

// showSchedules показывает график на месяц; запрос к серверу идет вне цикла обновлений
func (h *Handler) showSchedules(ctx context.Context, chatID int64) {
	if h.schedules == nil {
		h.sendUnknownCommand(chatID)
		return
	}

	h.goAsync(func() {
		schedules, err := h.schedules.MonthlySchedules(ctx)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to load schedules")
			h.reply(chatID, "❌ "+userMessage(err))
			return
		}

		h.reply(chatID, h.schedules.FormatSchedules(schedules))
	})
}
