package handler

import (
	"context"
)

// showProfile показывает анкету и статус документов
func (h *Handler) showProfile(ctx context.Context, chatID int64) {
	if h.profiles == nil {
		h.sendUnknownCommand(chatID)
		return
	}

	h.goAsync(func() {
		email, profile, err := h.profiles.Profile(ctx)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to load profile")
			h.reply(chatID, "❌ "+userMessage(err))
			return
		}

		h.reply(chatID, h.profiles.FormatProfile(email, profile))
	})
}
