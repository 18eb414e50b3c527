package handler

import (
	"context"
	"time"

	"attendance-agent/pkg/geofence"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// handleLocation передает геопозицию из чата в трекер геозон
func (h *Handler) handleLocation(ctx context.Context, message *tgbotapi.Message) {
	pos := positionFromMessage(message)

	logger := h.logger.WithFields(logrus.Fields{
		"position": pos.String(),
		"accuracy": pos.Accuracy,
		"live":     message.Location.LivePeriod > 0,
	})

	if err := h.positions.Update(ctx, pos); err != nil {
		logger.WithError(err).Warn("Rejected location update")
		if message.EditDate == 0 {
			h.reply(message.Chat.ID, "❌ Invalid location.")
		}
		return
	}

	logger.Debug("Location update accepted")
}

func positionFromMessage(message *tgbotapi.Message) geofence.Position {
	loc := message.Location

	ts := message.Time()
	if message.EditDate != 0 {
		ts = time.Unix(int64(message.EditDate), 0)
	}

	return geofence.Position{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Accuracy:  loc.HorizontalAccuracy,
		Timestamp: ts,
	}
}
