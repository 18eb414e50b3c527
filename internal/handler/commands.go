package handler

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (h *Handler) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		h.sendStartMessage(chatID)
	case "help":
		h.sendHelpMessage(chatID)

	// Смена
	case "in", "checkin":
		h.clockIn(ctx, chatID)
	case "out", "checkout":
		h.clockOut(ctx, chatID)
	case "status":
		h.showStatus(chatID)
	case "schedules", "schedule":
		h.showSchedules(ctx, chatID)

	// Пользователь
	case "profile":
		h.showProfile(ctx, chatID)
	case "login":
		h.login(chatID, args)
	case "logout":
		h.logout(chatID)

	default:
		h.sendUnknownCommand(chatID)
	}
}

func (h *Handler) sendStartMessage(chatID int64) {
	email, err := h.attendance.UserEmail()
	if err != nil {
		h.logger.WithError(err).Error("Failed to read user")
	}

	var text string
	if email == "" {
		text = "👋 Welcome!\n\nLog in with /login <email> to start tracking attendance."
	} else {
		text = fmt.Sprintf("👋 Welcome back, %s!\n\nUse /in to check in and /out to check out. /help lists all commands.", email)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = h.sessionKeyboard()
	h.send(msg)
}

func (h *Handler) sendHelpMessage(chatID int64) {
	text := `📋 Available commands:

⏰ Attendance:
/in - Check in at the appointment location
/out - Check out
/status - Current session and remaining time
/schedules - Your schedules for this month

👤 Account:
/login <email> - Log in
/profile - Your profile and document status
/logout - Log out (only when checked out)

📍 Location:
Share your location or live location so the agent can confirm check-in
and close the shift when you leave the appointment area.

🛠 Utilities:
/start - Start working with the bot
/help - Show this message`

	h.reply(chatID, text)
}

func (h *Handler) login(chatID int64, args string) {
	if args == "" {
		h.reply(chatID, "❌ Usage: /login <email>")
		return
	}

	addr, err := mail.ParseAddress(args)
	if err != nil {
		h.reply(chatID, "❌ Invalid email address.")
		return
	}

	if err := h.attendance.Login(addr.Address); err != nil {
		h.logger.WithError(err).Error("Failed to log in")
		h.reply(chatID, "❌ Login failed: "+err.Error())
		return
	}

	h.reply(chatID, fmt.Sprintf("✅ Logged in as %s", addr.Address))
}

func (h *Handler) logout(chatID int64) {
	if err := h.attendance.Logout(); err != nil {
		h.reply(chatID, "❌ "+userMessage(err))
		return
	}
	h.reply(chatID, "✅ Logged out.")
}

func (h *Handler) sendUnknownCommand(chatID int64) {
	h.reply(chatID, "❌ Unknown command. Use /help for the list of commands.")
}
