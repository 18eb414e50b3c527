package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender отправка запросов боту; реализуется *tgbotapi.BotAPI
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Client struct {
	Bot          *tgbotapi.BotAPI
	UpdateConfig tgbotapi.UpdateConfig
	ChatID       int64
	sender       Sender
}

func NewClient(token string, chatID int64, debug bool) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	bot.Debug = debug

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "edited_message", "callback_query"}

	return &Client{
		Bot:          bot,
		UpdateConfig: updateConfig,
		ChatID:       chatID,
		sender:       bot,
	}, nil
}

// NewClientWithSender клиент без подключения к Telegram, для тестов
func NewClientWithSender(sender Sender, chatID int64) *Client {
	return &Client{
		ChatID: chatID,
		sender: sender,
	}
}

// Send отправляет сообщение через бота
func (c *Client) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.sender.Send(msg)
}

// Request выполняет запрос без ответного сообщения (callback, правка клавиатуры)
func (c *Client) Request(req tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.sender.Request(req)
}

// Notify отправляет локальное уведомление в чат работника
func (c *Client) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(c.ChatID, fmt.Sprintf("*%s*\n%s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title), tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body)))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := c.sender.Send(msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// NotificationToken идентификатор получателя уведомлений для сервера
func (c *Client) NotificationToken() string {
	return fmt.Sprintf("telegram:%d", c.ChatID)
}
