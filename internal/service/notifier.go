package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier пишет уведомления в журнал, когда бот не настроен
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier() *LogNotifier {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) error {
	n.logger.WithField("title", title).Info(body)
	return nil
}
