package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"attendance-agent/internal/backend"
	"attendance-agent/internal/models"
	"attendance-agent/internal/repository"
	"attendance-agent/pkg/retry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const syncBatchSize = 20

// CheckoutSync досылает на сервер завершения смен, которые не удалось подтвердить.
// Отклоненные сервером записи удаляются сразу, сетевые ошибки повторяются по политике.
type CheckoutSync struct {
	mu      sync.Mutex
	repo    repository.PendingCheckoutRepository
	backend AttendanceBackend
	tasks   TaskRegistry
	policy  retry.Policy
	guard   func() bool
	now     func() time.Time
	logger  *logrus.Logger
}

func NewCheckoutSync(repo repository.PendingCheckoutRepository, api AttendanceBackend, tasks TaskRegistry, policy retry.Policy) (*CheckoutSync, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &CheckoutSync{
		repo:    repo,
		backend: api,
		tasks:   tasks,
		policy:  policy,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// SetSessionGuard задает проверку открытой смены; пока она true, очередь не отправляется
func (c *CheckoutSync) SetSessionGuard(guard func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guard = guard
}

// Record ставит завершение смены в очередь
func (c *CheckoutSync) Record(ctx context.Context, req backend.ClockOutRequest, cause error) error {
	now := c.now()
	checkout := &models.PendingCheckout{
		ID:            uuid.NewString(),
		Email:         req.Email,
		Trigger:       models.Trigger(req.Trigger),
		Timezone:      req.Timezone,
		RequestedAt:   now,
		NextAttemptAt: now.Add(c.policy.Delay(0)),
	}
	if cause != nil {
		checkout.LastError = cause.Error()
	}

	if err := c.repo.Create(checkout); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"id":      checkout.ID,
		"trigger": checkout.Trigger,
	}).Info("Checkout queued for sync")

	if c.tasks != nil {
		if err := c.tasks.Register(CheckoutSyncTask); err != nil {
			c.logger.WithError(err).Warn("Failed to register checkout sync task")
		}
	}

	return nil
}

// Flush отправляет все записи, время повтора которых наступило
func (c *CheckoutSync) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.guard != nil && c.guard() {
		c.logger.Debug("Session is open, checkout sync postponed")
		return nil
	}

	due, err := c.repo.GetDue(c.now(), syncBatchSize)
	if err != nil {
		return fmt.Errorf("load pending checkouts: %w", err)
	}

	var errs []error
	for _, checkout := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := c.send(ctx, checkout); err != nil {
			errs = append(errs, err)
		}
	}

	count, err := c.repo.Count()
	if err != nil {
		errs = append(errs, err)
	} else if count == 0 && c.tasks != nil {
		if err := c.tasks.Unregister(CheckoutSyncTask); err != nil {
			c.logger.WithError(err).Warn("Failed to unregister checkout sync task")
		}
	}

	return errors.Join(errs...)
}

// Pending число записей в очереди
func (c *CheckoutSync) Pending() (int64, error) {
	return c.repo.Count()
}

func (c *CheckoutSync) send(ctx context.Context, checkout *models.PendingCheckout) error {
	logger := c.logger.WithFields(logrus.Fields{
		"id":       checkout.ID,
		"trigger":  checkout.Trigger,
		"attempts": checkout.Attempts,
	})

	_, err := c.backend.ClockOut(ctx, backend.ClockOutRequest{
		Email:    checkout.Email,
		Timezone: checkout.Timezone,
		Trigger:  string(checkout.Trigger),
	})

	switch {
	case err == nil:
		logger.Info("Pending checkout synced")
		return c.repo.Delete(checkout.ID)
	case backend.IsRejection(err):
		logger.WithError(err).Warn("Pending checkout rejected by server, dropped")
		return c.repo.Delete(checkout.ID)
	}

	checkout.Attempts++
	checkout.LastError = err.Error()

	if !c.policy.ShouldRetry(checkout.Attempts) {
		logger.WithError(err).Error("Pending checkout retries exhausted, dropped")
		return c.repo.Delete(checkout.ID)
	}

	checkout.NextAttemptAt = c.now().Add(c.policy.Delay(checkout.Attempts))
	logger.WithError(err).WithField("next_attempt_at", checkout.NextAttemptAt.Format(time.RFC3339)).Warn("Pending checkout sync failed")

	return c.repo.Update(checkout)
}
