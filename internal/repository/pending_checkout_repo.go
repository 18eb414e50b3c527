package repository

import (
	"errors"
	"time"

	"attendance-agent/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type PendingCheckoutRepository interface {
	Create(checkout *models.PendingCheckout) error
	Update(checkout *models.PendingCheckout) error
	Delete(id string) error
	GetByID(id string) (*models.PendingCheckout, error)
	GetDue(now time.Time, limit int) ([]*models.PendingCheckout, error)
	Count() (int64, error)
}

type GormPendingCheckoutRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormPendingCheckoutRepository(db *gorm.DB) (*GormPendingCheckoutRepository, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	// Автомиграция
	if err := db.AutoMigrate(&models.PendingCheckout{}); err != nil {
		logger.WithError(err).Error("Failed to auto-migrate pending_checkouts table")
		return nil, err
	}

	logger.Info("Pending checkout repository initialized")

	return &GormPendingCheckoutRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *GormPendingCheckoutRepository) Create(checkout *models.PendingCheckout) error {
	r.logger.WithFields(logrus.Fields{
		"id":      checkout.ID,
		"trigger": checkout.Trigger,
	}).Info("Queueing pending checkout")

	if !checkout.IsValid() {
		r.logger.WithField("id", checkout.ID).Warn("Invalid pending checkout data")
		return errors.New("invalid pending checkout data")
	}

	if checkout.NextAttemptAt.IsZero() {
		checkout.NextAttemptAt = checkout.RequestedAt
	}

	result := r.db.Create(checkout)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to create pending checkout")
		return result.Error
	}

	return nil
}

func (r *GormPendingCheckoutRepository) Update(checkout *models.PendingCheckout) error {
	if !checkout.IsValid() {
		r.logger.WithField("id", checkout.ID).Warn("Invalid pending checkout data for update")
		return errors.New("invalid pending checkout data")
	}

	existing, err := r.GetByID(checkout.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		r.logger.WithField("id", checkout.ID).Warn("Pending checkout not found for update")
		return errors.New("pending checkout not found")
	}

	result := r.db.Save(checkout)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to update pending checkout")
		return result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"id":              checkout.ID,
		"attempts":        checkout.Attempts,
		"next_attempt_at": checkout.NextAttemptAt.Format(time.RFC3339),
	}).Debug("Pending checkout updated")

	return nil
}

func (r *GormPendingCheckoutRepository) Delete(id string) error {
	result := r.db.Delete(&models.PendingCheckout{}, "id = ?", id)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to delete pending checkout")
		return result.Error
	}

	if result.RowsAffected == 0 {
		r.logger.WithField("id", id).Debug("Pending checkout already removed")
		return nil
	}

	r.logger.WithField("id", id).Info("Pending checkout removed")
	return nil
}

func (r *GormPendingCheckoutRepository) GetByID(id string) (*models.PendingCheckout, error) {
	var checkout models.PendingCheckout
	result := r.db.Where("id = ?", id).First(&checkout)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		r.logger.WithField("id", id).Debug("Pending checkout not found")
		return nil, nil
	}

	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to get pending checkout by ID")
		return nil, result.Error
	}

	return &checkout, nil
}

// GetDue возвращает записи, для которых наступило время повторной отправки, старые первыми
func (r *GormPendingCheckoutRepository) GetDue(now time.Time, limit int) ([]*models.PendingCheckout, error) {
	var checkouts []*models.PendingCheckout

	query := r.db.Where("next_attempt_at <= ?", now).Order("requested_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	result := query.Find(&checkouts)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to get due pending checkouts")
		return nil, result.Error
	}

	r.logger.WithField("count", len(checkouts)).Debug("Retrieved due pending checkouts")
	return checkouts, nil
}

func (r *GormPendingCheckoutRepository) Count() (int64, error) {
	var count int64
	result := r.db.Model(&models.PendingCheckout{}).Count(&count)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to count pending checkouts")
		return 0, result.Error
	}
	return count, nil
}
