package repository

import (
	"errors"
	"time"

	"attendance-agent/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyValueRepository локальное хранилище строковых значений с необязательным сроком жизни.
// ttl <= 0 означает бессрочное хранение.
type KeyValueRepository interface {
	Get(key string) (string, bool, error)
	Set(key, value string, ttl time.Duration) error
	SetMany(values map[string]string, ttl time.Duration) error
	Remove(key string) error
	RemoveMany(keys ...string) error
	Clear() error
}

type GormKeyValueRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

func NewGormKeyValueRepository(db *gorm.DB) (*GormKeyValueRepository, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	// Автомиграция
	if err := db.AutoMigrate(&models.StoredItem{}); err != nil {
		logger.WithError(err).Error("Failed to auto-migrate stored_items table")
		return nil, err
	}

	logger.Info("Key-value repository initialized")

	return &GormKeyValueRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get возвращает значение; просроченная запись удаляется и считается отсутствующей
func (r *GormKeyValueRepository) Get(key string) (string, bool, error) {
	var item models.StoredItem
	result := r.db.Where("item_key = ?", key).First(&item)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		r.logger.WithField("key", key).Debug("Stored item not found")
		return "", false, nil
	}

	if result.Error != nil {
		r.logger.WithError(result.Error).WithField("key", key).Error("Failed to get stored item")
		return "", false, result.Error
	}

	if item.IsExpired(r.now()) {
		r.logger.WithField("key", key).Debug("Stored item expired, removing")
		if err := r.Remove(key); err != nil {
			return "", false, err
		}
		return "", false, nil
	}

	return item.Value, true, nil
}

func (r *GormKeyValueRepository) Set(key, value string, ttl time.Duration) error {
	return r.SetMany(map[string]string{key: value}, ttl)
}

// SetMany записывает все значения в одной транзакции
func (r *GormKeyValueRepository) SetMany(values map[string]string, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	items := make([]models.StoredItem, 0, len(values))
	expiresAt := r.expiry(ttl)
	for key, value := range values {
		items = append(items, models.StoredItem{
			Key:       key,
			Value:     value,
			ExpiresAt: expiresAt,
		})
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&items).Error
	})
	if err != nil {
		r.logger.WithError(err).WithField("count", len(items)).Error("Failed to store items")
		return err
	}

	r.logger.WithField("count", len(items)).Debug("Stored items saved")
	return nil
}

func (r *GormKeyValueRepository) Remove(key string) error {
	return r.RemoveMany(key)
}

// RemoveMany удаляет ключи одной операцией; отсутствующие ключи не являются ошибкой
func (r *GormKeyValueRepository) RemoveMany(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	result := r.db.Where("item_key IN ?", keys).Delete(&models.StoredItem{})
	if result.Error != nil {
		r.logger.WithError(result.Error).WithField("keys", keys).Error("Failed to remove stored items")
		return result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"keys":    keys,
		"removed": result.RowsAffected,
	}).Debug("Stored items removed")

	return nil
}

func (r *GormKeyValueRepository) Clear() error {
	result := r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.StoredItem{})
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to clear stored items")
		return result.Error
	}

	r.logger.WithField("removed", result.RowsAffected).Info("Key-value storage cleared")
	return nil
}

func (r *GormKeyValueRepository) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := r.now().Add(ttl)
	return &t
}
