package models

import "time"

// PendingCheckout завершение смены, которое сервер еще не подтвердил
type PendingCheckout struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email         string    `gorm:"not null;index" json:"email"`
	Trigger       Trigger   `gorm:"type:varchar(32);not null" json:"trigger"`
	Timezone      string    `gorm:"type:varchar(64)" json:"timezone"`
	Attempts      int       `gorm:"not null;default:0" json:"attempts"`
	LastError     string    `json:"last_error"`
	RequestedAt   time.Time `gorm:"not null" json:"requested_at"`
	NextAttemptAt time.Time `gorm:"not null;index" json:"next_attempt_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PendingCheckout) TableName() string {
	return "pending_checkouts"
}

// IsDue проверяет, пора ли повторить отправку
func (p *PendingCheckout) IsDue(now time.Time) bool {
	return !now.Before(p.NextAttemptAt)
}

// IsValid проверяет валидность данных
func (p *PendingCheckout) IsValid() bool {
	if p.ID == "" || p.Email == "" {
		return false
	}
	if !p.Trigger.IsValid() {
		return false
	}
	return !p.RequestedAt.IsZero()
}
