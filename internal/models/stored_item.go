package models

import "time"

// StoredItem запись локального хранилища ключ-значение
type StoredItem struct {
	Key       string     `gorm:"primaryKey;column:item_key;type:varchar(64)" json:"key"`
	Value     string     `gorm:"not null" json:"value"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at"` // nil - без срока
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StoredItem) TableName() string {
	return "stored_items"
}

// IsExpired проверяет, истек ли срок хранения
func (i *StoredItem) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
