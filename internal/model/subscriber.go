package model

import (
	"time"
)

// Subscriber is a chat subscribed to lead notifications
type Subscriber struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    int64  `gorm:"uniqueIndex;not null"`
	ChatType  string `gorm:"size:20"`
	CreatedAt time.Time
}

// TableName returns the table name for Subscriber
func (Subscriber) TableName() string {
	return "subscribers"
}
