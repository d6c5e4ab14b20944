package model

import (
	"time"
)

// MediaGroupPart stages one raw member of a Telegram media group (album)
// until the settle window elapses and the group is flattened into a single
// logical post. Rows are deleted after flattening; leftovers from a crashed
// run are flattened on the next startup.
type MediaGroupPart struct {
	ID         uint   `gorm:"primaryKey"`
	GroupID    string `gorm:"size:64;index;not null"`
	ChannelID  string `gorm:"size:255"`
	MessageID  int64  `gorm:"not null"`
	UpdateID   int64  `gorm:"default:0"`
	Payload    []byte `gorm:"type:mediumblob"` // raw Bot API message JSON
	ReceivedAt time.Time
}

// TableName returns the table name for MediaGroupPart
func (MediaGroupPart) TableName() string {
	return "media_group_parts"
}
