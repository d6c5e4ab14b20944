package model

import (
	"time"
)

// TelegramSync is the per-channel synchronization cursor. It records the
// last processed channel post so a restarted worker resumes without
// re-creating articles. last_update_id doubles as the next getUpdates offset.
type TelegramSync struct {
	ID             uint       `gorm:"primaryKey"`
	ChannelID      string     `gorm:"size:255;uniqueIndex;not null"`
	LastMessageID  int64      `gorm:"default:0"`
	LastPostDate   *time.Time `gorm:""`
	LastUpdateID   int64      `gorm:"default:0"`
	PostsProcessed uint       `gorm:"default:0"`
	IsActive       bool       `gorm:"default:true;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for TelegramSync
func (TelegramSync) TableName() string {
	return "telegram_sync"
}

// ShouldProcess reports whether a channel post is strictly newer than the
// cursor: false when the message id is not past the stored one, or when both
// post dates are known and the post is not newer by date either.
func (s *TelegramSync) ShouldProcess(messageID int64, postDate *time.Time) bool {
	if s.LastMessageID == 0 {
		return true
	}
	if messageID <= s.LastMessageID {
		return false
	}
	if postDate != nil && s.LastPostDate != nil && !postDate.After(*s.LastPostDate) {
		return false
	}
	return true
}

// Advance raises the cursor fields to the given values, never regressing any
// of them, and increments the processed-post counter. It does not persist.
func (s *TelegramSync) Advance(messageID int64, postDate *time.Time, updateID int64) {
	if messageID > s.LastMessageID {
		s.LastMessageID = messageID
	}
	if postDate != nil && (s.LastPostDate == nil || postDate.After(*s.LastPostDate)) {
		d := *postDate
		s.LastPostDate = &d
	}
	if updateID > s.LastUpdateID {
		s.LastUpdateID = updateID
	}
	s.PostsProcessed++
}

// Reset zeroes the cursor so the channel is reprocessed from scratch.
// It does not persist.
func (s *TelegramSync) Reset() {
	s.LastMessageID = 0
	s.LastPostDate = nil
	s.LastUpdateID = 0
	s.PostsProcessed = 0
}

// NextOffset returns the getUpdates offset to resume polling from.
func (s *TelegramSync) NextOffset() int64 {
	if s.LastUpdateID == 0 {
		return 0
	}
	return s.LastUpdateID + 1
}
