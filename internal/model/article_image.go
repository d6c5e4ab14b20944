package model

import (
	"time"
)

// ArticleImage is an ordered gallery entry belonging to an article.
// Gallery rows are cascade-deleted with their article.
type ArticleImage struct {
	ID        uint   `gorm:"primaryKey"`
	ArticleID uint   `gorm:"index;not null"`
	ImagePath string `gorm:"size:500;not null"`
	Order     int    `gorm:"column:sort_order;default:0"`
	Caption   string `gorm:"size:255"`
	CreatedAt time.Time
}

// TableName returns the table name for ArticleImage
func (ArticleImage) TableName() string {
	return "article_images"
}
