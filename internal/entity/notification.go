package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NotificationLike     = "like"
	NotificationFavorite = "favorite"
	NotificationFollow   = "follow"
	NotificationFork     = "fork"
)

type Notification struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_notifications_dedup,priority:1" json:"user_id"` // Recipient
	Type            string         `gorm:"size:50;not null;index:idx_notifications_dedup,priority:2" json:"type"`
	Message         string         `gorm:"type:text;not null" json:"message"`
	RelatedUserID   *uuid.UUID     `gorm:"type:uuid" json:"related_user_id,omitempty"`   // Who triggered it
	RelatedPromptID *uuid.UUID     `gorm:"type:uuid" json:"related_prompt_id,omitempty"` // Prompt it is about
	IsRead          bool           `gorm:"not null;default:false" json:"is_read"`
	Metadata        datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"index:idx_notifications_dedup,priority:3" json:"created_at"`
}

func (n *Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}
