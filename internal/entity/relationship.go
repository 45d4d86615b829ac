package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RelationshipKind string

const (
	KindLike     RelationshipKind = "like"
	KindFavorite RelationshipKind = "favorite"
)

// Kinds lists every relationship kind in counter order.
var Kinds = []RelationshipKind{KindLike, KindFavorite}

func (k RelationshipKind) Valid() bool {
	return k == KindLike || k == KindFavorite
}

// CounterColumn is the prompts column holding the denormalized count for k.
func (k RelationshipKind) CounterColumn() string {
	switch k {
	case KindLike:
		return "likes"
	case KindFavorite:
		return "favorites"
	}
	return ""
}

// Relationship is a user -> prompt edge. Existence is the state: a row is created on
// "on" and deleted on "off", never updated.
type Relationship struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_relationship_unique,priority:1" json:"user_id"`
	EntityID  uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_relationship_unique,priority:2;index:idx_relationship_entity,priority:1" json:"entity_id"`
	Kind      RelationshipKind `gorm:"size:20;not null;uniqueIndex:idx_relationship_unique,priority:3;index:idx_relationship_entity,priority:2" json:"kind"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (r *Relationship) TableName() string {
	return "relationships"
}

func (r *Relationship) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID, err = uuid.NewV7()
	}
	return
}

// Prompt carries the denormalized counters. Only the toggle engine and the
// reconciliation sweep write LikeCount and FavoriteCount.
type Prompt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	IsPublic      bool      `gorm:"not null;default:false;index" json:"is_public"`
	LikeCount     int64     `gorm:"column:likes;not null;default:0" json:"likes"`
	FavoriteCount int64     `gorm:"column:favorites;not null;default:0" json:"favorites"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Prompt) TableName() string {
	return "prompts"
}

func (p *Prompt) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID, err = uuid.NewV7()
	}
	return
}

// Counter returns the stored counter for kind.
func (p *Prompt) Counter(kind RelationshipKind) int64 {
	if kind == KindFavorite {
		return p.FavoriteCount
	}
	return p.LikeCount
}
