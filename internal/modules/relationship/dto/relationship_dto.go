package dto

import (
	"anoa.com/promptvault/internal/entity"
	"github.com/google/uuid"
)

type ToggleResult struct {
	Kind     entity.RelationshipKind `json:"kind"`
	EntityID uuid.UUID               `json:"entity_id"`
	Active   bool                    `json:"active"`
	Count    int64                   `json:"count"`
}

type CountsResponse struct {
	EntityID  uuid.UUID `json:"entity_id"`
	Likes     int64     `json:"likes"`
	Favorites int64     `json:"favorites"`
	Liked     *bool     `json:"liked,omitempty"`
	Favorited *bool     `json:"favorited,omitempty"`
}

type ReconcileResult struct {
	DuplicatesRemoved int64 `json:"duplicates_removed"`
	EntitiesFixed     int64 `json:"entities_fixed"`
}
