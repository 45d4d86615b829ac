package repository

import (
	"context"
	"errors"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DuplicateGroup is a (user, entity, kind) triple holding more than one row.
type DuplicateGroup struct {
	UserID   uuid.UUID
	EntityID uuid.UUID
	Kind     entity.RelationshipKind
	RowCount int64
}

type RelationshipRepository interface {
	WithTx(tx *gorm.DB) RelationshipRepository
	FindPrompt(ctx context.Context, id uuid.UUID) (*entity.Prompt, error)
	// LockPrompt reads the prompt with a row lock held until the transaction ends.
	LockPrompt(ctx context.Context, id uuid.UUID) (*entity.Prompt, error)
	FindUsername(ctx context.Context, userID uuid.UUID) (string, error)
	// FindIDs returns the ids of every row for the triple, lowest first.
	FindIDs(ctx context.Context, userID, entityID uuid.UUID, kind entity.RelationshipKind) ([]uuid.UUID, error)
	Create(ctx context.Context, rel *entity.Relationship) error
	DeleteAll(ctx context.Context, userID, entityID uuid.UUID, kind entity.RelationshipKind) (int64, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	Count(ctx context.Context, entityID uuid.UUID, kind entity.RelationshipKind) (int64, error)
	SetCounter(ctx context.Context, entityID uuid.UUID, kind entity.RelationshipKind, value int64) error
	FindDuplicateGroups(ctx context.Context) ([]DuplicateGroup, error)
	CountsByEntity(ctx context.Context, kind entity.RelationshipKind) (map[uuid.UUID]int64, error)
	// ListPrompts pages through prompts in id order, starting after the given id.
	ListPrompts(ctx context.Context, after uuid.UUID, limit int) ([]entity.Prompt, error)
}

type relationshipRepository struct {
	db *gorm.DB
}

func NewRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

func (r *relationshipRepository) WithTx(tx *gorm.DB) RelationshipRepository {
	return &relationshipRepository{db: tx}
}

func (r *relationshipRepository) FindPrompt(ctx context.Context, id uuid.UUID) (*entity.Prompt, error) {
	return r.findPrompt(r.db.WithContext(ctx), id)
}

func (r *relationshipRepository) LockPrompt(ctx context.Context, id uuid.UUID) (*entity.Prompt, error) {
	return r.findPrompt(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *relationshipRepository) findPrompt(q *gorm.DB, id uuid.UUID) (*entity.Prompt, error) {
	var prompt entity.Prompt
	if err := q.Where("id = ?", id).First(&prompt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &prompt, nil
}

func (r *relationshipRepository) FindUsername(ctx context.Context, userID uuid.UUID) (string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&entity.User{}).
		Where("id = ?", userID).
		Limit(1).
		Pluck("username", &names).Error
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

func (r *relationshipRepository) FindIDs(ctx context.Context, userID, entityID uuid.UUID, kind entity.RelationshipKind) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&entity.Relationship{}).
		Where("user_id = ? AND entity_id = ? AND kind = ?", userID, entityID, kind).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *relationshipRepository) Create(ctx context.Context, rel *entity.Relationship) error {
	return r.db.WithContext(ctx).Create(rel).Error
}

func (r *relationshipRepository) DeleteAll(ctx context.Context, userID, entityID uuid.UUID, kind entity.RelationshipKind) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND entity_id = ? AND kind = ?", userID, entityID, kind).
		Delete(&entity.Relationship{})
	return res.RowsAffected, res.Error
}

func (r *relationshipRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&entity.Relationship{})
	return res.RowsAffected, res.Error
}

func (r *relationshipRepository) Count(ctx context.Context, entityID uuid.UUID, kind entity.RelationshipKind) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Relationship{}).
		Where("entity_id = ? AND kind = ?", entityID, kind).
		Count(&count).Error
	return count, err
}

func (r *relationshipRepository) SetCounter(ctx context.Context, entityID uuid.UUID, kind entity.RelationshipKind, value int64) error {
	column := kind.CounterColumn()
	if column == "" {
		return apperror.ErrInvalidInput
	}
	// UpdateColumn leaves updated_at alone.
	return r.db.WithContext(ctx).Model(&entity.Prompt{}).
		Where("id = ?", entityID).
		UpdateColumn(column, value).Error
}

func (r *relationshipRepository) FindDuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	var groups []DuplicateGroup
	err := r.db.WithContext(ctx).Model(&entity.Relationship{}).
		Select("user_id, entity_id, kind, count(*) AS row_count").
		Group("user_id, entity_id, kind").
		Having("count(*) > 1").
		Scan(&groups).Error
	return groups, err
}

func (r *relationshipRepository) CountsByEntity(ctx context.Context, kind entity.RelationshipKind) (map[uuid.UUID]int64, error) {
	type result struct {
		EntityID uuid.UUID
		Count    int64
	}
	var results []result

	err := r.db.WithContext(ctx).Model(&entity.Relationship{}).
		Select("entity_id, count(*) AS count").
		Where("kind = ?", kind).
		Group("entity_id").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(results))
	for _, res := range results {
		counts[res.EntityID] = res.Count
	}
	return counts, nil
}

func (r *relationshipRepository) ListPrompts(ctx context.Context, after uuid.UUID, limit int) ([]entity.Prompt, error) {
	var prompts []entity.Prompt
	q := r.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	err := q.Find(&prompts).Error
	return prompts, err
}
