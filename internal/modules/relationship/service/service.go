package relationship

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/internal/metrics"
	relDto "anoa.com/promptvault/internal/modules/relationship/dto"
	relRepo "anoa.com/promptvault/internal/modules/relationship/repository"
	"anoa.com/promptvault/pkg/apperror"
	"anoa.com/promptvault/pkg/database"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	notifService "anoa.com/promptvault/internal/modules/notification/service"
)

const reconcileBatchSize = 500

type RelationshipService interface {
	// Toggle flips the (actor, prompt, kind) relationship and rewrites the prompt's
	// counter from the committed row count. Repeated or concurrent calls never leave
	// more than one row behind and never surface a uniqueness error.
	Toggle(ctx context.Context, kind entity.RelationshipKind, actorID, entityID uuid.UUID) (*relDto.ToggleResult, error)
	IsActive(ctx context.Context, kind entity.RelationshipKind, actorID, entityID uuid.UUID) (bool, error)
	Counts(ctx context.Context, entityID uuid.UUID) (*relDto.CountsResponse, error)
	// Reconcile removes duplicate rows (keeping the lowest id) and rewrites every
	// counter that disagrees with the row count. Safe to run repeatedly.
	Reconcile(ctx context.Context) (*relDto.ReconcileResult, error)
}

type relationshipService struct {
	repo                relRepo.RelationshipRepository
	tx                  *database.Transactor
	notificationService notifService.NotificationService
	redisClient         *redis.Client
	cacheTTL            time.Duration
}

func NewRelationshipService(repo relRepo.RelationshipRepository, tx *database.Transactor, notificationService notifService.NotificationService, redisClient *redis.Client, cacheTTL time.Duration) RelationshipService {
	return &relationshipService{
		repo:                repo,
		tx:                  tx,
		notificationService: notificationService,
		redisClient:         redisClient,
		cacheTTL:            cacheTTL,
	}
}

func counterCacheKey(entityID uuid.UUID) string {
	return fmt.Sprintf("counts:prompt:%s", entityID.String())
}

// counterVersionKey is bumped on every invalidation of counterCacheKey.
func counterVersionKey(entityID uuid.UUID) string {
	return fmt.Sprintf("counts:prompt:%s:v", entityID.String())
}

// fillScript caches both counters only if the version still matches the one read
// before the database was queried, so a read that raced a toggle is dropped.
// KEYS: hash, version. ARGV: version, field, value, field, value, ttl ms.
var fillScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5])
if tonumber(ARGV[6]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[6])
end
return 1
`)

func (s *relationshipService) Toggle(ctx context.Context, kind entity.RelationshipKind, actorID, entityID uuid.UUID) (*relDto.ToggleResult, error) {
	if !kind.Valid() || actorID == uuid.Nil || entityID == uuid.Nil {
		return nil, fmt.Errorf("toggle %q: %w", kind, apperror.ErrInvalidInput)
	}

	result := &relDto.ToggleResult{Kind: kind, EntityID: entityID}
	err := s.tx.InTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// The row lock serializes toggles on one prompt so the recount below sees
		// every committed row.
		prompt, err := repo.LockPrompt(ctx, entityID)
		if err != nil {
			return err
		}

		ids, err := repo.FindIDs(ctx, actorID, entityID, kind)
		if err != nil {
			return err
		}

		active := false
		if len(ids) == 0 {
			if active, err = s.insert(ctx, tx, kind, actorID, entityID); err != nil {
				return err
			}
		}
		if !active {
			if _, err := repo.DeleteAll(ctx, actorID, entityID, kind); err != nil {
				return err
			}
		}

		count, err := repo.Count(ctx, entityID, kind)
		if err != nil {
			return err
		}
		if err := repo.SetCounter(ctx, entityID, kind, count); err != nil {
			return err
		}

		result.Active = active
		result.Count = count

		if active && prompt.UserID != actorID {
			return s.notify(ctx, tx, kind, actorID, prompt)
		}
		return nil
	})
	if err != nil {
		metrics.TogglesTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}

	state := "inactive"
	if result.Active {
		state = "active"
	}
	metrics.TogglesTotal.WithLabelValues(string(kind), state).Inc()
	s.invalidate(ctx, entityID)

	return result, nil
}

// insert creates the row inside a savepoint. A lost uniqueness race reports false so
// the caller falls through to the delete branch.
func (s *relationshipService) insert(ctx context.Context, tx *gorm.DB, kind entity.RelationshipKind, actorID, entityID uuid.UUID) (bool, error) {
	err := database.Savepoint(tx, func(sp *gorm.DB) error {
		return s.repo.WithTx(sp).Create(ctx, &entity.Relationship{
			UserID:   actorID,
			EntityID: entityID,
			Kind:     kind,
		})
	})
	if err == nil {
		return true, nil
	}
	if database.IsUniqueViolation(err) {
		metrics.ToggleRacesAbsorbed.WithLabelValues(string(kind)).Inc()
		return false, nil
	}
	return false, err
}

func (s *relationshipService) notify(ctx context.Context, tx *gorm.DB, kind entity.RelationshipKind, actorID uuid.UUID, prompt *entity.Prompt) error {
	if s.notificationService == nil {
		return nil
	}

	actorName, err := s.repo.WithTx(tx).FindUsername(ctx, actorID)
	if err != nil {
		return err
	}
	if actorName == "" {
		actorName = "Someone"
	}

	verb := "liked"
	notifType := entity.NotificationLike
	if kind == entity.KindFavorite {
		verb = "favorited"
		notifType = entity.NotificationFavorite
	}

	title := prompt.Title
	if len([]rune(title)) > 40 {
		title = string([]rune(title)[:40]) + "..."
	}

	promptID := prompt.ID
	_, err = s.notificationService.InsertIfNotDuplicateTx(ctx, tx, &entity.Notification{
		UserID:          prompt.UserID,
		Type:            notifType,
		Message:         fmt.Sprintf("%s %s your prompt: %s", actorName, verb, title),
		RelatedUserID:   &actorID,
		RelatedPromptID: &promptID,
		Metadata:        notifService.Metadata(map[string]any{"kind": string(kind)}),
	})
	return err
}

func (s *relationshipService) IsActive(ctx context.Context, kind entity.RelationshipKind, actorID, entityID uuid.UUID) (bool, error) {
	if !kind.Valid() || actorID == uuid.Nil || entityID == uuid.Nil {
		return false, apperror.ErrInvalidInput
	}
	ids, err := s.repo.FindIDs(ctx, actorID, entityID, kind)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (s *relationshipService) Counts(ctx context.Context, entityID uuid.UUID) (*relDto.CountsResponse, error) {
	if entityID == uuid.Nil {
		return nil, apperror.ErrInvalidInput
	}

	fill := false
	version := "0"
	if s.redisClient != nil {
		vals, err := s.redisClient.HGetAll(ctx, counterCacheKey(entityID)).Result()
		if err != nil {
			log.Printf("⚠️ Counter cache read failed for %s: %v", entityID, err)
		} else if likes, favorites, ok := parseCachedCounts(vals); ok {
			return &relDto.CountsResponse{EntityID: entityID, Likes: likes, Favorites: favorites}, nil
		} else {
			version, err = s.redisClient.Get(ctx, counterVersionKey(entityID)).Result()
			switch {
			case errors.Is(err, redis.Nil):
				version, fill = "0", true
			case err != nil:
				log.Printf("⚠️ Counter cache version read failed for %s: %v", entityID, err)
			default:
				fill = true
			}
		}
	}

	prompt, err := s.repo.FindPrompt(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if fill {
		err := fillScript.Run(ctx, s.redisClient,
			[]string{counterCacheKey(entityID), counterVersionKey(entityID)},
			version,
			string(entity.KindLike), prompt.LikeCount,
			string(entity.KindFavorite), prompt.FavoriteCount,
			s.cacheTTL.Milliseconds(),
		).Err()
		if err != nil {
			log.Printf("⚠️ Counter cache populate failed for %s: %v", entityID, err)
		}
	}

	return &relDto.CountsResponse{
		EntityID:  entityID,
		Likes:     prompt.LikeCount,
		Favorites: prompt.FavoriteCount,
	}, nil
}

func parseCachedCounts(vals map[string]string) (int64, int64, bool) {
	likesRaw, ok := vals[string(entity.KindLike)]
	if !ok {
		return 0, 0, false
	}
	favoritesRaw, ok := vals[string(entity.KindFavorite)]
	if !ok {
		return 0, 0, false
	}
	likes, err := strconv.ParseInt(likesRaw, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	favorites, err := strconv.ParseInt(favoritesRaw, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return likes, favorites, true
}

// invalidate drops the cached counters of the given prompts after a commit and
// bumps their versions so an in-flight Counts cannot refill them with stale values.
// The database stays authoritative, so failures are only logged.
func (s *relationshipService) invalidate(ctx context.Context, entityIDs ...uuid.UUID) {
	if s.redisClient == nil || len(entityIDs) == 0 {
		return
	}
	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range entityIDs {
			pipe.Incr(ctx, counterVersionKey(id))
			if s.cacheTTL > 0 {
				pipe.Expire(ctx, counterVersionKey(id), s.cacheTTL)
			}
			pipe.Del(ctx, counterCacheKey(id))
		}
		return nil
	})
	if err != nil {
		log.Printf("⚠️ Counter cache invalidation failed: %v", err)
	}
}

func (s *relationshipService) Reconcile(ctx context.Context) (*relDto.ReconcileResult, error) {
	result := &relDto.ReconcileResult{}

	removed, err := s.removeDuplicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("duplicate removal failed: %w", err)
	}
	result.DuplicatesRemoved = removed

	fixed, err := s.fixCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("counter repair failed: %w", err)
	}
	result.EntitiesFixed = int64(len(fixed))

	s.invalidate(ctx, fixed...)

	metrics.ReconcileDuplicatesRemoved.Add(float64(result.DuplicatesRemoved))
	metrics.ReconcileEntitiesFixed.Add(float64(result.EntitiesFixed))
	log.Printf("🧹 Reconcile finished: %d duplicates removed, %d prompts fixed", result.DuplicatesRemoved, result.EntitiesFixed)

	return result, nil
}

func (s *relationshipService) removeDuplicates(ctx context.Context) (int64, error) {
	groups, err := s.repo.FindDuplicateGroups(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, g := range groups {
		var removed int64
		err := s.tx.InTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ids, err := repo.FindIDs(ctx, g.UserID, g.EntityID, g.Kind)
			if err != nil {
				return err
			}
			if len(ids) < 2 {
				return nil
			}
			removed, err = repo.DeleteByIDs(ctx, ids[1:])
			return err
		})
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}

// fixCounters compares every prompt against a snapshot of row counts and repairs the
// ones that drifted. Candidates are rechecked under the prompt's row lock, so a toggle
// committing mid-sweep is never overwritten with a stale count.
func (s *relationshipService) fixCounters(ctx context.Context) ([]uuid.UUID, error) {
	snapshot := make(map[entity.RelationshipKind]map[uuid.UUID]int64, len(entity.Kinds))
	for _, kind := range entity.Kinds {
		counts, err := s.repo.CountsByEntity(ctx, kind)
		if err != nil {
			return nil, err
		}
		snapshot[kind] = counts
	}

	var fixed []uuid.UUID
	after := uuid.Nil
	for {
		prompts, err := s.repo.ListPrompts(ctx, after, reconcileBatchSize)
		if err != nil {
			return fixed, err
		}

		for i := range prompts {
			prompt := &prompts[i]
			after = prompt.ID

			drifted := false
			for _, kind := range entity.Kinds {
				if prompt.Counter(kind) != snapshot[kind][prompt.ID] {
					drifted = true
					break
				}
			}
			if !drifted {
				continue
			}

			changed, err := s.repairPrompt(ctx, prompt.ID)
			if err != nil {
				return fixed, err
			}
			if changed {
				fixed = append(fixed, prompt.ID)
			}
		}

		if len(prompts) < reconcileBatchSize {
			return fixed, nil
		}
	}
}

func (s *relationshipService) repairPrompt(ctx context.Context, entityID uuid.UUID) (bool, error) {
	changed := false
	err := s.tx.InTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		prompt, err := repo.LockPrompt(ctx, entityID)
		if err != nil {
			return err
		}
		for _, kind := range entity.Kinds {
			count, err := repo.Count(ctx, entityID, kind)
			if err != nil {
				return err
			}
			if count == prompt.Counter(kind) {
				continue
			}
			if err := repo.SetCounter(ctx, entityID, kind, count); err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if errors.Is(err, apperror.ErrNotFound) {
		// Deleted since the snapshot.
		return false, nil
	}
	return changed, err
}
