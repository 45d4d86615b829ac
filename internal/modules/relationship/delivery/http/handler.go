package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"anoa.com/promptvault/internal/entity"
	relationship "anoa.com/promptvault/internal/modules/relationship/service"
	"anoa.com/promptvault/internal/scheduler"
	"anoa.com/promptvault/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RelationshipHandler struct {
	service     relationship.RelationshipService
	redisClient *redis.Client
	lockTTL     time.Duration
}

// NewRelationshipHandler takes the redis client used for the sweep lock; nil
// disables locking.
func NewRelationshipHandler(service relationship.RelationshipService, redisClient *redis.Client, lockTTL time.Duration) *RelationshipHandler {
	return &RelationshipHandler{service: service, redisClient: redisClient, lockTTL: lockTTL}
}

func (h *RelationshipHandler) ToggleLike(c *gin.Context) {
	h.toggle(c, entity.KindLike)
}

func (h *RelationshipHandler) ToggleFavorite(c *gin.Context) {
	h.toggle(c, entity.KindFavorite)
}

func (h *RelationshipHandler) toggle(c *gin.Context, kind entity.RelationshipKind) {
	promptID, err := uuid.Parse(c.Param("prompt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt id"})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	res, err := h.service.Toggle(c.Request.Context(), kind, userID, promptID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *RelationshipHandler) GetCounts(c *gin.Context) {
	promptID, err := uuid.Parse(c.Param("prompt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt id"})
		return
	}

	counts, err := h.service.Counts(c.Request.Context(), promptID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	// Anonymous callers get only the numbers.
	if userID, err := response.GetUserID(c); err == nil {
		liked, err := h.service.IsActive(c.Request.Context(), entity.KindLike, userID, promptID)
		if err != nil {
			response.ResponseError(c, err)
			return
		}
		favorited, err := h.service.IsActive(c.Request.Context(), entity.KindFavorite, userID, promptID)
		if err != nil {
			response.ResponseError(c, err)
			return
		}
		counts.Liked = &liked
		counts.Favorited = &favorited
	}

	c.JSON(http.StatusOK, counts)
}

// Reconcile runs the sweep now, under the same lock as the scheduled job.
func (h *RelationshipHandler) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	token, ok, err := scheduler.AcquireLock(ctx, h.redisClient, scheduler.ReconcileJobName, h.lockTTL)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "reconcile already running"})
		return
	}
	defer func() {
		if err := scheduler.ReleaseLock(context.Background(), h.redisClient, scheduler.ReconcileJobName, token); err != nil {
			log.Printf("⚠️ Reconcile lock release failed: %v", err)
		}
	}()

	res, err := h.service.Reconcile(ctx)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
