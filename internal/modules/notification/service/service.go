package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/internal/metrics"
	notifRepo "anoa.com/promptvault/internal/modules/notification/repository"
	"anoa.com/promptvault/pkg/apperror"
	"anoa.com/promptvault/pkg/database"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultDedupWindow = 5 * time.Second

type NotificationService interface {
	// InsertIfNotDuplicate stores n unless an identical notification (same recipient,
	// type, message and related ids) was created within the dedup window, in which
	// case the existing row is returned unchanged. It is a best-effort guard against
	// double clicks and retries, not an idempotency key.
	InsertIfNotDuplicate(ctx context.Context, n *entity.Notification) (*entity.Notification, error)
	InsertIfNotDuplicateTx(ctx context.Context, tx *gorm.DB, n *entity.Notification) (*entity.Notification, error)
	GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	repo      notifRepo.NotificationRepository
	tx        *database.Transactor
	sanitizer *bluemonday.Policy
	window    time.Duration
	now       func() time.Time
}

func NewNotificationService(repo notifRepo.NotificationRepository, tx *database.Transactor, window time.Duration, now func() time.Time) NotificationService {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if now == nil {
		now = time.Now
	}
	return &notificationService{
		repo:      repo,
		tx:        tx,
		sanitizer: bluemonday.StrictPolicy(),
		window:    window,
		now:       now,
	}
}

// Metadata encodes v for Notification.Metadata.
func Metadata(v map[string]any) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func (s *notificationService) InsertIfNotDuplicate(ctx context.Context, n *entity.Notification) (*entity.Notification, error) {
	var out *entity.Notification
	err := s.tx.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.InsertIfNotDuplicateTx(ctx, tx, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// plainText strips markup and keeps the literal characters; the policy's output is
// HTML-escaped.
func (s *notificationService) plainText(msg string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(msg)))
}

func (s *notificationService) InsertIfNotDuplicateTx(ctx context.Context, tx *gorm.DB, n *entity.Notification) (*entity.Notification, error) {
	if n == nil || n.UserID == uuid.Nil || n.Type == "" {
		return nil, fmt.Errorf("notification recipient and type required: %w", apperror.ErrInvalidInput)
	}
	n.Message = s.plainText(n.Message)

	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	existing, err := repo.FindRecentDuplicate(ctx, n, now.Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		metrics.NotificationsDeduplicated.Inc()
		return existing, nil
	}

	n.CreatedAt = now
	if err := repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("notification insert failed: %w", err)
	}
	return n, nil
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.GetByUserID(ctx, userID, limit, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.repo.MarkAsRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrNotFound
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}
