package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"anoa.com/promptvault/internal/entity"
	notifRepo "anoa.com/promptvault/internal/modules/notification/repository"
	"anoa.com/promptvault/internal/testutil"
	"anoa.com/promptvault/pkg/apperror"
	"anoa.com/promptvault/pkg/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (NotificationService, *gorm.DB, *testutil.Clock) {
	t.Helper()
	db := testutil.OpenDB(t)
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewNotificationService(
		notifRepo.NewNotificationRepository(db),
		database.NewTransactor(db, sql.LevelDefault),
		DefaultDedupWindow,
		clock.Now,
	)
	return svc, db, clock
}

func likeNotification(recipient, actor, prompt uuid.UUID) *entity.Notification {
	return &entity.Notification{
		UserID:          recipient,
		Type:            entity.NotificationLike,
		Message:         "alice liked your prompt: Neon city",
		RelatedUserID:   &actor,
		RelatedPromptID: &prompt,
		Metadata:        Metadata(map[string]any{"kind": "like"}),
	}
}

func countNotifications(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&entity.Notification{}).Count(&n).Error)
	return n
}

func TestInsertIfNotDuplicate_SuppressesWithinWindow(t *testing.T) {
	svc, db, clock := setup(t)
	ctx := context.Background()
	recipient, actor, prompt := uuid.New(), uuid.New(), uuid.New()

	first, err := svc.InsertIfNotDuplicate(ctx, likeNotification(recipient, actor, prompt))
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	second, err := svc.InsertIfNotDuplicate(ctx, likeNotification(recipient, actor, prompt))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(1), countNotifications(t, db))
}

func TestInsertIfNotDuplicate_InsertsAfterWindow(t *testing.T) {
	svc, db, clock := setup(t)
	ctx := context.Background()
	recipient, actor, prompt := uuid.New(), uuid.New(), uuid.New()

	first, err := svc.InsertIfNotDuplicate(ctx, likeNotification(recipient, actor, prompt))
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	second, err := svc.InsertIfNotDuplicate(ctx, likeNotification(recipient, actor, prompt))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, int64(2), countNotifications(t, db))
}

func TestInsertIfNotDuplicate_DistinguishesRelatedIDs(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	recipient, actor := uuid.New(), uuid.New()

	_, err := svc.InsertIfNotDuplicate(ctx, likeNotification(recipient, actor, uuid.New()))
	require.NoError(t, err)
	_, err = svc.InsertIfNotDuplicate(ctx, likeNotification(recipient, actor, uuid.New()))
	require.NoError(t, err)

	// Nil related ids only match other nil related ids.
	plain := &entity.Notification{UserID: recipient, Type: entity.NotificationFollow, Message: "bob followed you"}
	_, err = svc.InsertIfNotDuplicate(ctx, plain)
	require.NoError(t, err)
	again := &entity.Notification{UserID: recipient, Type: entity.NotificationFollow, Message: "bob followed you"}
	dup, err := svc.InsertIfNotDuplicate(ctx, again)
	require.NoError(t, err)
	require.Equal(t, plain.ID, dup.ID)

	require.Equal(t, int64(3), countNotifications(t, db))
}

func TestInsertIfNotDuplicate_SanitizesMessage(t *testing.T) {
	svc, _, _ := setup(t)

	n, err := svc.InsertIfNotDuplicate(context.Background(), &entity.Notification{
		UserID:  uuid.New(),
		Type:    entity.NotificationFork,
		Message: "<script>alert(1)</script>carol forked your prompt",
	})
	require.NoError(t, err)
	require.NotContains(t, n.Message, "<script>")
	require.Contains(t, n.Message, "carol forked your prompt")
}

func TestInsertIfNotDuplicate_KeepsLiteralPunctuation(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	recipient, actor, prompt := uuid.New(), uuid.New(), uuid.New()
	message := `o'neil liked your prompt: Tom & Jerry "noir" style`

	n := likeNotification(recipient, actor, prompt)
	n.Message = "<b>" + message + "</b>"
	stored, err := svc.InsertIfNotDuplicate(ctx, n)
	require.NoError(t, err)
	require.Equal(t, message, stored.Message)

	var reloaded entity.Notification
	require.NoError(t, db.First(&reloaded, "id = ?", stored.ID).Error)
	require.Equal(t, message, reloaded.Message)

	again := likeNotification(recipient, actor, prompt)
	again.Message = message
	dup, err := svc.InsertIfNotDuplicate(ctx, again)
	require.NoError(t, err)
	require.Equal(t, stored.ID, dup.ID)
	require.Equal(t, int64(1), countNotifications(t, db))
}

func TestInsertIfNotDuplicate_RequiresRecipient(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.InsertIfNotDuplicate(context.Background(), &entity.Notification{Type: entity.NotificationLike})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestMarkAsRead(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	recipient := uuid.New()

	n, err := svc.InsertIfNotDuplicate(ctx, likeNotification(recipient, uuid.New(), uuid.New()))
	require.NoError(t, err)

	unread, err := svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)

	require.ErrorIs(t, svc.MarkAsRead(ctx, uuid.New(), n.ID), apperror.ErrNotFound)
	require.NoError(t, svc.MarkAsRead(ctx, recipient, n.ID))

	unread, err = svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	require.Zero(t, unread)
}
