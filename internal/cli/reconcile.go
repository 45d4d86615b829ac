package cli

import (
	"fmt"
	"io"
	"time"

	notifRepo "anoa.com/promptvault/internal/modules/notification/repository"
	notifService "anoa.com/promptvault/internal/modules/notification/service"
	relDto "anoa.com/promptvault/internal/modules/relationship/dto"
	relRepo "anoa.com/promptvault/internal/modules/relationship/repository"
	relService "anoa.com/promptvault/internal/modules/relationship/service"
	"anoa.com/promptvault/internal/scheduler"
	"anoa.com/promptvault/pkg/database"
	"github.com/spf13/cobra"
)

type reconcileOptions struct {
	lockTTL  time.Duration
	attempts int
}

// NewReconcileCommand runs the duplicate sweep once, holding the same lock the
// scheduled job takes.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	ro := &reconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Remove duplicate likes/favorites and repair prompt counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, release, err := opts.open(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open stores", err)
			}
			defer release()

			token, ok, err := scheduler.AcquireLock(ctx, env.Redis, scheduler.ReconcileJobName, ro.lockTTL)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to take reconcile lock", err)
			}
			if !ok {
				return NewExitError(ExitCommandError, "another reconcile is running")
			}
			defer scheduler.ReleaseLock(ctx, env.Redis, scheduler.ReconcileJobName, token)

			tx := database.NewTransactor(env.DB, env.Config.DBTxIsolation)
			notifications := notifService.NewNotificationService(
				notifRepo.NewNotificationRepository(env.DB), tx, env.Config.NotificationDedupWindow, time.Now)
			service := relService.NewRelationshipService(
				relRepo.NewRelationshipRepository(env.DB), tx, notifications, env.Redis, env.Config.CounterCacheTTL)

			var result *relDto.ReconcileResult
			err = database.Retry(ctx, ro.attempts, 500*time.Millisecond, func() error {
				var runErr error
				result, runErr = service.Reconcile(ctx)
				return runErr
			})
			if err != nil {
				return WrapExitError(ExitFailure, "reconcile failed", err)
			}

			out := NewOutputFormatter(opts.Format, cmd.OutOrStdout())
			return out.Emit(result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "duplicates removed: %d\nprompts fixed: %d\n",
					result.DuplicatesRemoved, result.EntitiesFixed)
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&ro.lockTTL, "lock-ttl", 30*time.Minute, "how long the sweep may hold the cluster lock")
	cmd.Flags().IntVar(&ro.attempts, "attempts", 3, "retries on serialization conflicts")
	return cmd
}
