package scheduler

import (
	"context"
	"time"

	relationship "anoa.com/promptvault/internal/modules/relationship/service"
	"anoa.com/promptvault/pkg/database"
)

const ReconcileJobName = "reconcile"

// ReconcileJob runs the relationship duplicate sweep, retrying transient conflicts.
type ReconcileJob struct {
	service  relationship.RelationshipService
	schedule string
}

func NewReconcileJob(service relationship.RelationshipService, schedule string) *ReconcileJob {
	return &ReconcileJob{service: service, schedule: schedule}
}

func (j *ReconcileJob) Name() string     { return ReconcileJobName }
func (j *ReconcileJob) Schedule() string { return j.schedule }

func (j *ReconcileJob) Execute(ctx context.Context) error {
	return database.Retry(ctx, 3, 500*time.Millisecond, func() error {
		_, err := j.service.Reconcile(ctx)
		return err
	})
}
