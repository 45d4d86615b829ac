// Package scheduler runs maintenance jobs on cron schedules. Each run takes a Redis
// lock first, so with several replicas only one of them executes a given job.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"anoa.com/promptvault/pkg/apperror"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

type Job interface {
	Name() string
	// Schedule is a cron spec; empty means on-demand only.
	Schedule() string
	Execute(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	redis   *redis.Client
	jobs    []Job
	lockTTL time.Duration

	// ctx is handed to scheduled runs and canceled when Stop gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(redisClient *redis.Client, lockTTL time.Duration) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		redis:   redisClient,
		lockTTL: lockTTL,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Register(job Job) error {
	if spec := job.Schedule(); spec != "" {
		if _, err := s.cron.AddFunc(spec, func() {
			if _, err := s.Run(s.ctx, job); err != nil {
				log.Printf("❌ [%s] Job failed: %v", job.Name(), err)
			}
		}); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", spec, job.Name(), err)
		}
		log.Printf("📅 [%s] Scheduled with cron: %s", job.Name(), spec)
	} else {
		log.Printf("📝 [%s] Registered as on-demand job", job.Name())
	}

	s.jobs = append(s.jobs, job)
	return nil
}

// Run executes job under its lock. It reports false when another replica holds
// the lock and the run was skipped.
func (s *Scheduler) Run(ctx context.Context, job Job) (bool, error) {
	token, ok, err := AcquireLock(ctx, s.redis, job.Name(), s.lockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Printf("⏭️ [%s] Skipped, another instance holds the lock", job.Name())
		return false, nil
	}
	defer func() {
		if err := ReleaseLock(context.Background(), s.redis, job.Name(), token); err != nil {
			log.Printf("⚠️ [%s] Lock release failed: %v", job.Name(), err)
		}
	}()

	log.Printf("🤖 [%s] Starting job...", job.Name())
	start := time.Now()
	if err := job.Execute(ctx); err != nil {
		return true, err
	}
	log.Printf("✅ [%s] Job completed in %s", job.Name(), time.Since(start).Round(time.Millisecond))
	return true, nil
}

func (s *Scheduler) RunByName(ctx context.Context, name string) (bool, error) {
	for _, job := range s.jobs {
		if job.Name() == name {
			return s.Run(ctx, job)
		}
	}
	return false, fmt.Errorf("job %q: %w", name, apperror.ErrNotFound)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("🚀 Scheduler started with %d registered jobs", len(s.jobs))
}

// Stop prevents new runs and waits for running jobs until ctx is done. On timeout
// the running jobs' context is canceled and ctx's error returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.cancel()
	select {
	case <-s.cron.Stop().Done():
		log.Println("🛑 Scheduler stopped")
		return nil
	case <-ctx.Done():
		log.Printf("⚠️ Scheduler stop timed out, canceling running jobs: %v", ctx.Err())
		return ctx.Err()
	}
}

func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name()
	}
	return names
}
