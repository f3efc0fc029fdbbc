package scheduler

import (
	"context"
	"fmt"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultChargeExpirySpec runs the sweep daily shortly after midnight UTC
const DefaultChargeExpirySpec = "5 0 * * *"

// Scheduler enqueues recurring jobs on cron schedules
type Scheduler struct {
	cron   *cron.Cron
	jobs   ports.JobDispatcher
	clock  ports.Clock
	logger zerolog.Logger
}

// New creates a scheduler that dispatches into jobs
func New(jobs ports.JobDispatcher, clock ports.Clock, logger zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	cronLogger := cronLogAdapter{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		jobs:   jobs,
		clock:  clock,
		logger: logger,
	}
}

// Schedule enqueues a job of kind on every tick of spec
func (s *Scheduler) Schedule(spec string, kind domain.JobKind) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.enqueue(kind)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", kind, err)
	}
	s.logger.Info().Str("kind", string(kind)).Str("spec", spec).Msg("Job scheduled")
	return nil
}

func (s *Scheduler) enqueue(kind domain.JobKind) {
	job := domain.Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		EnqueuedAt: s.clock.Now(),
	}
	if err := s.jobs.Dispatch(context.Background(), job); err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to enqueue scheduled job")
	}
}

// Start begins running schedules in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running ticks or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

type cronLogAdapter struct {
	logger zerolog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
