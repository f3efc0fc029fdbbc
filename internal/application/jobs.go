package application

import (
	"context"
	"fmt"
	"sync"

	"archie-core-shopify-app/internal/application/billing"
	"archie-core-shopify-app/internal/domain"

	"github.com/rs/zerolog"
)

// JobHandler executes one kind of background job
type JobHandler func(ctx context.Context, job domain.Job) error

// JobRunner is the registered job-kind table
type JobRunner struct {
	mu       sync.RWMutex
	handlers map[domain.JobKind]JobHandler
	logger   zerolog.Logger
}

// NewJobRunner creates an empty job runner
func NewJobRunner(logger zerolog.Logger) *JobRunner {
	return &JobRunner{
		handlers: make(map[domain.JobKind]JobHandler),
		logger:   logger,
	}
}

// Register binds a handler to a job kind, replacing any previous one
func (r *JobRunner) Register(kind domain.JobKind, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Has reports whether a handler is registered for kind
func (r *JobRunner) Has(kind domain.JobKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Run executes the job with its registered handler
func (r *JobRunner) Run(ctx context.Context, job domain.Job) error {
	r.mu.RLock()
	handler, ok := r.handlers[job.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownJobKind, job.Kind)
	}

	if err := handler(ctx, job); err != nil {
		return fmt.Errorf("job %s (%s) failed: %w", job.ID, job.Kind, err)
	}
	return nil
}

// WebhookJobHandler runs queued webhook events through the dispatcher
func WebhookJobHandler(dispatcher *WebhookDispatcher) JobHandler {
	return func(ctx context.Context, job domain.Job) error {
		return dispatcher.Dispatch(ctx, job.Webhook)
	}
}

// ChargeExpiryJobHandler expires cancelled charges whose paid period has ended
func ChargeExpiryJobHandler(billingService *billing.Service, logger zerolog.Logger) JobHandler {
	return func(ctx context.Context, job domain.Job) error {
		expired, err := billingService.ExpireCancelledCharges(ctx)
		if err != nil {
			return err
		}
		logger.Info().Str("job", job.ID).Int("expired", expired).Msg("Charge expiry sweep completed")
		return nil
	}
}
