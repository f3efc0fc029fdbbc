package ports

import (
	"context"

	"archie-core-shopify-app/internal/domain"
)

// JobDispatcher accepts background work for asynchronous execution
type JobDispatcher interface {
	Dispatch(ctx context.Context, job domain.Job) error
}
