package api

import (
	"errors"
	"net/http"
	"strings"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/middleware"
	"archie-core-shopify-app/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// topicFromType maps a route type such as "app-uninstalled" to "app/uninstalled"
func topicFromType(webhookType string) string {
	return strings.Replace(webhookType, "-", "/", 1)
}

// webhookHandler queues a verified webhook for background handling
func webhookHandler(jobs ports.JobDispatcher, clock ports.Clock, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, ok := middleware.WebhookFromContext(r.Context())
		if !ok {
			middleware.WriteError(w, http.StatusUnauthorized, domain.ErrSignatureVerification)
			return
		}
		if event.Topic == "" {
			event.Topic = topicFromType(chi.URLParam(r, "type"))
		}

		job := domain.Job{
			ID:         uuid.NewString(),
			Kind:       domain.JobKindWebhook,
			Shop:       event.Shop,
			Webhook:    event,
			EnqueuedAt: clock.Now(),
		}
		if err := jobs.Dispatch(r.Context(), job); err != nil {
			logger.Error().
				Err(err).
				Str("shop", event.Shop.String()).
				Str("topic", event.Topic).
				Msg("Failed to queue webhook")
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrQueueFull) || errors.Is(err, domain.ErrQueueClosed) {
				status = http.StatusServiceUnavailable
			}
			middleware.WriteError(w, status, nil)
			return
		}

		logger.Info().
			Str("shop", event.Shop.String()).
			Str("topic", event.Topic).
			Str("job_id", job.ID).
			Msg("Webhook queued")
		w.WriteHeader(http.StatusCreated)
	}
}
