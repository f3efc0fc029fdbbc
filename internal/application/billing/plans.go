package billing

import (
	"context"
	"fmt"

	"archie-core-shopify-app/internal/domain"
)

// ListPlans returns the plan catalogue
func (s *Service) ListPlans(ctx context.Context) ([]*domain.Plan, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// SavePlan creates a plan, or updates one no charge references yet
func (s *Service) SavePlan(ctx context.Context, plan *domain.Plan) error {
	if plan.ID != 0 {
		inUse, err := s.charges.ExistsForPlan(ctx, plan.ID)
		if err != nil {
			return fmt.Errorf("failed to check plan usage: %w", err)
		}
		if inUse {
			return domain.ErrPlanInUse
		}
	}

	now := s.clock.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	if err := s.plans.Save(ctx, plan); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}
