package config

import (
	"fmt"
	"os"

	"archie-core-shopify-app/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type planEntry struct {
	ID           int64  `yaml:"id"`
	Type         string `yaml:"type"`
	Interval     string `yaml:"interval"`
	Name         string `yaml:"name"`
	Price        string `yaml:"price"`
	TrialDays    int    `yaml:"trial_days"`
	CappedAmount string `yaml:"capped_amount"`
	Terms        string `yaml:"terms"`
	Test         bool   `yaml:"test"`
	OnInstall    bool   `yaml:"on_install"`
}

type plansFile struct {
	Plans []planEntry `yaml:"plans"`
}

// LoadPlans reads the plan catalogue seeded at startup. Ids are fixed so reseeding updates
// plans in place.
func LoadPlans(path string) ([]*domain.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans file: %w", err)
	}

	var file plansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plans file: %w", err)
	}

	plans := make([]*domain.Plan, 0, len(file.Plans))
	for i, entry := range file.Plans {
		plan, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("plan %d (%s): %w", i, entry.Name, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (e planEntry) toDomain() (*domain.Plan, error) {
	if e.ID <= 0 {
		return nil, fmt.Errorf("id must be positive")
	}
	if e.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	planType := domain.PlanType(e.Type)
	switch planType {
	case domain.PlanTypeRecurring, domain.PlanTypeOneTime:
	case "":
		planType = domain.PlanTypeRecurring
	default:
		return nil, fmt.Errorf("unknown plan type %q", e.Type)
	}

	interval := domain.PlanInterval(e.Interval)
	switch interval {
	case domain.PlanIntervalEvery30Days, domain.PlanIntervalAnnual:
	case "":
		interval = domain.PlanIntervalEvery30Days
	default:
		return nil, fmt.Errorf("unknown plan interval %q", e.Interval)
	}

	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", e.Price, err)
	}

	plan := &domain.Plan{
		ID:        e.ID,
		Type:      planType,
		Interval:  interval,
		Name:      e.Name,
		Price:     price,
		TrialDays: e.TrialDays,
		Terms:     e.Terms,
		Test:      e.Test,
		OnInstall: e.OnInstall,
	}
	if e.CappedAmount != "" {
		capped, err := decimal.NewFromString(e.CappedAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid capped amount %q: %w", e.CappedAmount, err)
		}
		plan.CappedAmount = &capped
	}
	return plan, nil
}
