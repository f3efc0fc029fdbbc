package entity

import (
	"time"

	"archie-core-shopify-app/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoPlanDoc represents a billing plan in MongoDB
type MongoPlanDoc struct {
	ID           int64                 `bson:"_id"`
	Type         string                `bson:"type"`
	Interval     string                `bson:"interval,omitempty"`
	Name         string                `bson:"name"`
	Price        primitive.Decimal128  `bson:"price"`
	TrialDays    int                   `bson:"trialDays"`
	CappedAmount *primitive.Decimal128 `bson:"cappedAmount,omitempty"`
	Terms        string                `bson:"terms,omitempty"`
	Test         bool                  `bson:"test"`
	OnInstall    bool                  `bson:"onInstall"`
	CreatedAt    time.Time             `bson:"createdAt"`
	UpdatedAt    time.Time             `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoPlanDoc) ToDomain() *domain.Plan {
	return &domain.Plan{
		ID:           d.ID,
		Type:         domain.PlanType(d.Type),
		Interval:     domain.PlanInterval(d.Interval),
		Name:         d.Name,
		Price:        fromDecimal128(d.Price),
		TrialDays:    d.TrialDays,
		CappedAmount: fromDecimal128Ptr(d.CappedAmount),
		Terms:        d.Terms,
		Test:         d.Test,
		OnInstall:    d.OnInstall,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoPlanDocFromDomain converts a domain entity to a MongoDB document
func MongoPlanDocFromDomain(plan *domain.Plan) (*MongoPlanDoc, error) {
	price, err := toDecimal128(plan.Price)
	if err != nil {
		return nil, err
	}
	capped, err := toDecimal128Ptr(plan.CappedAmount)
	if err != nil {
		return nil, err
	}
	return &MongoPlanDoc{
		ID:           plan.ID,
		Type:         string(plan.Type),
		Interval:     string(plan.Interval),
		Name:         plan.Name,
		Price:        price,
		TrialDays:    plan.TrialDays,
		CappedAmount: capped,
		Terms:        plan.Terms,
		Test:         plan.Test,
		OnInstall:    plan.OnInstall,
		CreatedAt:    plan.CreatedAt,
		UpdatedAt:    plan.UpdatedAt,
	}, nil
}
