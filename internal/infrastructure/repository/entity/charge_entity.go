package entity

import (
	"time"

	"archie-core-shopify-app/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoChargeDoc represents a platform charge in MongoDB
type MongoChargeDoc struct {
	ID              int64                 `bson:"_id"`
	ShopID          int64                 `bson:"shopId"`
	PlanID          *int64                `bson:"planId,omitempty"`
	Type            string                `bson:"type"`
	Reference       int64                 `bson:"reference"`
	ReferenceCharge *int64                `bson:"referenceCharge,omitempty"`
	Status          string                `bson:"status"`
	Name            string                `bson:"name,omitempty"`
	Price           primitive.Decimal128  `bson:"price"`
	CappedAmount    *primitive.Decimal128 `bson:"cappedAmount,omitempty"`
	Terms           string                `bson:"terms,omitempty"`
	Description     string                `bson:"description,omitempty"`
	Test            bool                  `bson:"test"`
	TrialDays       int                   `bson:"trialDays"`
	ActivatedOn     *time.Time            `bson:"activatedOn,omitempty"`
	BillingOn       *time.Time            `bson:"billingOn,omitempty"`
	TrialEndsOn     *time.Time            `bson:"trialEndsOn,omitempty"`
	CancelledOn     *time.Time            `bson:"cancelledOn,omitempty"`
	ExpiresOn       *time.Time            `bson:"expiresOn,omitempty"`
	CreatedAt       time.Time             `bson:"createdAt"`
	UpdatedAt       time.Time             `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoChargeDoc) ToDomain() *domain.Charge {
	charge := &domain.Charge{
		ID:           d.ID,
		ShopID:       d.ShopID,
		PlanID:       d.PlanID,
		Type:         domain.ChargeType(d.Type),
		Reference:    domain.ChargeReference(d.Reference),
		Status:       domain.ChargeStatus(d.Status),
		Name:         d.Name,
		Price:        fromDecimal128(d.Price),
		CappedAmount: fromDecimal128Ptr(d.CappedAmount),
		Terms:        d.Terms,
		Description:  d.Description,
		Test:         d.Test,
		TrialDays:    d.TrialDays,
		ActivatedOn:  d.ActivatedOn,
		BillingOn:    d.BillingOn,
		TrialEndsOn:  d.TrialEndsOn,
		CancelledOn:  d.CancelledOn,
		ExpiresOn:    d.ExpiresOn,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.ReferenceCharge != nil {
		ref := domain.ChargeReference(*d.ReferenceCharge)
		charge.ReferenceCharge = &ref
	}
	return charge
}

// MongoChargeDocFromDomain converts a domain entity to a MongoDB document
func MongoChargeDocFromDomain(charge *domain.Charge) (*MongoChargeDoc, error) {
	price, err := toDecimal128(charge.Price)
	if err != nil {
		return nil, err
	}
	capped, err := toDecimal128Ptr(charge.CappedAmount)
	if err != nil {
		return nil, err
	}
	doc := &MongoChargeDoc{
		ID:           charge.ID,
		ShopID:       charge.ShopID,
		PlanID:       charge.PlanID,
		Type:         string(charge.Type),
		Reference:    int64(charge.Reference),
		Status:       string(charge.Status),
		Name:         charge.Name,
		Price:        price,
		CappedAmount: capped,
		Terms:        charge.Terms,
		Description:  charge.Description,
		Test:         charge.Test,
		TrialDays:    charge.TrialDays,
		ActivatedOn:  charge.ActivatedOn,
		BillingOn:    charge.BillingOn,
		TrialEndsOn:  charge.TrialEndsOn,
		CancelledOn:  charge.CancelledOn,
		ExpiresOn:    charge.ExpiresOn,
		CreatedAt:    charge.CreatedAt,
		UpdatedAt:    charge.UpdatedAt,
	}
	if charge.ReferenceCharge != nil {
		ref := int64(*charge.ReferenceCharge)
		doc.ReferenceCharge = &ref
	}
	return doc, nil
}
