package ports

import (
	"context"
	"time"

	"archie-core-shopify-app/internal/domain"
)

// ShopRepository defines the interface for shop persistence.
// Lookups return nil, nil when the record does not exist.
type ShopRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Shop, error)
	GetByDomain(ctx context.Context, shopDomain domain.ShopDomain, withTrashed bool) (*domain.Shop, error)
	Save(ctx context.Context, shop *domain.Shop) error
	SetAccessToken(ctx context.Context, id int64, accessToken string) error
	SetPlan(ctx context.Context, id int64, planID *int64) error
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
}

// PlanRepository defines the interface for plan persistence
type PlanRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Plan, error)
	GetDefault(ctx context.Context) (*domain.Plan, error)
	List(ctx context.Context) ([]*domain.Plan, error)
	Save(ctx context.Context, plan *domain.Plan) error
}

// ChargeRepository defines the interface for charge persistence
type ChargeRepository interface {
	GetByReference(ctx context.Context, ref domain.ChargeReference) (*domain.Charge, error)
	GetByReferenceAndShop(ctx context.Context, ref domain.ChargeReference, shopID int64) (*domain.Charge, error)
	// LatestForPlan returns the most recent recurring/one-time charge of a shop for a plan
	LatestForPlan(ctx context.Context, planID int64, shopID int64) (*domain.Charge, error)
	ListByShop(ctx context.Context, shopID int64) ([]*domain.Charge, error)
	// ListCancelledExpiringBefore returns cancelled charges whose expiresOn is before the given day
	ListCancelledExpiringBefore(ctx context.Context, day time.Time) ([]*domain.Charge, error)
	Create(ctx context.Context, charge *domain.Charge) error
	Update(ctx context.Context, charge *domain.Charge) error
	DeleteByReference(ctx context.Context, ref domain.ChargeReference, shopID int64) error
	ExistsForPlan(ctx context.Context, planID int64) (bool, error)
}

// Transactor runs fn atomically. Repositories called with the ctx handed to fn take part
// in the same transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
