package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type inMemoryShopRepo struct {
	mu    sync.Mutex
	shops map[int64]*domain.Shop
}

func newShopRepo(shops ...*domain.Shop) *inMemoryShopRepo {
	repo := &inMemoryShopRepo{shops: map[int64]*domain.Shop{}}
	for _, s := range shops {
		copied := *s
		repo.shops[s.ID] = &copied
	}
	return repo
}

func (r *inMemoryShopRepo) GetByID(_ context.Context, id int64) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shops[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *inMemoryShopRepo) GetByDomain(_ context.Context, d domain.ShopDomain, _ bool) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shops {
		if s.Domain == d {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryShopRepo) Save(_ context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *shop
	r.shops[shop.ID] = &copied
	return nil
}

func (r *inMemoryShopRepo) SetAccessToken(_ context.Context, id int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shops[id].AccessToken = token
	return nil
}

func (r *inMemoryShopRepo) SetPlan(_ context.Context, id int64, planID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shops[id].PlanID = planID
	return nil
}

func (r *inMemoryShopRepo) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.shops[id].DeletedAt = &now
	return nil
}

func (r *inMemoryShopRepo) Restore(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shops[id].DeletedAt = nil
	return nil
}

type inMemoryPlanRepo struct {
	plans map[int64]*domain.Plan
	saved []*domain.Plan
}

func newPlanRepo(plans ...*domain.Plan) *inMemoryPlanRepo {
	repo := &inMemoryPlanRepo{plans: map[int64]*domain.Plan{}}
	for _, p := range plans {
		repo.plans[p.ID] = p
	}
	return repo
}

func (r *inMemoryPlanRepo) GetByID(_ context.Context, id int64) (*domain.Plan, error) {
	return r.plans[id], nil
}

func (r *inMemoryPlanRepo) GetDefault(_ context.Context) (*domain.Plan, error) {
	for _, p := range r.plans {
		if p.OnInstall {
			return p, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPlanRepo) List(_ context.Context) ([]*domain.Plan, error) {
	out := make([]*domain.Plan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *inMemoryPlanRepo) Save(_ context.Context, plan *domain.Plan) error {
	if plan.ID == 0 {
		plan.ID = int64(len(r.plans) + 1)
	}
	r.plans[plan.ID] = plan
	r.saved = append(r.saved, plan)
	return nil
}

type inMemoryChargeRepo struct {
	mu      sync.Mutex
	nextID  int64
	charges []*domain.Charge
}

func newChargeRepo(charges ...*domain.Charge) *inMemoryChargeRepo {
	repo := &inMemoryChargeRepo{}
	for _, c := range charges {
		_ = repo.Create(context.Background(), c)
	}
	return repo
}

func (r *inMemoryChargeRepo) GetByReference(_ context.Context, ref domain.ChargeReference) (*domain.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.charges {
		if c.Reference == ref {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryChargeRepo) GetByReferenceAndShop(ctx context.Context, ref domain.ChargeReference, shopID int64) (*domain.Charge, error) {
	c, err := r.GetByReference(ctx, ref)
	if c == nil || c.ShopID != shopID {
		return nil, err
	}
	return c, err
}

func (r *inMemoryChargeRepo) LatestForPlan(_ context.Context, planID int64, shopID int64) (*domain.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Charge
	for _, c := range r.charges {
		if c.ShopID != shopID || c.PlanID == nil || *c.PlanID != planID || c.Type == domain.ChargeTypeUsage {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *inMemoryChargeRepo) ListByShop(_ context.Context, shopID int64) ([]*domain.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Charge
	for _, c := range r.charges {
		if c.ShopID == shopID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *inMemoryChargeRepo) ListCancelledExpiringBefore(_ context.Context, day time.Time) ([]*domain.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Charge
	for _, c := range r.charges {
		if c.Status == domain.ChargeStatusCancelled && c.ExpiresOn != nil && c.ExpiresOn.Before(day) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *inMemoryChargeRepo) Create(_ context.Context, charge *domain.Charge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	charge.ID = r.nextID
	copied := *charge
	r.charges = append(r.charges, &copied)
	return nil
}

func (r *inMemoryChargeRepo) Update(_ context.Context, charge *domain.Charge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.charges {
		if c.ID == charge.ID {
			copied := *charge
			r.charges[i] = &copied
			return nil
		}
	}
	return domain.ErrChargeNotFound
}

func (r *inMemoryChargeRepo) DeleteByReference(_ context.Context, ref domain.ChargeReference, shopID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.charges[:0]
	for _, c := range r.charges {
		if c.Reference == ref && c.ShopID == shopID {
			continue
		}
		kept = append(kept, c)
	}
	r.charges = kept
	return nil
}

func (r *inMemoryChargeRepo) ExistsForPlan(_ context.Context, planID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.charges {
		if c.PlanID != nil && *c.PlanID == planID {
			return true, nil
		}
	}
	return false, nil
}

type passthroughTransactor struct {
	calls int
}

func (t *passthroughTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeCommerceAPI struct {
	states        map[domain.ChargeReference]*ports.ChargeState
	activated     []domain.ChargeReference
	created       []domain.PlanDetails
	createdTypes  []domain.ChargeType
	graphQL       []domain.PlanDetails
	usageDeclined bool
	usageCalls    int
	getErr        error
}

func newFakeCommerceAPI() *fakeCommerceAPI {
	return &fakeCommerceAPI{states: map[domain.ChargeReference]*ports.ChargeState{}}
}

func (f *fakeCommerceAPI) BuildAuthURL(shop domain.ShopDomain, _ []string, _ string, _ string, _ bool) (string, error) {
	return "https://" + shop.String() + "/admin/oauth/authorize", nil
}

func (f *fakeCommerceAPI) RequestAccessToken(_ context.Context, _ domain.ShopDomain, code string) (*domain.AccessResponse, error) {
	return &domain.AccessResponse{AccessToken: "token-" + code}, nil
}

func (f *fakeCommerceAPI) CreateCharge(_ context.Context, _ domain.ShopDomain, _ string, chargeType domain.ChargeType, details domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	f.created = append(f.created, details)
	f.createdTypes = append(f.createdTypes, chargeType)
	return &ports.ChargeConfirmation{Reference: 100, ConfirmationURL: "https://confirm/rest"}, nil
}

func (f *fakeCommerceAPI) CreateChargeGraphQL(_ context.Context, _ domain.ShopDomain, _ string, details domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	f.graphQL = append(f.graphQL, details)
	return &ports.ChargeConfirmation{Reference: 200, ConfirmationURL: "https://confirm/graphql"}, nil
}

func (f *fakeCommerceAPI) GetCharge(_ context.Context, _ domain.ShopDomain, _ string, _ domain.ChargeType, ref domain.ChargeReference) (*ports.ChargeState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	state, ok := f.states[ref]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (f *fakeCommerceAPI) ActivateCharge(_ context.Context, _ domain.ShopDomain, _ string, _ domain.ChargeType, ref domain.ChargeReference) (*ports.ChargeState, error) {
	f.activated = append(f.activated, ref)
	state := f.states[ref]
	state.Status = domain.ChargeStatusActive
	copied := *state
	return &copied, nil
}

func (f *fakeCommerceAPI) CreateUsageCharge(_ context.Context, _ domain.ShopDomain, _ string, _ domain.ChargeReference, _ domain.UsageChargeDetails) (*ports.UsageChargeResult, bool, error) {
	f.usageCalls++
	if f.usageDeclined {
		return nil, false, nil
	}
	return &ports.UsageChargeResult{Reference: domain.ChargeReference(900 + f.usageCalls)}, true, nil
}
