package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"
)

// Store is an in-process backend for every persistence and session port.
// Used for local development and tests; data does not survive a restart.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	nextID   map[string]int64
	shops    map[int64]domain.Shop
	plans    map[int64]domain.Plan
	charges  map[int64]domain.Charge
	sessions map[string]domain.SessionData
	guard    map[string]domain.ShopDomain
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		nextID:   make(map[string]int64),
		shops:    make(map[int64]domain.Shop),
		plans:    make(map[int64]domain.Plan),
		charges:  make(map[int64]domain.Charge),
		sessions: make(map[string]domain.SessionData),
		guard:    make(map[string]domain.ShopDomain),
	}
}

func (s *Store) next(name string) int64 {
	s.nextID[name]++
	return s.nextID[name]
}

// Shops returns the store as a ShopRepository
func (s *Store) Shops() ports.ShopRepository { return shopRepo{s} }

// Plans returns the store as a PlanRepository
func (s *Store) Plans() ports.PlanRepository { return planRepo{s} }

// Charges returns the store as a ChargeRepository
func (s *Store) Charges() ports.ChargeRepository { return chargeRepo{s} }

// Sessions returns the store as a SessionStore
func (s *Store) Sessions() ports.SessionStore { return sessionStore{s} }

// Guard returns the store as an AuthGuard
func (s *Store) Guard() ports.AuthGuard { return authGuard{s} }

// WithinTransaction serializes transactions and rolls shops and charges back when fn fails
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	shops := make(map[int64]domain.Shop, len(s.shops))
	for k, v := range s.shops {
		shops[k] = v
	}
	charges := make(map[int64]domain.Charge, len(s.charges))
	for k, v := range s.charges {
		charges[k] = v
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.shops = shops
		s.charges = charges
		s.mu.Unlock()
		return err
	}
	return nil
}

type shopRepo struct{ s *Store }

func (r shopRepo) GetByID(_ context.Context, id int64) (*domain.Shop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	shop, ok := r.s.shops[id]
	if !ok {
		return nil, nil
	}
	return &shop, nil
}

func (r shopRepo) GetByDomain(_ context.Context, shopDomain domain.ShopDomain, withTrashed bool) (*domain.Shop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, shop := range r.s.shops {
		if shop.Domain != shopDomain {
			continue
		}
		if shop.IsTrashed() && !withTrashed {
			return nil, nil
		}
		found := shop
		return &found, nil
	}
	return nil, nil
}

func (r shopRepo) Save(_ context.Context, shop *domain.Shop) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	if shop.ID == 0 {
		shop.ID = r.s.next("shops")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = now
	}
	shop.UpdatedAt = now
	r.s.shops[shop.ID] = *shop
	return nil
}

func (r shopRepo) update(id int64, fn func(*domain.Shop)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	shop, ok := r.s.shops[id]
	if !ok {
		return domain.ErrShopNotFound
	}
	fn(&shop)
	shop.UpdatedAt = time.Now().UTC()
	r.s.shops[id] = shop
	return nil
}

func (r shopRepo) SetAccessToken(_ context.Context, id int64, accessToken string) error {
	return r.update(id, func(s *domain.Shop) { s.AccessToken = accessToken })
}

func (r shopRepo) SetPlan(_ context.Context, id int64, planID *int64) error {
	return r.update(id, func(s *domain.Shop) { s.PlanID = planID })
}

func (r shopRepo) SoftDelete(_ context.Context, id int64) error {
	return r.update(id, func(s *domain.Shop) {
		now := time.Now().UTC()
		s.DeletedAt = &now
	})
}

func (r shopRepo) Restore(_ context.Context, id int64) error {
	return r.update(id, func(s *domain.Shop) { s.DeletedAt = nil })
}

type planRepo struct{ s *Store }

func (r planRepo) GetByID(_ context.Context, id int64) (*domain.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plan, ok := r.s.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

func (r planRepo) GetDefault(ctx context.Context) (*domain.Plan, error) {
	plans, _ := r.List(ctx)
	for _, plan := range plans {
		if plan.OnInstall {
			return plan, nil
		}
	}
	return nil, nil
}

func (r planRepo) List(_ context.Context) ([]*domain.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plans := make([]*domain.Plan, 0, len(r.s.plans))
	for _, plan := range r.s.plans {
		p := plan
		plans = append(plans, &p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans, nil
}

func (r planRepo) Save(_ context.Context, plan *domain.Plan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if plan.ID == 0 {
		plan.ID = r.s.next("plans")
	}
	r.s.plans[plan.ID] = *plan
	return nil
}

type chargeRepo struct{ s *Store }

func (r chargeRepo) filter(keep func(domain.Charge) bool) []*domain.Charge {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Charge
	for _, charge := range r.s.charges {
		if keep(charge) {
			c := charge
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r chargeRepo) GetByReference(_ context.Context, ref domain.ChargeReference) (*domain.Charge, error) {
	found := r.filter(func(c domain.Charge) bool { return c.Reference == ref })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r chargeRepo) GetByReferenceAndShop(_ context.Context, ref domain.ChargeReference, shopID int64) (*domain.Charge, error) {
	found := r.filter(func(c domain.Charge) bool { return c.Reference == ref && c.ShopID == shopID })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r chargeRepo) LatestForPlan(_ context.Context, planID int64, shopID int64) (*domain.Charge, error) {
	found := r.filter(func(c domain.Charge) bool {
		return c.ShopID == shopID && c.PlanID != nil && *c.PlanID == planID && c.Type != domain.ChargeTypeUsage
	})
	if len(found) == 0 {
		return nil, nil
	}
	return found[len(found)-1], nil
}

func (r chargeRepo) ListByShop(_ context.Context, shopID int64) ([]*domain.Charge, error) {
	return r.filter(func(c domain.Charge) bool { return c.ShopID == shopID }), nil
}

func (r chargeRepo) ListCancelledExpiringBefore(_ context.Context, day time.Time) ([]*domain.Charge, error) {
	return r.filter(func(c domain.Charge) bool {
		return c.Status == domain.ChargeStatusCancelled && c.ExpiresOn != nil && c.ExpiresOn.Before(day)
	}), nil
}

func (r chargeRepo) Create(_ context.Context, charge *domain.Charge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.charges {
		if existing.Reference == charge.Reference {
			return fmt.Errorf("failed to create charge: duplicate reference %d", charge.Reference)
		}
	}
	now := time.Now().UTC()
	charge.ID = r.s.next("charges")
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = now
	}
	charge.UpdatedAt = now
	r.s.charges[charge.ID] = *charge
	return nil
}

func (r chargeRepo) Update(_ context.Context, charge *domain.Charge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.charges[charge.ID]; !ok {
		return domain.ErrChargeNotFound
	}
	charge.UpdatedAt = time.Now().UTC()
	r.s.charges[charge.ID] = *charge
	return nil
}

func (r chargeRepo) DeleteByReference(_ context.Context, ref domain.ChargeReference, shopID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, charge := range r.s.charges {
		if charge.Reference == ref && charge.ShopID == shopID {
			delete(r.s.charges, id)
		}
	}
	return nil
}

func (r chargeRepo) ExistsForPlan(_ context.Context, planID int64) (bool, error) {
	found := r.filter(func(c domain.Charge) bool { return c.PlanID != nil && *c.PlanID == planID })
	return len(found) > 0, nil
}

type sessionStore struct{ s *Store }

func (st sessionStore) Load(_ context.Context, sessionID string) (*domain.SessionData, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	data := st.s.sessions[sessionID]
	return &data, nil
}

func (st sessionStore) Save(_ context.Context, sessionID string, data *domain.SessionData) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.sessions[sessionID] = *data
	return nil
}

func (st sessionStore) Destroy(_ context.Context, sessionID string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	delete(st.s.sessions, sessionID)
	delete(st.s.guard, sessionID)
	return nil
}

type authGuard struct{ s *Store }

func (g authGuard) Login(_ context.Context, sessionID string, shop *domain.Shop) error {
	if shop == nil {
		return domain.ErrShopNotFound
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	g.s.guard[sessionID] = shop.Domain
	return nil
}

func (g authGuard) Logout(_ context.Context, sessionID string) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	delete(g.s.guard, sessionID)
	return nil
}

func (g authGuard) Current(_ context.Context, sessionID string) (domain.ShopDomain, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	return g.s.guard[sessionID], nil
}
