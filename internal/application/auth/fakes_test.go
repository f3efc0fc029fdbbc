package auth

import (
	"context"
	"sync"
	"time"

	"archie-core-shopify-app/internal/domain"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type inMemoryShopRepo struct {
	mu    sync.Mutex
	shops map[domain.ShopDomain]*domain.Shop
}

func newShopRepo(shops ...*domain.Shop) *inMemoryShopRepo {
	repo := &inMemoryShopRepo{shops: map[domain.ShopDomain]*domain.Shop{}}
	for _, s := range shops {
		repo.shops[s.Domain] = s
	}
	return repo
}

func (r *inMemoryShopRepo) GetByID(_ context.Context, id int64) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shops {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryShopRepo) GetByDomain(_ context.Context, d domain.ShopDomain, withTrashed bool) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shops[d]
	if !ok || (s.IsTrashed() && !withTrashed) {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *inMemoryShopRepo) Save(_ context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *shop
	r.shops[shop.Domain] = &copied
	return nil
}

func (r *inMemoryShopRepo) update(id int64, fn func(*domain.Shop)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shops {
		if s.ID == id {
			fn(s)
			return nil
		}
	}
	return domain.ErrShopNotFound
}

func (r *inMemoryShopRepo) SetAccessToken(_ context.Context, id int64, token string) error {
	return r.update(id, func(s *domain.Shop) { s.AccessToken = token })
}

func (r *inMemoryShopRepo) SetPlan(_ context.Context, id int64, planID *int64) error {
	return r.update(id, func(s *domain.Shop) { s.PlanID = planID })
}

func (r *inMemoryShopRepo) SoftDelete(_ context.Context, id int64) error {
	now := time.Now()
	return r.update(id, func(s *domain.Shop) { s.DeletedAt = &now })
}

func (r *inMemoryShopRepo) Restore(_ context.Context, id int64) error {
	return r.update(id, func(s *domain.Shop) { s.DeletedAt = nil })
}

type inMemorySessionStore struct {
	mu   sync.Mutex
	data map[string]domain.SessionData
}

func newSessionStore() *inMemorySessionStore {
	return &inMemorySessionStore{data: map[string]domain.SessionData{}}
}

func (s *inMemorySessionStore) Load(_ context.Context, id string) (*domain.SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[id]
	if !ok {
		return &domain.SessionData{}, nil
	}
	return &data, nil
}

func (s *inMemorySessionStore) Save(_ context.Context, id string, data *domain.SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = *data
	return nil
}

func (s *inMemorySessionStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

type inMemoryGuard struct {
	mu     sync.Mutex
	logins map[string]domain.ShopDomain
}

func newGuard() *inMemoryGuard {
	return &inMemoryGuard{logins: map[string]domain.ShopDomain{}}
}

func (g *inMemoryGuard) Login(_ context.Context, id string, shop *domain.Shop) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logins[id] = shop.Domain
	return nil
}

func (g *inMemoryGuard) Logout(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.logins, id)
	return nil
}

func (g *inMemoryGuard) Current(_ context.Context, id string) (domain.ShopDomain, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.logins[id], nil
}
