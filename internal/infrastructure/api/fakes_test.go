package api

import (
	"context"
	"net/url"
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

type fakeCommerceAPI struct {
	mu            sync.Mutex
	accessToken   string
	chargeStatus  domain.ChargeStatus
	declineUsage  bool
	createdCharge *domain.PlanDetails
	activated     []domain.ChargeReference
}

func (f *fakeCommerceAPI) BuildAuthURL(shop domain.ShopDomain, scopes []string, redirectURI string, state string, perUser bool) (string, error) {
	q := url.Values{"client_id": {"api-key"}, "redirect_uri": {redirectURI}, "state": {state}}
	return "https://" + shop.String() + "/admin/oauth/authorize?" + q.Encode(), nil
}

func (f *fakeCommerceAPI) RequestAccessToken(_ context.Context, _ domain.ShopDomain, _ string) (*domain.AccessResponse, error) {
	return &domain.AccessResponse{AccessToken: f.accessToken, Scope: "read_products"}, nil
}

func (f *fakeCommerceAPI) CreateCharge(_ context.Context, _ domain.ShopDomain, _ string, _ domain.ChargeType, details domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdCharge = &details
	return &ports.ChargeConfirmation{Reference: 1001, ConfirmationURL: "https://foo.myshopify.com/admin/charges/1001/confirm"}, nil
}

func (f *fakeCommerceAPI) CreateChargeGraphQL(ctx context.Context, shop domain.ShopDomain, token string, details domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	return f.CreateCharge(ctx, shop, token, domain.ChargeTypeRecurring, details)
}

func (f *fakeCommerceAPI) GetCharge(_ context.Context, _ domain.ShopDomain, _ string, _ domain.ChargeType, ref domain.ChargeReference) (*ports.ChargeState, error) {
	return &ports.ChargeState{Reference: ref, Status: f.chargeStatus}, nil
}

func (f *fakeCommerceAPI) ActivateCharge(_ context.Context, _ domain.ShopDomain, _ string, _ domain.ChargeType, ref domain.ChargeReference) (*ports.ChargeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, ref)
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	return &ports.ChargeState{Reference: ref, Status: domain.ChargeStatusActive, ActivatedOn: &now}, nil
}

func (f *fakeCommerceAPI) CreateUsageCharge(_ context.Context, _ domain.ShopDomain, _ string, _ domain.ChargeReference, _ domain.UsageChargeDetails) (*ports.UsageChargeResult, bool, error) {
	if f.declineUsage {
		return nil, false, nil
	}
	return &ports.UsageChargeResult{Reference: 5005}, true, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job domain.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) recorded() []domain.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Job(nil), d.jobs...)
}
