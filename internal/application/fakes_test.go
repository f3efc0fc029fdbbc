package application

import (
	"context"
	"net/url"
	"sync"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type fakeCommerceAPI struct {
	mu       sync.Mutex
	access   *domain.AccessResponse
	perUser  []bool
	codes    []string
	tokenErr error
}

func (f *fakeCommerceAPI) BuildAuthURL(shop domain.ShopDomain, scopes []string, redirectURI string, state string, perUser bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perUser = append(f.perUser, perUser)
	q := url.Values{"redirect_uri": {redirectURI}, "state": {state}}
	return "https://" + shop.String() + "/admin/oauth/authorize?" + q.Encode(), nil
}

func (f *fakeCommerceAPI) RequestAccessToken(_ context.Context, _ domain.ShopDomain, code string) (*domain.AccessResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return f.access, nil
}

func (f *fakeCommerceAPI) CreateCharge(context.Context, domain.ShopDomain, string, domain.ChargeType, domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	return nil, nil
}

func (f *fakeCommerceAPI) CreateChargeGraphQL(context.Context, domain.ShopDomain, string, domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	return nil, nil
}

func (f *fakeCommerceAPI) GetCharge(context.Context, domain.ShopDomain, string, domain.ChargeType, domain.ChargeReference) (*ports.ChargeState, error) {
	return nil, nil
}

func (f *fakeCommerceAPI) ActivateCharge(context.Context, domain.ShopDomain, string, domain.ChargeType, domain.ChargeReference) (*ports.ChargeState, error) {
	return nil, nil
}

func (f *fakeCommerceAPI) CreateUsageCharge(context.Context, domain.ShopDomain, string, domain.ChargeReference, domain.UsageChargeDetails) (*ports.UsageChargeResult, bool, error) {
	return nil, false, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []domain.Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job domain.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) recorded() []domain.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Job(nil), d.jobs...)
}

type recordingWebhookHandler struct {
	topic  string
	err    error
	events []*domain.WebhookEvent
}

func (h *recordingWebhookHandler) CanHandle(topic string) bool {
	return topic == h.topic
}

func (h *recordingWebhookHandler) Handle(_ context.Context, event *domain.WebhookEvent) error {
	h.events = append(h.events, event)
	return h.err
}
