package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"archie-core-shopify-app/internal/application"
	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/application/billing"
	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/memory"
	"archie-core-shopify-app/internal/infrastructure/middleware"
	"archie-core-shopify-app/internal/infrastructure/session"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey    = "api-key"
	testAPISecret = "api-secret"
	testShop      = domain.ShopDomain("foo.myshopify.com")
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type routerFixture struct {
	store   *memory.Store
	api     *fakeCommerceAPI
	jobs    *recordingDispatcher
	handler http.Handler
}

func newRouterFixture(t *testing.T, billingEnabled bool, shops ...*domain.Shop) *routerFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	for _, shop := range shops {
		require.NoError(t, store.Shops().Save(ctx, shop))
	}

	clock := fixedClock{now: testNow}
	commerce := &fakeCommerceAPI{accessToken: "offline-token", chargeStatus: domain.ChargeStatusAccepted}
	jobs := &recordingDispatcher{}

	manager := auth.NewSessionManager(store.Shops(), store.Sessions(), store.Guard(), clock, auth.SessionConfig{}, zerolog.Nop())
	verifier := auth.NewVerifier(
		auth.VerifierConfig{APIKey: testAPIKey, APISecret: testAPISecret},
		store.Shops(),
		manager,
		auth.NewSessionTokenValidator(testAPIKey, testAPISecret, 0, clock),
		clock,
		zerolog.Nop(),
	)
	install := application.NewInstallService(store.Shops(), commerce, jobs, clock, application.InstallConfig{
		APISecret: testAPISecret,
		AppURL:    "https://app.test",
		Scopes:    []string{"read_products"},
	}, zerolog.Nop())
	billingService := billing.NewService(store.Shops(), store.Plans(), store.Charges(), store, commerce, clock, billing.Config{AppURL: "https://app.test"}, zerolog.Nop())

	handler := NewRouter(Config{
		APIKey:         testAPIKey,
		APISecret:      testAPISecret,
		BillingEnabled: billingEnabled,
		Cookie:         session.CookieConfig{},
	}, Dependencies{
		Verifier: verifier,
		Install:  install,
		Billing:  billingService,
		Jobs:     jobs,
		Clock:    clock,
	}, zerolog.Nop())

	return &routerFixture{store: store, api: commerce, jobs: jobs, handler: handler}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func signed(t *testing.T, params url.Values) string {
	t.Helper()
	params.Set("timestamp", "1337178173")
	sig, err := auth.NewHmacVerifier(auth.ParamConcatenation).Sign(testAPISecret, params)
	require.NoError(t, err)
	params.Set("hmac", sig)
	return params.Encode()
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func installedShop() *domain.Shop {
	return &domain.Shop{Domain: testShop, AccessToken: "offline-token"}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthenticate_InstallFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t, true)

	// begin
	rec := f.do(httptest.NewRequest(http.MethodGet, "/authenticate?shop=foo", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "foo.myshopify.com", authURL.Host)
	assert.Equal(t, "https://app.test/authenticate", authURL.Query().Get("redirect_uri"))

	cookie := sessionCookie(t, rec)
	data, err := f.store.Sessions().Load(ctx, cookie.Value)
	require.NoError(t, err)
	require.NotEmpty(t, data.OAuthState)
	assert.Equal(t, authURL.Query().Get("state"), data.OAuthState)

	// callback
	query := signed(t, url.Values{"shop": {testShop.String()}, "code": {"auth-code"}, "state": {data.OAuthState}})
	req := httptest.NewRequest(http.MethodGet, "/authenticate?"+query, nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/billing?shop=foo.myshopify.com", rec.Header().Get("Location"))

	shop, err := f.store.Shops().GetByDomain(ctx, testShop, false)
	require.NoError(t, err)
	require.NotNil(t, shop)
	assert.Equal(t, "offline-token", shop.AccessToken)

	jobs := f.jobs.recorded()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobKindAfterAuthenticate, jobs[0].Kind)
	assert.Equal(t, testShop, jobs[0].Shop)
}

func TestAuthenticate_CallbackRejectsWrongState(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/authenticate?shop=foo", nil))
	cookie := sessionCookie(t, rec)

	query := signed(t, url.Values{"shop": {testShop.String()}, "code": {"auth-code"}, "state": {"forged"}})
	req := httptest.NewRequest(http.MethodGet, "/authenticate?"+query, nil)
	req.AddCookie(cookie)
	rec = f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.jobs.recorded())
}

func TestAuthenticate_CallbackRejectsBadHmac(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/authenticate?shop=foo.myshopify.com&code=abc&state=x&hmac=deadbeef", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_RejectsForeignHost(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/authenticate?shop=evil.com", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestTokenPage(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/authenticate/token?shop=foo.myshopify.com&target=%2Forders%3Fpage%3D2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/orders")
	assert.Contains(t, rec.Body.String(), `content="api-key"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/authenticate/token?shop=foo.myshopify.com&target=https%3A%2F%2Fevil.test", nil))
	assert.NotContains(t, rec.Body.String(), "evil.test")
}

func TestBilling_RedirectsToConfirmation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t, true, installedShop())

	plan := &domain.Plan{Type: domain.PlanTypeRecurring, Name: "Basic", Price: decimal.NewFromInt(5), TrialDays: 7, OnInstall: true}
	require.NoError(t, f.store.Plans().Save(ctx, plan))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/billing?"+signed(t, url.Values{"shop": {testShop.String()}}), nil))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "https://foo.myshopify.com/admin/charges/1001/confirm", rec.Header().Get("Location"))

	require.NotNil(t, f.api.createdCharge)
	assert.Equal(t, 7, f.api.createdCharge.TrialDays)
	assert.Contains(t, f.api.createdCharge.ReturnURL, "/billing/process/")
}

func TestBilling_UnknownShopGoesThroughInstall(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, true)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/billing?shop=bar", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/authenticate?shop=bar.myshopify.com", rec.Header().Get("Location"))
}

func TestBillingProcess_ActivatesPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t, true, installedShop())

	plan := &domain.Plan{Type: domain.PlanTypeRecurring, Name: "Basic", Price: decimal.NewFromInt(5)}
	require.NoError(t, f.store.Plans().Save(ctx, plan))

	path := "/billing/process/" + strconv.FormatInt(plan.ID, 10) + "?" + signed(t, url.Values{"shop": {testShop.String()}, "charge_id": {"1001"}})
	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/?shop=foo.myshopify.com", rec.Header().Get("Location"))

	shop, err := f.store.Shops().GetByDomain(ctx, testShop, false)
	require.NoError(t, err)
	require.NotNil(t, shop.PlanID)
	assert.Equal(t, plan.ID, *shop.PlanID)
	assert.Equal(t, []domain.ChargeReference{1001}, f.api.activated)

	charge, err := f.store.Charges().GetByReference(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeStatusActive, charge.Status)
}

func TestBillingProcess_Declined(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t, true, installedShop())
	f.api.chargeStatus = domain.ChargeStatusDeclined

	plan := &domain.Plan{Type: domain.PlanTypeRecurring, Name: "Basic", Price: decimal.NewFromInt(5)}
	require.NoError(t, f.store.Plans().Save(ctx, plan))

	path := "/billing/process/" + strconv.FormatInt(plan.ID, 10) + "?" + signed(t, url.Values{"shop": {testShop.String()}, "charge_id": {"1001"}})
	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	shop, err := f.store.Shops().GetByDomain(ctx, testShop, false)
	require.NoError(t, err)
	assert.Nil(t, shop.PlanID)
}

func TestHome_BillableRedirect(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, true, installedShop())

	rec := f.do(httptest.NewRequest(http.MethodGet, "/?"+signed(t, url.Values{"shop": {testShop.String()}}), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/billing?shop=foo.myshopify.com", rec.Header().Get("Location"))
}

func TestHome_BillingDisabled(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, installedShop())

	rec := f.do(httptest.NewRequest(http.MethodGet, "/?"+signed(t, url.Values{"shop": {testShop.String()}}), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ShopResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "foo.myshopify.com", resp.Domain)
}

func subscribedFixture(t *testing.T, chargeType domain.ChargeType) (*routerFixture, *http.Cookie) {
	t.Helper()
	ctx := context.Background()
	f := newRouterFixture(t, false, installedShop())

	plan := &domain.Plan{Type: domain.PlanTypeRecurring, Name: "Usage", Price: decimal.NewFromInt(5)}
	require.NoError(t, f.store.Plans().Save(ctx, plan))
	shop, err := f.store.Shops().GetByDomain(ctx, testShop, false)
	require.NoError(t, err)
	require.NoError(t, f.store.Shops().SetPlan(ctx, shop.ID, &plan.ID))
	require.NoError(t, f.store.Charges().Create(ctx, &domain.Charge{
		ShopID:    shop.ID,
		PlanID:    &plan.ID,
		Type:      chargeType,
		Reference: 900,
		Status:    domain.ChargeStatusActive,
	}))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/?"+signed(t, url.Values{"shop": {testShop.String()}}), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return f, sessionCookie(t, rec)
}

func usageRequest(t *testing.T, cookie *http.Cookie, price string) *http.Request {
	t.Helper()
	params := url.Values{"price": {price}, "description": {"100 emails"}}
	sig, err := auth.NewHmacVerifier(auth.QueryString).Sign(testAPISecret, params)
	require.NoError(t, err)
	params.Set("signature", sig)

	req := httptest.NewRequest(http.MethodPost, "/api/usage-charge", strings.NewReader(params.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	return req
}

func TestUsageCharge(t *testing.T) {
	t.Parallel()
	f, cookie := subscribedFixture(t, domain.ChargeTypeRecurring)

	rec := f.do(usageRequest(t, cookie, "1.5"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp UsageChargeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(5005), resp.Reference)
	assert.Equal(t, "1.50", resp.Price)
}

func TestUsageCharge_Declined(t *testing.T) {
	t.Parallel()
	f, cookie := subscribedFixture(t, domain.ChargeTypeRecurring)
	f.api.declineUsage = true

	rec := f.do(usageRequest(t, cookie, "1.5"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestUsageCharge_OneTimeChargeRejected(t *testing.T) {
	t.Parallel()
	f, cookie := subscribedFixture(t, domain.ChargeTypeCharge)

	rec := f.do(usageRequest(t, cookie, "1.5"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageCharge_TamperedPrice(t *testing.T) {
	t.Parallel()
	f, cookie := subscribedFixture(t, domain.ChargeTypeRecurring)

	req := usageRequest(t, cookie, "1.5")
	body := url.Values{}
	require.NoError(t, req.ParseForm())
	for k, v := range req.PostForm {
		body[k] = v
	}
	body.Set("price", "0.01")
	tampered := httptest.NewRequest(http.MethodPost, "/api/usage-charge", strings.NewReader(body.Encode()))
	tampered.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tampered.AddCookie(cookie)

	rec := f.do(tampered)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_Queued(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, installedShop())

	body := `{"id":1,"domain":"foo.myshopify.com"}`
	mac := hmac.New(sha256.New, []byte(testAPISecret))
	mac.Write([]byte(body))

	req := httptest.NewRequest(http.MethodPost, "/webhook/app-uninstalled", strings.NewReader(body))
	req.Header.Set(auth.HeaderWebhookHmac, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set(auth.HeaderWebhookShop, testShop.String())

	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	jobs := f.jobs.recorded()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobKindWebhook, jobs[0].Kind)
	require.NotNil(t, jobs[0].Webhook)
	assert.Equal(t, "app/uninstalled", jobs[0].Webhook.Topic)
	assert.JSONEq(t, body, string(jobs[0].Webhook.Payload))
}

func TestWebhook_QueueFull(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)
	f.jobs.err = domain.ErrQueueFull

	body := `{}`
	mac := hmac.New(sha256.New, []byte(testAPISecret))
	mac.Write([]byte(body))
	req := httptest.NewRequest(http.MethodPost, "/webhook/shop-redact", strings.NewReader(body))
	req.Header.Set(auth.HeaderWebhookHmac, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set(auth.HeaderWebhookShop, testShop.String())

	rec := f.do(req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhook_Unsigned(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	req := httptest.NewRequest(http.MethodPost, "/webhook/app-uninstalled", strings.NewReader(`{}`))
	req.Header.Set(auth.HeaderWebhookShop, testShop.String())
	rec := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Error)
}

func TestProxy(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, installedShop())

	params := url.Values{"shop": {testShop.String()}, "path_prefix": {"/apps/widget"}, "timestamp": {"1317327555"}}
	sig, err := auth.NewHmacVerifier(auth.QueryString).Sign(testAPISecret, params)
	require.NoError(t, err)
	params.Set("signature", sig)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/proxy/reviews?"+params.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ProxyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "foo.myshopify.com", resp.Shop)
	assert.Equal(t, "/reviews", resp.Path)
}

func TestTopicFromType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "app/uninstalled", topicFromType("app-uninstalled"))
	assert.Equal(t, "customers/data_request", topicFromType("customers-data_request"))
}

func TestSafeTarget(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/orders", safeTarget("/orders"))
	assert.Equal(t, "/", safeTarget("//evil.test"))
	assert.Equal(t, "/", safeTarget("https://evil.test"))
}
