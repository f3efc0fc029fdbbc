package billing

import (
	"context"
	"errors"
	"testing"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	shops   *inMemoryShopRepo
	plans   *inMemoryPlanRepo
	charges *inMemoryChargeRepo
	tx      *passthroughTransactor
	api     *fakeCommerceAPI
	service *Service
}

func monthlyPlan() *domain.Plan {
	return &domain.Plan{
		ID:        1,
		Type:      domain.PlanTypeRecurring,
		Interval:  domain.PlanIntervalEvery30Days,
		Name:      "Monthly",
		Price:     decimal.RequireFromString("9.99"),
		TrialDays: 7,
		OnInstall: true,
	}
}

func annualPlan() *domain.Plan {
	return &domain.Plan{
		ID:       2,
		Type:     domain.PlanTypeRecurring,
		Interval: domain.PlanIntervalAnnual,
		Name:     "Annual",
		Price:    decimal.RequireFromString("99.00"),
	}
}

func oneTimePlan() *domain.Plan {
	return &domain.Plan{
		ID:    3,
		Type:  domain.PlanTypeOneTime,
		Name:  "Lifetime",
		Price: decimal.RequireFromString("199.00"),
	}
}

func testShop() *domain.Shop {
	return &domain.Shop{ID: 10, Domain: "foo.myshopify.com", AccessToken: "offline"}
}

func newServiceFixture(charges ...*domain.Charge) *serviceFixture {
	f := &serviceFixture{
		shops:   newShopRepo(testShop()),
		plans:   newPlanRepo(monthlyPlan(), annualPlan(), oneTimePlan()),
		charges: newChargeRepo(charges...),
		tx:      &passthroughTransactor{},
		api:     newFakeCommerceAPI(),
	}
	f.service = NewService(f.shops, f.plans, f.charges, f.tx, f.api, fixedClock{now: testNow},
		Config{AppURL: "https://app.example.com/"}, zerolog.Nop())
	return f
}

func (f *serviceFixture) acceptCharge(ref domain.ChargeReference) {
	f.api.states[ref] = &ports.ChargeState{
		Reference:   ref,
		Status:      domain.ChargeStatusAccepted,
		TrialDays:   7,
		ActivatedOn: daysAgo(0),
		BillingOn:   daysAhead(7),
		TrialEndsOn: daysAhead(7),
	}
}

func (f *serviceFixture) nonCancelled(shopID int64) []*domain.Charge {
	all, _ := f.charges.ListByShop(context.Background(), shopID)
	var out []*domain.Charge
	for _, c := range all {
		if !c.IsCancelled() {
			out = append(out, c)
		}
	}
	return out
}

func TestCreatePlanURL_UsesRestForMonthly(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	url, err := f.service.CreatePlanURL(context.Background(), testShop(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://confirm/rest", url)

	require.Len(t, f.api.created, 1)
	details := f.api.created[0]
	assert.Equal(t, domain.ChargeTypeRecurring, f.api.createdTypes[0])
	assert.Equal(t, 7, details.TrialDays)
	assert.Equal(t, "Monthly", details.Name)
	assert.Equal(t, "https://app.example.com/billing/process/1?shop=foo.myshopify.com", details.ReturnURL)
	assert.Empty(t, f.api.graphQL)
}

func TestCreatePlanURL_UsesGraphQLForAnnual(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	planID := int64(2)
	url, err := f.service.CreatePlanURL(context.Background(), testShop(), &planID)
	require.NoError(t, err)
	assert.Equal(t, "https://confirm/graphql", url)
	assert.Len(t, f.api.graphQL, 1)
	assert.Empty(t, f.api.created)
}

func TestCreatePlanURL_OneTime(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	planID := int64(3)
	_, err := f.service.CreatePlanURL(context.Background(), testShop(), &planID)
	require.NoError(t, err)
	require.Len(t, f.api.createdTypes, 1)
	assert.Equal(t, domain.ChargeTypeCharge, f.api.createdTypes[0])
}

func TestCreatePlanURL_UnknownPlan(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	planID := int64(99)
	_, err := f.service.CreatePlanURL(context.Background(), testShop(), &planID)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestActivatePlan_LeavesExactlyOneLiveCharge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newServiceFixture()
	f.acceptCharge(1001)
	f.acceptCharge(1002)

	shop := testShop()
	first, err := f.service.ActivatePlan(ctx, shop, 1, 1001)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeStatusActive, first.Status)
	assert.Equal(t, []domain.ChargeReference{1001}, f.api.activated)

	second, err := f.service.ActivatePlan(ctx, shop, 1, 1002)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeReference(1002), second.Reference)

	live := f.nonCancelled(shop.ID)
	require.Len(t, live, 1)
	assert.Equal(t, domain.ChargeReference(1002), live[0].Reference)
	assert.Equal(t, 2, f.tx.calls)

	stored, err := f.shops.GetByID(ctx, shop.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PlanID)
	assert.Equal(t, int64(1), *stored.PlanID)
}

func TestActivatePlan_CopiesRecurringDates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	f.acceptCharge(1001)

	charge, err := f.service.ActivatePlan(context.Background(), testShop(), 1, 1001)
	require.NoError(t, err)
	assert.Equal(t, daysAgo(0), charge.ActivatedOn)
	assert.Equal(t, daysAhead(7), charge.BillingOn)
	assert.Equal(t, daysAhead(7), charge.TrialEndsOn)
	assert.Equal(t, 7, charge.TrialDays)
	assert.Equal(t, domain.ChargeTypeRecurring, charge.Type)
}

func TestActivatePlan_OneTimeDefaultsDates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	f.acceptCharge(3001)

	charge, err := f.service.ActivatePlan(context.Background(), testShop(), 3, 3001)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeTypeCharge, charge.Type)
	require.NotNil(t, charge.ActivatedOn)
	assert.Equal(t, *daysAgo(0), *charge.ActivatedOn)
	assert.Nil(t, charge.BillingOn)
	assert.Nil(t, charge.TrialEndsOn)
	assert.Zero(t, charge.TrialDays)
}

func TestActivatePlan_RefreshedCallbackDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newServiceFixture()
	f.acceptCharge(1001)
	shop := testShop()

	_, err := f.service.ActivatePlan(ctx, shop, 1, 1001)
	require.NoError(t, err)
	_, err = f.service.ActivatePlan(ctx, shop, 1, 1001)
	require.NoError(t, err)

	all, err := f.charges.ListByShop(ctx, shop.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.ChargeStatusActive, all[0].Status)
	assert.Equal(t, []domain.ChargeReference{1001}, f.api.activated, "an already active charge is not activated again")
}

func TestActivatePlan_Failures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	declined := newServiceFixture()
	declined.api.states[1] = &ports.ChargeState{Reference: 1, Status: domain.ChargeStatusDeclined}
	_, err := declined.service.ActivatePlan(ctx, testShop(), 1, 1)
	assert.ErrorIs(t, err, domain.ErrChargeDeclined)
	assert.Zero(t, declined.tx.calls)

	missing := newServiceFixture()
	_, err = missing.service.ActivatePlan(ctx, testShop(), 1, 1)
	assert.ErrorIs(t, err, domain.ErrChargeActivation)

	pending := newServiceFixture()
	pending.api.states[1] = &ports.ChargeState{Reference: 1, Status: domain.ChargeStatusPending}
	_, err = pending.service.ActivatePlan(ctx, testShop(), 1, 1)
	assert.ErrorIs(t, err, domain.ErrChargeActivation)

	broken := newServiceFixture()
	broken.api.getErr = errors.New("connection reset")
	_, err = broken.service.ActivatePlan(ctx, testShop(), 1, 1)
	assert.ErrorIs(t, err, domain.ErrChargeActivation)

	all, _ := broken.charges.ListByShop(ctx, 10)
	assert.Empty(t, all)
}

func TestActivatePlan_DeclineKeepsCurrentPlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newServiceFixture()
	f.acceptCharge(1001)
	shop := testShop()
	_, err := f.service.ActivatePlan(ctx, shop, 1, 1001)
	require.NoError(t, err)

	f.api.states[1002] = &ports.ChargeState{Reference: 1002, Status: domain.ChargeStatusDeclined}
	_, err = f.service.ActivatePlan(ctx, shop, 2, 1002)
	require.ErrorIs(t, err, domain.ErrChargeDeclined)

	live := f.nonCancelled(shop.ID)
	require.Len(t, live, 1)
	assert.Equal(t, domain.ChargeReference(1001), live[0].Reference)
}

func TestCancelCurrentPlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newServiceFixture()

	ok, err := f.service.CancelCurrentPlan(ctx, testShop())
	require.NoError(t, err)
	assert.False(t, ok, "no plan")

	f.acceptCharge(1001)
	shop := testShop()
	_, err = f.service.ActivatePlan(ctx, shop, 1, 1001)
	require.NoError(t, err)

	ok, err = f.service.CancelCurrentPlan(ctx, shop)
	require.NoError(t, err)
	assert.True(t, ok)

	charge, err := f.charges.GetByReference(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeStatusCancelled, charge.Status)
	require.NotNil(t, charge.CancelledOn)

	ok, err = f.service.CancelCurrentPlan(ctx, shop)
	require.NoError(t, err)
	assert.False(t, ok, "already cancelled")
}

func TestCancelCharge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	planID := int64(1)
	f := newServiceFixture(
		&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 1, Status: domain.ChargeStatusActive, ActivatedOn: daysAgo(10)},
		&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeUsage, Reference: 2, Status: domain.ChargeStatusActive},
	)

	charge, err := f.service.CancelCharge(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeStatusCancelled, charge.Status)
	require.NotNil(t, charge.ExpiresOn)
	assert.Equal(t, *daysAhead(20), *charge.ExpiresOn)
	require.NotNil(t, charge.TrialEndsOn)
	assert.Equal(t, *daysAgo(0), *charge.TrialEndsOn)

	_, err = f.service.CancelCharge(ctx, 2)
	require.ErrorIs(t, err, domain.ErrChargeTypeMismatch)
	var typeErr *domain.ChargeTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, domain.ChargeTypeUsage, typeErr.Got)

	_, err = f.service.CancelCharge(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrChargeNotFound)
}

func TestActivateUsageCharge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	planID := int64(1)
	shop := testShop()
	shop.PlanID = &planID
	details := domain.UsageChargeDetails{Price: decimal.RequireFromString("1.50"), Description: "100 emails"}

	f := newServiceFixture(&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 1, Status: domain.ChargeStatusActive})

	charge, ok, err := f.service.ActivateUsageCharge(ctx, shop, details)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ChargeTypeUsage, charge.Type)
	require.NotNil(t, charge.ReferenceCharge)
	assert.Equal(t, domain.ChargeReference(1), *charge.ReferenceCharge)
	assert.Equal(t, "100 emails", charge.Description)

	f.api.usageDeclined = true
	charge, ok, err = f.service.ActivateUsageCharge(ctx, shop, details)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, charge)
}

func TestActivateUsageCharge_RequiresRecurring(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	planID := int64(3)
	shop := testShop()
	shop.PlanID = &planID

	f := newServiceFixture(&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeCharge, Reference: 1, Status: domain.ChargeStatusActive})

	_, ok, err := f.service.ActivateUsageCharge(ctx, shop, domain.UsageChargeDetails{Price: decimal.RequireFromString("1")})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrChargeTypeMismatch)
	assert.Zero(t, f.api.usageCalls)

	_, _, err = f.service.ActivateUsageCharge(ctx, testShop(), domain.UsageChargeDetails{})
	assert.ErrorIs(t, err, domain.ErrChargeNotFound)
}

func TestHasEffectiveCharge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	planID := int64(1)

	freemium := testShop()
	freemium.Freemium = true
	ok, err := newServiceFixture().service.HasEffectiveCharge(ctx, freemium)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = newServiceFixture().service.HasEffectiveCharge(ctx, testShop())
	require.NoError(t, err)
	assert.False(t, ok)

	shop := testShop()
	shop.PlanID = &planID
	active := newServiceFixture(&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 1, Status: domain.ChargeStatusActive})
	ok, err = active.service.HasEffectiveCharge(ctx, shop)
	require.NoError(t, err)
	assert.True(t, ok)

	paidThrough := newServiceFixture(&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 1,
		Status: domain.ChargeStatusCancelled, CancelledOn: daysAgo(2), ExpiresOn: daysAhead(3)})
	ok, err = paidThrough.service.HasEffectiveCharge(ctx, shop)
	require.NoError(t, err)
	assert.True(t, ok)

	lapsed := newServiceFixture(&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 1,
		Status: domain.ChargeStatusCancelled, CancelledOn: daysAgo(20), ExpiresOn: daysAgo(1)})
	ok, err = lapsed.service.HasEffectiveCharge(ctx, shop)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpireCancelledCharges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	planID := int64(1)
	f := newServiceFixture(
		&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 1, Status: domain.ChargeStatusCancelled, ExpiresOn: daysAgo(1)},
		&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 2, Status: domain.ChargeStatusCancelled, ExpiresOn: daysAhead(1)},
		&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 3, Status: domain.ChargeStatusActive},
	)

	count, err := f.service.ExpireCancelledCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := f.charges.GetByReference(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeStatusExpired, expired.Status)

	kept, err := f.charges.GetByReference(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeStatusCancelled, kept.Status)
}

func TestSavePlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	planID := int64(1)
	f := newServiceFixture(&domain.Charge{ShopID: 10, PlanID: &planID, Type: domain.ChargeTypeRecurring, Reference: 1, Status: domain.ChargeStatusActive})

	changed := monthlyPlan()
	changed.Price = decimal.RequireFromString("19.99")
	assert.ErrorIs(t, f.service.SavePlan(ctx, changed), domain.ErrPlanInUse)

	fresh := &domain.Plan{Type: domain.PlanTypeRecurring, Name: "Pro", Price: decimal.RequireFromString("19.99")}
	require.NoError(t, f.service.SavePlan(ctx, fresh))
	assert.NotZero(t, fresh.ID)
	assert.Equal(t, testNow, fresh.CreatedAt)

	plans, err := f.service.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 4)
}
