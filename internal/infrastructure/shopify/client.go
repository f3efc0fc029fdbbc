package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/metrics"
	"archie-core-shopify-app/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIVersion = "2024-10"
	DefaultTimeout    = 15 * time.Second
	DefaultRetries    = 3
)

// Options tunes the platform client
type Options struct {
	APIVersion string
	Timeout    time.Duration
	// Retries applies to read calls only; writes are never retried
	Retries int
}

// DefaultOptions returns the client defaults
func DefaultOptions() Options {
	return Options{
		APIVersion: DefaultAPIVersion,
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
	}
}

type client struct {
	apiKey      string
	apiSecret   string
	app         goshopify.App
	rateLimiter *RateLimiter
	options     Options
	httpClient  *http.Client
	logger      zerolog.Logger

	// tokenURL builds the OAuth token endpoint for a shop
	tokenURL func(shop domain.ShopDomain) string
}

// NewClientWithOptions creates a client with rate limiting and retry options
func NewClientWithOptions(
	apiKey, apiSecret string,
	rateLimiter *RateLimiter,
	options Options,
	logger zerolog.Logger,
) ports.CommerceAPI {
	if options.APIVersion == "" {
		options.APIVersion = DefaultAPIVersion
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	if rateLimiter == nil {
		rateLimiter = NewRateLimiter(logger)
	}
	return &client{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		app:         goshopify.App{ApiKey: apiKey, ApiSecret: apiSecret},
		rateLimiter: rateLimiter,
		options:     options,
		httpClient:  &http.Client{Timeout: options.Timeout},
		logger:      logger,
		tokenURL: func(shop domain.ShopDomain) string {
			return fmt.Sprintf("https://%s/admin/oauth/access_token", shop)
		},
	}
}

// createClient is a helper to create a goshopify client. Read clients retry throttled calls.
func (c *client) createClient(shop domain.ShopDomain, accessToken string, read bool) (*goshopify.Client, error) {
	opts := []goshopify.Option{goshopify.WithVersion(c.options.APIVersion)}
	if read && c.options.Retries > 0 {
		opts = append(opts, goshopify.WithRetry(c.options.Retries))
	}
	cl, err := goshopify.NewClient(c.app, shop.String(), accessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return cl, nil
}

// call runs fn under the shop's rate limit and the client timeout, recording its latency
func (c *client) call(ctx context.Context, shop domain.ShopDomain, operation string, fn func(ctx context.Context) error) error {
	if err := c.rateLimiter.Wait(ctx, shop.String()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.RecordAPICall(operation, time.Since(start), err)
	if err != nil {
		c.logger.Warn().Err(err).Str("shop", shop.String()).Str("operation", operation).Msg("Platform call failed")
	}
	return err
}

// Authentication

func (c *client) BuildAuthURL(shop domain.ShopDomain, scopes []string, redirectURI string, state string, perUser bool) (string, error) {
	if shop.IsNull() {
		return "", domain.ErrMissingShopDomain
	}

	// Scopes are comma-separated, no spaces
	scopesStr := strings.Join(scopes, ",")

	query := url.Values{}
	query.Set("client_id", c.apiKey)
	query.Set("scope", scopesStr)
	query.Set("redirect_uri", redirectURI)
	if state != "" {
		query.Set("state", state)
	}
	if perUser {
		query.Set("grant_options[]", "per-user")
	}

	c.logger.Info().
		Str("shop", shop.String()).
		Strs("scopes", scopes).
		Bool("per_user", perUser).
		Msg("Generated OAuth authorization URL")

	return fmt.Sprintf("https://%s/admin/oauth/authorize?%s", shop, query.Encode()), nil
}

// RequestAccessToken exchanges an authorization code. The token endpoint is called directly so the
// per-user fields (expires_in, associated_user) survive.
func (c *client) RequestAccessToken(ctx context.Context, shop domain.ShopDomain, code string) (*domain.AccessResponse, error) {
	values := url.Values{}
	values.Set("client_id", c.apiKey)
	values.Set("client_secret", c.apiSecret)
	values.Set("code", code)

	var access domain.AccessResponse
	err := c.call(ctx, shop, "access_token", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL(shop), strings.NewReader(values.Encode()))
		if err != nil {
			return fmt.Errorf("failed to create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to exchange token: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("failed to exchange token: status %d, body: %s", resp.StatusCode, string(bodyBytes))
		}

		if err := json.NewDecoder(resp.Body).Decode(&access); err != nil {
			return fmt.Errorf("failed to decode token response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if access.AccessToken == "" {
		return nil, fmt.Errorf("failed to exchange token: empty access token")
	}
	return &access, nil
}

// Billing

func (c *client) CreateCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, chargeType domain.ChargeType, details domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	cl, err := c.createClient(shop, accessToken, false)
	if err != nil {
		return nil, err
	}

	price := details.Price
	test := details.Test
	var confirmation *ports.ChargeConfirmation

	switch chargeType {
	case domain.ChargeTypeRecurring:
		err = c.call(ctx, shop, "recurring_charge_create", func(ctx context.Context) error {
			created, err := cl.RecurringApplicationCharge.Create(ctx, goshopify.RecurringApplicationCharge{
				Name:         details.Name,
				Price:        &price,
				ReturnURL:    details.ReturnURL,
				TrialDays:    details.TrialDays,
				Test:         testFlag(test),
				Terms:        details.Terms,
				CappedAmount: details.CappedAmount,
			})
			if err != nil {
				return fmt.Errorf("failed to create recurring charge: %w", err)
			}
			confirmation = &ports.ChargeConfirmation{
				Reference:       domain.ChargeReference(created.Id),
				ConfirmationURL: created.ConfirmationURL,
			}
			return nil
		})
	case domain.ChargeTypeCharge:
		err = c.call(ctx, shop, "application_charge_create", func(ctx context.Context) error {
			created, err := cl.ApplicationCharge.Create(ctx, goshopify.ApplicationCharge{
				Name:      details.Name,
				Price:     &price,
				ReturnURL: details.ReturnURL,
				Test:      testFlag(test),
			})
			if err != nil {
				return fmt.Errorf("failed to create application charge: %w", err)
			}
			confirmation = &ports.ChargeConfirmation{
				Reference:       domain.ChargeReference(created.Id),
				ConfirmationURL: created.ConfirmationURL,
			}
			return nil
		})
	default:
		return nil, &domain.ChargeTypeError{
			Operation: "create charge",
			Got:       chargeType,
			Allowed:   []domain.ChargeType{domain.ChargeTypeRecurring, domain.ChargeTypeCharge},
		}
	}
	if err != nil {
		return nil, err
	}
	return confirmation, nil
}

func (c *client) GetCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, chargeType domain.ChargeType, ref domain.ChargeReference) (*ports.ChargeState, error) {
	cl, err := c.createClient(shop, accessToken, true)
	if err != nil {
		return nil, err
	}

	var state *ports.ChargeState
	switch chargeType {
	case domain.ChargeTypeRecurring:
		err = c.call(ctx, shop, "recurring_charge_get", func(ctx context.Context) error {
			charge, err := cl.RecurringApplicationCharge.Get(ctx, uint64(ref), nil)
			if err != nil {
				return fmt.Errorf("failed to get recurring charge: %w", err)
			}
			state = recurringState(charge)
			return nil
		})
	case domain.ChargeTypeCharge:
		err = c.call(ctx, shop, "application_charge_get", func(ctx context.Context) error {
			charge, err := cl.ApplicationCharge.Get(ctx, uint64(ref), nil)
			if err != nil {
				return fmt.Errorf("failed to get application charge: %w", err)
			}
			state = applicationState(charge)
			return nil
		})
	default:
		return nil, &domain.ChargeTypeError{
			Operation: "get charge",
			Got:       chargeType,
			Allowed:   []domain.ChargeType{domain.ChargeTypeRecurring, domain.ChargeTypeCharge},
		}
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (c *client) ActivateCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, chargeType domain.ChargeType, ref domain.ChargeReference) (*ports.ChargeState, error) {
	cl, err := c.createClient(shop, accessToken, false)
	if err != nil {
		return nil, err
	}

	var state *ports.ChargeState
	switch chargeType {
	case domain.ChargeTypeRecurring:
		err = c.call(ctx, shop, "recurring_charge_activate", func(ctx context.Context) error {
			charge, err := cl.RecurringApplicationCharge.Activate(ctx, goshopify.RecurringApplicationCharge{Id: uint64(ref)})
			if err != nil {
				return fmt.Errorf("failed to activate recurring charge: %w", err)
			}
			state = recurringState(charge)
			return nil
		})
	case domain.ChargeTypeCharge:
		err = c.call(ctx, shop, "application_charge_activate", func(ctx context.Context) error {
			charge, err := cl.ApplicationCharge.Activate(ctx, goshopify.ApplicationCharge{Id: uint64(ref)})
			if err != nil {
				return fmt.Errorf("failed to activate application charge: %w", err)
			}
			state = applicationState(charge)
			return nil
		})
	default:
		return nil, &domain.ChargeTypeError{
			Operation: "activate charge",
			Got:       chargeType,
			Allowed:   []domain.ChargeType{domain.ChargeTypeRecurring, domain.ChargeTypeCharge},
		}
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (c *client) CreateUsageCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, recurring domain.ChargeReference, details domain.UsageChargeDetails) (*ports.UsageChargeResult, bool, error) {
	cl, err := c.createClient(shop, accessToken, false)
	if err != nil {
		return nil, false, err
	}

	price := details.Price
	var result *ports.UsageChargeResult
	err = c.call(ctx, shop, "usage_charge_create", func(ctx context.Context) error {
		created, err := cl.UsageCharge.Create(ctx, uint64(recurring), goshopify.UsageCharge{
			Description: details.Description,
			Price:       &price,
		})
		if err != nil {
			return fmt.Errorf("failed to create usage charge: %w", err)
		}
		result = &ports.UsageChargeResult{Reference: domain.ChargeReference(created.Id)}
		return nil
	})
	if err != nil {
		if isDeclined(err) {
			c.logger.Info().Str("shop", shop.String()).Int64("recurring", int64(recurring)).Msg("Usage charge declined")
			return nil, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

// isDeclined reports a client-side rejection (capped amount reached, charge not active)
func isDeclined(err error) bool {
	var respErr goshopify.ResponseError
	if errors.As(err, &respErr) {
		return respErr.Status >= 400 && respErr.Status < 500 && respErr.Status != http.StatusTooManyRequests && respErr.Status != http.StatusUnauthorized
	}
	return false
}

func testFlag(test bool) *bool {
	if !test {
		return nil
	}
	return &test
}

func recurringState(charge *goshopify.RecurringApplicationCharge) *ports.ChargeState {
	if charge == nil {
		return nil
	}
	status, _ := domain.ParseChargeStatus(string(charge.Status))
	return &ports.ChargeState{
		Reference:   domain.ChargeReference(charge.Id),
		Status:      status,
		TrialDays:   charge.TrialDays,
		ActivatedOn: charge.ActivatedOn,
		BillingOn:   charge.BillingOn,
		TrialEndsOn: charge.TrialEndsOn,
	}
}

func applicationState(charge *goshopify.ApplicationCharge) *ports.ChargeState {
	if charge == nil {
		return nil
	}
	status, _ := domain.ParseChargeStatus(string(charge.Status))
	return &ports.ChargeState{
		Reference: domain.ChargeReference(charge.Id),
		Status:    status,
	}
}
