package shopify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"
)

const appSubscriptionCreateMutation = `mutation appSubscriptionCreate($name: String!, $returnUrl: URL!, $trialDays: Int, $test: Boolean, $lineItems: [AppSubscriptionLineItemInput!]!) {
  appSubscriptionCreate(name: $name, returnUrl: $returnUrl, trialDays: $trialDays, test: $test, lineItems: $lineItems) {
    appSubscription { id }
    confirmationUrl
    userErrors { field message }
  }
}`

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type appSubscriptionCreateResponse struct {
	AppSubscriptionCreate struct {
		AppSubscription *struct {
			ID string `json:"id"`
		} `json:"appSubscription"`
		ConfirmationURL string      `json:"confirmationUrl"`
		UserErrors      []userError `json:"userErrors"`
	} `json:"appSubscriptionCreate"`
}

// subscriptionVariables builds the appSubscriptionCreate variables for a plan
func subscriptionVariables(details domain.PlanDetails) map[string]interface{} {
	interval := details.Interval
	if interval == "" {
		interval = domain.PlanIntervalEvery30Days
	}

	lineItems := []map[string]interface{}{
		{
			"plan": map[string]interface{}{
				"appRecurringPricingDetails": map[string]interface{}{
					"price": map[string]interface{}{
						"amount":       details.Price.StringFixed(2),
						"currencyCode": "USD",
					},
					"interval": string(interval),
				},
			},
		},
	}
	// Usage pricing is only allowed on 30 day intervals
	if details.CappedAmount != nil && interval == domain.PlanIntervalEvery30Days {
		lineItems = append(lineItems, map[string]interface{}{
			"plan": map[string]interface{}{
				"appUsagePricingDetails": map[string]interface{}{
					"cappedAmount": map[string]interface{}{
						"amount":       details.CappedAmount.StringFixed(2),
						"currencyCode": "USD",
					},
					"terms": details.Terms,
				},
			},
		})
	}

	return map[string]interface{}{
		"name":      details.Name,
		"returnUrl": details.ReturnURL,
		"trialDays": details.TrialDays,
		"test":      details.Test,
		"lineItems": lineItems,
	}
}

// parseGID extracts the numeric id from a global id (gid://shopify/AppSubscription/123)
func parseGID(gid string) (domain.ChargeReference, error) {
	idx := strings.LastIndex(gid, "/")
	id, err := strconv.ParseInt(gid[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid global id %q: %w", gid, err)
	}
	return domain.ChargeReference(id), nil
}

func (c *client) CreateChargeGraphQL(ctx context.Context, shop domain.ShopDomain, accessToken string, details domain.PlanDetails) (*ports.ChargeConfirmation, error) {
	cl, err := c.createClient(shop, accessToken, false)
	if err != nil {
		return nil, err
	}

	var resp appSubscriptionCreateResponse
	err = c.call(ctx, shop, "app_subscription_create", func(ctx context.Context) error {
		if err := cl.GraphQL.Query(ctx, appSubscriptionCreateMutation, subscriptionVariables(details), &resp); err != nil {
			return fmt.Errorf("failed to create app subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := resp.AppSubscriptionCreate
	if len(result.UserErrors) > 0 {
		messages := make([]string, 0, len(result.UserErrors))
		for _, ue := range result.UserErrors {
			messages = append(messages, ue.Message)
		}
		return nil, fmt.Errorf("failed to create app subscription: %s", strings.Join(messages, "; "))
	}
	if result.AppSubscription == nil {
		return nil, fmt.Errorf("failed to create app subscription: empty response")
	}

	ref, err := parseGID(result.AppSubscription.ID)
	if err != nil {
		return nil, err
	}
	return &ports.ChargeConfirmation{
		Reference:       ref,
		ConfirmationURL: result.ConfirmationURL,
	}, nil
}
