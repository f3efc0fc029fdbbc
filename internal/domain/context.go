package domain

import "context"

type contextKey string

const shopContextKey contextKey = "shop"

// WithShop stores the authenticated shop in the context
func WithShop(ctx context.Context, shop *Shop) context.Context {
	return context.WithValue(ctx, shopContextKey, shop)
}

// GetShopFromContext returns the authenticated shop, or nil
func GetShopFromContext(ctx context.Context) *Shop {
	shop, _ := ctx.Value(shopContextKey).(*Shop)
	return shop
}
