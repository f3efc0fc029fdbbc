package entity

import (
	"time"

	"archie-core-shopify-app/internal/domain"
)

// MongoShopDoc represents a shop in MongoDB. AccessToken holds the encrypted offline token.
type MongoShopDoc struct {
	ID            int64      `bson:"_id"`
	Domain        string     `bson:"domain"`
	AccessToken   string     `bson:"accessToken"`
	PlanID        *int64     `bson:"planId"`
	Freemium      bool       `bson:"freemium"`
	Grandfathered bool       `bson:"grandfathered"`
	DeletedAt     *time.Time `bson:"deletedAt"`
	CreatedAt     time.Time  `bson:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity. The token is left encrypted.
func (d *MongoShopDoc) ToDomain() *domain.Shop {
	return &domain.Shop{
		ID:            d.ID,
		Domain:        domain.ShopDomain(d.Domain),
		AccessToken:   d.AccessToken,
		PlanID:        d.PlanID,
		Freemium:      d.Freemium,
		Grandfathered: d.Grandfathered,
		DeletedAt:     d.DeletedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// MongoShopDocFromDomain converts a domain entity to a MongoDB document
func MongoShopDocFromDomain(shop *domain.Shop, encryptedToken string) *MongoShopDoc {
	return &MongoShopDoc{
		ID:            shop.ID,
		Domain:        shop.Domain.String(),
		AccessToken:   encryptedToken,
		PlanID:        shop.PlanID,
		Freemium:      shop.Freemium,
		Grandfathered: shop.Grandfathered,
		DeletedAt:     shop.DeletedAt,
		CreatedAt:     shop.CreatedAt,
		UpdatedAt:     shop.UpdatedAt,
	}
}
