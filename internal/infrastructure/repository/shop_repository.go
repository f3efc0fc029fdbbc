package repository

import (
	"context"
	"fmt"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/repository/entity"
	"archie-core-shopify-app/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoShopRepository implements ShopRepository using MongoDB.
// Offline access tokens are encrypted at rest.
type MongoShopRepository struct {
	collection *mongo.Collection
	sequence   sequence
	encryption ports.EncryptionService
}

// NewMongoShopRepository creates a new MongoDB shop repository
func NewMongoShopRepository(db *mongo.Database, encryption ports.EncryptionService) ports.ShopRepository {
	return &MongoShopRepository{
		collection: db.Collection(shopsCollection),
		sequence:   newSequence(db),
		encryption: encryption,
	}
}

func (r *MongoShopRepository) findOne(ctx context.Context, filter bson.M) (*domain.Shop, error) {
	var doc entity.MongoShopDoc
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	shop := doc.ToDomain()
	if shop.AccessToken != "" {
		token, err := r.encryption.Decrypt(shop.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
		shop.AccessToken = token
	}
	return shop, nil
}

// GetByID retrieves a shop by id, including soft-deleted shops
func (r *MongoShopRepository) GetByID(ctx context.Context, id int64) (*domain.Shop, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByDomain retrieves a shop by domain
func (r *MongoShopRepository) GetByDomain(ctx context.Context, shopDomain domain.ShopDomain, withTrashed bool) (*domain.Shop, error) {
	filter := bson.M{"domain": shopDomain.String()}
	if !withTrashed {
		filter["deletedAt"] = nil
	}
	return r.findOne(ctx, filter)
}

// Save inserts or replaces a shop, assigning an id to new shops
func (r *MongoShopRepository) Save(ctx context.Context, shop *domain.Shop) error {
	now := time.Now().UTC()
	if shop.ID == 0 {
		id, err := r.sequence.Next(ctx, shopsCollection)
		if err != nil {
			return err
		}
		shop.ID = id
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = now
	}
	shop.UpdatedAt = now

	token, err := r.encrypt(shop.AccessToken)
	if err != nil {
		return err
	}

	doc := entity.MongoShopDocFromDomain(shop, token)
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": shop.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

// SetAccessToken stores the offline token. An empty token clears it.
func (r *MongoShopRepository) SetAccessToken(ctx context.Context, id int64, accessToken string) error {
	token, err := r.encrypt(accessToken)
	if err != nil {
		return err
	}
	return r.update(ctx, id, bson.M{"accessToken": token}, "set access token")
}

// SetPlan points the shop at a plan
func (r *MongoShopRepository) SetPlan(ctx context.Context, id int64, planID *int64) error {
	return r.update(ctx, id, bson.M{"planId": planID}, "set plan")
}

// SoftDelete marks the shop as uninstalled
func (r *MongoShopRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.update(ctx, id, bson.M{"deletedAt": time.Now().UTC()}, "soft delete shop")
}

// Restore clears the soft-delete marker on reinstall
func (r *MongoShopRepository) Restore(ctx context.Context, id int64) error {
	return r.update(ctx, id, bson.M{"deletedAt": nil}, "restore shop")
}

func (r *MongoShopRepository) update(ctx context.Context, id int64, set bson.M, action string) error {
	set["updatedAt"] = time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("failed to %s: %w", action, domain.ErrShopNotFound)
	}
	return nil
}

func (r *MongoShopRepository) encrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	encrypted, err := r.encryption.Encrypt(token)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	return encrypted, nil
}
