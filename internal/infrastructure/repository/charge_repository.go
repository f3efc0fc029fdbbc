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

// MongoChargeRepository implements ChargeRepository using MongoDB
type MongoChargeRepository struct {
	collection *mongo.Collection
	sequence   sequence
}

// NewMongoChargeRepository creates a new MongoDB charge repository
func NewMongoChargeRepository(db *mongo.Database) ports.ChargeRepository {
	return &MongoChargeRepository{
		collection: db.Collection(chargesCollection),
		sequence:   newSequence(db),
	}
}

func (r *MongoChargeRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.Charge, error) {
	var doc entity.MongoChargeDoc
	err := r.collection.FindOne(ctx, filter, opts...).Decode(&doc)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get charge: %w", err)
	}
	return doc.ToDomain(), nil
}

func (r *MongoChargeRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*domain.Charge, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list charges: %w", err)
	}
	defer cursor.Close(ctx)

	var charges []*domain.Charge
	for cursor.Next(ctx) {
		var doc entity.MongoChargeDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode charge: %w", err)
		}
		charges = append(charges, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return charges, nil
}

// GetByReference retrieves a charge by its platform reference
func (r *MongoChargeRepository) GetByReference(ctx context.Context, ref domain.ChargeReference) (*domain.Charge, error) {
	return r.findOne(ctx, bson.M{"reference": int64(ref)})
}

// GetByReferenceAndShop retrieves a charge by reference, scoped to a shop
func (r *MongoChargeRepository) GetByReferenceAndShop(ctx context.Context, ref domain.ChargeReference, shopID int64) (*domain.Charge, error) {
	return r.findOne(ctx, bson.M{"reference": int64(ref), "shopId": shopID})
}

// LatestForPlan retrieves the newest recurring or one-time charge of a shop for a plan
func (r *MongoChargeRepository) LatestForPlan(ctx context.Context, planID int64, shopID int64) (*domain.Charge, error) {
	filter := bson.M{
		"shopId": shopID,
		"planId": planID,
		"type":   bson.M{"$ne": string(domain.ChargeTypeUsage)},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	return r.findOne(ctx, filter, opts)
}

// ListByShop retrieves every charge of a shop, oldest first
func (r *MongoChargeRepository) ListByShop(ctx context.Context, shopID int64) ([]*domain.Charge, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"shopId": shopID}, opts)
}

// ListCancelledExpiringBefore retrieves cancelled charges whose paid period ended before day
func (r *MongoChargeRepository) ListCancelledExpiringBefore(ctx context.Context, day time.Time) ([]*domain.Charge, error) {
	filter := bson.M{
		"status":    string(domain.ChargeStatusCancelled),
		"expiresOn": bson.M{"$lt": day},
	}
	return r.find(ctx, filter)
}

// Create inserts a new charge, assigning its id
func (r *MongoChargeRepository) Create(ctx context.Context, charge *domain.Charge) error {
	id, err := r.sequence.Next(ctx, chargesCollection)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	charge.ID = id
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = now
	}
	charge.UpdatedAt = now

	doc, err := entity.MongoChargeDocFromDomain(charge)
	if err != nil {
		return fmt.Errorf("failed to create charge: %w", err)
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create charge: %w", err)
	}
	return nil
}

// Update replaces an existing charge
func (r *MongoChargeRepository) Update(ctx context.Context, charge *domain.Charge) error {
	charge.UpdatedAt = time.Now().UTC()
	doc, err := entity.MongoChargeDocFromDomain(charge)
	if err != nil {
		return fmt.Errorf("failed to update charge: %w", err)
	}

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": charge.ID}, doc)
	if err != nil {
		return fmt.Errorf("failed to update charge: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("failed to update charge: %w", domain.ErrChargeNotFound)
	}
	return nil
}

// DeleteByReference removes a shop's charge by reference
func (r *MongoChargeRepository) DeleteByReference(ctx context.Context, ref domain.ChargeReference, shopID int64) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"reference": int64(ref), "shopId": shopID}); err != nil {
		return fmt.Errorf("failed to delete charge: %w", err)
	}
	return nil
}

// ExistsForPlan reports whether any charge references the plan
func (r *MongoChargeRepository) ExistsForPlan(ctx context.Context, planID int64) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"planId": planID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check plan usage: %w", err)
	}
	return count > 0, nil
}
