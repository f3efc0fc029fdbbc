package repository

import (
	"context"
	"fmt"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/repository/entity"
	"archie-core-shopify-app/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPlanRepository implements PlanRepository using MongoDB
type MongoPlanRepository struct {
	collection *mongo.Collection
	sequence   sequence
}

// NewMongoPlanRepository creates a new MongoDB plan repository
func NewMongoPlanRepository(db *mongo.Database) ports.PlanRepository {
	return &MongoPlanRepository{
		collection: db.Collection(plansCollection),
		sequence:   newSequence(db),
	}
}

// GetByID retrieves a plan by id
func (r *MongoPlanRepository) GetByID(ctx context.Context, id int64) (*domain.Plan, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetDefault retrieves the lowest-id plan flagged for installation
func (r *MongoPlanRepository) GetDefault(ctx context.Context) (*domain.Plan, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	return r.findOne(ctx, bson.M{"onInstall": true}, opts)
}

func (r *MongoPlanRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.Plan, error) {
	var doc entity.MongoPlanDoc
	err := r.collection.FindOne(ctx, filter, opts...).Decode(&doc)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return doc.ToDomain(), nil
}

// List retrieves all plans ordered by id
func (r *MongoPlanRepository) List(ctx context.Context) ([]*domain.Plan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer cursor.Close(ctx)

	var plans []*domain.Plan
	for cursor.Next(ctx) {
		var doc entity.MongoPlanDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode plan: %w", err)
		}
		plans = append(plans, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return plans, nil
}

// Save inserts or replaces a plan, assigning an id to new plans
func (r *MongoPlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	if plan.ID == 0 {
		id, err := r.sequence.Next(ctx, plansCollection)
		if err != nil {
			return err
		}
		plan.ID = id
	}

	doc, err := entity.MongoPlanDocFromDomain(plan)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": plan.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}
