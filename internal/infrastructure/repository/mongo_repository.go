package repository

import (
	"context"
	"errors"
	"fmt"

	"archie-core-shopify-app/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	shopsCollection    = "shops"
	plansCollection    = "plans"
	chargesCollection  = "charges"
	countersCollection = "counters"
)

// sequence hands out monotonically increasing integer ids per collection
type sequence struct {
	counters *mongo.Collection
}

func newSequence(db *mongo.Database) sequence {
	return sequence{counters: db.Collection(countersCollection)}
}

// Next returns the next id for the named collection
func (s sequence) Next(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	return doc.Seq, nil
}

// EnsureIndexes creates the indexes the repositories rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		shopsCollection: {
			{Keys: bson.D{{Key: "domain", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		plansCollection: {
			{Keys: bson.D{{Key: "onInstall", Value: 1}}},
		},
		chargesCollection: {
			{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "shopId", Value: 1}, {Key: "planId", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresOn", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

// MongoTransactor implements Transactor using MongoDB multi-document transactions.
// Requires a replica set or sharded cluster.
type MongoTransactor struct {
	client *mongo.Client
}

// NewMongoTransactor creates a new MongoDB transactor
func NewMongoTransactor(client *mongo.Client) ports.Transactor {
	return &MongoTransactor{client: client}
}

// WithinTransaction runs fn inside a session transaction. The session context is handed to fn.
func (t *MongoTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
