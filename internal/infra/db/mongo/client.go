package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Client struct {
	DB *mongo.Database
}

func New(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Ping(ctx, nil); err != nil {
		_ = m.Disconnect(context.Background())
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the lookup and uniqueness indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		colPayments: {
			{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "charge_id", Value: 1}}, Options: options.Index().SetPartialFilterExpression(bson.M{"charge_id": bson.M{"$gt": ""}})},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "charged_at", Value: 1}}},
		},
		colTrips: {
			{Keys: bson.D{{Key: "request_id", Value: 1}}},
		},
		colUsages: {
			{Keys: bson.D{{Key: "code", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colConversations: {
			{Keys: bson.D{{Key: "request_id", Value: 1}}},
			{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: indexes for %s: %w", name, err)
		}
	}
	return nil
}
