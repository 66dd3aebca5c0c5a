// Package mongostore is the MongoDB backend of the credential and note
// stores. Unique indexes on email and external id enforce the account
// invariants at the storage layer.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hdnotes-server/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	accountsCollection = "accounts"
	notesCollection    = "notes"
)

// Connect opens a client and verifies the server answers within timeout.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := repository.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach mongo: %w", err)
	}

	return client, nil
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	accounts := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().
				SetName("external_id_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"external_id": bson.M{"$type": "string"}}),
		},
	}
	if _, err := db.Collection(accountsCollection).Indexes().CreateMany(ctx, accounts); err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}

	notes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("owner_created"),
		},
	}
	if _, err := db.Collection(notesCollection).Indexes().CreateMany(ctx, notes); err != nil {
		return fmt.Errorf("failed to create note indexes: %w", err)
	}

	return nil
}

func mapError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", what, repository.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
