package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"fleetwatch/pkg/logging"
)

// Connect opens a MongoDB client and verifies connectivity with a ping.
// Change streams require the server to be a replica set member.
func Connect(ctx context.Context, uri string, logger logging.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second).
		SetMaxPoolSize(50)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("Connected to MongoDB")
	return client, nil
}

// Disconnect closes the client, logging failures instead of returning them.
func Disconnect(ctx context.Context, client *mongo.Client, logger logging.Logger) {
	if client == nil {
		return
	}
	if err := client.Disconnect(ctx); err != nil {
		logger.WithFields(logging.Fields{"error": err}).Error("Mongo disconnect error")
	}
}
