package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const appName = "storefront-journal"

// ConnectMongoDB opens the journal database. Journal writes wait for a
// majority so an acknowledged delivery record survives a failover.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20).
		SetRetryWrites(true).
		SetWriteConcern(writeconcern.Majority())

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to journal database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	slog.Info("connected to mongodb", "database", database)
	return client.Database(database), nil
}

// Disconnect closes the client behind db, waiting at most timeout.
func Disconnect(db *mongo.Database, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.Client().Disconnect(ctx); err != nil {
		slog.Warn("mongodb disconnect failed", "error", err)
	}
}
