package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 2 * time.Second
)

// Connect opens a client on uri and verifies it with a ping
func Connect(ctx context.Context, uri string, opts ...*options.ClientOptions) (*mongo.Client, error) {
	if uri == "" {
		return nil, goerr.New("database connection URI is empty")
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(1).
		SetConnectTimeout(5 * time.Second)
	opts = append([]*options.ClientOptions{clientOptions}, opts...)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to MongoDB")
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, pingTimeout)
	defer cancelPing()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, goerr.Wrap(err, "failed to ping MongoDB")
	}
	return client, nil
}

// Disconnect closes client, bounded by ctx
func Disconnect(ctx context.Context, client *mongo.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return goerr.Wrap(err, "failed to disconnect MongoDB client")
	}
	return nil
}
