package mongodb

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/foreverif/laf/pkg/domain"
)

// ApplicationsCollection is the system database collection holding applications
const ApplicationsCollection = "applications"

type finder interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// Registry resolves applications stored in the system database
type Registry struct {
	apps finder
}

// NewRegistry creates a registry over the applications collection of sysDB
func NewRegistry(sysDB *mongo.Database) *Registry {
	return &Registry{apps: sysDB.Collection(ApplicationsCollection)}
}

// GetApplicationByAppid implements domain.ApplicationRegistry
func (r *Registry) GetApplicationByAppid(ctx context.Context, appid string) (*domain.Application, error) {
	var app domain.Application
	err := r.apps.FindOne(ctx, bson.M{"appid": appid}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find application", goerr.V("appid", appid))
	}
	return &app, nil
}
