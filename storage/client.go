package storage

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoClient is the slice of *mongo.Client the runs need. Tests replace it
// through ConnectToMongoDBFunc.
type MongoClient interface {
	Disconnect(ctx context.Context) error
	Database(name string, opts ...*options.DatabaseOptions) *mongo.Database
}

var _ MongoClient = (*mongo.Client)(nil)
