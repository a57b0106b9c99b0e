package storage

import (
	"context"
	"fmt"
	"time"

	"crmbridge/migrator/appcontext"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultDatabase is used when the connection string names no database.
	DefaultDatabase = "salesforce_sync"
	connectTimeout  = 30 * time.Second
)

// ---- Abstractions for Testability ----

// DataStore defines the interface for database operations.
type DataStore interface {
	BulkWrite(
		ctx context.Context,
		models []mongo.WriteModel,
		opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	InsertOne(
		ctx context.Context,
		document interface{},
		opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(
		ctx context.Context,
		filter interface{},
		update interface{},
		opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(
		ctx context.Context,
		filter interface{},
		opts ...*options.FindOneOptions) *mongo.SingleResult
	CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error)
}

// CollectionProvider defines the interface for obtaining a collection.
type CollectionProvider interface {
	Collection(name string) DataStore
}

// MongoCollection adapts *mongo.Collection to DataStore.
type MongoCollection struct {
	*mongo.Collection
}

// BulkWrite performs a bulk write operation. The driver's partial result is
// returned alongside a write exception so callers can see what was applied.
func (c *MongoCollection) BulkWrite(
	ctx context.Context,
	models []mongo.WriteModel,
	opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	result, err := c.Collection.BulkWrite(ctx, models, opts...)
	if err != nil {
		return result, fmt.Errorf("failed to perform BulkWrite: %w", err)
	}

	return result, nil
}

// InsertOne inserts a single document.
func (c *MongoCollection) InsertOne(
	ctx context.Context,
	document interface{},
	opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	result, err := c.Collection.InsertOne(ctx, document, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to perform InsertOne: %w", err)
	}

	return result, nil
}

// UpdateOne updates or upserts a single document.
func (c *MongoCollection) UpdateOne(
	ctx context.Context,
	filter interface{},
	update interface{},
	opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	result, err := c.Collection.UpdateOne(ctx, filter, update, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to perform UpdateOne: %w", err)
	}

	return result, nil
}

// CreateIndex creates the index if it does not already exist.
func (c *MongoCollection) CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error) {
	name, err := c.Collection.Indexes().CreateOne(ctx, model)
	if err != nil {
		return "", fmt.Errorf("failed to create index: %w", err)
	}

	return name, nil
}

// MongoProvider adapts a MongoClient to CollectionProvider.
type MongoProvider struct {
	client MongoClient
	dbName string
}

// NewMongoProvider creates a new MongoProvider bound to one database.
func NewMongoProvider(client MongoClient, dbName string) *MongoProvider {
	if dbName == "" {
		dbName = DefaultDatabase
	}
	return &MongoProvider{client: client, dbName: dbName}
}

// Collection returns a DataStore for the given collection name.
func (p *MongoProvider) Collection(name string) DataStore {
	return &MongoCollection{p.client.Database(p.dbName).Collection(name)}
}

// ConnectToMongoDBFunc is the connector used by the run wiring; tests swap it out.
var ConnectToMongoDBFunc = ConnectToMongoDB

// ConnectToMongoDB establishes a connection to MongoDB.
func ConnectToMongoDB(ctx context.Context, uri string) (MongoClient, error) {
	logger := appcontext.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "Attempting to connect to MongoDB")

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.InfoContext(ctx, "Successfully established connection to MongoDB")
	return client, nil
}
