// Package driver provides the MongoDB document store client for the patchwork ORM.
// It applies update operation sets with $set, $inc, $push, $pull and $addToSet.
package driver

import (
	"context"
	"time"

	"github.com/leandroluk/patchwork/core"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

//region MongoDriver

type MongoDriver struct {
	client          *mongo.Client
	defaultDatabase string
	logger          *zap.Logger
}

var _ core.Driver = (*MongoDriver)(nil)

// Option customizes a MongoDriver.
type Option func(*MongoDriver)

// WithLogger sets the logger used for issued updates.
func WithLogger(logger *zap.Logger) Option {
	return func(driver *MongoDriver) { driver.logger = logger }
}

func NewMongoDriver(ctx context.Context, uri string, defaultDB string, options ...Option) (*MongoDriver, error) {
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return NewMongoDriverFromClient(client, defaultDB, options...), nil
}

// NewMongoDriverFromClient wraps an already connected client.
func NewMongoDriverFromClient(client *mongo.Client, defaultDB string, options ...Option) *MongoDriver {
	driver := &MongoDriver{client: client, defaultDatabase: defaultDB, logger: zap.NewNop()}
	for _, option := range options {
		option(driver)
	}
	return driver
}

func (driver *MongoDriver) coll(schema *core.SchemaCore) (*mongo.Collection, error) {
	dbName := driver.defaultDatabase
	if schema.Database != "" {
		dbName = schema.Database
	}
	if dbName == "" || schema.Collection == "" {
		return nil, &core.MissingRoutingMetadataError{Type: schema.Type}
	}
	return driver.client.Database(dbName).Collection(schema.Collection), nil
}

func (driver *MongoDriver) withSession(ctx context.Context) context.Context {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if mt, ok := tx.(*mongoTransaction); ok {
			return mongo.NewSessionContext(ctx, mt.session)
		}
	}
	return ctx
}

func (driver *MongoDriver) Connect(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *MongoDriver) Ping(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *MongoDriver) Close(ctx context.Context) error {
	return driver.client.Disconnect(ctx)
}

func (driver *MongoDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	session, err := driver.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &mongoTransaction{session: session, logger: driver.logger}, nil
}

func (driver *MongoDriver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...any) error {
	if len(documents) == 0 {
		return nil
	}
	collection, err := driver.coll(schema)
	if err != nil {
		return err
	}
	documentList := make([]any, 0, len(documents))
	for _, doc := range documents {
		encoded, err := core.EncodeDocument(schema, doc)
		if err != nil {
			return err
		}
		documentList = append(documentList, toBSON(encoded))
	}
	_, err = collection.InsertMany(driver.withSession(ctx), documentList)
	return err
}

func (driver *MongoDriver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, operations core.UpdateOperationSet, multi bool) (int64, error) {
	if len(operations) == 0 {
		return 0, nil
	}
	collection, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	update, err := buildUpdate(operations)
	if err != nil {
		return 0, err
	}
	driver.logger.Debug("mongo update",
		zap.String("collection", schema.Collection),
		zap.Bool("multi", multi),
		zap.Any("update", update),
	)

	ctx = driver.withSession(ctx)
	var result *mongo.UpdateResult
	if multi {
		result, err = collection.UpdateMany(ctx, filter, update)
	} else {
		result, err = collection.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (driver *MongoDriver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	collection, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	result, err := collection.DeleteMany(driver.withSession(ctx), filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (driver *MongoDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	collection, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	return collection.CountDocuments(driver.withSession(ctx), filter)
}

//endregion
