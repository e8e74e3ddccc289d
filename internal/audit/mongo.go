package audit

import (
	"context"
	"fmt"
	"time"

	"qmsgov/internal/config"
	"qmsgov/internal/types"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoRepository writes audit entries to a MongoDB collection
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoRepository connects to MongoDB and prepares the collection
func NewMongoRepository(ctx context.Context, cfg *config.MongoConfig, logger *zap.Logger) (*MongoRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAppName("qmsgov"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("entity_created"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create audit index: %w", err)
	}

	logger.Info("MongoDB audit log ready",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))

	return &MongoRepository{client: client, collection: coll, logger: logger}, nil
}

// Append inserts an entry
func (r *MongoRepository) Append(ctx context.Context, entry *types.AuditEntry) error {
	doc := *entry
	doc.CreatedAt = entry.CreatedAt.UTC()
	if _, err := r.collection.InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the entity's entries, oldest first
func (r *MongoRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*types.AuditEntry, error) {
	cursor, err := r.collection.Find(ctx, entityFilter(entityType, entityID),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	entries := make([]*types.AuditEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	for _, e := range entries {
		e.CreatedAt = e.CreatedAt.UTC()
	}
	return entries, nil
}

// Health pings the server
func (r *MongoRepository) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func entityFilter(entityType, entityID string) bson.M {
	return bson.M{"entity_type": entityType, "entity_id": entityID}
}
