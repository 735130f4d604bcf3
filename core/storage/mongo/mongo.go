// Package mongo implements the storage contract on top of MongoDB.
// Collections referenced by consumers must be created by the operator
// beforehand; the store never creates them itself.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"botkit/core/logger"
	"botkit/core/storage"
	"log/slog"
)

const connectTimeout = 5 * time.Second

// Config holds MongoDB connection settings.
type Config struct {
	Address  string `yaml:"address" envconfig:"MONGO_ADDRESS"`
	Port     int    `yaml:"port" envconfig:"MONGO_PORT"`
	Username string `yaml:"username" envconfig:"MONGO_USERNAME"`
	Password string `yaml:"password" envconfig:"MONGO_PASSWORD"`
	Database string `yaml:"database" envconfig:"MONGO_DATABASE"`
}

// Store adapts a Mongo database to the storage contract.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the configured Mongo server and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost"
	}
	if cfg.Port <= 0 {
		cfg.Port = 27017
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo: database name is required")
	}

	uri := fmt.Sprintf("mongodb://%s:%d", cfg.Address, cfg.Port)
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(connectTimeout)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error(ctx, "db", "db.ping",
			slog.String("driver", "mongo"),
			slog.String("host", cfg.Address),
			slog.Int("port", cfg.Port),
			slog.String("db", cfg.Database),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info(ctx, "db", "db.connect",
		slog.String("driver", "mongo"),
		slog.String("host", cfg.Address),
		slog.Int("port", cfg.Port),
		slog.String("db", cfg.Database),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	return &Store{client: client, db: client.Database(cfg.Database)}, nil
}

func toBSON(doc storage.Document) bson.M {
	if doc == nil {
		return bson.M{}
	}
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func projection(fields []string) bson.M {
	if len(fields) == 0 {
		return nil
	}
	p := bson.M{"_id": 0}
	for _, f := range fields {
		p[f] = 1
	}
	return p
}

// Find returns documents matching filter, projected to fields.
func (s *Store) Find(ctx context.Context, collection string, filter storage.Document, fields []string, limit int) ([]storage.Document, error) {
	opts := options.Find()
	if p := projection(fields); p != nil {
		opts.SetProjection(p)
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, toBSON(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []storage.Document
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode %s: %w", collection, err)
		}
		out = append(out, storage.Document(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor %s: %w", collection, err)
	}
	return out, nil
}

// FindByField is shorthand for a single-key filter.
func (s *Store) FindByField(ctx context.Context, collection, field string, value any, fields []string, limit int) ([]storage.Document, error) {
	return s.Find(ctx, collection, storage.Document{field: value}, fields, limit)
}

// InsertOne stores a single document.
func (s *Store) InsertOne(ctx context.Context, collection string, doc storage.Document) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, toBSON(doc)); err != nil {
		return fmt.Errorf("mongo insert %s: %w", collection, err)
	}
	return nil
}

// InsertMany stores a batch of documents.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []storage.Document) error {
	batch := make([]any, 0, len(docs))
	for _, doc := range docs {
		batch = append(batch, toBSON(doc))
	}
	if len(batch) == 0 {
		return nil
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("mongo insert many %s: %w", collection, err)
	}
	return nil
}

// DeleteOne removes the first document matching filter.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter storage.Document) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, toBSON(filter)); err != nil {
		return fmt.Errorf("mongo delete %s: %w", collection, err)
	}
	return nil
}

// DeleteMany removes every document matching filter.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter storage.Document) error {
	if _, err := s.db.Collection(collection).DeleteMany(ctx, toBSON(filter)); err != nil {
		return fmt.Errorf("mongo delete many %s: %w", collection, err)
	}
	return nil
}

// DeleteBefore removes documents whose field value is <= cutoff.
func (s *Store) DeleteBefore(ctx context.Context, collection, field string, cutoff int64) error {
	filter := bson.M{field: bson.M{"$lte": cutoff}}
	if _, err := s.db.Collection(collection).DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("mongo delete before %s: %w", collection, err)
	}
	return nil
}

// UpdateOne merges patch into the first matching document, upserting.
func (s *Store) UpdateOne(ctx context.Context, collection, idField string, id any, patch storage.Document) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{idField: id}, bson.M{"$set": toBSON(patch)}, opts)
	if err != nil {
		return fmt.Errorf("mongo update %s: %w", collection, err)
	}
	return nil
}

// UpdateMany merges patch into every matching document, upserting.
func (s *Store) UpdateMany(ctx context.Context, collection, idField string, id any, patch storage.Document) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collection).UpdateMany(ctx, bson.M{idField: id}, bson.M{"$set": toBSON(patch)}, opts)
	if err != nil {
		return fmt.Errorf("mongo update many %s: %w", collection, err)
	}
	return nil
}

// Close disconnects from the server.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}
