package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	toursCollection        = "tours"
	agentsCollection       = "agents"
	sessionsCollection     = "sessions"
	translationsCollection = "translations"
	mongoConnectTimeout    = 10 * time.Second
)

var errInvalidObjectID = &apiError{Status: http.StatusBadRequest, Message: "Invalid ID format"}

// mongoProvider connects on first use and keeps the client for the process
// lifetime. A failed connect is not cached, so the next call retries.
type mongoProvider struct {
	uri    string
	dbName string

	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
}

func newMongoProvider(uri, dbName string) *mongoProvider {
	return &mongoProvider{uri: uri, dbName: dbName}
}

func (p *mongoProvider) database(ctx context.Context) (*mongo.Database, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(p.uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	p.client = client
	p.db = client.Database(p.dbName)
	return p.db, nil
}

func (p *mongoProvider) collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := p.database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

func (p *mongoProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Disconnect(ctx)
	p.client = nil
	p.db = nil
	return err
}

// EnsureIndexes creates the indexes every collection relies on. CreateOne is
// a no-op when an identical index already exists.
func (p *mongoProvider) EnsureIndexes(ctx context.Context) error {
	db, err := p.database(ctx)
	if err != nil {
		return err
	}

	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{agentsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("agents_username_unique"),
		}},
		{sessionsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("sessions_token_unique"),
		}},
		{sessionsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("sessions_expires_ttl"),
		}},
		{sessionsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "agentId", Value: 1}},
			Options: options.Index().SetName("sessions_agent"),
		}},
		{translationsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "original", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("translations_original_unique"),
		}},
		{translationsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "last_used", Value: -1}},
			Options: options.Index().SetName("translations_last_used"),
		}},
		{toursCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("tours_slug"),
		}},
		{toursCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "featured", Value: -1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("tours_featured_created"),
		}},
	}

	for _, index := range indexes {
		if _, err := db.Collection(index.collection).Indexes().CreateOne(ctx, index.model); err != nil {
			return fmt.Errorf("create index on %s: %w", index.collection, err)
		}
	}
	return nil
}

func parseObjectID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, errInvalidObjectID
	}
	return id, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
