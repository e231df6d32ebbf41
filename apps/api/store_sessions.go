package main

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Token     string             `bson:"token"`
	AgentID   primitive.ObjectID `bson:"agentId"`
	ExpiresAt time.Time          `bson:"expiresAt"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// SessionStore keeps opaque session tokens. FindValid only returns sessions
// whose expiry is after now.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	FindValid(ctx context.Context, token string, now time.Time) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteByAgent(ctx context.Context, agentID primitive.ObjectID) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type mongoSessionStore struct {
	provider *mongoProvider
}

func (s *mongoSessionStore) Create(ctx context.Context, session Session) error {
	coll, err := s.provider.collection(ctx, sessionsCollection)
	if err != nil {
		return err
	}
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	_, err = coll.InsertOne(ctx, session)
	return err
}

func (s *mongoSessionStore) FindValid(ctx context.Context, token string, now time.Time) (*Session, error) {
	coll, err := s.provider.collection(ctx, sessionsCollection)
	if err != nil {
		return nil, err
	}
	var session Session
	err = coll.FindOne(ctx, bson.M{"token": token, "expiresAt": bson.M{"$gt": now}}).Decode(&session)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *mongoSessionStore) Delete(ctx context.Context, token string) error {
	coll, err := s.provider.collection(ctx, sessionsCollection)
	if err != nil {
		return err
	}
	_, err = coll.DeleteOne(ctx, bson.M{"token": token})
	return err
}

func (s *mongoSessionStore) DeleteByAgent(ctx context.Context, agentID primitive.ObjectID) error {
	coll, err := s.provider.collection(ctx, sessionsCollection)
	if err != nil {
		return err
	}
	_, err = coll.DeleteMany(ctx, bson.M{"agentId": agentID})
	return err
}

func (s *mongoSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	coll, err := s.provider.collection(ctx, sessionsCollection)
	if err != nil {
		return 0, err
	}
	result, err := coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return int(result.DeletedCount), nil
}
