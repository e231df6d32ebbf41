package main

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Translation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Original     string             `bson:"original" json:"original"`
	Translations map[string]string  `bson:"translations" json:"translations"`
	Timestamp    time.Time          `bson:"timestamp" json:"timestamp"`
	Context      string             `bson:"context,omitempty" json:"context,omitempty"`
	Category     string             `bson:"category,omitempty" json:"category,omitempty"`
	UsageCount   int                `bson:"usage_count" json:"usage_count"`
	LastUsed     time.Time          `bson:"last_used" json:"last_used"`
}

type TranslationStore interface {
	// RecordUse bumps the usage counter of the cached entry for original and
	// returns it, or (nil, nil) when nothing is cached.
	RecordUse(ctx context.Context, original string, at time.Time) (*Translation, error)
	Insert(ctx context.Context, translation Translation) (*Translation, error)
	History(ctx context.Context, limit int) ([]Translation, error)
	Search(ctx context.Context, query string, limit int) ([]Translation, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type mongoTranslationStore struct {
	provider *mongoProvider
}

func (s *mongoTranslationStore) RecordUse(ctx context.Context, original string, at time.Time) (*Translation, error) {
	coll, err := s.provider.collection(ctx, translationsCollection)
	if err != nil {
		return nil, err
	}
	var entry Translation
	err = coll.FindOneAndUpdate(
		ctx,
		bson.M{"original": original},
		bson.M{"$inc": bson.M{"usage_count": 1}, "$set": bson.M{"last_used": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&entry)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *mongoTranslationStore) Insert(ctx context.Context, translation Translation) (*Translation, error) {
	coll, err := s.provider.collection(ctx, translationsCollection)
	if err != nil {
		return nil, err
	}
	if translation.ID.IsZero() {
		translation.ID = primitive.NewObjectID()
	}
	if _, err := coll.InsertOne(ctx, translation); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent request cached the same text first.
			return s.RecordUse(ctx, translation.Original, translation.LastUsed)
		}
		return nil, err
	}
	return &translation, nil
}

func (s *mongoTranslationStore) History(ctx context.Context, limit int) ([]Translation, error) {
	return s.find(ctx, bson.M{}, limit)
}

func (s *mongoTranslationStore) Search(ctx context.Context, query string, limit int) ([]Translation, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return s.find(ctx, bson.M{"$or": bson.A{
		bson.M{"original": pattern},
		bson.M{"translations.en": pattern},
	}}, limit)
}

func (s *mongoTranslationStore) Delete(ctx context.Context, id string) (bool, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return false, err
	}
	coll, err := s.provider.collection(ctx, translationsCollection)
	if err != nil {
		return false, err
	}
	result, err := coll.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

func (s *mongoTranslationStore) find(ctx context.Context, query bson.M, limit int) ([]Translation, error) {
	coll, err := s.provider.collection(ctx, translationsCollection)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "last_used", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	entries := []Translation{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
