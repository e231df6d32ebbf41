package main

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TourFilter struct {
	Query           string
	Featured        *bool
	IncludeInactive bool
	Page            int
	PageSize        int
}

type PaginatedTours struct {
	Tours       []Tour
	TotalCount  int
	TotalPages  int
	CurrentPage int
	PageSize    int
}

// TourStore persists tour documents. Lookups return (nil, nil) when the tour
// does not exist and errInvalidObjectID for malformed ids.
type TourStore interface {
	List(ctx context.Context, filter TourFilter) (*PaginatedTours, error)
	Get(ctx context.Context, id string) (*Tour, error)
	GetBySlug(ctx context.Context, slug string) (*Tour, error)
	Related(ctx context.Context, tags []string, excludeID string, limit int) ([]Tour, error)
	Destinations(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, tour Tour) (*Tour, error)
	SetFields(ctx context.Context, id string, fields bson.M) (*Tour, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// buildTourFilter matches the query as a case-insensitive substring of the
// title, description, destination or any tag.
func buildTourFilter(filter TourFilter) bson.M {
	clauses := bson.A{}

	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		clauses = append(clauses, bson.M{"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"destination": pattern},
			bson.M{"tags": pattern},
		}})
	}
	if filter.Featured != nil {
		clauses = append(clauses, bson.M{"featured": *filter.Featured})
	}
	if !filter.IncludeInactive {
		clauses = append(clauses, bson.M{"isActive": bson.M{"$ne": false}})
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0].(bson.M)
	default:
		return bson.M{"$and": clauses}
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < defaultPage {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

type mongoTourStore struct {
	provider *mongoProvider
}

func (s *mongoTourStore) List(ctx context.Context, filter TourFilter) (*PaginatedTours, error) {
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query := buildTourFilter(filter)

	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "featured", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	tours := []Tour{}
	if err := cursor.All(ctx, &tours); err != nil {
		return nil, err
	}

	return &PaginatedTours{
		Tours:       tours,
		TotalCount:  int(total),
		TotalPages:  totalPages(int(total), pageSize),
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (s *mongoTourStore) Get(ctx context.Context, id string) (*Tour, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.M{"_id": objectID})
}

func (s *mongoTourStore) GetBySlug(ctx context.Context, slug string) (*Tour, error) {
	slug = slugify(slug)
	if slug == "" {
		return nil, nil
	}
	tour, err := s.findOne(ctx, bson.M{"slug": slug})
	if err != nil || tour != nil {
		return tour, err
	}

	// Documents written before slugs were stored only have a title.
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, bson.M{"slug": bson.M{"$exists": false}}, options.Find().SetProjection(bson.M{"title": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var candidate struct {
			ID    primitive.ObjectID `bson:"_id"`
			Title string             `bson:"title"`
		}
		if err := cursor.Decode(&candidate); err != nil {
			return nil, err
		}
		if slugify(candidate.Title) == slug {
			return s.findOne(ctx, bson.M{"_id": candidate.ID})
		}
	}
	return nil, cursor.Err()
}

func (s *mongoTourStore) Related(ctx context.Context, tags []string, excludeID string, limit int) ([]Tour, error) {
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return nil, err
	}
	query := bson.M{"tags": bson.M{"$in": tags}, "isActive": bson.M{"$ne": false}}
	if excludeID != "" {
		objectID, err := parseObjectID(excludeID)
		if err != nil {
			return nil, err
		}
		query["_id"] = bson.M{"$ne": objectID}
	}
	cursor, err := coll.Find(ctx, query, options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "featured", Value: -1}}))
	if err != nil {
		return nil, err
	}
	tours := []Tour{}
	if err := cursor.All(ctx, &tours); err != nil {
		return nil, err
	}
	return tours, nil
}

func (s *mongoTourStore) Destinations(ctx context.Context) ([]string, error) {
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return nil, err
	}
	values, err := coll.Distinct(ctx, "destination", bson.M{"isActive": bson.M{"$ne": false}})
	if err != nil {
		return nil, err
	}
	destinations := make([]string, 0, len(values))
	for _, value := range values {
		if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
			destinations = append(destinations, text)
		}
	}
	sort.Strings(destinations)
	return destinations, nil
}

func (s *mongoTourStore) Count(ctx context.Context) (int, error) {
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return 0, err
	}
	count, err := coll.CountDocuments(ctx, bson.M{})
	return int(count), err
}

func (s *mongoTourStore) Create(ctx context.Context, tour Tour) (*Tour, error) {
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return nil, err
	}
	if tour.ID.IsZero() {
		tour.ID = primitive.NewObjectID()
	}
	if _, err := coll.InsertOne(ctx, tour); err != nil {
		return nil, err
	}
	return &tour, nil
}

func (s *mongoTourStore) SetFields(ctx context.Context, id string, fields bson.M) (*Tour, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return nil, err
	}
	var updated Tour
	err = coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *mongoTourStore) Delete(ctx context.Context, id string) (bool, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return false, err
	}
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return false, err
	}
	result, err := coll.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

func (s *mongoTourStore) findOne(ctx context.Context, query bson.M) (*Tour, error) {
	coll, err := s.provider.collection(ctx, toursCollection)
	if err != nil {
		return nil, err
	}
	var tour Tour
	err = coll.FindOne(ctx, query).Decode(&tour)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tour, nil
}
