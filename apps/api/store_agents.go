package main

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errDuplicateUsername = &apiError{Status: http.StatusConflict, Message: "Username already exists"}

// Agent is a console account. Agents log in to manage tours; admins also
// manage other agents.
type Agent struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Username     string             `bson:"username" json:"username"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	Role         string             `bson:"role" json:"role"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	LastLogin    *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type AgentFilter struct {
	Query    string
	Role     string
	Status   string
	Page     int
	PageSize int
}

type PaginatedAgents struct {
	Agents      []Agent
	TotalCount  int
	TotalPages  int
	CurrentPage int
	PageSize    int
}

type AgentStore interface {
	List(ctx context.Context, filter AgentFilter) (*PaginatedAgents, error)
	GetByID(ctx context.Context, id string) (*Agent, error)
	GetByUsername(ctx context.Context, username string) (*Agent, error)
	Create(ctx context.Context, agent Agent) (*Agent, error)
	Update(ctx context.Context, id string, fields bson.M) (*Agent, error)
	UpsertByUsername(ctx context.Context, agent Agent) (*Agent, error)
	TouchLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
	Delete(ctx context.Context, id string) (bool, error)
}

func buildAgentFilter(filter AgentFilter) bson.M {
	query := bson.M{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"username": pattern},
			bson.M{"name": pattern},
			bson.M{"email": pattern},
		}
	}
	if role := strings.TrimSpace(filter.Role); role != "" {
		query["role"] = role
	}
	switch filter.Status {
	case "active":
		query["isActive"] = true
	case "inactive":
		query["isActive"] = false
	}
	return query
}

type mongoAgentStore struct {
	provider *mongoProvider
}

func (s *mongoAgentStore) List(ctx context.Context, filter AgentFilter) (*PaginatedAgents, error) {
	coll, err := s.provider.collection(ctx, agentsCollection)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query := buildAgentFilter(filter)

	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	agents := []Agent{}
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, err
	}
	return &PaginatedAgents{
		Agents:      agents,
		TotalCount:  int(total),
		TotalPages:  totalPages(int(total), pageSize),
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (s *mongoAgentStore) GetByID(ctx context.Context, id string) (*Agent, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.M{"_id": objectID})
}

func (s *mongoAgentStore) GetByUsername(ctx context.Context, username string) (*Agent, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *mongoAgentStore) Create(ctx context.Context, agent Agent) (*Agent, error) {
	coll, err := s.provider.collection(ctx, agentsCollection)
	if err != nil {
		return nil, err
	}
	if agent.ID.IsZero() {
		agent.ID = primitive.NewObjectID()
	}
	if _, err := coll.InsertOne(ctx, agent); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errDuplicateUsername
		}
		return nil, err
	}
	return &agent, nil
}

func (s *mongoAgentStore) Update(ctx context.Context, id string, fields bson.M) (*Agent, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	coll, err := s.provider.collection(ctx, agentsCollection)
	if err != nil {
		return nil, err
	}
	var updated Agent
	err = coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if isNoDocuments(err) {
		return nil, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil, errDuplicateUsername
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *mongoAgentStore) UpsertByUsername(ctx context.Context, agent Agent) (*Agent, error) {
	coll, err := s.provider.collection(ctx, agentsCollection)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$set": bson.M{
			"name":         agent.Name,
			"email":        agent.Email,
			"passwordHash": agent.PasswordHash,
			"role":         agent.Role,
			"isActive":     true,
			"updatedAt":    agent.UpdatedAt,
		},
		"$setOnInsert": bson.M{"createdAt": agent.CreatedAt},
	}
	var stored Agent
	err = coll.FindOneAndUpdate(
		ctx,
		bson.M{"username": agent.Username},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&stored)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *mongoAgentStore) TouchLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	coll, err := s.provider.collection(ctx, agentsCollection)
	if err != nil {
		return err
	}
	_, err = coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"lastLogin": at}})
	return err
}

func (s *mongoAgentStore) Delete(ctx context.Context, id string) (bool, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return false, err
	}
	coll, err := s.provider.collection(ctx, agentsCollection)
	if err != nil {
		return false, err
	}
	result, err := coll.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

func (s *mongoAgentStore) findOne(ctx context.Context, query bson.M) (*Agent, error) {
	coll, err := s.provider.collection(ctx, agentsCollection)
	if err != nil {
		return nil, err
	}
	var agent Agent
	err = coll.FindOne(ctx, query).Decode(&agent)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}
