package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OpenMongo connects to MongoDB, verifies the connection and returns the database handle.
func OpenMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return client.Database(database), nil
}

// FilterBuilder builds MongoDB filters fluently.
type FilterBuilder struct {
	filter bson.M
}

// NewFilter creates a new FilterBuilder
func NewFilter() *FilterBuilder {
	return &FilterBuilder{filter: bson.M{}}
}

// Eq adds an equality condition
func (f *FilterBuilder) Eq(field string, value any) *FilterBuilder {
	f.filter[field] = value
	return f
}

// Ne adds a not-equal condition. Documents missing the field also match.
func (f *FilterBuilder) Ne(field string, value any) *FilterBuilder {
	f.filter[field] = bson.M{"$ne": value}
	return f
}

// Build returns the final bson.M filter
func (f *FilterBuilder) Build() bson.M {
	return f.filter
}

// UpdateBuilder collects update operators into one update document.
type UpdateBuilder struct {
	update bson.M
}

// NewUpdate creates an empty UpdateBuilder.
func NewUpdate() *UpdateBuilder {
	return &UpdateBuilder{update: bson.M{}}
}

func (u *UpdateBuilder) op(name, field string, value any) *UpdateBuilder {
	doc, ok := u.update[name].(bson.M)
	if !ok {
		doc = bson.M{}
		u.update[name] = doc
	}
	doc[field] = value
	return u
}

// Set adds a $set for field.
func (u *UpdateBuilder) Set(field string, value any) *UpdateBuilder { return u.op("$set", field, value) }

// Inc adds an $inc for field.
func (u *UpdateBuilder) Inc(field string, by int) *UpdateBuilder { return u.op("$inc", field, by) }

// AddToSet adds an $addToSet for field.
func (u *UpdateBuilder) AddToSet(field string, value any) *UpdateBuilder {
	return u.op("$addToSet", field, value)
}

// Build returns the update document.
func (u *UpdateBuilder) Build() bson.M {
	return u.update
}
