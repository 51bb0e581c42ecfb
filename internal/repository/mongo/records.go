package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trainsync/internal/repository"
)

// recordCollection is the generic record client shared by the typed repositories:
// create/getOne/getFullList/update/delete keyed by string IDs.
type recordCollection[T any] struct {
	collection *mongo.Collection
	// updatable lists the fields Update may touch. Everything else is rejected.
	updatable map[string]bool
}

func newRecordCollection[T any](db *mongo.Database, name string, updatable ...string) recordCollection[T] {
	allowed := make(map[string]bool, len(updatable))
	for _, f := range updatable {
		allowed[f] = true
	}
	return recordCollection[T]{collection: db.Collection(name), updatable: allowed}
}

// newID generates a record ID when the caller did not supply one.
func newID() string {
	return primitive.NewObjectID().Hex()
}

func (c recordCollection[T]) insert(ctx context.Context, doc *T) error {
	if _, err := c.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (c recordCollection[T]) getOne(ctx context.Context, id string) (*T, error) {
	var doc T
	err := c.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (c recordCollection[T]) list(ctx context.Context, q repository.ListQuery) ([]T, error) {
	filter, err := filterToBSON(q.Filter)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find()
	if sort := sortToBSON(q.Sort); sort != nil {
		findOptions.SetSort(sort)
	}
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}

	cursor, err := c.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []T{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c recordCollection[T]) update(ctx context.Context, id string, fields map[string]any) (*T, error) {
	return c.updateIf(ctx, id, nil, fields)
}

// updateIf sets fields on the record matching id and cond. When the id exists
// but cond does not hold, it returns repository.ErrConflict.
func (c recordCollection[T]) updateIf(ctx context.Context, id string, cond bson.M, fields map[string]any) (*T, error) {
	for f := range fields {
		if !c.updatable[f] {
			return nil, fmt.Errorf("%w: %s", repository.ErrInvalidField, f)
		}
	}
	if len(fields) == 0 && len(cond) == 0 {
		return c.getOne(ctx, id)
	}

	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	if c.updatable["updatedAt"] {
		set["updatedAt"] = now()
	}

	filter := bson.M{"_id": id}
	for k, v := range cond {
		filter[k] = v
	}

	var doc T
	err := c.collection.FindOneAndUpdate(ctx,
		filter,
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		if len(cond) == 0 {
			return nil, repository.ErrNotFound
		}
		n, countErr := c.collection.CountDocuments(ctx, bson.M{"_id": id})
		if countErr != nil {
			return nil, countErr
		}
		if n == 0 {
			return nil, repository.ErrNotFound
		}
		return nil, repository.ErrConflict
	}
	return &doc, nil
}

func (c recordCollection[T]) increment(ctx context.Context, id, field string, delta int) error {
	if !c.updatable[field] {
		return fmt.Errorf("%w: %s", repository.ErrInvalidField, field)
	}
	update := bson.M{"$inc": bson.M{field: delta}}
	if c.updatable["updatedAt"] {
		update["$set"] = bson.M{"updatedAt": now()}
	}
	result, err := c.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (c recordCollection[T]) delete(ctx context.Context, id string) error {
	result, err := c.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// filterToBSON turns an equality expression into a query document.
func filterToBSON(expr string) (bson.M, error) {
	parsed, err := repository.ParseFilter(expr)
	if err != nil {
		return nil, err
	}
	clauses := make([]bson.M, 0, len(parsed))
	for _, cond := range parsed {
		field := cond.Field
		if field == "id" {
			field = "_id"
		}
		switch cond.Op {
		case repository.OpNotEqual:
			clauses = append(clauses, bson.M{field: bson.M{"$ne": cond.Value}})
		default:
			clauses = append(clauses, bson.M{field: cond.Value})
		}
	}
	switch len(clauses) {
	case 0:
		return bson.M{}, nil
	case 1:
		return clauses[0], nil
	}
	return bson.M{"$and": clauses}, nil
}

// sortToBSON accepts "field", "-field" or a comma separated list of those.
func sortToBSON(sort string) bson.D {
	var out bson.D
	for _, part := range strings.Split(sort, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dir := 1
		if strings.HasPrefix(part, "-") {
			dir = -1
			part = part[1:]
		} else if strings.HasPrefix(part, "+") {
			part = part[1:]
		}
		if part == "id" {
			part = "_id"
		}
		out = append(out, bson.E{Key: part, Value: dir})
	}
	return out
}
