// Package memory is an in-process record store with the same contracts as the
// MongoDB repositories. It backs the "memory" database driver and the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trainsync/internal/repository"
)

// collection keeps documents as BSON maps so filters and partial updates behave
// like the Mongo implementation.
type collection[T any] struct {
	mu        sync.RWMutex
	docs      map[string]bson.M
	order     []string
	updatable map[string]bool
	now       func() time.Time
}

func newCollection[T any](updatable ...string) *collection[T] {
	allowed := make(map[string]bool, len(updatable))
	for _, f := range updatable {
		allowed[f] = true
	}
	return &collection[T]{
		docs:      make(map[string]bson.M),
		updatable: allowed,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

func toDoc(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromDoc[T any](m bson.M) (*T, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out T
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *collection[T]) insert(ctx context.Context, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := toDoc(v)
	if err != nil {
		return err
	}
	id, _ := doc["_id"].(string)
	if id == "" {
		return fmt.Errorf("record without _id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return repository.ErrAlreadyExists
	}
	c.docs[id] = doc
	c.order = append(c.order, id)
	return nil
}

func (c *collection[T]) getOne(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	doc, ok := c.docs[id]
	c.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return fromDoc[T](doc)
}

func (c *collection[T]) list(ctx context.Context, q repository.ListQuery) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter, err := repository.ParseFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	matched := make([]bson.M, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		if matches(doc, filter) {
			matched = append(matched, doc)
		}
	}
	c.mu.RUnlock()

	sortDocs(matched, q.Sort)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]T, 0, len(matched))
	for _, doc := range matched {
		v, err := fromDoc[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (c *collection[T]) update(ctx context.Context, id string, fields map[string]any) (*T, error) {
	return c.updateIf(ctx, id, nil, fields)
}

// updateIf applies fields only when the stored document matches cond, checked
// under the same lock as the write.
func (c *collection[T]) updateIf(ctx context.Context, id string, cond repository.Filter, fields map[string]any) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for f := range fields {
		if !c.updatable[f] {
			return nil, fmt.Errorf("%w: %s", repository.ErrInvalidField, f)
		}
	}
	patch, err := toDoc(fields)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !matches(doc, cond) {
		return nil, repository.ErrConflict
	}
	next := make(bson.M, len(doc)+len(patch))
	for k, v := range doc {
		next[k] = v
	}
	for k, v := range patch {
		next[k] = v
	}
	if len(patch) > 0 && c.updatable["updatedAt"] {
		next["updatedAt"] = primitive.NewDateTimeFromTime(c.now())
	}
	c.docs[id] = next
	return fromDoc[T](next)
}

func (c *collection[T]) increment(ctx context.Context, id, field string, delta int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.updatable[field] {
		return fmt.Errorf("%w: %s", repository.ErrInvalidField, field)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	current, _ := toFloat(doc[field])
	next := make(bson.M, len(doc))
	for k, v := range doc {
		next[k] = v
	}
	next[field] = int64(current) + int64(delta)
	if c.updatable["updatedAt"] {
		next["updatedAt"] = primitive.NewDateTimeFromTime(c.now())
	}
	c.docs[id] = next
	return nil
}

func (c *collection[T]) delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// matches applies Mongo equality semantics: arrays match when any element is equal
// and a null value matches a missing field.
func matches(doc bson.M, filter repository.Filter) bool {
	for _, cond := range filter {
		field := cond.Field
		if field == "id" {
			field = "_id"
		}
		eq := valueMatches(doc[field], cond.Value)
		if (cond.Op == repository.OpEqual) != eq {
			return false
		}
	}
	return true
}

func valueMatches(stored, want any) bool {
	if arr, ok := stored.(bson.A); ok {
		for _, el := range arr {
			if scalarEqual(el, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(stored, want)
}

func scalarEqual(stored, want any) bool {
	if want == nil {
		return stored == nil
	}
	if wf, ok := want.(float64); ok {
		sf, ok := toFloat(stored)
		return ok && sf == wf
	}
	return stored == want
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sortDocs(docs []bson.M, sortExpr string) {
	type key struct {
		field string
		desc  bool
	}
	var keys []key
	for _, part := range strings.Split(sortExpr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := key{field: part}
		if strings.HasPrefix(part, "-") {
			k = key{field: part[1:], desc: true}
		} else if strings.HasPrefix(part, "+") {
			k.field = part[1:]
		}
		if k.field == "id" {
			k.field = "_id"
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(docs[i][k.field], docs[j][k.field])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case primitive.DateTime:
		if bv, ok := b.(primitive.DateTime); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok && av != bv {
			if !av {
				return -1
			}
			return 1
		}
		return 0
	}
	// Missing values sort first, as in Mongo.
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}
