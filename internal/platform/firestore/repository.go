package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Collection provides typed access to one Firestore collection. T is the stored document shape
// (a struct with firestore tags); mapping to domain types happens in the repository layer.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Ref returns the document reference for id.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: document id is required", c.name)
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Get loads and decodes a document.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return zero, WrapError(c.op("get"), err)
	}
	return Decode[T](snap)
}

// Create writes a new document, failing with a conflict when it already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, doc T) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, doc)
	return WrapError(c.op("create"), err)
}

// Set overwrites a document.
func (c *Collection[T]) Set(ctx context.Context, id string, doc T) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, doc)
	return WrapError(c.op("set"), err)
}

// Update applies field updates to an existing document.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, updates)
	return WrapError(c.op("update"), err)
}

// Delete removes a document; deleting a missing document succeeds.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return WrapError(c.op("delete"), err)
}

// Query runs a query built from the collection and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build func(firestore.Query) firestore.Query) ([]T, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		doc, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
}

// Snapshots runs a query built from the collection and returns the raw snapshots, for callers
// that need document IDs or cursor values alongside the data.
func (c *Collection[T]) Snapshots(ctx context.Context, build func(firestore.Query) firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, WrapError(c.op("query"), err)
	}
	return snaps, nil
}

// Count runs an aggregation count over the built query.
func (c *Collection[T]) Count(ctx context.Context, build func(firestore.Query) firestore.Query) (int, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return 0, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	result, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, WrapError(c.op("count"), err)
	}
	raw, ok := result["total"]
	if !ok {
		return 0, nil
	}
	switch v := raw.(type) {
	case int64:
		return int(v), nil
	case interface{ GetIntegerValue() int64 }:
		return int(v.GetIntegerValue()), nil
	}
	return 0, fmt.Errorf("%s: unexpected count type %T", c.name, raw)
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil || c.name == "" {
		return nil, errors.New("firestore: collection is not configured")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}

// Decode converts a snapshot into T.
func Decode[T any](snap *firestore.DocumentSnapshot) (T, error) {
	var doc T
	if err := snap.DataTo(&doc); err != nil {
		return doc, fmt.Errorf("firestore: decode %s: %w", snap.Ref.Path, err)
	}
	return doc, nil
}
