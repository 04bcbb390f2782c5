package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/atelier-market/api/internal/domain"
	pfirestore "github.com/atelier-market/api/internal/platform/firestore"
	"github.com/atelier-market/api/internal/platform/pagination"
	"github.com/atelier-market/api/internal/repositories"
)

// OrderRepository stores orders with embedded items and guards stock in transactions.
type OrderRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[orderDocument]
	numbers  *pfirestore.Collection[orderNumberDocument]
	products *pfirestore.Collection[productDocument]
}

// Place reads every product, fails on the first shortfall, and only then writes the stock
// decrements, the order and its order-number reservation.
func (r *OrderRepository) Place(ctx context.Context, order domain.Order, stock []repositories.StockLine) error {
	orderRef, err := r.docs.Ref(ctx, order.ID)
	if err != nil {
		return err
	}
	numberRef, err := r.numbers.Ref(ctx, order.OrderNumber)
	if err != nil {
		return err
	}
	requested, productIDs := sumLines(stock)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(numberRef); err == nil {
			return repositories.Conflict("orders.place", "order number %s already used", order.OrderNumber)
		} else if !isMissing(err) {
			return err
		}

		refs := make(map[string]*firestore.DocumentRef, len(productIDs))
		for _, productID := range productIDs {
			ref, err := r.products.Ref(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if isMissing(err) {
					return repositories.NotFound("orders.place", "product %s not found", productID)
				}
				return err
			}
			current, err := pfirestore.Decode[productDocument](snap)
			if err != nil {
				return err
			}
			if current.StockQuantity < requested[productID] {
				return repositories.NewInsufficientStockError(productID, requested[productID], current.StockQuantity)
			}
			refs[productID] = ref
		}

		for _, productID := range productIDs {
			if err := tx.Update(refs[productID], []firestore.Update{
				{Path: "stockQuantity", Value: firestore.Increment(-requested[productID])},
				{Path: "updatedAt", Value: order.CreatedAt.UTC()},
			}); err != nil {
				return err
			}
		}
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		return tx.Create(numberRef, orderNumberDocument{OrderID: order.ID, CreatedAt: order.CreatedAt.UTC()})
	})
	return err
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.docs.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

// List orders newest first. Requires composite indexes on (shopperId|shopId, status, createdAt desc).
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		statuses = append(statuses, string(s))
	}
	page, err := listNewestFirst(ctx, r.docs, filter.Pagination, func(q firestore.Query) firestore.Query {
		if filter.ShopperID != "" {
			q = q.Where("shopperId", "==", filter.ShopperID)
		}
		if filter.ShopID != "" {
			q = q.Where("shopId", "==", filter.ShopID)
		}
		if len(statuses) > 0 {
			q = q.Where("status", "in", statuses)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	out := domain.CursorPage[domain.Order]{NextPageToken: page.next, Items: make([]domain.Order, 0, len(page.docs))}
	for i, doc := range page.docs {
		out.Items = append(out.Items, doc.toDomain(page.ids[i]))
	}
	return out, nil
}

// Mutate applies fn to the stored order and restores the returned stock lines atomically.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	orderRef, err := r.docs.Ref(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	var result domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(orderRef)
		if err != nil {
			if isMissing(err) {
				return repositories.NotFound("orders.mutate", "order %s not found", orderID)
			}
			return err
		}
		current, err := pfirestore.Decode[orderDocument](snap)
		if err != nil {
			return err
		}
		working := current.toDomain(orderID)
		restock, err := fn(&working)
		if err != nil {
			return err
		}

		quantities, productIDs := sumLines(restock)
		existing := make([]*firestore.DocumentRef, 0, len(productIDs))
		for _, productID := range productIDs {
			ref, err := r.products.Ref(ctx, productID)
			if err != nil {
				return err
			}
			if _, err := tx.Get(ref); err != nil {
				if isMissing(err) {
					continue
				}
				return err
			}
			existing = append(existing, ref)
		}
		for _, ref := range existing {
			if err := tx.Update(ref, []firestore.Update{{Path: "stockQuantity", Value: firestore.Increment(quantities[ref.ID])}}); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, newOrderDocument(working)); err != nil {
			return err
		}
		result = working
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// ReturnRepository stores returns. The caller supplies an ID derived from the order so that
// Create doubles as the one-return-per-order guard.
type ReturnRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[returnDocument]
}

func (r *ReturnRepository) Create(ctx context.Context, ret domain.Return) error {
	existing, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", ret.OrderID).Limit(1)
	})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return repositories.Conflict("returns.create", "order %s already has a return", ret.OrderID)
	}
	err = r.docs.Create(ctx, ret.ID, newReturnDocument(ret))
	if repositories.IsConflict(err) {
		return repositories.Conflict("returns.create", "order %s already has a return", ret.OrderID)
	}
	return err
}

func (r *ReturnRepository) Get(ctx context.Context, returnID string) (domain.Return, error) {
	doc, err := r.docs.Get(ctx, returnID)
	if err != nil {
		return domain.Return{}, err
	}
	return doc.toDomain(returnID), nil
}

func (r *ReturnRepository) FindByOrder(ctx context.Context, orderID string) (domain.Return, error) {
	snaps, err := r.docs.Snapshots(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Return{}, err
	}
	if len(snaps) == 0 {
		return domain.Return{}, repositories.NotFound("returns.findByOrder", "no return for order %s", orderID)
	}
	doc, err := pfirestore.Decode[returnDocument](snaps[0])
	if err != nil {
		return domain.Return{}, err
	}
	return doc.toDomain(snaps[0].Ref.ID), nil
}

func (r *ReturnRepository) List(ctx context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error) {
	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		statuses = append(statuses, string(s))
	}
	page, err := listNewestFirst(ctx, r.docs, filter.Pagination, func(q firestore.Query) firestore.Query {
		if filter.ShopperID != "" {
			q = q.Where("shopperId", "==", filter.ShopperID)
		}
		if filter.ShopID != "" {
			q = q.Where("shopId", "==", filter.ShopID)
		}
		if len(statuses) > 0 {
			q = q.Where("status", "in", statuses)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Return]{}, err
	}
	out := domain.CursorPage[domain.Return]{NextPageToken: page.next, Items: make([]domain.Return, 0, len(page.docs))}
	for i, doc := range page.docs {
		out.Items = append(out.Items, doc.toDomain(page.ids[i]))
	}
	return out, nil
}

func (r *ReturnRepository) Mutate(ctx context.Context, returnID string, fn func(ret *domain.Return) error) (domain.Return, error) {
	ref, err := r.docs.Ref(ctx, returnID)
	if err != nil {
		return domain.Return{}, err
	}
	var result domain.Return
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isMissing(err) {
				return repositories.NotFound("returns.mutate", "return %s not found", returnID)
			}
			return err
		}
		current, err := pfirestore.Decode[returnDocument](snap)
		if err != nil {
			return err
		}
		working := current.toDomain(returnID)
		if err := fn(&working); err != nil {
			return err
		}
		result = working
		return tx.Set(ref, newReturnDocument(working))
	})
	if err != nil {
		return domain.Return{}, err
	}
	return result, nil
}

type listPage[T any] struct {
	docs []T
	ids  []string
	next string
}

// listNewestFirst pages a collection by (createdAt desc, document ID asc) using cursor tokens.
func listNewestFirst[T any](ctx context.Context, docs *pfirestore.Collection[T], p domain.Pagination, where func(firestore.Query) firestore.Query) (listPage[T], error) {
	cursor, err := pagination.DecodeToken(p.PageToken)
	if err != nil {
		return listPage[T]{}, err
	}
	size := p.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	var after []any
	if len(cursor.After) == 2 {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.After[0])
		if err != nil {
			return listPage[T]{}, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
		}
		after = []any{createdAt, cursor.After[1]}
	}
	snaps, err := docs.Snapshots(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if after != nil {
			q = q.StartAfter(after...)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return listPage[T]{}, err
	}
	var out listPage[T]
	for i, snap := range snaps {
		if i == size {
			last := snaps[i-1]
			createdAt, _ := last.DataAt("createdAt")
			if ts, ok := createdAt.(time.Time); ok {
				out.next = pagination.EncodeToken(pagination.Cursor{After: []string{ts.UTC().Format(time.RFC3339Nano), last.Ref.ID}})
			}
			break
		}
		doc, err := pfirestore.Decode[T](snap)
		if err != nil {
			return listPage[T]{}, err
		}
		out.docs = append(out.docs, doc)
		out.ids = append(out.ids, snap.Ref.ID)
	}
	return out, nil
}

func sumLines(lines []repositories.StockLine) (map[string]int, []string) {
	totals := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, seen := totals[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}
	return totals, order
}

func isMissing(err error) bool {
	return repositories.IsNotFound(pfirestore.WrapError("", err))
}
