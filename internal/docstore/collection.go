// Package docstore keeps JSON documents in named collections. Every write
// touches exactly one document and is atomic on its own; there are no
// multi-document transactions.
package docstore

import (
	"context"
	"errors"
)

const (
	CollectionProducts         = "products"
	CollectionPrintOrders      = "orders"
	CollectionEcommerceOrders  = "ecommerce_orders"
	CollectionOrphanedPayments = "orphaned_payments"
	CollectionStockAdjustments = "stock_adjustments"
)

// ErrDuplicate is returned by Insert when the id is already taken.
var ErrDuplicate = errors.New("duplicate document id")

// Collection is a flat set of documents of type T keyed by an opaque id.
// Lookups of missing documents return a nil document and a nil error.
type Collection[T any] interface {
	Insert(ctx context.Context, id string, doc *T) error
	Get(ctx context.Context, id string) (*T, error)
	// List returns documents newest first.
	List(ctx context.Context) ([]T, error)
	// Find returns documents whose top-level field equals value, newest first.
	Find(ctx context.Context, field, value string) ([]T, error)
	Replace(ctx context.Context, id string, doc *T) (bool, error)
	// Update merges fields into the top level of the document and returns
	// the post-update snapshot.
	Update(ctx context.Context, id string, fields map[string]any) (*T, error)
	// AddInt adds delta to an integer field, clamping the result at zero.
	AddInt(ctx context.Context, id, field string, delta int) (*T, error)
	Delete(ctx context.Context, id string) (bool, error)
}
