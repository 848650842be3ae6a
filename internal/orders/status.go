package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/printstore/internal/apperr"
	"github.com/joao-fontenele/printstore/internal/docstore"
	"github.com/joao-fontenele/printstore/internal/domain"
)

// UpdatePrintStatus sets the status of a print order and returns the stored
// document after the change.
func (s *Service) UpdatePrintStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.PrintOrder, error) {
	return updateStatus(ctx, s, s.prints, domain.OrderKindPrint, id, status)
}

func (s *Service) UpdateEcommerceStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.EcommerceOrder, error) {
	return updateStatus(ctx, s, s.ecommerce, domain.OrderKindEcommerce, id, status)
}

// updateStatus only checks enum membership; any listed status may follow any
// other. Only the current status is kept.
func updateStatus[T any](
	ctx context.Context,
	s *Service,
	coll docstore.Collection[T],
	kind domain.OrderKind,
	id string,
	status domain.OrderStatus,
) (*T, error) {
	ctx, span := tracer.Start(ctx, "orders.UpdateStatus", trace.WithAttributes(
		attribute.String("order.kind", string(kind)),
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	if !status.ValidFor(kind) {
		err := invalidStatus(kind, status)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc, err := coll.Update(ctx, id, map[string]any{
		"status":    status,
		"updatedAt": s.now(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("failed to update order status", "error", err, "order_id", id, "kind", kind)
		return nil, &apperr.PersistenceError{Err: err}
	}
	if doc == nil {
		return nil, ErrOrderNotFound
	}

	statusUpdates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("status", string(status)),
	))
	s.logger.Info("order status updated", "order_id", id, "kind", kind, "status", status)
	return doc, nil
}

func invalidStatus(kind domain.OrderKind, status domain.OrderStatus) error {
	allowed := make([]string, 0, len(domain.Statuses(kind)))
	for _, st := range domain.Statuses(kind) {
		allowed = append(allowed, string(st))
	}
	return &apperr.ValidationError{
		Issues: []apperr.Issue{{
			Field:   "status",
			Message: fmt.Sprintf("%q is not a %s order status; must be one of: %s", status, kind, strings.Join(allowed, ", ")),
		}},
		Cause: ErrInvalidStatus,
	}
}

func (s *Service) GetPrintOrder(ctx context.Context, id string) (*domain.PrintOrder, error) {
	return getOne(ctx, s.prints, id)
}

func (s *Service) GetEcommerceOrder(ctx context.Context, id string) (*domain.EcommerceOrder, error) {
	return getOne(ctx, s.ecommerce, id)
}

func getOne[T any](ctx context.Context, coll docstore.Collection[T], id string) (*T, error) {
	doc, err := coll.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if doc == nil {
		return nil, ErrOrderNotFound
	}
	return doc, nil
}

// ListPrintOrders returns print orders newest first, optionally narrowed to
// one status.
func (s *Service) ListPrintOrders(ctx context.Context, status domain.OrderStatus) ([]domain.PrintOrder, error) {
	return list(ctx, s.prints, status)
}

func (s *Service) ListEcommerceOrders(ctx context.Context, status domain.OrderStatus) ([]domain.EcommerceOrder, error) {
	return list(ctx, s.ecommerce, status)
}

func list[T any](ctx context.Context, coll docstore.Collection[T], status domain.OrderStatus) ([]T, error) {
	var (
		docs []T
		err  error
	)
	if status == "" {
		docs, err = coll.List(ctx)
	} else {
		docs, err = coll.Find(ctx, "status", string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return docs, nil
}

type KindStats struct {
	Total    int                        `json:"total"`
	ByStatus map[domain.OrderStatus]int `json:"byStatus"`
	Revenue  decimal.Decimal            `json:"revenue"`
}

type Stats struct {
	Print     KindStats `json:"print"`
	Ecommerce KindStats `json:"ecommerce"`
	Currency  string    `json:"currency"`
}

// Stats summarises both order collections for the admin dashboard. Revenue
// excludes cancelled orders.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	prints, err := s.prints.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list print orders: %w", err)
	}
	ecommerce, err := s.ecommerce.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ecommerce orders: %w", err)
	}

	stats := &Stats{
		Print:     newKindStats(),
		Ecommerce: newKindStats(),
		Currency:  s.cfg.Currency,
	}
	for _, o := range prints {
		stats.Print.add(o.Status, o.TotalCost)
	}
	for _, o := range ecommerce {
		stats.Ecommerce.add(o.Status, o.TotalAmount)
	}
	return stats, nil
}

func newKindStats() KindStats {
	return KindStats{ByStatus: make(map[domain.OrderStatus]int), Revenue: decimal.Zero}
}

func (k *KindStats) add(status domain.OrderStatus, amount decimal.Decimal) {
	k.Total++
	k.ByStatus[status]++
	if status != domain.OrderStatusCancelled {
		k.Revenue = k.Revenue.Add(amount)
	}
}
