// Package checkout runs the server side of the payment flow: authoritative
// quoting, gateway order creation, payment confirmation and the recording of
// payments that could not be turned into orders.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/printstore/internal/apperr"
	"github.com/joao-fontenele/printstore/internal/docstore"
	"github.com/joao-fontenele/printstore/internal/domain"
	"github.com/joao-fontenele/printstore/internal/messaging"
	"github.com/joao-fontenele/printstore/internal/orders"
	"github.com/joao-fontenele/printstore/internal/payment"
	"github.com/joao-fontenele/printstore/internal/pricing"
	"github.com/joao-fontenele/printstore/internal/validation"
)

var (
	tracer = otel.Tracer("checkout")
	meter  = otel.Meter("checkout")

	paymentSessions, _ = meter.Int64Counter("payment_sessions_created_total",
		metric.WithDescription("Gateway orders created for checkout"))
	paymentFailures, _ = meter.Int64Counter("payment_failures_total",
		metric.WithDescription("Gateway failure callbacks reported by clients"))
	orphanedPayments, _ = meter.Int64Counter("orphaned_payments_total",
		metric.WithDescription("Verified payments for which no order could be stored"))
)

var (
	ErrInvalidSignature = errors.New("payment signature is invalid")
	ErrOrphanNotFound   = fmt.Errorf("orphaned payment %w", apperr.ErrNotFound)
)

// Gateway is the part of the payment client checkout depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (*payment.Order, error)
	FetchOrder(ctx context.Context, id string) (*payment.Order, error)
	VerifySignature(proof domain.PaymentProof) bool
	PublicKey() string
}

// PaymentSession is what the client needs to open the hosted payment UI.
type PaymentSession struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PublicKey      string `json:"publicKey"`
}

// StartResult holds a payment session for gateway orders, or the stored
// order for cash on delivery.
type StartResult struct {
	Quote   *orders.Quote   `json:"quote"`
	Payment *PaymentSession `json:"payment,omitempty"`
	Order   *orders.Receipt `json:"order,omitempty"`
}

type ConfirmRequest struct {
	Order   orders.OrderRequest `json:"order"`
	Payment domain.PaymentProof `json:"payment"`
}

// PaymentFailure mirrors the error object the hosted payment UI hands the
// client when a payment fails.
type PaymentFailure struct {
	Code           string `json:"code"`
	Description    string `json:"description"`
	Source         string `json:"source"`
	Step           string `json:"step"`
	Reason         string `json:"reason"`
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
}

type Service struct {
	orders    *orders.Service
	gateway   Gateway
	orphans   docstore.Collection[domain.OrphanedPayment]
	publisher orders.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	orderSvc *orders.Service,
	gateway Gateway,
	orphans docstore.Collection[domain.OrphanedPayment],
	publisher orders.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		orders:    orderSvc,
		gateway:   gateway,
		orphans:   orphans,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Quote(ctx context.Context, req orders.OrderRequest) (*orders.Quote, error) {
	return s.orders.Quote(ctx, req)
}

// Start prices req on the server and opens a payment. Cash on delivery
// orders are stored right away.
func (s *Service) Start(ctx context.Context, req orders.OrderRequest) (*StartResult, error) {
	ctx, span := tracer.Start(ctx, "checkout.Start", trace.WithAttributes(
		attribute.String("order.kind", string(req.Kind)),
		attribute.String("order.payment_method", string(req.PaymentMethod)),
	))
	defer span.End()

	quote, err := s.orders.Prepare(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result := &StartResult{Quote: quote}

	if req.PaymentMethod == domain.PaymentMethodCOD {
		receipt, err := s.orders.Submit(ctx, req, nil)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		result.Order = receipt
		return result, nil
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, quote.Total, quote.Currency)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("failed to create payment order", "error", err, "amount", quote.Total.StringFixed(2))
		return nil, &apperr.UpstreamError{Service: "payment gateway", Err: err}
	}

	paymentSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(req.Kind))))
	span.SetAttributes(attribute.String("payment.gateway_order_id", gwOrder.ID))
	s.logger.Info("payment session created",
		"gateway_order_id", gwOrder.ID,
		"amount", gwOrder.Amount,
		"currency", gwOrder.Currency,
		"kind", req.Kind,
	)

	result.Payment = &PaymentSession{
		GatewayOrderID: gwOrder.ID,
		Amount:         gwOrder.Amount,
		Currency:       gwOrder.Currency,
		Receipt:        gwOrder.Receipt,
		PublicKey:      s.gateway.PublicKey(),
	}
	return result, nil
}

// Confirm stores the order for a payment the gateway reports as successful.
// Once the signature checks out the customer has paid, so every later
// failure is recorded as an orphaned payment and surfaced as a
// ReconciliationError.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*orders.Receipt, error) {
	ctx, span := tracer.Start(ctx, "checkout.Confirm", trace.WithAttributes(
		attribute.String("order.kind", string(req.Order.Kind)),
		attribute.String("payment.gateway_order_id", req.Payment.GatewayOrderID),
	))
	defer span.End()

	if req.Order.PaymentMethod != domain.PaymentMethodRazorpay {
		return nil, apperr.NewValidation("order.paymentMethod", "only gateway payments can be confirmed")
	}
	if issues := validation.Check(req.Payment); len(issues) > 0 {
		for i := range issues {
			issues[i].Field = "payment." + issues[i].Field
		}
		return nil, &apperr.ValidationError{Issues: issues}
	}
	if !s.gateway.VerifySignature(req.Payment) {
		s.logger.Warn("payment signature rejected",
			"payment_id", req.Payment.PaymentID,
			"gateway_order_id", req.Payment.GatewayOrderID,
		)
		span.SetStatus(codes.Error, ErrInvalidSignature.Error())
		return nil, &apperr.ValidationError{
			Issues: []apperr.Issue{{Field: "payment.signature", Message: ErrInvalidSignature.Error()}},
			Cause:  ErrInvalidSignature,
		}
	}

	receipt, amount, err := s.confirm(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.orphan(ctx, req, amount, err)
	}
	return receipt, nil
}

type paidAmount struct {
	value    decimal.Decimal
	currency string
}

func (s *Service) confirm(ctx context.Context, req ConfirmRequest) (*orders.Receipt, paidAmount, error) {
	var paid paidAmount

	// A proof that already backs an order is answered with that order.
	existing, err := s.orders.FindPaid(ctx, req.Payment.GatewayOrderID)
	if err != nil {
		return nil, paid, err
	}
	if existing != nil {
		s.logger.Info("payment already confirmed",
			"order_id", existing.OrderID,
			"payment_id", req.Payment.PaymentID,
			"gateway_order_id", req.Payment.GatewayOrderID,
		)
		return existing, paid, nil
	}

	gwOrder, err := s.gateway.FetchOrder(ctx, req.Payment.GatewayOrderID)
	if err != nil {
		return nil, paid, &apperr.UpstreamError{Service: "payment gateway", Err: err}
	}
	paid = paidAmount{value: decimal.New(gwOrder.AmountPaid, -2), currency: gwOrder.Currency}

	quote, err := s.orders.Prepare(ctx, req.Order)
	if err != nil {
		return nil, paid, err
	}

	expected := pricing.MinorUnits(quote.Total)
	if gwOrder.AmountPaid != expected || gwOrder.Currency != quote.Currency {
		return nil, paid, fmt.Errorf("paid %d %s but order totals %d %s",
			gwOrder.AmountPaid, gwOrder.Currency, expected, quote.Currency)
	}

	proof := req.Payment
	receipt, err := s.orders.Submit(ctx, req.Order, &proof)
	if err != nil {
		// A concurrent confirmation of the same payment won the insert.
		if existing, findErr := s.orders.FindPaid(ctx, req.Payment.GatewayOrderID); findErr == nil && existing != nil {
			return existing, paid, nil
		}
		return nil, paid, err
	}
	return receipt, paid, nil
}

func (s *Service) orphan(ctx context.Context, req ConfirmRequest, paid paidAmount, cause error) error {
	// Stored for support; file contents are dropped.
	snapshot := req.Order
	if snapshot.Print != nil && snapshot.Print.File != nil {
		p := *snapshot.Print
		file := *p.File
		file.DataURI = ""
		p.File = &file
		snapshot.Print = &p
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		raw = nil
	}

	now := s.now()
	record := &domain.OrphanedPayment{
		ID:        uuid.New().String(),
		Proof:     req.Payment,
		Amount:    paid.value,
		Currency:  paid.currency,
		OrderKind: req.Order.Kind,
		Request:   raw,
		Reason:    cause.Error(),
		CreatedAt: now,
	}

	orphanedPayments.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(req.Order.Kind))))

	reference := record.ID
	if err := s.orphans.Insert(ctx, record.ID, record); err != nil {
		// Nothing else holds this payment now but the log line.
		reference = req.Payment.PaymentID
		s.logger.Error("failed to record orphaned payment",
			"error", err,
			"cause", cause,
			"payment_id", req.Payment.PaymentID,
			"gateway_order_id", req.Payment.GatewayOrderID,
			"amount", paid.value.StringFixed(2),
			"request", string(raw),
		)
	} else {
		s.logger.Error("payment captured without order",
			"error", cause,
			"orphan_id", record.ID,
			"payment_id", req.Payment.PaymentID,
			"gateway_order_id", req.Payment.GatewayOrderID,
		)
	}

	if s.publisher != nil {
		event := domain.PaymentOrphanedEvent{
			OrphanID:       reference,
			PaymentID:      req.Payment.PaymentID,
			GatewayOrderID: req.Payment.GatewayOrderID,
			Amount:         paid.value,
			Currency:       paid.currency,
			Reason:         record.Reason,
			Timestamp:      now,
		}
		if err := s.publisher.Publish(ctx, messaging.TopicPaymentOrphaned, req.Payment.PaymentID, event); err != nil {
			s.logger.Error("failed to publish payment orphaned event", "error", err, "orphan_id", reference)
		}
	}

	return &apperr.ReconciliationError{
		Reference: reference,
		PaymentID: req.Payment.PaymentID,
		Err:       cause,
	}
}

// ReportFailure records a failed payment attempt and returns the message to
// show the customer. Nothing is stored.
func (s *Service) ReportFailure(ctx context.Context, f PaymentFailure) string {
	paymentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", f.Reason)))
	s.logger.Warn("payment failed",
		"code", f.Code,
		"description", f.Description,
		"source", f.Source,
		"step", f.Step,
		"reason", f.Reason,
		"gateway_order_id", f.GatewayOrderID,
		"payment_id", f.PaymentID,
	)

	if f.Description != "" {
		return f.Description
	}
	return "Payment failed. Please try again."
}

// ListOrphans returns orphaned payments newest first. Resolved ones are
// included only when asked for.
func (s *Service) ListOrphans(ctx context.Context, includeResolved bool) ([]domain.OrphanedPayment, error) {
	var (
		records []domain.OrphanedPayment
		err     error
	)
	if includeResolved {
		records, err = s.orphans.List(ctx)
	} else {
		records, err = s.orphans.Find(ctx, "resolved", "false")
	}
	if err != nil {
		return nil, fmt.Errorf("list orphaned payments: %w", err)
	}
	return records, nil
}

func (s *Service) ResolveOrphan(ctx context.Context, id string) (*domain.OrphanedPayment, error) {
	record, err := s.orphans.Update(ctx, id, map[string]any{
		"resolved":   true,
		"resolvedAt": s.now(),
	})
	if err != nil {
		return nil, &apperr.PersistenceError{Err: err}
	}
	if record == nil {
		return nil, ErrOrphanNotFound
	}

	s.logger.Info("orphaned payment resolved", "orphan_id", id, "payment_id", record.Proof.PaymentID)
	return record, nil
}
