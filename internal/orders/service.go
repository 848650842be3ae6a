// Package orders validates, prices and stores print and e-commerce orders, and
// owns the admin status workflow over them.
package orders

import (
	"context"
	"crypto/rand"
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
	"github.com/joao-fontenele/printstore/internal/blobstore"
	"github.com/joao-fontenele/printstore/internal/docstore"
	"github.com/joao-fontenele/printstore/internal/domain"
	"github.com/joao-fontenele/printstore/internal/messaging"
	"github.com/joao-fontenele/printstore/internal/pricing"
	"github.com/joao-fontenele/printstore/internal/validation"
)

var (
	tracer = otel.Tracer("orders")
	meter  = otel.Meter("orders")

	ordersSubmitted, _ = meter.Int64Counter("orders_submitted_total",
		metric.WithDescription("Orders persisted, by kind and payment method"))
	statusUpdates, _ = meter.Int64Counter("order_status_updates_total",
		metric.WithDescription("Admin status changes, by kind and status"))
)

var (
	ErrOrderNotFound = fmt.Errorf("order %w", apperr.ErrNotFound)
	ErrInvalidStatus = errors.New("invalid order status")
	ErrBelowMinimum  = errors.New("order total is below the minimum payable amount")
)

// paidOrderSpace namespaces the ids of orders backed by a gateway payment.
var paidOrderSpace = uuid.MustParse("6f1c2a3e-5b7d-4e8f-9a0b-1c2d3e4f5a6b")

// PaidOrderID is the id reserved for the order paid through gatewayOrderID.
// The store rejects a second insert under it, so one payment backs at most
// one order.
func PaidOrderID(gatewayOrderID string) string {
	return uuid.NewSHA1(paidOrderSpace, []byte(gatewayOrderID)).String()
}

func newOrderID(proof *domain.PaymentProof) string {
	if proof != nil {
		return PaidOrderID(proof.GatewayOrderID)
	}
	return uuid.New().String()
}

const pickupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Publisher emits domain events. Publishing is best-effort.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type Config struct {
	Pricing        pricing.Table
	Currency       string
	MinOrderAmount decimal.Decimal
}

type Service struct {
	prints    docstore.Collection[domain.PrintOrder]
	ecommerce docstore.Collection[domain.EcommerceOrder]
	products  docstore.Collection[domain.Product]
	files     blobstore.Store
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the order collections. publisher may be nil when no
// broker is configured.
func NewService(
	prints docstore.Collection[domain.PrintOrder],
	ecommerce docstore.Collection[domain.EcommerceOrder],
	products docstore.Collection[domain.Product],
	files blobstore.Store,
	publisher Publisher,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		prints:    prints,
		ecommerce: ecommerce,
		products:  products,
		files:     files,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Currency() string { return s.cfg.Currency }

func (s *Service) MinimumAmount() decimal.Decimal { return s.cfg.MinOrderAmount }

// Quote validates req and computes its authoritative total without storing
// anything.
func (s *Service) Quote(ctx context.Context, req OrderRequest) (*Quote, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	quote := &Quote{
		Kind:          req.Kind,
		Currency:      s.cfg.Currency,
		MinimumAmount: s.cfg.MinOrderAmount,
	}

	switch req.Kind {
	case domain.OrderKindPrint:
		total, err := s.cfg.Pricing.PrintCost(req.Print.Settings, req.Print.DeliveryMethod)
		if err != nil {
			return nil, apperr.NewValidation("print.settings", err.Error())
		}
		quote.Total = total
	case domain.OrderKindEcommerce:
		items, err := s.snapshotItems(ctx, req.Ecommerce.Items)
		if err != nil {
			return nil, err
		}
		quote.Items = items
		quote.Total = pricing.CartTotal(items)
	}

	return quote, nil
}

// CheckMinimum rejects totals below the smallest amount the gateway accepts.
func (s *Service) CheckMinimum(total decimal.Decimal) error {
	if total.LessThan(s.cfg.MinOrderAmount) {
		return &apperr.ValidationError{
			Issues: []apperr.Issue{{
				Field:   "total",
				Message: fmt.Sprintf("must be at least %s %s", s.cfg.MinOrderAmount.StringFixed(2), s.cfg.Currency),
			}},
			Cause: ErrBelowMinimum,
		}
	}
	return nil
}

// Prepare quotes req and applies the payable-amount checks: the minimum
// floor and, when the client sent one, its expected total.
func (s *Service) Prepare(ctx context.Context, req OrderRequest) (*Quote, error) {
	quote, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.CheckMinimum(quote.Total); err != nil {
		return nil, err
	}
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(quote.Total) {
		return nil, apperr.NewValidation("expectedTotal",
			fmt.Sprintf("does not match the order total of %s %s", quote.Total.StringFixed(2), quote.Currency))
	}
	return quote, nil
}

// Submit validates, prices and stores one order. For razorpay orders proof
// must be a verified payment; cod orders carry none.
func (s *Service) Submit(ctx context.Context, req OrderRequest, proof *domain.PaymentProof) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "orders.Submit", trace.WithAttributes(
		attribute.String("order.kind", string(req.Kind)),
		attribute.String("order.payment_method", string(req.PaymentMethod)),
	))
	defer span.End()

	receipt, err := s.submit(ctx, req, proof)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", receipt.OrderID))
	ordersSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(receipt.Kind)),
		attribute.String("payment_method", string(receipt.PaymentMethod)),
	))
	return receipt, nil
}

func (s *Service) submit(ctx context.Context, req OrderRequest, proof *domain.PaymentProof) (*Receipt, error) {
	if err := checkProof(req.PaymentMethod, proof); err != nil {
		return nil, err
	}

	quote, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	var receipt *Receipt
	switch req.Kind {
	case domain.OrderKindPrint:
		receipt, err = s.submitPrint(ctx, req, quote, proof)
	default:
		receipt, err = s.submitEcommerce(ctx, req, quote, proof)
	}
	if err != nil {
		return nil, err
	}

	s.publishPlaced(ctx, req, quote, receipt)
	s.logger.Info("order submitted",
		"order_id", receipt.OrderID,
		"kind", receipt.Kind,
		"total", receipt.Total.StringFixed(2),
		"payment_method", receipt.PaymentMethod,
	)
	return receipt, nil
}

func (s *Service) submitPrint(ctx context.Context, req OrderRequest, quote *Quote, proof *domain.PaymentProof) (*Receipt, error) {
	p := req.Print
	now := s.now()

	order := &domain.PrintOrder{
		ID:             newOrderID(proof),
		UserID:         req.UserID,
		Customer:       p.Customer,
		Settings:       p.Settings,
		DeliveryMethod: p.DeliveryMethod,
		TotalCost:      quote.Total,
		Currency:       quote.Currency,
		PaymentMethod:  req.PaymentMethod,
		Payment:        proof,
		Status:         domain.OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch p.DeliveryMethod {
	case domain.DeliveryMethodHomeDelivery:
		order.DeliveryAddress = p.DeliveryAddress
	case domain.DeliveryMethodPickup:
		code, err := newPickupCode()
		if err != nil {
			return nil, fmt.Errorf("generate pickup code: %w", err)
		}
		order.PickupCenter = p.PickupCenter
		order.PickupCode = code
	}

	// The file must be stored before the document that points at it.
	if p.File != nil {
		path := "print-orders/" + order.ID + "/" + blobstore.SanitizeName(p.File.Name)
		uploaded, err := blobstore.UploadDataURI(ctx, s.files, path, p.File.DataURI)
		if err != nil {
			if errors.Is(err, blobstore.ErrInvalidDataURI) {
				return nil, apperr.NewValidation("print.file.dataUri", err.Error())
			}
			s.logger.Error("failed to upload print file", "error", err, "order_id", order.ID)
			return nil, &apperr.UpstreamError{Service: "object store", Err: err}
		}
		order.File = &domain.FileRef{
			Name:        p.File.Name,
			Path:        uploaded.Path,
			URL:         uploaded.URL,
			ContentType: uploaded.ContentType,
			Size:        uploaded.Size,
		}
	}

	if err := s.prints.Insert(ctx, order.ID, order); err != nil {
		s.logger.Error("failed to save print order", "error", err, "order_id", order.ID)
		return nil, &apperr.PersistenceError{Err: err}
	}

	return printReceipt(order), nil
}

func (s *Service) submitEcommerce(ctx context.Context, req OrderRequest, quote *Quote, proof *domain.PaymentProof) (*Receipt, error) {
	e := req.Ecommerce
	now := s.now()

	order := &domain.EcommerceOrder{
		ID:              newOrderID(proof),
		UserID:          req.UserID,
		Customer:        e.Customer,
		ShippingAddress: e.ShippingAddress,
		Items:           quote.Items,
		TotalAmount:     quote.Total,
		Currency:        quote.Currency,
		PaymentMethod:   req.PaymentMethod,
		Payment:         proof,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.ecommerce.Insert(ctx, order.ID, order); err != nil {
		s.logger.Error("failed to save ecommerce order", "error", err, "order_id", order.ID)
		return nil, &apperr.PersistenceError{Err: err}
	}

	return ecommerceReceipt(order), nil
}

// FindPaid returns the receipt of the order already stored for
// gatewayOrderID, or nil when the payment has not been used yet.
func (s *Service) FindPaid(ctx context.Context, gatewayOrderID string) (*Receipt, error) {
	id := PaidOrderID(gatewayOrderID)

	printOrder, err := s.prints.Get(ctx, id)
	if err != nil {
		return nil, &apperr.PersistenceError{Err: err}
	}
	if printOrder != nil {
		return printReceipt(printOrder), nil
	}

	shopOrder, err := s.ecommerce.Get(ctx, id)
	if err != nil {
		return nil, &apperr.PersistenceError{Err: err}
	}
	if shopOrder != nil {
		return ecommerceReceipt(shopOrder), nil
	}
	return nil, nil
}

func printReceipt(order *domain.PrintOrder) *Receipt {
	return &Receipt{
		OrderID:       order.ID,
		Kind:          domain.OrderKindPrint,
		Total:         order.TotalCost,
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		Status:        order.Status,
		PickupCode:    order.PickupCode,
	}
}

func ecommerceReceipt(order *domain.EcommerceOrder) *Receipt {
	return &Receipt{
		OrderID:       order.ID,
		Kind:          domain.OrderKindEcommerce,
		Total:         order.TotalAmount,
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		Status:        order.Status,
	}
}

func (s *Service) publishPlaced(ctx context.Context, req OrderRequest, quote *Quote, receipt *Receipt) {
	if s.publisher == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:       receipt.OrderID,
		Kind:          receipt.Kind,
		UserID:        req.UserID,
		Total:         receipt.Total,
		Currency:      receipt.Currency,
		PaymentMethod: receipt.PaymentMethod,
		Timestamp:     s.now(),
	}
	for _, item := range quote.Items {
		event.Items = append(event.Items, domain.PlacedItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	if err := s.publisher.Publish(ctx, messaging.TopicOrderPlaced, receipt.OrderID, event); err != nil {
		s.logger.Error("failed to publish order placed event", "error", err, "order_id", receipt.OrderID)
	}
}

func (s *Service) validate(req OrderRequest) error {
	issues := validation.Check(req)

	if req.Kind == domain.OrderKindPrint && req.Print != nil && req.Print.File != nil && req.Print.File.DataURI != "" {
		if _, _, err := blobstore.ParseDataURI(req.Print.File.DataURI); err != nil {
			issues = append(issues, apperr.Issue{Field: "print.file.dataUri", Message: err.Error()})
		}
	}

	if len(issues) > 0 {
		return &apperr.ValidationError{Issues: issues}
	}
	return nil
}

// snapshotItems copies name, price and cover image from the live catalog.
// Repeated products are merged into one line.
func (s *Service) snapshotItems(ctx context.Context, cart []CartItem) ([]domain.LineItem, error) {
	var (
		items  []domain.LineItem
		index  = make(map[string]int, len(cart))
		verr   apperr.ValidationError
		cached = make(map[string]*domain.Product, len(cart))
	)

	for i, ci := range cart {
		field := fmt.Sprintf("ecommerce.items[%d]", i)

		product, ok := cached[ci.ProductID]
		if !ok {
			p, err := s.products.Get(ctx, ci.ProductID)
			if err != nil {
				return nil, &apperr.PersistenceError{Err: fmt.Errorf("load product %s: %w", ci.ProductID, err)}
			}
			cached[ci.ProductID] = p
			product = p
		}

		switch {
		case product == nil:
			verr.Add(field+".productId", "product not found")
			continue
		case product.Status != domain.ProductStatusActive:
			verr.Add(field+".productId", "product is not available")
			continue
		}

		if j, seen := index[ci.ProductID]; seen {
			items[j].Quantity += ci.Quantity
		} else {
			index[ci.ProductID] = len(items)
			items = append(items, domain.LineItem{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  ci.Quantity,
				Image:     product.CoverImage(),
			})
		}

		if items[index[ci.ProductID]].Quantity > product.Stock {
			verr.Add(field+".quantity", fmt.Sprintf("only %d left in stock", product.Stock))
		}
	}

	if len(verr.Issues) > 0 {
		return nil, &verr
	}
	return items, nil
}

func checkProof(method domain.PaymentMethod, proof *domain.PaymentProof) error {
	switch method {
	case domain.PaymentMethodRazorpay:
		if proof == nil {
			return apperr.NewValidation("payment", "is required for razorpay orders")
		}
		if issues := validation.Check(proof); len(issues) > 0 {
			for i := range issues {
				issues[i].Field = "payment." + issues[i].Field
			}
			return &apperr.ValidationError{Issues: issues}
		}
	case domain.PaymentMethodCOD:
		if proof != nil {
			return apperr.NewValidation("payment", "must be empty for cash on delivery orders")
		}
	}
	return nil
}

func newPickupCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// 256 is a multiple of the alphabet size, so every symbol is equally likely.
	for i, b := range buf {
		buf[i] = pickupAlphabet[int(b)%len(pickupAlphabet)]
	}
	return string(buf), nil
}
