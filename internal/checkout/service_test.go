package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/apperr"
	"github.com/joao-fontenele/printstore/internal/blobstore"
	"github.com/joao-fontenele/printstore/internal/docstore"
	"github.com/joao-fontenele/printstore/internal/domain"
	"github.com/joao-fontenele/printstore/internal/messaging"
	"github.com/joao-fontenele/printstore/internal/orders"
	"github.com/joao-fontenele/printstore/internal/payment"
	"github.com/joao-fontenele/printstore/internal/payment/paymenttest"
	"github.com/joao-fontenele/printstore/internal/pricing"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type failingInsert[T any] struct {
	docstore.Collection[T]
	err error
}

func (c failingInsert[T]) Insert(context.Context, string, *T) error {
	return c.err
}

type fixture struct {
	svc       *Service
	gateway   *paymenttest.Server
	prints    docstore.Collection[domain.PrintOrder]
	ecommerce *docstore.MemoryCollection[domain.EcommerceOrder]
	products  *docstore.MemoryCollection[domain.Product]
	orphans   *docstore.MemoryCollection[domain.OrphanedPayment]
	events    *recordingPublisher
}

type fixtureOptions struct {
	minAmount string
	prints    func(docstore.Collection[domain.PrintOrder]) docstore.Collection[domain.PrintOrder]
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	gw := paymenttest.NewServer("rzp_test_key", "test_secret")
	t.Cleanup(gw.Close)

	if opts.minAmount == "" {
		opts.minAmount = "1.00"
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var prints docstore.Collection[domain.PrintOrder] = docstore.NewMemoryCollection[domain.PrintOrder]()
	if opts.prints != nil {
		prints = opts.prints(prints)
	}

	events := &recordingPublisher{}
	ecommerce := docstore.NewMemoryCollection[domain.EcommerceOrder]()
	products := docstore.NewMemoryCollection[domain.Product]()
	orderSvc := orders.NewService(
		prints,
		ecommerce,
		products,
		blobstore.NewMemoryStore("http://localhost:8080"),
		events,
		orders.Config{
			Pricing:        pricing.DefaultTable(),
			Currency:       "INR",
			MinOrderAmount: decimal.RequireFromString(opts.minAmount),
		},
		logger,
	)

	orphans := docstore.NewMemoryCollection[domain.OrphanedPayment]()
	return &fixture{
		svc:       NewService(orderSvc, gw.PaymentClient(), orphans, events, logger),
		gateway:   gw,
		prints:    prints,
		ecommerce: ecommerce,
		products:  products,
		orphans:   orphans,
		events:    events,
	}
}

func (f *fixture) addProduct(t *testing.T, id, price string, stock int) {
	t.Helper()
	p := &domain.Product{
		ID:     id,
		Name:   "Product " + id,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Status: domain.ProductStatusActive,
	}
	if err := f.products.Insert(context.Background(), id, p); err != nil {
		t.Fatalf("insert product: %v", err)
	}
}

func cartRequest(method domain.PaymentMethod, items ...orders.CartItem) orders.OrderRequest {
	return orders.OrderRequest{
		Kind:          domain.OrderKindEcommerce,
		PaymentMethod: method,
		Ecommerce: &orders.EcommerceRequest{
			Customer: domain.Customer{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
			ShippingAddress: domain.Address{
				Line1:      "12 MG Road",
				City:       "Bengaluru",
				State:      "KA",
				PostalCode: "560001",
			},
			Items: items,
		},
	}
}

// printRequest prices at 2.00 per page: 75 pages is 150.00.
func printRequest(method domain.PaymentMethod, pages int) orders.OrderRequest {
	return orders.OrderRequest{
		Kind:          domain.OrderKindPrint,
		PaymentMethod: method,
		Print: &orders.PrintRequest{
			Customer: domain.Customer{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
			Settings: domain.PrintSettings{
				PageCount:   pages,
				Copies:      1,
				PaperSize:   "a4",
				ColorMode:   "bw",
				Sides:       "single",
				Orientation: "portrait",
			},
			DeliveryMethod: domain.DeliveryMethodPickup,
			PickupCenter:   "Indiranagar",
		},
	}
}

func TestService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a gateway order for the server quote", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		req := printRequest(domain.PaymentMethodRazorpay, 75)

		result, err := f.svc.Start(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Payment == nil {
			t.Fatal("expected a payment session")
		}
		if result.Payment.Amount != 15000 || result.Payment.Currency != "INR" {
			t.Errorf("expected 15000 INR, got %d %s", result.Payment.Amount, result.Payment.Currency)
		}
		if result.Payment.PublicKey != "rzp_test_key" {
			t.Errorf("expected public key, got %q", result.Payment.PublicKey)
		}
		if !strings.HasPrefix(result.Payment.Receipt, "rcpt_") {
			t.Errorf("unexpected receipt %q", result.Payment.Receipt)
		}
		if result.Order != nil {
			t.Error("expected no order before payment")
		}

		stored, _ := f.prints.List(ctx)
		if len(stored) != 0 {
			t.Errorf("expected nothing stored, got %d", len(stored))
		}
	})

	t.Run("below the floor never reaches the gateway", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{minAmount: "200.00"})

		_, err := f.svc.Start(ctx, printRequest(domain.PaymentMethodRazorpay, 75))
		if !errors.Is(err, orders.ErrBelowMinimum) {
			t.Fatalf("expected ErrBelowMinimum, got %v", err)
		}
		if f.gateway.CreateCount() != 0 {
			t.Errorf("expected no gateway calls, got %d", f.gateway.CreateCount())
		}
	})

	t.Run("cash on delivery stores the order without the gateway", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})

		result, err := f.svc.Start(ctx, printRequest(domain.PaymentMethodCOD, 75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Order == nil || result.Payment != nil {
			t.Fatalf("expected a stored order and no session, got %+v", result)
		}
		if f.gateway.CreateCount() != 0 {
			t.Errorf("expected no gateway calls, got %d", f.gateway.CreateCount())
		}
		stored, _ := f.prints.Get(ctx, result.Order.OrderID)
		if stored == nil || stored.Status != domain.OrderStatusPending || stored.Payment != nil {
			t.Errorf("unexpected stored order %+v", stored)
		}
	})

	t.Run("cash on delivery cart of two lines", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		f.addProduct(t, "poster", "10.00", 5)
		f.addProduct(t, "sticker", "7.50", 10)

		result, err := f.svc.Start(ctx, cartRequest(domain.PaymentMethodCOD,
			orders.CartItem{ProductID: "poster", Quantity: 1},
			orders.CartItem{ProductID: "sticker", Quantity: 2},
		))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.gateway.CreateCount() != 0 {
			t.Errorf("expected no gateway calls, got %d", f.gateway.CreateCount())
		}
		if result.Order == nil || result.Payment != nil {
			t.Fatalf("expected a stored order and no session, got %+v", result)
		}

		stored, _ := f.ecommerce.Get(ctx, result.Order.OrderID)
		if stored == nil {
			t.Fatal("expected the order to be stored")
		}
		if stored.Status != domain.OrderStatusPending {
			t.Errorf("expected status pending, got %s", stored.Status)
		}
		if !stored.TotalAmount.Equal(decimal.RequireFromString("25.00")) {
			t.Errorf("expected total 25.00, got %s", stored.TotalAmount)
		}
		if len(stored.Items) != 2 || stored.PaymentMethod != domain.PaymentMethodCOD || stored.Payment != nil {
			t.Errorf("unexpected stored order %+v", stored)
		}
	})

	t.Run("gateway errors pass through", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		f.gateway.FailNext(&payment.GatewayError{
			StatusCode:  http.StatusBadRequest,
			Code:        "BAD_REQUEST_ERROR",
			Description: "Currency is not supported",
		})

		_, err := f.svc.Start(ctx, printRequest(domain.PaymentMethodRazorpay, 75))
		var upstream *apperr.UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}
		if !strings.Contains(err.Error(), "Currency is not supported") {
			t.Errorf("expected gateway message, got %q", err.Error())
		}
	})
}

func TestService_Confirm(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T, f *fixture, req orders.OrderRequest) domain.PaymentProof {
		t.Helper()
		result, err := f.svc.Start(ctx, req)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		return f.gateway.Pay(result.Payment.GatewayOrderID)
	}

	t.Run("stores the order with its payment proof", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		req := printRequest(domain.PaymentMethodRazorpay, 75)
		proof := start(t, f, req)

		receipt, err := f.svc.Confirm(ctx, ConfirmRequest{Order: req, Payment: proof})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !receipt.Total.Equal(decimal.RequireFromString("150.00")) {
			t.Errorf("expected total 150.00, got %s", receipt.Total)
		}

		stored, _ := f.prints.Get(ctx, receipt.OrderID)
		if stored == nil || stored.Payment == nil || *stored.Payment != proof {
			t.Errorf("expected stored proof, got %+v", stored)
		}
		if orphans, _ := f.orphans.List(ctx); len(orphans) != 0 {
			t.Errorf("expected no orphans, got %d", len(orphans))
		}
		if f.events.count(messaging.TopicOrderPlaced) != 1 {
			t.Errorf("expected one order placed event")
		}
	})

	t.Run("replayed proof returns the first order", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		req := printRequest(domain.PaymentMethodRazorpay, 75)
		proof := start(t, f, req)

		first, err := f.svc.Confirm(ctx, ConfirmRequest{Order: req, Payment: proof})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i := 0; i < 2; i++ {
			again, err := f.svc.Confirm(ctx, ConfirmRequest{Order: req, Payment: proof})
			if err != nil {
				t.Fatalf("replay %d: unexpected error: %v", i, err)
			}
			if again.OrderID != first.OrderID {
				t.Errorf("replay %d: expected order %s, got %s", i, first.OrderID, again.OrderID)
			}
		}

		if stored, _ := f.prints.List(ctx); len(stored) != 1 {
			t.Errorf("expected 1 stored order, got %d", len(stored))
		}
		if orphans, _ := f.orphans.List(ctx); len(orphans) != 0 {
			t.Errorf("expected no orphans, got %d", len(orphans))
		}
		if f.events.count(messaging.TopicOrderPlaced) != 1 {
			t.Errorf("expected one order placed event, got %d", f.events.count(messaging.TopicOrderPlaced))
		}
	})

	t.Run("proof reused for a different order stores nothing new", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		f.addProduct(t, "poster", "75.00", 5)
		req := printRequest(domain.PaymentMethodRazorpay, 75)
		proof := start(t, f, req)

		first, err := f.svc.Confirm(ctx, ConfirmRequest{Order: req, Payment: proof})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cart := cartRequest(domain.PaymentMethodRazorpay, orders.CartItem{ProductID: "poster", Quantity: 2})
		again, err := f.svc.Confirm(ctx, ConfirmRequest{Order: cart, Payment: proof})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.OrderID != first.OrderID || again.Kind != domain.OrderKindPrint {
			t.Errorf("expected the print order %s, got %+v", first.OrderID, again)
		}
		if stored, _ := f.ecommerce.List(ctx); len(stored) != 0 {
			t.Errorf("expected no e-commerce orders, got %d", len(stored))
		}
		if orphans, _ := f.orphans.List(ctx); len(orphans) != 0 {
			t.Errorf("expected no orphans, got %d", len(orphans))
		}
	})

	t.Run("tampered signature records nothing", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		req := printRequest(domain.PaymentMethodRazorpay, 75)
		proof := start(t, f, req)
		proof.PaymentID = "pay_forged"

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Order: req, Payment: proof})
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
		if stored, _ := f.prints.List(ctx); len(stored) != 0 {
			t.Errorf("expected no orders, got %d", len(stored))
		}
		if orphans, _ := f.orphans.List(ctx); len(orphans) != 0 {
			t.Errorf("expected no orphans, got %d", len(orphans))
		}
	})

	t.Run("store failure after payment leaves one orphan record", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{
			prints: func(c docstore.Collection[domain.PrintOrder]) docstore.Collection[domain.PrintOrder] {
				return failingInsert[domain.PrintOrder]{Collection: c, err: errors.New("connection reset")}
			},
		})
		req := printRequest(domain.PaymentMethodRazorpay, 75)
		proof := start(t, f, req)

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Order: req, Payment: proof})
		var recon *apperr.ReconciliationError
		if !errors.As(err, &recon) {
			t.Fatalf("expected ReconciliationError, got %v", err)
		}

		orphans, _ := f.orphans.List(ctx)
		if len(orphans) != 1 {
			t.Fatalf("expected exactly one orphan, got %d", len(orphans))
		}
		o := orphans[0]
		if recon.Reference != o.ID || recon.PaymentID != proof.PaymentID {
			t.Errorf("expected reference %s for %s, got %+v", o.ID, proof.PaymentID, recon)
		}
		if o.Proof != proof || !o.Amount.Equal(decimal.RequireFromString("150.00")) || o.Currency != "INR" {
			t.Errorf("unexpected orphan %+v", o)
		}
		if !strings.Contains(o.Reason, "connection reset") || o.Resolved {
			t.Errorf("unexpected orphan reason/resolved: %q %v", o.Reason, o.Resolved)
		}

		var snapshot orders.OrderRequest
		if err := json.Unmarshal(o.Request, &snapshot); err != nil || snapshot.Print.Settings.PageCount != 75 {
			t.Errorf("expected the order request to be kept, got %v", err)
		}
		if f.events.count(messaging.TopicPaymentOrphaned) != 1 {
			t.Errorf("expected one payment orphaned event")
		}

		status, _ := apperr.Describe(err)
		if status != http.StatusConflict {
			t.Errorf("expected 409, got %d", status)
		}
	})

	t.Run("amount mismatch is an orphaned payment", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		proof := start(t, f, printRequest(domain.PaymentMethodRazorpay, 75))

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Order: printRequest(domain.PaymentMethodRazorpay, 100), Payment: proof})
		var recon *apperr.ReconciliationError
		if !errors.As(err, &recon) {
			t.Fatalf("expected ReconciliationError, got %v", err)
		}
		if stored, _ := f.prints.List(ctx); len(stored) != 0 {
			t.Errorf("expected no orders, got %d", len(stored))
		}
		orphans, _ := f.orphans.List(ctx)
		if len(orphans) != 1 || !strings.Contains(orphans[0].Reason, "15000") {
			t.Errorf("expected one orphan naming the paid amount, got %+v", orphans)
		}
	})

	t.Run("cash on delivery cannot be confirmed", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Order: printRequest(domain.PaymentMethodCOD, 75)})
		var verr *apperr.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})
}

func TestService_Orphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})

	for _, id := range []string{"o1", "o2"} {
		if err := f.orphans.Insert(ctx, id, &domain.OrphanedPayment{ID: id, Amount: decimal.NewFromInt(10)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	resolved, err := f.svc.ResolveOrphan(ctx, "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedAt == nil {
		t.Errorf("expected resolved record, got %+v", resolved)
	}

	open, _ := f.svc.ListOrphans(ctx, false)
	if len(open) != 1 || open[0].ID != "o2" {
		t.Errorf("expected only o2 open, got %+v", open)
	}
	all, _ := f.svc.ListOrphans(ctx, true)
	if len(all) != 2 {
		t.Errorf("expected 2 records, got %d", len(all))
	}

	if _, err := f.svc.ResolveOrphan(ctx, "missing"); !errors.Is(err, ErrOrphanNotFound) {
		t.Errorf("expected ErrOrphanNotFound, got %v", err)
	}
}

func TestService_ReportFailure(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	msg := f.svc.ReportFailure(context.Background(), PaymentFailure{
		Code:        "BAD_REQUEST_ERROR",
		Description: "Your payment has been cancelled. Try again or complete the payment later.",
		Reason:      "payment_cancelled",
	})
	if !strings.HasPrefix(msg, "Your payment has been cancelled") {
		t.Errorf("expected gateway description, got %q", msg)
	}

	if msg := f.svc.ReportFailure(context.Background(), PaymentFailure{}); msg != "Payment failed. Please try again." {
		t.Errorf("expected fallback message, got %q", msg)
	}
}
