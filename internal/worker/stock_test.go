package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/domain"
)

// fakeAdmin mirrors the admin stock endpoints, including per-reference
// markers.
type fakeAdmin struct {
	mu      sync.Mutex
	stock   map[string]int
	applied map[string]int
	failFor string
	calls   []string
}

func (a *fakeAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer service-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if a.applied == nil {
		a.applied = map[string]int{}
	}

	id, reference, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/products/"), "/stock")
	reference = strings.TrimPrefix(reference, "/")
	a.calls = append(a.calls, r.Method+" "+id)

	current, ok := a.stock[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method == http.MethodDelete {
		if delta, ok := a.applied[reference+"/"+id]; ok {
			delete(a.applied, reference+"/"+id)
			a.stock[id] = max(current-delta, 0)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	var body struct {
		Delta     int    `json:"delta"`
		Reference string `json:"reference"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if id == a.failFor && body.Delta < 0 {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if body.Reference != "" {
		if _, done := a.applied[body.Reference+"/"+id]; done {
			w.WriteHeader(http.StatusOK)
			return
		}
		a.applied[body.Reference+"/"+id] = body.Delta
	}
	a.stock[id] = max(current+body.Delta, 0)
	w.WriteHeader(http.StatusOK)
}

func newStockHandler(t *testing.T, admin *fakeAdmin) *StockHandler {
	t.Helper()
	server := httptest.NewServer(admin)
	t.Cleanup(server.Close)

	tokens := func() (string, error) { return "service-token", nil }
	return NewStockHandler(server.URL, tokens, server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func placed(t *testing.T, kind domain.OrderKind, items ...domain.PlacedItem) []byte {
	t.Helper()
	data, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID:   "order-1",
		Kind:      kind,
		Items:     items,
		Total:     decimal.NewFromInt(100),
		Currency:  "INR",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestStockHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements every line", func(t *testing.T) {
		admin := &fakeAdmin{stock: map[string]int{"mug": 5, "tote": 2}}
		h := newStockHandler(t, admin)

		err := h.Handle(ctx, placed(t, domain.OrderKindEcommerce,
			domain.PlacedItem{ProductID: "mug", Quantity: 2},
			domain.PlacedItem{ProductID: "tote", Quantity: 1},
		))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if admin.stock["mug"] != 3 || admin.stock["tote"] != 1 {
			t.Errorf("unexpected stock %v", admin.stock)
		}
	})

	t.Run("restores applied lines when one fails", func(t *testing.T) {
		admin := &fakeAdmin{stock: map[string]int{"mug": 5, "tote": 2}, failFor: "tote"}
		h := newStockHandler(t, admin)

		err := h.Handle(ctx, placed(t, domain.OrderKindEcommerce,
			domain.PlacedItem{ProductID: "mug", Quantity: 2},
			domain.PlacedItem{ProductID: "tote", Quantity: 1},
		))
		if err == nil {
			t.Fatal("expected error so the event is redelivered")
		}
		if admin.stock["mug"] != 5 {
			t.Errorf("expected mug stock restored to 5, got %d", admin.stock["mug"])
		}
	})

	t.Run("redelivered event takes stock once", func(t *testing.T) {
		admin := &fakeAdmin{stock: map[string]int{"mug": 5, "tote": 2}}
		h := newStockHandler(t, admin)
		event := placed(t, domain.OrderKindEcommerce,
			domain.PlacedItem{ProductID: "mug", Quantity: 2},
			domain.PlacedItem{ProductID: "tote", Quantity: 1},
		)

		for i := 0; i < 3; i++ {
			if err := h.Handle(ctx, event); err != nil {
				t.Fatalf("delivery %d: unexpected error: %v", i, err)
			}
		}
		if admin.stock["mug"] != 3 || admin.stock["tote"] != 1 {
			t.Errorf("expected mug 3 and tote 1, got %v", admin.stock)
		}
	})

	t.Run("retry after a failed line applies every line once", func(t *testing.T) {
		admin := &fakeAdmin{stock: map[string]int{"mug": 5, "tote": 2}, failFor: "tote"}
		h := newStockHandler(t, admin)
		event := placed(t, domain.OrderKindEcommerce,
			domain.PlacedItem{ProductID: "mug", Quantity: 2},
			domain.PlacedItem{ProductID: "tote", Quantity: 1},
		)

		if err := h.Handle(ctx, event); err == nil {
			t.Fatal("expected error so the event is redelivered")
		}

		admin.mu.Lock()
		admin.failFor = ""
		admin.mu.Unlock()

		if err := h.Handle(ctx, event); err != nil {
			t.Fatalf("unexpected error on retry: %v", err)
		}
		if admin.stock["mug"] != 3 || admin.stock["tote"] != 1 {
			t.Errorf("expected mug 3 and tote 1, got %v", admin.stock)
		}
	})

	t.Run("skips deleted products", func(t *testing.T) {
		admin := &fakeAdmin{stock: map[string]int{"mug": 5}}
		h := newStockHandler(t, admin)

		err := h.Handle(ctx, placed(t, domain.OrderKindEcommerce,
			domain.PlacedItem{ProductID: "gone", Quantity: 1},
			domain.PlacedItem{ProductID: "mug", Quantity: 1},
		))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if admin.stock["mug"] != 4 {
			t.Errorf("expected mug stock 4, got %d", admin.stock["mug"])
		}
	})

	t.Run("ignores print orders", func(t *testing.T) {
		admin := &fakeAdmin{stock: map[string]int{}}
		h := newStockHandler(t, admin)

		if err := h.Handle(ctx, placed(t, domain.OrderKindPrint)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(admin.calls) != 0 {
			t.Errorf("expected no admin calls, got %v", admin.calls)
		}
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		h := newStockHandler(t, &fakeAdmin{})
		if err := h.Handle(ctx, []byte("{")); err == nil {
			t.Error("expected unmarshal error")
		}
	})
}

func TestOrphanAlertHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	h := NewOrphanAlertHandler(slog.New(slog.NewJSONHandler(&buf, nil)))

	payload, _ := json.Marshal(domain.PaymentOrphanedEvent{
		OrphanID:       "orphan-1",
		PaymentID:      "pay_1",
		GatewayOrderID: "order_1",
		Amount:         decimal.RequireFromString("150.00"),
		Currency:       "INR",
		Reason:         "failed to save data: connection reset",
	})

	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["level"] != "ERROR" || line["orphan_id"] != "orphan-1" || line["amount"] != "150.00" {
		t.Errorf("unexpected log line %v", line)
	}

	if err := h.Handle(context.Background(), []byte("nope")); err == nil {
		t.Error("expected unmarshal error")
	}
}
