package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/printstore/internal/domain"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Issues  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"issues"`
}

func newTestMux(f *fixture) *http.ServeMux {
	h := NewHandler(f.svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /print-orders/{id}", h.HandleGetPrintOrder)
	mux.HandleFunc("GET /orders/{id}", h.HandleGetEcommerceOrder)
	mux.HandleFunc("GET /print-orders", h.HandleListPrintOrders)
	mux.HandleFunc("PATCH /print-orders/{id}/status", h.HandleUpdatePrintStatus)
	mux.HandleFunc("PATCH /orders/{id}/status", h.HandleUpdateEcommerceStatus)
	mux.HandleFunc("GET /stats", h.HandleStats)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, env
}

func TestHandler_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)

	receipt, err := f.svc.Submit(context.Background(), printRequest(domain.PaymentMethodCOD), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	t.Run("returns the updated order", func(t *testing.T) {
		rec, env := do(t, mux, http.MethodPatch, "/print-orders/"+receipt.OrderID+"/status", `{"status":"processing"}`)
		if rec.Code != http.StatusOK || !env.Success {
			t.Fatalf("expected 200 success, got %d %+v", rec.Code, env)
		}

		var order domain.PrintOrder
		if err := json.Unmarshal(env.Data, &order); err != nil {
			t.Fatalf("decode order: %v", err)
		}
		if order.Status != domain.OrderStatusProcessing {
			t.Errorf("expected processing, got %s", order.Status)
		}
	})

	t.Run("rejects unknown status with 400", func(t *testing.T) {
		rec, env := do(t, mux, http.MethodPatch, "/print-orders/"+receipt.OrderID+"/status", `{"status":"teleported"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if env.Success || len(env.Issues) != 1 || env.Issues[0].Field != "status" {
			t.Errorf("unexpected envelope %+v", env)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec, _ := do(t, mux, http.MethodPatch, "/print-orders/"+receipt.OrderID+"/status", `{`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 404 for unknown ecommerce order", func(t *testing.T) {
		rec, env := do(t, mux, http.MethodPatch, "/orders/missing/status", `{"status":"shipped"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		if env.Error != "order not found" {
			t.Errorf("expected 'order not found', got %q", env.Error)
		}
	})
}

func TestHandler_Reads(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)

	receipt, err := f.svc.Submit(context.Background(), printRequest(domain.PaymentMethodCOD), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	t.Run("gets a print order", func(t *testing.T) {
		rec, env := do(t, mux, http.MethodGet, "/print-orders/"+receipt.OrderID, "")
		if rec.Code != http.StatusOK || !env.Success {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("unknown print order", func(t *testing.T) {
		rec, _ := do(t, mux, http.MethodGet, "/print-orders/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("lists with status filter", func(t *testing.T) {
		_, env := do(t, mux, http.MethodGet, "/print-orders?status=pending", "")
		var orders []domain.PrintOrder
		if err := json.Unmarshal(env.Data, &orders); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(orders) != 1 {
			t.Errorf("expected 1 pending order, got %d", len(orders))
		}

		_, env = do(t, mux, http.MethodGet, "/print-orders?status=shipped", "")
		if err := json.Unmarshal(env.Data, &orders); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(orders) != 0 {
			t.Errorf("expected no shipped orders, got %d", len(orders))
		}
	})

	t.Run("stats", func(t *testing.T) {
		rec, env := do(t, mux, http.MethodGet, "/stats", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var stats Stats
		if err := json.Unmarshal(env.Data, &stats); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if stats.Print.Total != 1 {
			t.Errorf("expected 1 print order, got %d", stats.Print.Total)
		}
	})
}
