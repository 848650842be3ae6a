package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServiceProxy_ForwardRequest(t *testing.T) {
	t.Run("rewrites path and keeps query", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orphaned-payments" {
				t.Errorf("expected /orphaned-payments, got %s", r.URL.Path)
			}
			if r.URL.RawQuery != "all=true" {
				t.Errorf("expected all=true, got %s", r.URL.RawQuery)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodGet, "/admin/orphaned-payments?all=true", nil)
		resp, err := proxy.ForwardRequest(context.Background(), req, "/orphaned-payments")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("forwards body and selected headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
			}
			if r.Header.Get("Authorization") != "Bearer token" {
				t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
			}
			if r.Header.Get("X-Internal") != "" {
				t.Errorf("expected X-Internal to be dropped")
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"delta":-2}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodPost, "/admin/products/p1/stock", strings.NewReader(`{"delta":-2}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer token")
		req.Header.Set("X-Internal", "1")
		resp, err := proxy.ForwardRequest(context.Background(), req, "/products/p1/stock")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("appends client address to X-Forwarded-For", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-Forwarded-For"); got != "203.0.113.7, 192.0.2.1" {
				t.Errorf("expected X-Forwarded-For %q, got %q", "203.0.113.7, 192.0.2.1", got)
			}
			if got := r.Header.Get("X-Forwarded-Host"); got != "shop.example.com" {
				t.Errorf("expected X-Forwarded-Host shop.example.com, got %q", got)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL+"/", server.Client())
		req := httptest.NewRequest(http.MethodGet, "http://shop.example.com/products", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		resp, err := proxy.ForwardRequest(context.Background(), req, "/products")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		_, err := proxy.ForwardRequest(ctx, req, "/products")
		if err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
