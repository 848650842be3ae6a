// Package worker holds the Kafka event handlers run by cmd/worker.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/joao-fontenele/printstore/internal/domain"
)

// TokenSource returns a bearer token accepted by the admin service.
type TokenSource func() (string, error)

// StockHandler takes sold quantities out of the catalog when an e-commerce
// order is placed, through the admin service's stock endpoint.
type StockHandler struct {
	adminServiceURL string
	tokens          TokenSource
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewStockHandler(adminServiceURL string, tokens TokenSource, client *http.Client, logger *slog.Logger) *StockHandler {
	return &StockHandler{
		adminServiceURL: adminServiceURL,
		tokens:          tokens,
		httpClient:      client,
		logger:          logger,
	}
}

type adjustedItem struct {
	ProductID string
	Quantity  int
}

// Handle applies every line of the order or none: on failure the lines
// already applied are put back and the error is returned so the message is
// redelivered. Each line is sent with the order id as its reference, so a
// redelivered event does not take stock twice.
func (h *StockHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	if event.Kind != domain.OrderKindEcommerce {
		h.logger.Debug("skipping order without stock", "order_id", event.OrderID, "kind", event.Kind)
		return nil
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "items", len(event.Items))

	adjusted, err := h.decrementStock(ctx, event)
	if err != nil {
		h.logger.Error("failed to decrement stock", "error", err, "order_id", event.OrderID)
		h.restoreStock(ctx, event.OrderID, adjusted)
		return fmt.Errorf("decrement stock for order %s: %w", event.OrderID, err)
	}

	h.logger.Info("stock updated for order", "order_id", event.OrderID)
	return nil
}

func (h *StockHandler) decrementStock(ctx context.Context, event domain.OrderPlacedEvent) ([]adjustedItem, error) {
	var adjusted []adjustedItem

	for _, item := range event.Items {
		status, err := h.adjust(ctx, item.ProductID, -item.Quantity, event.OrderID)
		if err != nil {
			return adjusted, fmt.Errorf("adjust stock for product %s: %w", item.ProductID, err)
		}

		// The product was deleted after the sale; there is nothing to take
		// stock from.
		if status == http.StatusNotFound {
			h.logger.Warn("product no longer exists", "product_id", item.ProductID, "order_id", event.OrderID)
			continue
		}

		if status != http.StatusOK {
			return adjusted, fmt.Errorf("admin service returned status %d for product %s", status, item.ProductID)
		}

		adjusted = append(adjusted, adjustedItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	return adjusted, nil
}

func (h *StockHandler) restoreStock(ctx context.Context, orderID string, adjusted []adjustedItem) {
	for _, item := range adjusted {
		status, err := h.revert(ctx, item.ProductID, orderID)
		if err != nil {
			h.logger.Error("failed to restore stock", "error", err, "product_id", item.ProductID)
			continue
		}
		if status != http.StatusOK {
			h.logger.Error("failed to restore stock", "status", status, "product_id", item.ProductID)
		}
	}
}

func (h *StockHandler) adjust(ctx context.Context, productID string, delta int, reference string) (int, error) {
	data, err := json.Marshal(stockRequest{Delta: delta, Reference: reference})
	if err != nil {
		return 0, fmt.Errorf("marshal stock request: %w", err)
	}
	return h.send(ctx, http.MethodPost, h.stockURL(productID), data)
}

func (h *StockHandler) revert(ctx context.Context, productID, reference string) (int, error) {
	return h.send(ctx, http.MethodDelete, h.stockURL(productID)+"/"+url.PathEscape(reference), nil)
}

type stockRequest struct {
	Delta     int    `json:"delta"`
	Reference string `json:"reference,omitempty"`
}

func (h *StockHandler) stockURL(productID string) string {
	return fmt.Sprintf("%s/products/%s/stock", h.adminServiceURL, url.PathEscape(productID))
}

func (h *StockHandler) send(ctx context.Context, method, target string, body []byte) (int, error) {
	token, err := h.tokens()
	if err != nil {
		return 0, fmt.Errorf("issue service token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create stock request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()

	return resp.StatusCode, nil
}
