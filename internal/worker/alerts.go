package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/printstore/internal/domain"
)

var orphanAlerts, _ = otel.Meter("worker").Int64Counter("orphaned_payment_alerts_total",
	metric.WithDescription("Orphaned payment events raised to support"))

// OrphanAlertHandler raises an error-level log line, which the alerting
// pipeline pages on, for every payment captured without an order.
type OrphanAlertHandler struct {
	logger *slog.Logger
}

func NewOrphanAlertHandler(logger *slog.Logger) *OrphanAlertHandler {
	return &OrphanAlertHandler{logger: logger}
}

func (h *OrphanAlertHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.PaymentOrphanedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal payment orphaned event: %w", err)
	}

	orphanAlerts.Add(ctx, 1, metric.WithAttributes(attribute.String("currency", event.Currency)))
	h.logger.Error("orphaned payment needs reconciliation",
		"orphan_id", event.OrphanID,
		"payment_id", event.PaymentID,
		"gateway_order_id", event.GatewayOrderID,
		"amount", event.Amount.StringFixed(2),
		"currency", event.Currency,
		"reason", event.Reason,
		"captured_at", event.Timestamp,
	)
	return nil
}
