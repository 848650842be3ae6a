package checkout

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/printstore/internal/apperr"
	"github.com/joao-fontenele/printstore/internal/auth"
	"github.com/joao-fontenele/printstore/internal/orders"
)

// Print orders carry the document as a base64 data URI.
const maxBodyBytes = 50 << 20

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req orders.OrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	quote, err := h.svc.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(quote))
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req orders.OrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = auth.UserID(r.Context())

	result, err := h.svc.Start(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Order != nil {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, apperr.OK(result))
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Order.UserID = auth.UserID(r.Context())

	receipt, err := h.svc.Confirm(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, apperr.OK(receipt))
}

func (h *Handler) HandleFailure(w http.ResponseWriter, r *http.Request) {
	var f PaymentFailure
	if !h.decode(w, r, &f) {
		return
	}

	message := h.svc.ReportFailure(r.Context(), f)
	h.writeJSON(w, http.StatusOK, apperr.OK(map[string]string{"message": message}))
}

func (h *Handler) HandleListOrphans(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListOrphans(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("orphaned payments listed", "count", len(records))
	h.writeJSON(w, http.StatusOK, apperr.OK(records))
}

func (h *Handler) HandleResolveOrphan(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.ResolveOrphan(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(record))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, apperr.NewValidation("body", "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, result := apperr.Describe(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, result)
}
