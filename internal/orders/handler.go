package orders

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/printstore/internal/apperr"
	"github.com/joao-fontenele/printstore/internal/domain"
)

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

func (h *Handler) HandleGetPrintOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetPrintOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(order))
}

func (h *Handler) HandleGetEcommerceOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetEcommerceOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(order))
}

func (h *Handler) HandleListPrintOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListPrintOrders(r.Context(), domain.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("print orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, apperr.OK(orders))
}

func (h *Handler) HandleListEcommerceOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListEcommerceOrders(r.Context(), domain.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("ecommerce orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, apperr.OK(orders))
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdatePrintStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.NewValidation("body", "invalid request body"))
		return
	}

	order, err := h.svc.UpdatePrintStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(order))
}

func (h *Handler) HandleUpdateEcommerceStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.NewValidation("body", "invalid request body"))
		return
	}

	order, err := h.svc.UpdateEcommerceStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(order))
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(stats))
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
