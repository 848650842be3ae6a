package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/printstore/internal/apperr"
	"github.com/joao-fontenele/printstore/internal/domain"
)

// Product payloads carry base64 images.
const maxBodyBytes = 25 << 20

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

// HandleListActive serves the storefront catalog.
func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context(), ListFilter{
		Status:   domain.ProductStatusActive,
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, apperr.OK(products))
}

func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.GetActive(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(product))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.svc.List(r.Context(), ListFilter{
		Status:   domain.ProductStatus(q.Get("status")),
		Category: q.Get("category"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, apperr.OK(products))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(product))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if !h.decode(w, r, &in) {
		return
	}

	product, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, apperr.OK(product))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if !h.decode(w, r, &in) {
		return
	}

	product, err := h.svc.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(product))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(map[string]string{"id": id}))
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
	// Reference, when set, makes the adjustment apply once per product.
	Reference string `json:"reference,omitempty"`
}

func (h *Handler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if !h.decode(w, r, &req) {
		return
	}

	if len(req.Reference) > 200 {
		h.writeError(w, apperr.NewValidation("reference", "must be at most 200 characters"))
		return
	}

	product, err := h.svc.AdjustStock(r.Context(), r.PathValue("id"), req.Delta, req.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(product))
}

// HandleRevertStock serves DELETE /products/{id}/stock/{reference}.
func (h *Handler) HandleRevertStock(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.RevertStock(r.Context(), r.PathValue("id"), r.PathValue("reference"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apperr.OK(product))
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
