package blobstore

import (
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
)

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// HandleGet serves GET /files/{path...}. Only raster images render inline;
// every other type is sent as an attachment.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("path")
	if key == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")

	obj, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to read file", "error", err, "path", key)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if obj == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	if !Inline(obj.ContentType) {
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)})
		if disposition == "" {
			disposition = "attachment"
		}
		w.Header().Set("Content-Disposition", disposition)
		w.Header().Set("Content-Security-Policy", "sandbox")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Data); err != nil {
		h.logger.Error("failed to write file", "error", err, "path", key)
	}
}
