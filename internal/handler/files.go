package handler

import (
	"log/slog"
	"net/http"

	"github.com/templui/refinekit/internal/ctxkeys"
	"github.com/templui/refinekit/internal/storage"
	"github.com/templui/refinekit/internal/validation"
)

type FileHandler struct {
	storage storage.Storage
}

// NewFileHandler accepts a nil storage, in which case downloads answer 503.
func NewFileHandler(s storage.Storage) *FileHandler {
	return &FileHandler{storage: s}
}

// Download redirects to a presigned URL. Keys are scoped under the session
// user's id, so one user can never address another's results.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeFailure(w, http.StatusServiceUnavailable, "File storage is not configured")
		return
	}

	key := r.PathValue("key")
	err := validation.ValidateObjectKey(key)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	user := ctxkeys.User(r.Context())
	url, err := h.storage.DownloadURL(r.Context(), user.ID+"/"+key)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to presign download", "error", err, "user_id", user.ID, "key", key)
		writeFailure(w, http.StatusBadGateway, "Could not create download link")
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}
