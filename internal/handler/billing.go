package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/templui/refinekit/internal/ctxkeys"
	"github.com/templui/refinekit/internal/service"
)

const maxWebhookSize = 1 << 20

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

type checkoutRequest struct {
	PlanID   string `json:"plan_id"`
	Interval string `json:"interval"`
}

func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req checkoutRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	checkoutURL, err := h.billingService.CreateCheckout(r.Context(), user, req.PlanID, req.Interval)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "checkout created", "user_id", user.ID, "plan_id", req.PlanID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     checkoutURL,
	})
}

// Webhook verifies against the raw body, so it is read untouched.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookSize))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read webhook payload", "error", err)
		writeFailure(w, http.StatusBadRequest, "Failed to read payload")
		return
	}

	err = h.billingService.HandleWebhook(r.Context(), payload, r.Header)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
