// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/service"
)

const (
	SignatureHeader = "X-Signature"
	maxWebhookBody  = 1 << 20
)

// WebhookHandler receives voice provider call events
type WebhookHandler struct {
	Webhooks *service.WebhookService
}

// HandleWebhook verifies the signature over the raw body before anything is
// decoded. 401 on a bad signature, 500 when the event could not be stored.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	res, err := h.Webhooks.HandleProviderEvent(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, appErrors.ErrUnauthorized):
		log.Printf("🔒 rejected webhook from %s: %v", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	case errors.Is(err, appErrors.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Println("❌ webhook processing failed:", err)
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
