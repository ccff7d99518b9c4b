package api

import (
	"io"
	"net/http"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
	"github.com/oxzoid/foodcourt-hub/internal/webhook"
)

func handleWebhook(w http.ResponseWriter, r *http.Request, rail webhook.Rail) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorJSON(w, domain.NewValidationError("failed to read request body"))
		return
	}

	result, err := normalizer.Normalize(r.Context(), rail, body)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	// A durable row (or an accepted-but-non-actionable rail event) always
	// gets a 200: the bank must not retry an event that already landed,
	// and a row that failed to resolve a merchant is still recorded for
	// audit rather than rejected.
	resp := map[string]any{"ok": true}
	if result.BackTransaction != nil {
		resp["back_transaction_id"] = result.BackTransaction.ID
		resp["duplicate"] = result.Duplicate
	}
	writeJSON(w, http.StatusOK, resp)
}

// WebhookGenericHandler godoc
// @Summary      Generic/SCB-shaped payment callback
// @Tags         payment-callback
// @Accept       json
// @Produce      json
// @Router       /payment-callback/webhook [post]
func WebhookGenericHandler(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, webhook.RailGeneric)
}

// WebhookKBankHandler godoc
// @Summary      K Bank-shaped payment callback
// @Tags         payment-callback
// @Accept       json
// @Produce      json
// @Router       /payment-callback/webhook/kbank [post]
func WebhookKBankHandler(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, webhook.RailKBank)
}

// WebhookOmiseHandler godoc
// @Summary      Omise event envelope
// @Tags         payment-callback
// @Accept       json
// @Produce      json
// @Router       /payment-callback/webhook/omise [post]
func WebhookOmiseHandler(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, webhook.RailOmise)
}

// WebhookStripeHandler godoc
// @Summary      Stripe event envelope
// @Tags         payment-callback
// @Accept       json
// @Produce      json
// @Router       /payment-callback/webhook/stripe [post]
func WebhookStripeHandler(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, webhook.RailStripe)
}
