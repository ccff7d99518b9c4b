// Package api wires the HTTP transport for the food-court payment hub: thin
// handlers over the internal engines, translating domain errors into HTTP
// status codes and JSON bodies. No business logic lives here.
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/oxzoid/foodcourt-hub/internal/config"
	"github.com/oxzoid/foodcourt-hub/internal/crypto"
	"github.com/oxzoid/foodcourt-hub/internal/domain"
	"github.com/oxzoid/foodcourt-hub/internal/escrow"
	"github.com/oxzoid/foodcourt-hub/internal/gateway"
	"github.com/oxzoid/foodcourt-hub/internal/profile"
	"github.com/oxzoid/foodcourt-hub/internal/settlement"
	"github.com/oxzoid/foodcourt-hub/internal/signage"
	"github.com/oxzoid/foodcourt-hub/internal/store"
	"github.com/oxzoid/foodcourt-hub/internal/webhook"
)

// Package-level service state, set once by Init. Every handler reads from
// these rather than threading dependencies through request contexts.
var (
	db *sql.DB

	cfg *config.Config

	merchantRepo   *store.MerchantRepo
	fcidEngine     *escrow.Engine
	profileResolver *profile.Resolver
	settlementEng  *settlement.Engine
	signageCoord   *signage.Coordinator
	normalizer     *webhook.Normalizer
	backTxRepo     *store.BackTxRepo

	scbClient    *gateway.SCBClient
	kbankClient  *gateway.KBankClient
	omiseClient  *gateway.OmiseClient
	stripeClient *gateway.StripeClient
	cryptoVerify *crypto.Verifier

	validate = validator.New()
)

// Deps bundles everything Init needs to wire the handlers. cmd/server builds
// one of these after constructing every repository and engine.
type Deps struct {
	DB       *sql.DB
	Config   *config.Config
	Merchant *store.MerchantRepo
	Escrow   *escrow.Engine
	Profile  *profile.Resolver
	Settle   *settlement.Engine
	Signage  *signage.Coordinator
	Webhook  *webhook.Normalizer
	BackTx   *store.BackTxRepo

	SCB    *gateway.SCBClient
	KBank  *gateway.KBankClient
	Omise  *gateway.OmiseClient
	Stripe *gateway.StripeClient
	Crypto *crypto.Verifier
}

// Init wires package-level handler state. Call once during startup, after
// the schema is ensured and every engine is constructed.
func Init(d Deps) {
	db = d.DB
	cfg = d.Config
	merchantRepo = d.Merchant
	fcidEngine = d.Escrow
	profileResolver = d.Profile
	settlementEng = d.Settle
	signageCoord = d.Signage
	normalizer = d.Webhook
	backTxRepo = d.BackTx
	scbClient = d.SCB
	kbankClient = d.KBank
	omiseClient = d.Omise
	stripeClient = d.Stripe
	cryptoVerify = d.Crypto
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeErrorJSON maps a domain error to its HTTP status and emits it as
// {"error": kind, "detail": message}. Anything that is not a *domain.Error
// is treated as internal and its detail is not leaked to the client.
func writeErrorJSON(w http.ResponseWriter, err error) {
	kind := domain.Kind(err)
	status := statusForKind(kind)

	detail := err.Error()
	if kind == domain.KindInternal {
		log.Error().Err(err).Msg("internal error")
		detail = "internal error"
	}

	writeJSON(w, status, map[string]string{
		"error":  kind.String(),
		"detail": detail,
	})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindInsufficientBalance, domain.KindConflict:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.NewValidationError("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return domain.NewValidationError(err.Error())
	}
	return nil
}

// bahtToMinor converts a two-decimal baht float to integer satang, rounding
// half-away-from-zero.
func bahtToMinor(baht float64) int64 {
	if baht < 0 {
		return -bahtToMinor(-baht)
	}
	return int64(baht*100 + 0.5)
}

func minorToBaht(minor int64) float64 {
	return float64(minor) / 100.0
}
