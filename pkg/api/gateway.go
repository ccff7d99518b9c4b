package api

import (
	"net/http"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

type createGatewayQRReq struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

type createGatewayQRResp struct {
	Provider     string `json:"provider"`
	QRImage      string `json:"qr_image,omitempty"`
	Payload      string `json:"payload,omitempty"`
	ChargeID     string `json:"charge_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// CreateGatewayQRHandler godoc
// @Summary      Resolve a store's banking profile and route the charge to its payment rail
// @Tags         payment-hub
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "Store (merchant) id"
// @Param        body  body  createGatewayQRReq   true  "Charge request"
// @Success      200  {object}  createGatewayQRResp
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /stores/{id}/create-gateway-qr [post]
func CreateGatewayQRHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	storeID, err := parseStoreID(r.URL.Path, "/stores/", "/create-gateway-qr")
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	var req createGatewayQRReq
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, err)
		return
	}

	merchant, err := merchantRepo.ByID(r.Context(), storeID)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	bankingProfile, err := profileResolver.Resolve(r.Context(), merchant)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	if bankingProfile == nil {
		writeErrorJSON(w, domain.NewValidationError("no payment gateway profile for this store"))
		return
	}

	amountMinor := bahtToMinor(req.Amount)
	ref1 := merchant.Token

	switch bankingProfile.Provider {
	case domain.ProviderOmise:
		result, err := omiseClient.CreateQRCharge(r.Context(), bankingProfile.OmiseSecretKey, amountMinor, ref1)
		if err != nil {
			writeErrorJSON(w, err)
			return
		}
		writeJSON(w, http.StatusOK, createGatewayQRResp{
			Provider: string(bankingProfile.Provider),
			QRImage:  result.QRImage,
			ChargeID: result.ChargeID,
		})

	case domain.ProviderStripe:
		result, err := stripeClient.CreatePaymentIntent(r.Context(), bankingProfile.StripeSecretKey, amountMinor, ref1, "promptpay")
		if err != nil {
			writeErrorJSON(w, err)
			return
		}
		writeJSON(w, http.StatusOK, createGatewayQRResp{
			Provider:     string(bankingProfile.Provider),
			ChargeID:     result.ChargeID,
			ClientSecret: result.ClientSecret,
		})

	case domain.ProviderApplePay:
		result, err := stripeClient.CreatePaymentIntent(r.Context(), bankingProfile.StripeSecretKey, amountMinor, ref1, "apple_pay")
		if err != nil {
			writeErrorJSON(w, err)
			return
		}
		writeJSON(w, http.StatusOK, createGatewayQRResp{
			Provider:     string(bankingProfile.Provider),
			ChargeID:     result.ChargeID,
			ClientSecret: result.ClientSecret,
		})

	case domain.ProviderSCB:
		callbackURL := bankingProfile.SCBCallbackURL
		if callbackURL == "" {
			callbackURL = cfg.BackendPublicURL + "/payment-callback/webhook"
		}
		result, err := scbClient.CreateQRCharge(r.Context(), bankingProfile, cfg.SCBBaseURL, amountMinor, ref1, "", "", callbackURL)
		if err != nil {
			writeErrorJSON(w, err)
			return
		}
		payload, err := localBillPaymentQR(merchant, amountMinor)
		if err != nil {
			writeErrorJSON(w, domain.NewValidationError(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, createGatewayQRResp{
			Provider: string(bankingProfile.Provider),
			ChargeID: result.ChargeID,
			Payload:  payload,
		})

	case domain.ProviderKBank:
		// K Bank's original integration only ever implemented OAuth token
		// exchange; there is no native charge-creation call to dispatch to,
		// so the registered credentials are exercised and the scannable
		// code still comes from the local EMV codec.
		if _, err := kbankClient.AccessToken(r.Context(), bankingProfile.KBankCustomerID, bankingProfile.KBankConsumerSecret, cfg.KBankOAuthURL); err != nil {
			writeErrorJSON(w, err)
			return
		}
		payload, err := localBillPaymentQR(merchant, amountMinor)
		if err != nil {
			writeErrorJSON(w, domain.NewValidationError(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, createGatewayQRResp{
			Provider: string(bankingProfile.Provider),
			Payload:  payload,
		})

	default:
		writeErrorJSON(w, domain.NewValidationError("unsupported gateway provider "+string(bankingProfile.Provider)))
	}
}
