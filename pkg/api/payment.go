package api

import (
	"net/http"
	"strings"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
	"github.com/oxzoid/foodcourt-hub/internal/qrcode"
)

type useReq struct {
	FoodCourtID string  `json:"foodcourt_id" validate:"required"`
	StoreID     int64   `json:"store_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"gt=0"`
}

// UseHandler godoc
// @Summary      Debit a food court ID at a merchant
// @Tags         payment-hub
// @Accept       json
// @Produce      json
// @Param        body  body  useReq  true  "Debit request"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]string
// @Router       /payment-hub/use [post]
func UseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	var req useReq
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, err)
		return
	}

	result, err := fcidEngine.Debit(r.Context(), req.FoodCourtID, req.StoreID, bahtToMinor(req.Amount))
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	resp := map[string]any{"remaining_balance": minorToBaht(result.RemainingBalanceMinor)}
	if result.PaymentTransactionID != nil {
		resp["payment_transaction_id"] = *result.PaymentTransactionID
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateQRReq struct {
	MenuID               *int64  `json:"menu_id,omitempty"`
	Ref2                 *string `json:"ref2,omitempty"`
	Ref3                 *string `json:"ref3,omitempty"`
	Amount               float64 `json:"amount"`
	PromptPayMobile      *string `json:"promptpay_mobile,omitempty"`
	PromptPayNationalID  *string `json:"promptpay_national_id,omitempty"`
}

type generateQRResp struct {
	Payload string `json:"payload"`
}

// GenerateQRHandler godoc
// @Summary      Build an EMV PromptPay QR payload for a store
// @Tags         payment-hub
// @Accept       json
// @Produce      json
// @Param        id    path  string          true  "Store (merchant) id"
// @Param        body  body  generateQRReq   true  "QR request"
// @Success      200  {object}  generateQRResp
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /stores/{id}/generate-promptpay-qr [post]
func GenerateQRHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	storeID, err := parseStoreID(r.URL.Path, "/stores/", "/generate-promptpay-qr")
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	var req generateQRReq
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, err)
		return
	}

	merchant, err := merchantRepo.ByID(r.Context(), storeID)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	var amountMinor *int64
	if req.Amount > 0 {
		m := bahtToMinor(req.Amount)
		amountMinor = &m
	}

	var payload string
	if req.PromptPayMobile != nil || req.PromptPayNationalID != nil {
		ctReq := qrcode.CreditTransferRequest{
			AmountMinor:  amountMinor,
			MerchantName: merchant.Name,
			MerchantCity: merchant.City,
		}
		if req.PromptPayMobile != nil {
			ctReq.MobileNumber = *req.PromptPayMobile
		}
		if req.PromptPayNationalID != nil {
			ctReq.NationalID = *req.PromptPayNationalID
		}
		payload, err = qrcode.BuildCreditTransfer(ctReq)
	} else {
		bpReq := qrcode.BillPaymentRequest{
			BillerID:     merchant.BillerID,
			Ref1:         merchant.Token,
			AmountMinor:  amountMinor,
			MerchantName: merchant.Name,
			MerchantCity: merchant.City,
		}
		if req.Ref2 != nil {
			bpReq.Ref2 = *req.Ref2
		}
		if req.Ref3 != nil {
			bpReq.Ref3 = *req.Ref3
		}
		payload, err = qrcode.BuildBillPayment(bpReq)
	}
	if err != nil {
		writeErrorJSON(w, domain.NewValidationError(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, generateQRResp{Payload: payload})
}

// localBillPaymentQR builds the Tag-30 bill-payment EMV payload SCB and
// K Bank's QR flows scan against; both rails settle against the merchant's
// own biller ID rather than returning a scannable code of their own.
func localBillPaymentQR(merchant *domain.Merchant, amountMinor int64) (string, error) {
	m := amountMinor
	return qrcode.BuildBillPayment(qrcode.BillPaymentRequest{
		BillerID:     merchant.BillerID,
		Ref1:         merchant.Token,
		AmountMinor:  &m,
		MerchantName: merchant.Name,
		MerchantCity: merchant.City,
	})
}

// StoresHandler dispatches the "/stores/{id}/..." routes a plain ServeMux
// prefix registration can't distinguish by suffix on its own.
func StoresHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/create-gateway-qr"):
		CreateGatewayQRHandler(w, r)
	case strings.HasSuffix(r.URL.Path, "/quick-amounts"):
		QuickAmountsHandler(w, r)
	default:
		GenerateQRHandler(w, r)
	}
}

type quickAmountResp struct {
	ID     int64   `json:"id"`
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// QuickAmountsHandler godoc
// @Summary      List a store's preset keypad amounts
// @Tags         payment-hub
// @Produce      json
// @Param        id  path  string  true  "Store (merchant) id"
// @Success      200  {array}  quickAmountResp
// @Failure      400  {object}  map[string]string
// @Router       /stores/{id}/quick-amounts [get]
func QuickAmountsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	storeID, err := parseStoreID(r.URL.Path, "/stores/", "/quick-amounts")
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	rows, err := merchantRepo.QuickAmounts(r.Context(), storeID)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	out := make([]quickAmountResp, len(rows))
	for i, q := range rows {
		out[i] = quickAmountResp{ID: q.ID, Label: q.Label, Amount: minorToBaht(q.AmountMinor)}
	}
	writeJSON(w, http.StatusOK, out)
}

// parseStoreID extracts the {id} path segment from a "/prefix/{id}/suffix"
// route on a plain ServeMux.
func parseStoreID(path, prefix, suffix string) (int64, error) {
	if len(path) <= len(prefix)+len(suffix) {
		return 0, domain.NewValidationError("store id is required")
	}
	rest := path[len(prefix):]
	if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
		return 0, domain.NewValidationError("malformed store path")
	}
	idStr := rest[:len(rest)-len(suffix)]
	return parseInt64(idStr)
}

func parseInt64(s string) (int64, error) {
	var n int64
	if s == "" {
		return 0, domain.NewValidationError("id must not be empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, domain.NewValidationError("id must be numeric")
		}
		n = n*10 + int64(r-'0')
	}
	return n, nil
}
