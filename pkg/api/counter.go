package api

import (
	"net/http"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
	"github.com/oxzoid/foodcourt-hub/internal/escrow"
)

type exchangeReq struct {
	Amount         float64 `json:"amount" validate:"gte=0"`
	PaymentMethod  string  `json:"payment_method" validate:"required"`
	PaymentDetails any     `json:"payment_details,omitempty"`
	CounterID      *string `json:"counter_id,omitempty"`
	CounterUserID  *string `json:"counter_user_id,omitempty"`
	CustomerID     *int64  `json:"customer_id,omitempty"`
}

type fcidResp struct {
	Code                 string  `json:"foodcourt_id"`
	InitialAmount        float64 `json:"initial_amount"`
	CurrentBalance       float64 `json:"current_balance"`
	PaymentMethod        string  `json:"payment_method"`
	Status               string  `json:"status"`
	CustomerID           *int64  `json:"customer_id,omitempty"`
}

func fcidToResp(f *domain.FCID) fcidResp {
	return fcidResp{
		Code:           f.Code,
		InitialAmount:  minorToBaht(f.InitialAmountMinor),
		CurrentBalance: minorToBaht(f.CurrentBalanceMinor),
		PaymentMethod:  string(f.PaymentMethod),
		Status:         string(f.Status),
		CustomerID:     f.CustomerID,
	}
}

// ExchangeHandler godoc
// @Summary      Mint a food court ID
// @Description  Mints a new stored-value FCID for a counter top-up
// @Tags         counter
// @Accept       json
// @Produce      json
// @Param        body  body  exchangeReq  true  "Mint request"
// @Success      201  {object}  fcidResp
// @Failure      400  {object}  map[string]string
// @Router       /counter/exchange [post]
func ExchangeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	var req exchangeReq
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, err)
		return
	}

	f, err := fcidEngine.Mint(r.Context(), bahtToMinor(req.Amount), domain.PaymentMethod(req.PaymentMethod),
		escrow.MarshalDetails(req.PaymentDetails), req.CounterID, req.CounterUserID, req.CustomerID)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fcidToResp(f))
}

// BalanceHandler godoc
// @Summary      Read a food court ID's balance
// @Tags         counter
// @Produce      json
// @Param        code  path  string  true  "FCID code"
// @Success      200  {object}  fcidResp
// @Failure      404  {object}  map[string]string
// @Router       /counter/balance/{code} [get]
func BalanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	code := pathSuffix(r.URL.Path, "/counter/balance/")
	if code == "" {
		writeErrorJSON(w, domain.NewValidationError("fcid code is required"))
		return
	}
	f, err := fcidEngine.Balance(r.Context(), code)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fcidToResp(f))
}

type refundReq struct {
	FoodCourtID   string  `json:"foodcourt_id" validate:"required"`
	CounterID     *string `json:"counter_id,omitempty"`
	CounterUserID *string `json:"counter_user_id,omitempty"`
}

// RefundHandler godoc
// @Summary      Refund a food court ID's remaining balance
// @Tags         counter
// @Accept       json
// @Produce      json
// @Param        body  body  refundReq  true  "Refund request"
// @Success      200  {object}  map[string]float64
// @Failure      400  {object}  map[string]string
// @Router       /counter/refund [post]
func RefundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	var req refundReq
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, err)
		return
	}
	amountMinor, err := fcidEngine.Refund(r.Context(), req.FoodCourtID)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"refund_amount": minorToBaht(amountMinor)})
}

type topUpReq struct {
	FoodCourtID    string  `json:"foodcourt_id" validate:"required"`
	Amount         float64 `json:"amount" validate:"gt=0"`
	PaymentMethod  string  `json:"payment_method" validate:"required"`
	PaymentDetails any     `json:"payment_details,omitempty"`
}

// TopUpHandler godoc
// @Summary      Top up an existing food court ID
// @Tags         counter
// @Accept       json
// @Produce      json
// @Param        body  body  topUpReq  true  "Top-up request"
// @Success      200  {object}  map[string]float64
// @Failure      400  {object}  map[string]string
// @Router       /counter/topup [post]
func TopUpHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	var req topUpReq
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, err)
		return
	}
	result, err := fcidEngine.TopUp(r.Context(), req.FoodCourtID, bahtToMinor(req.Amount),
		domain.PaymentMethod(req.PaymentMethod), escrow.MarshalDetails(req.PaymentDetails))
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"old_balance": minorToBaht(result.OldBalanceMinor),
		"new_balance": minorToBaht(result.NewBalanceMinor),
	})
}

// pathSuffix strips prefix from path and returns whatever remains, used for
// the handful of routes carrying a path parameter on a plain ServeMux
// (Go 1.22's pattern routing is deliberately not relied on here).
func pathSuffix(path, prefix string) string {
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return ""
	}
	return path[len(prefix):]
}
