package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

type backTxResp struct {
	ID            int64   `json:"id"`
	Ref1          string  `json:"ref1"`
	Ref2          *string `json:"ref2,omitempty"`
	Ref3          *string `json:"ref3,omitempty"`
	Amount        float64 `json:"amount"`
	PaidAt        string  `json:"paid_at"`
	SlipReference *string `json:"slip_reference,omitempty"`
	MerchantID    *int64  `json:"merchant_id,omitempty"`
	Status        string  `json:"status"`
}

func backTxToResp(b domain.BackTransaction) backTxResp {
	return backTxResp{
		ID:            b.ID,
		Ref1:          b.Ref1,
		Ref2:          b.Ref2,
		Ref3:          b.Ref3,
		Amount:        minorToBaht(b.AmountMinor),
		PaidAt:        b.PaidAt.Format(time.RFC3339),
		SlipReference: b.SlipReference,
		MerchantID:    b.MerchantID,
		Status:        string(b.Status),
	}
}

// RecentPaidHandler godoc
// @Summary      List a merchant's recently paid back-transactions
// @Description  POS polling endpoint; pass since to advance the cursor
// @Tags         payment-callback
// @Produce      json
// @Param        id     path   string  true   "Store (merchant) id"
// @Param        since  query  string  false  "RFC3339 timestamp"
// @Success      200  {array}  backTxResp
// @Failure      400  {object}  map[string]string
// @Router       /payment-callback/stores/{id}/recent-paid [get]
func RecentPaidHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	storeID, err := parseStoreID(r.URL.Path, "/payment-callback/stores/", "/recent-paid")
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorJSON(w, domain.NewValidationError("since must be an RFC3339 timestamp"))
			return
		}
		since = &t
	}

	rows, err := backTxRepo.RecentPaid(r.Context(), storeID, since)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	out := make([]backTxResp, len(rows))
	for i, row := range rows {
		out[i] = backTxToResp(row)
	}
	writeJSON(w, http.StatusOK, out)
}

type createDailyReq struct {
	SettlementDate string `json:"settlement_date,omitempty"`
}

type settlementResp struct {
	ID             int64   `json:"id"`
	MerchantID     int64   `json:"merchant_id"`
	SettlementDate string  `json:"settlement_date"`
	Amount         float64 `json:"amount"`
	Status         string  `json:"status"`
	TransferredAt  *string `json:"transferred_at,omitempty"`
	NotifiedAt     *string `json:"notified_at,omitempty"`
}

func settlementToResp(s domain.Settlement) settlementResp {
	r := settlementResp{
		ID:             s.ID,
		MerchantID:     s.MerchantID,
		SettlementDate: s.SettlementDate.Format("2006-01-02"),
		Amount:         minorToBaht(s.AmountMinor),
		Status:         string(s.Status),
	}
	if s.TransferredAt != nil {
		t := s.TransferredAt.Format(time.RFC3339)
		r.TransferredAt = &t
	}
	if s.NotifiedAt != nil {
		t := s.NotifiedAt.Format(time.RFC3339)
		r.NotifiedAt = &t
	}
	return r
}

// CreateDailySettlementHandler godoc
// @Summary      Roll up confirmed back-transactions into per-merchant settlements
// @Tags         payment-callback
// @Accept       json
// @Produce      json
// @Param        body  body  createDailyReq  false  "Settlement date, defaults to today"
// @Success      200  {array}  settlementResp
// @Failure      400  {object}  map[string]string
// @Router       /payment-callback/settlements/create-daily [post]
func CreateDailySettlementHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}

	var req createDailyReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeErrorJSON(w, err)
			return
		}
	}

	date := time.Now().UTC()
	if req.SettlementDate != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.SettlementDate))
		if err != nil {
			writeErrorJSON(w, domain.NewValidationError("settlement_date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	created, err := settlementEng.CreateDaily(r.Context(), date)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}

	out := make([]settlementResp, len(created))
	for i, s := range created {
		out[i] = settlementToResp(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// SettlementsHandler dispatches the "/payment-callback/settlements..."
// routes: the bare list, create-daily, and the per-id mark-transferred /
// notify-store actions.
func SettlementsHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/payment-callback/settlements" || path == "/payment-callback/settlements/":
		ListSettlementsHandler(w, r)
	case strings.HasSuffix(path, "/create-daily"):
		CreateDailySettlementHandler(w, r)
	case strings.HasSuffix(path, "/mark-transferred"):
		MarkTransferredHandler(w, r)
	case strings.HasSuffix(path, "/notify-store"):
		NotifyStoreHandler(w, r)
	default:
		writeErrorJSON(w, domain.NewNotFoundError("unknown settlements route"))
	}
}

// ListSettlementsHandler godoc
// @Summary      List settlement rows, optionally filtered by day and status
// @Tags         payment-callback
// @Produce      json
// @Param        settlement_date  query  string  false  "YYYY-MM-DD"
// @Param        status           query  string  false  "pending / transferred / notified"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]string
// @Router       /payment-callback/settlements [get]
func ListSettlementsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}

	var date *time.Time
	if raw := r.URL.Query().Get("settlement_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErrorJSON(w, domain.NewValidationError("settlement_date must be YYYY-MM-DD"))
			return
		}
		date = &parsed
	}
	var status *domain.SettlementStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.SettlementStatus(raw)
		switch s {
		case domain.SettlementPending, domain.SettlementTransferred, domain.SettlementNotified:
			status = &s
		default:
			writeErrorJSON(w, domain.NewValidationError("status must be pending, transferred, or notified"))
			return
		}
	}

	items, err := settlementEng.List(r.Context(), date, status)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	out := make([]settlementResp, len(items))
	for i, s := range items {
		out[i] = settlementToResp(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}

// MarkTransferredHandler godoc
// @Summary      Record that a settlement's funds were transferred to the merchant
// @Tags         payment-callback
// @Produce      json
// @Param        id  path  string  true  "Settlement id"
// @Success      200  {object}  settlementResp
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /payment-callback/settlements/{id}/mark-transferred [post]
func MarkTransferredHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	id, err := parseStoreID(r.URL.Path, "/payment-callback/settlements/", "/mark-transferred")
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	s, err := settlementEng.MarkTransferred(r.Context(), id)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementToResp(*s))
}

// NotifyStoreHandler godoc
// @Summary      Notify the merchant that settlement funds have landed
// @Description  Requires the transferred predecessor; pass force=true to jump straight from pending
// @Tags         payment-callback
// @Produce      json
// @Param        id     path   string  true   "Settlement id"
// @Param        force  query  bool    false  "Allow the direct pending-to-notified jump"
// @Success      200  {object}  settlementResp
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /payment-callback/settlements/{id}/notify-store [post]
func NotifyStoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	id, err := parseStoreID(r.URL.Path, "/payment-callback/settlements/", "/notify-store")
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	s, err := settlementEng.NotifyMerchant(r.Context(), id, force)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementToResp(*s))
}

// CallbackStoresHandler dispatches the "/payment-callback/stores/{id}/..."
// routes by suffix.
func CallbackStoresHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/settlements-for-receipt") {
		SettlementsForReceiptHandler(w, r)
		return
	}
	RecentPaidHandler(w, r)
}

// SettlementsForReceiptHandler godoc
// @Summary      List settlements a merchant can print receipts against
// @Tags         payment-callback
// @Produce      json
// @Param        id             path   string  true   "Store (merchant) id"
// @Param        notified_only  query  bool    false  "Only rows whose funds have landed (default true)"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]string
// @Router       /payment-callback/stores/{id}/settlements-for-receipt [get]
func SettlementsForReceiptHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	storeID, err := parseStoreID(r.URL.Path, "/payment-callback/stores/", "/settlements-for-receipt")
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	notifiedOnly := r.URL.Query().Get("notified_only") != "false"

	items, err := settlementEng.ForReceipt(r.Context(), storeID, notifiedOnly)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	out := make([]settlementResp, len(items))
	for i, s := range items {
		out[i] = settlementToResp(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}

// maxReportLimit caps the back-transaction report page size.
const maxReportLimit = 2000

// ReportBackTransactionsHandler godoc
// @Summary      Back-transaction report over an optional merchant and time window
// @Tags         payment-callback
// @Produce      json
// @Param        store_id    query  string  false  "Merchant id"
// @Param        start_date  query  string  false  "YYYY-MM-DD"
// @Param        end_date    query  string  false  "YYYY-MM-DD"
// @Param        limit       query  int     false  "Page size, max 2000 (default 500)"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]string
// @Router       /payment-callback/back-transactions/report [get]
func ReportBackTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	q := r.URL.Query()

	var merchantID *int64
	if raw := q.Get("store_id"); raw != "" {
		id, err := parseInt64(raw)
		if err != nil {
			writeErrorJSON(w, err)
			return
		}
		merchantID = &id
	}

	var start, end *time.Time
	if raw := q.Get("start_date"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErrorJSON(w, domain.NewValidationError("start_date must be YYYY-MM-DD"))
			return
		}
		start = &t
	}
	if raw := q.Get("end_date"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErrorJSON(w, domain.NewValidationError("end_date must be YYYY-MM-DD"))
			return
		}
		eod := t.Add(24*time.Hour - time.Millisecond)
		end = &eod
	}

	limit := 500
	if raw := q.Get("limit"); raw != "" {
		n, err := parseInt64(raw)
		if err != nil {
			writeErrorJSON(w, err)
			return
		}
		if n > maxReportLimit {
			writeErrorJSON(w, domain.NewValidationError("limit must not exceed 2000"))
			return
		}
		if n > 0 {
			limit = int(n)
		}
	}

	rows, err := backTxRepo.Query(r.Context(), merchantID, start, end, limit)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	out := make([]backTxResp, len(rows))
	for i, row := range rows {
		out[i] = backTxToResp(row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}
