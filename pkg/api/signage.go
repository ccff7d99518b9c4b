package api

import (
	"net/http"
	"strconv"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

type setDisplayReq struct {
	StoreID int64   `json:"store_id" validate:"required"`
	QRImage string  `json:"qr_image" validate:"required"`
	Amount  float64 `json:"amount" validate:"gte=0"`
}

type signageResp struct {
	StoreID int64   `json:"store_id"`
	QRImage string  `json:"qr_image"`
	Amount  float64 `json:"amount"`
	Status  string  `json:"status"`
}

func signageToResp(s domain.SignageSlot) signageResp {
	return signageResp{
		StoreID: s.MerchantID,
		QRImage: s.QRImage,
		Amount:  minorToBaht(s.AmountMinor),
		Status:  string(s.Status),
	}
}

// SetDisplayHandler godoc
// @Summary      Publish a QR to a store's signage display
// @Tags         signage
// @Accept       json
// @Produce      json
// @Param        body  body  setDisplayReq  true  "Display request"
// @Success      200  {object}  signageResp
// @Failure      400  {object}  map[string]string
// @Router       /signage/set-display [post]
func SetDisplayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	var req setDisplayReq
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, err)
		return
	}
	slot := signageCoord.SetDisplay(req.StoreID, req.QRImage, bahtToMinor(req.Amount))
	writeJSON(w, http.StatusOK, signageToResp(slot))
}

// DisplayHandler godoc
// @Summary      Poll a store's current signage state
// @Tags         signage
// @Produce      json
// @Param        store_id  query  string  true  "Store id"
// @Success      200  {object}  signageResp
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /signage/display [get]
func DisplayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	storeID, err := parseQueryStoreID(r)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	slot, ok := signageCoord.Get(storeID)
	if !ok {
		writeErrorJSON(w, domain.NewNotFoundError("no signage slot for this store"))
		return
	}
	writeJSON(w, http.StatusOK, signageToResp(slot))
}

// AckPaidHandler godoc
// @Summary      Acknowledge a paid signage slot
// @Tags         signage
// @Produce      json
// @Param        store_id  query  string  true  "Store id"
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Router       /signage/ack-paid [post]
func AckPaidHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	storeID, err := parseQueryStoreID(r)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	if !signageCoord.Ack(storeID) {
		writeErrorJSON(w, domain.NewConflictError("signage slot is not in paid state"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func parseQueryStoreID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("store_id")
	if raw == "" {
		return 0, domain.NewValidationError("store_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("store_id must be numeric")
	}
	return id, nil
}
