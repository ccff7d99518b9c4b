package qrcode

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	aidCreditTransfer = "A000000677010111" // Tag 29
	aidBillPayment    = "A000000677010112" // Tag 30 — distinct AID from Tag 29, per BOT's spec

	mccUnspecified = "0000"
	currencyTHB    = "764"
)

// BillPaymentRequest describes a Tag 30 (Bill Payment) QR: the form used
// for every merchant-presented food-court payment.
type BillPaymentRequest struct {
	BillerID string // 15 digits
	Ref1     string // merchant token, <=20 chars
	Ref2     string // optional, <=25 chars
	Ref3     string // optional, <=27 chars

	AmountMinor    *int64 // satang; nil or 0 produces a static (amount-less) QR
	MerchantName   string // defaults to "NA"
	MerchantCity   string // defaults to "BANGKOK"
	MinimalEMVTags bool   // when true, omit the optional MCC/name/city tags
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func fitBillerID(raw string) (string, error) {
	digits := onlyDigits(raw)
	if digits == "" {
		return "", fmt.Errorf("biller id must contain at least one digit")
	}
	if len(digits) > 15 {
		return digits[:15], nil
	}
	return strings.Repeat("0", 15-len(digits)) + digits, nil
}

func amountTag(amountMinor *int64) string {
	if amountMinor == nil || *amountMinor <= 0 {
		return ""
	}
	baht := decimal.New(*amountMinor, -2)
	return FormatTLV("54", baht.StringFixed(2))
}

func pointOfInitiation(amountMinor *int64) string {
	if amountMinor != nil && *amountMinor > 0 {
		return FormatTLV("01", "12") // dynamic
	}
	return FormatTLV("01", "11") // static
}

// BuildBillPayment produces the Tag 30 EMV-QR Merchant-Presented-Mode
// payload, CRC-terminated. Merchant QR display uses it unless a PromptPay
// mobile or national ID is supplied, and the SCB and K Bank gateway routes
// return it as their scannable code.
func BuildBillPayment(req BillPaymentRequest) (string, error) {
	if req.Ref1 == "" {
		return "", fmt.Errorf("ref1 is required")
	}
	billerID, err := fitBillerID(req.BillerID)
	if err != nil {
		return "", err
	}

	payload := FormatTLV("00", "01")
	payload += pointOfInitiation(req.AmountMinor)

	merchantInfo := FormatTLV("00", aidBillPayment)
	merchantInfo += FormatTLV("01", billerID)
	merchantInfo += FormatTLV("02", truncate(req.Ref1, 20))
	if req.Ref2 != "" {
		merchantInfo += FormatTLV("03", truncate(req.Ref2, 25))
	}
	if req.Ref3 != "" {
		merchantInfo += FormatTLV("04", truncate(req.Ref3, 27))
	}
	payload += FormatTLV("30", merchantInfo)

	if !req.MinimalEMVTags {
		payload += FormatTLV("52", mccUnspecified)
	}
	payload += FormatTLV("53", currencyTHB)
	payload += amountTag(req.AmountMinor)
	payload += FormatTLV("58", "TH")

	if !req.MinimalEMVTags {
		name := req.MerchantName
		if name == "" {
			name = "NA"
		}
		city := req.MerchantCity
		if city == "" {
			city = "BANGKOK"
		}
		payload += FormatTLV("59", truncate(name, 25))
		payload += FormatTLV("60", truncate(city, 15))
	}

	return FinalizeWithCRC(payload), nil
}

// CreditTransferRequest describes a Tag 29 (Credit Transfer) QR: the form
// used for paying an individual directly rather than a registered biller.
// At least one identifier field must be set; when more than one is present,
// only the first by priority mobile > national ID > e-wallet is encoded.
type CreditTransferRequest struct {
	MobileNumber string // 10 digits
	NationalID   string // 13 digits
	EWalletID    string // 15 digits

	AmountMinor    *int64
	MerchantName   string
	MerchantCity   string
	MinimalEMVTags bool
}

// BuildCreditTransfer produces the Tag 29 EMV-QR payload, CRC-terminated.
func BuildCreditTransfer(req CreditTransferRequest) (string, error) {
	if req.MobileNumber == "" && req.NationalID == "" && req.EWalletID == "" {
		return "", fmt.Errorf("one of mobile number, national id, or e-wallet id is required")
	}

	payload := FormatTLV("00", "01")
	payload += pointOfInitiation(req.AmountMinor)

	merchantInfo := FormatTLV("00", aidCreditTransfer)
	switch {
	case req.MobileNumber != "":
		mobile := onlyDigits(req.MobileNumber)
		if len(mobile) != 10 {
			return "", fmt.Errorf("mobile number must be 10 digits")
		}
		formatted := "0066" + strings.TrimPrefix(mobile, "0")
		merchantInfo += FormatTLV("01", formatted)
	case req.NationalID != "":
		national := onlyDigits(req.NationalID)
		if len(national) != 13 {
			return "", fmt.Errorf("national id must be 13 digits")
		}
		merchantInfo += FormatTLV("02", "000"+national)
	default:
		wallet := onlyDigits(req.EWalletID)
		if len(wallet) != 15 {
			return "", fmt.Errorf("e-wallet id must be 15 digits")
		}
		merchantInfo += FormatTLV("03", wallet)
	}
	payload += FormatTLV("29", merchantInfo)

	if !req.MinimalEMVTags {
		payload += FormatTLV("52", mccUnspecified)
	}
	payload += FormatTLV("53", currencyTHB)
	payload += amountTag(req.AmountMinor)
	payload += FormatTLV("58", "TH")

	if !req.MinimalEMVTags {
		name := req.MerchantName
		if name == "" {
			name = "NA"
		}
		city := req.MerchantCity
		if city == "" {
			city = "BANGKOK"
		}
		payload += FormatTLV("59", truncate(name, 25))
		payload += FormatTLV("60", truncate(city, 15))
	}

	return FinalizeWithCRC(payload), nil
}

// BOTBuyerInfo carries the Tag 62 additional-data buyer fields used by the
// Bank of Thailand's 362-character long-form QR.
type BOTBuyerInfo struct {
	Name         string // <=30
	Address      string // <=70
	City         string // <=30
	Province     string // <=30
	Postcode     string // <=5
	Country      string // <=30
	TypeOfIncome string // <=3
}

func (b BOTBuyerInfo) empty() bool {
	return b.Name == "" && b.Address == "" && b.City == "" && b.Province == "" &&
		b.Postcode == "" && b.Country == "" && b.TypeOfIncome == ""
}

// additionalData renders Tag 62, CR-separated per BOT table 1.
func (b BOTBuyerInfo) additionalData() string {
	var parts []string
	add := func(v string, max int) {
		if v != "" {
			parts = append(parts, truncate(v, max))
		}
	}
	add(b.Name, 30)
	add(b.Address, 70)
	add(b.City, 30)
	add(b.Province, 30)
	add(b.Postcode, 5)
	add(b.Country, 30)
	add(b.TypeOfIncome, 3)
	return strings.Join(parts, "\r") + "\r"
}

// BuildBOTLongForm produces the Bank of Thailand long-form (table 1)
// Tag 30 bill-payment QR with the optional Tag 62 buyer information block.
func BuildBOTLongForm(req BillPaymentRequest, buyer BOTBuyerInfo) (string, error) {
	billerID, err := fitBillerID(req.BillerID)
	if err != nil {
		return "", err
	}
	if req.Ref1 == "" {
		return "", fmt.Errorf("ref1 is required")
	}

	payload := FormatTLV("00", "01")
	payload += pointOfInitiation(req.AmountMinor)

	merchantInfo := FormatTLV("00", aidBillPayment)
	merchantInfo += FormatTLV("01", billerID)
	merchantInfo += FormatTLV("02", truncate(req.Ref1, 20))
	if req.Ref2 != "" {
		merchantInfo += FormatTLV("03", truncate(req.Ref2, 25))
	}
	if req.Ref3 != "" {
		merchantInfo += FormatTLV("04", truncate(req.Ref3, 27))
	}
	payload += FormatTLV("30", merchantInfo)

	payload += FormatTLV("53", currencyTHB)
	payload += amountTag(req.AmountMinor)
	payload += FormatTLV("58", "TH")

	if !buyer.empty() {
		payload += FormatTLV("62", buyer.additionalData())
	}

	return FinalizeWithCRC(payload), nil
}

// BuildBOTShortForm produces the Bank of Thailand short-form (62-character
// class) Tag 30 bill-payment QR: identical field set to the long form minus
// the Tag 62 buyer block.
func BuildBOTShortForm(req BillPaymentRequest) (string, error) {
	return BuildBOTLongForm(req, BOTBuyerInfo{})
}
