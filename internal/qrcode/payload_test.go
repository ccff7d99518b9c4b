package qrcode

import (
	"strings"
	"testing"
)

func ptr(v int64) *int64 { return &v }

func TestCRC16RoundTrip(t *testing.T) {
	amounts := []*int64{nil, ptr(0), ptr(1481), ptr(100000)}
	for _, amt := range amounts {
		qr, err := BuildBillPayment(BillPaymentRequest{
			BillerID: "000000000000099",
			Ref1:     "0000001",
			AmountMinor: amt,
		})
		if err != nil {
			t.Fatalf("BuildBillPayment: %v", err)
		}
		if len(qr) < 4 {
			t.Fatalf("payload too short: %q", qr)
		}
		body, want := qr[:len(qr)-4], qr[len(qr)-4:]
		got := CRC16CCITTFalse([]byte(body))
		gotHex := strings.ToUpper(hex(got))
		if gotHex != want {
			t.Errorf("CRC mismatch: body CRC = %s, trailing = %s", gotHex, want)
		}
	}
}

func hex(v uint16) string {
	const digits = "0123456789ABCDEF"
	b := []byte{
		digits[(v>>12)&0xF],
		digits[(v>>8)&0xF],
		digits[(v>>4)&0xF],
		digits[v&0xF],
	}
	return string(b)
}

func TestBuildBillPayment_StaticHasNoAmountTag(t *testing.T) {
	qr, err := BuildBillPayment(BillPaymentRequest{
		BillerID: "000000000000099",
		Ref1:     "0000001",
	})
	if err != nil {
		t.Fatalf("BuildBillPayment: %v", err)
	}
	if !strings.HasPrefix(qr, "000201") {
		t.Errorf("expected payload format indicator prefix, got %q", qr[:6])
	}
	if !strings.Contains(qr, "010211") {
		t.Errorf("expected static point-of-initiation tag 010211, got %q", qr)
	}
	body := qr[:len(qr)-4] // exclude the CRC tail, whose hex digits are incidental
	if strings.Contains(body, "54") {
		t.Errorf("static (no-amount) payload should not carry a tag 54: %q", qr)
	}
}

func TestBuildBillPayment_DynamicAmountTag(t *testing.T) {
	qr, err := BuildBillPayment(BillPaymentRequest{
		BillerID:    "000000000000099",
		Ref1:        "0000001",
		AmountMinor: ptr(1481), // 14.81 baht
	})
	if err != nil {
		t.Fatalf("BuildBillPayment: %v", err)
	}
	if !strings.Contains(qr, "010212") {
		t.Errorf("expected dynamic point-of-initiation tag 010212, got %q", qr)
	}
	// Tag 54: LL counts UTF-8 bytes of "14.81" (5 chars) -> "5405" + value.
	if !strings.Contains(qr, "540514.81") {
		t.Errorf("expected tag54 amount field 540514.81, got %q", qr)
	}
}

func TestBuildBillPayment_RequiresRef1(t *testing.T) {
	_, err := BuildBillPayment(BillPaymentRequest{BillerID: "000000000000099"})
	if err == nil {
		t.Fatal("expected error when ref1 is empty")
	}
}

func TestBuildCreditTransfer_MobilePriority(t *testing.T) {
	qr, err := BuildCreditTransfer(CreditTransferRequest{
		MobileNumber: "0812345678",
		NationalID:   "1234567890123",
	})
	if err != nil {
		t.Fatalf("BuildCreditTransfer: %v", err)
	}
	if !strings.Contains(qr, "A000000677010111") {
		t.Errorf("expected credit-transfer AID, got %q", qr)
	}
	if !strings.Contains(qr, "0066812345678") {
		t.Errorf("expected mobile formatted as 0066-prefixed, got %q", qr)
	}
}

func TestBuildBillPayment_UsesDistinctBillPaymentAID(t *testing.T) {
	qr, err := BuildBillPayment(BillPaymentRequest{BillerID: "099", Ref1: "1"})
	if err != nil {
		t.Fatalf("BuildBillPayment: %v", err)
	}
	if !strings.Contains(qr, aidBillPayment) {
		t.Errorf("expected bill-payment AID %s, got %q", aidBillPayment, qr)
	}
	if strings.Contains(qr, aidCreditTransfer) {
		t.Errorf("bill-payment payload must not reuse the credit-transfer AID: %q", qr)
	}
}

func TestBOTLongForm_IncludesBuyerBlock(t *testing.T) {
	qr, err := BuildBOTLongForm(
		BillPaymentRequest{BillerID: "099", Ref1: "0000001"},
		BOTBuyerInfo{Name: "Somchai"},
	)
	if err != nil {
		t.Fatalf("BuildBOTLongForm: %v", err)
	}
	if !strings.Contains(qr, "62") || !strings.Contains(qr, "Somchai") {
		t.Errorf("expected tag 62 buyer block with name, got %q", qr)
	}
}

func TestBOTShortForm_OmitsBuyerBlock(t *testing.T) {
	qr, err := BuildBOTShortForm(BillPaymentRequest{BillerID: "099", Ref1: "0000001"})
	if err != nil {
		t.Fatalf("BuildBOTShortForm: %v", err)
	}
	if strings.Contains(qr, "\r") {
		t.Errorf("short form must omit the tag 62 buyer block: %q", qr)
	}
}
