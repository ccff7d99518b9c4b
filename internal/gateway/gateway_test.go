package gateway

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

func TestSCBClient_CachesToken(t *testing.T) {
	oauthCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		oauthCalls++
		w.Write([]byte(`{"data":{"accessToken":"tok-123"},"expiresIn":3600}`))
	})
	mux.HandleFunc("/v3/deeplink/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != "Bearer tok-123" {
			t.Errorf("expected bearer token forwarded, got %q", r.Header.Get("authorization"))
		}
		w.Write([]byte(`{"data":{"transactionId":"TXN-1"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewSCBClient()
	profile := &domain.BankingProfile{SCBAppKey: "key", SCBAppSecret: "secret"}

	for i := 0; i < 2; i++ {
		res, err := client.CreateQRCharge(context.Background(), profile, srv.URL, 10000, "ref1", "", "", "")
		if err != nil {
			t.Fatalf("CreateQRCharge: %v", err)
		}
		if res.ChargeID != "TXN-1" {
			t.Errorf("got ChargeID %q", res.ChargeID)
		}
	}
	if oauthCalls != 1 {
		t.Errorf("expected oauth called once (cached after), got %d", oauthCalls)
	}
}

func TestKBankClient_UsesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("cust:secret"))
		if r.Header.Get("Authorization") != expected {
			t.Errorf("expected basic auth header %q, got %q", expected, r.Header.Get("Authorization"))
		}
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("expected grant_type=client_credentials, got %q", r.FormValue("grant_type"))
		}
		w.Write([]byte(`{"access_token":"abc","expires_in":1799}`))
	}))
	defer srv.Close()

	client := NewKBankClient()
	token, err := client.AccessToken(context.Background(), "cust", "secret", srv.URL)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "abc" {
		t.Errorf("got token %q", token)
	}
}

func TestKBankClient_RejectsEmptyCredentials(t *testing.T) {
	client := NewKBankClient()
	if _, err := client.AccessToken(context.Background(), "", "secret", "http://example.invalid"); err == nil {
		t.Fatal("expected error for empty customer id")
	}
}

func TestOmiseClient_ExtractsQRDownloadURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("source[type]") != "promptpay" {
			t.Errorf("expected source[type]=promptpay, got %q", r.FormValue("source[type]"))
		}
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("sk_test:"))
		if r.Header.Get("Authorization") != expected {
			t.Errorf("expected basic auth %q, got %q", expected, r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"id":"chrg_1","status":"pending","source":{"scannable_code":{"image":{"download_uri":"https://cdn/qr.png"}}}}`))
	}))
	defer srv.Close()

	client := NewOmiseClient()
	client.baseURL = srv.URL

	res, err := client.CreateQRCharge(context.Background(), "sk_test", 10000, "ref1")
	if err != nil {
		t.Fatalf("CreateQRCharge: %v", err)
	}
	if res.QRImage != "https://cdn/qr.png" {
		t.Errorf("expected QR download uri extracted, got %q", res.QRImage)
	}
}

func TestStripeClient_PaymentMethodTypeIndexed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("payment_method_types[0]") != "promptpay" {
			t.Errorf("expected payment_method_types[0]=promptpay, got %q", r.FormValue("payment_method_types[0]"))
		}
		w.Write([]byte(`{"id":"pi_1","status":"requires_action","client_secret":"secret_abc"}`))
	}))
	defer srv.Close()

	client := NewStripeClient()
	client.baseURL = srv.URL

	res, err := client.CreatePaymentIntent(context.Background(), "sk_test", 10000, "ref1", "promptpay")
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}
	if res.ClientSecret != "secret_abc" {
		t.Errorf("expected client secret extracted, got %q", res.ClientSecret)
	}
}
