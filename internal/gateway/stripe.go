package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeClient creates PaymentIntents for PromptPay or Apple Pay. Callers
// use the returned ClientSecret with Stripe.js / the Payment Element.
type StripeClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewStripeClient() *StripeClient {
	return &StripeClient{httpClient: newHTTPClient(), baseURL: stripeBaseURL}
}

// CreatePaymentIntent posts a PaymentIntent for one of the requested
// payment method types ("promptpay" or "apple_pay").
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, secretKey string, amountMinor int64, ref1 string, paymentMethodType string) (*ChargeResult, error) {
	form := url.Values{
		"amount":                  {strconv.FormatInt(amountMinor, 10)},
		"currency":                {"thb"},
		"payment_method_types[0]": {paymentMethodType},
		"metadata[ref1]":          {ref1},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.NewGatewayError("building Stripe PaymentIntent request", err)
	}
	req.Header.Set("Authorization", "Bearer "+secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logRequest(ctx, "stripe", "/payment_intents", ref1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logResponse("stripe", "/payment_intents", 0, ref1, err)
		return nil, domain.NewGatewayError("Stripe PaymentIntent request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	logResponse("stripe", "/payment_intents", resp.StatusCode, ref1, nil)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, domain.NewGatewayError(fmt.Sprintf("Stripe PaymentIntent failed: %d %s", resp.StatusCode, raw), nil)
	}

	var parsed struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.NewGatewayError("decoding Stripe PaymentIntent response", err)
	}

	return &ChargeResult{
		Provider:     string(domain.ProviderStripe),
		ChargeID:     parsed.ID,
		ClientSecret: parsed.ClientSecret,
		Status:       parsed.Status,
	}, nil
}
