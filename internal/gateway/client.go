// Package gateway implements the payment-rail clients: SCB deep-link,
// K Bank, Omise, and Stripe. Every client builds a QR/charge request from a
// BankingProfile and returns a canonical result; webhook handling for the
// matching callback lives in internal/webhook.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultTimeout = 15 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// ChargeResult is the canonical response every client returns, regardless
// of which rail served the request.
type ChargeResult struct {
	Provider     string
	ChargeID     string
	QRImage      string // download URI, data URI or raw payload, when the rail returns a scannable code
	ClientSecret string // Stripe only
	Status       string
}

func logRequest(ctx context.Context, provider, path, ref1 string) {
	log.Info().
		Str("provider", provider).
		Str("path", path).
		Str("ref1_prefix", firstN(ref1, 20)).
		Msg("gateway request")
}

func logResponse(provider, path string, status int, ref1 string, err error) {
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("provider", provider).
		Str("path", path).
		Int("status", status).
		Str("ref1_prefix", firstN(ref1, 20)).
		Msg("gateway response")
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
