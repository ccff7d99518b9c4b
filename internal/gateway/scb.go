package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// SCBClient drives the SCB Partners API deep-link flow: OAuth token
// exchange followed by a deeplink/transactions create. Access tokens are
// cached in-process per (app key, app secret, base URL) until near expiry.
type SCBClient struct {
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[string]scbCachedToken
}

type scbCachedToken struct {
	token     string
	expiresAt time.Time
}

func NewSCBClient() *SCBClient {
	return &SCBClient{
		httpClient: newHTTPClient(),
		tokens:     make(map[string]scbCachedToken),
	}
}

func scbCacheKey(appKey, appSecret, baseURL string) string {
	return appKey + "|" + appSecret + "|" + baseURL
}

// oauthToken returns a cached bearer token or fetches a new one.
func (c *SCBClient) oauthToken(ctx context.Context, profile *domain.BankingProfile, baseURL string) (string, error) {
	key := scbCacheKey(profile.SCBAppKey, profile.SCBAppSecret, baseURL)

	c.mu.Lock()
	cached, ok := c.tokens[key]
	c.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.token, nil
	}

	url := baseURL + "/v1/oauth/token"
	body, _ := json.Marshal(map[string]string{
		"applicationKey":    profile.SCBAppKey,
		"applicationSecret": profile.SCBAppSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", domain.NewGatewayError("building SCB oauth request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("resourceOwnerId", profile.SCBAppKey)
	req.Header.Set("requestUId", uuid.NewString())
	req.Header.Set("accept-language", "EN")

	logRequest(ctx, "scb", "/v1/oauth/token", "")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logResponse("scb", "/v1/oauth/token", 0, "", err)
		return "", domain.NewGatewayError("SCB oauth request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	logResponse("scb", "/v1/oauth/token", resp.StatusCode, "", nil)
	if resp.StatusCode != http.StatusOK {
		return "", domain.NewGatewayError(fmt.Sprintf("SCB oauth failed: %d %s", resp.StatusCode, raw), nil)
	}

	var parsed struct {
		AccessToken string `json:"accessToken"`
		Data        struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
		ExpiresIn int `json:"expiresIn"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", domain.NewGatewayError("decoding SCB oauth response", err)
	}
	token := parsed.Data.AccessToken
	if token == "" {
		token = parsed.AccessToken
	}
	if token == "" {
		return "", domain.NewGatewayError("SCB oauth response missing accessToken", nil)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.mu.Lock()
	c.tokens[key] = scbCachedToken{token: token, expiresAt: time.Now().Add(time.Duration(expiresIn-60) * time.Second)}
	c.mu.Unlock()

	return token, nil
}

// CreateQRCharge runs the two-step SCB deep-link flow and returns a
// ChargeResult carrying the created transaction ID.
func (c *SCBClient) CreateQRCharge(ctx context.Context, profile *domain.BankingProfile, baseURL string, amountMinor int64, ref1, ref2, ref3, callbackURL string) (*ChargeResult, error) {
	token, err := c.oauthToken(ctx, profile, baseURL)
	if err != nil {
		return nil, err
	}

	paymentAmount := float64(amountMinor) / 100.0
	body, _ := json.Marshal(map[string]any{
		"transactionType":       "PURCHASE",
		"transactionSubType":    []string{"BP", "CCFA", "CCIPP"},
		"sessionValidityPeriod": 60,
		"billPayment": map[string]any{
			"paymentAmount": paymentAmount,
			"accountTo":     "123456789012345",
			"accountFrom":   "123451234567890",
			"ref1":          ref1,
			"ref2":          ref2,
			"ref3":          ref3,
		},
		"merchantMetaData": map[string]any{
			"callbackUrl": callbackURL,
		},
	})

	url := baseURL + "/v3/deeplink/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewGatewayError("building SCB deeplink request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("resourceOwnerId", profile.SCBAppKey)
	req.Header.Set("requestUId", uuid.NewString())
	req.Header.Set("channel", "scbeasy")
	req.Header.Set("accept-language", "EN")

	logRequest(ctx, "scb", "/v3/deeplink/transactions", ref1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logResponse("scb", "/v3/deeplink/transactions", 0, ref1, err)
		return nil, domain.NewGatewayError("SCB deeplink request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	logResponse("scb", "/v3/deeplink/transactions", resp.StatusCode, ref1, nil)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, domain.NewGatewayError(fmt.Sprintf("SCB deeplink failed: %d %s", resp.StatusCode, raw), nil)
	}

	var parsed struct {
		TransactionID string `json:"transactionId"`
		Data          struct {
			TransactionID string `json:"transactionId"`
		} `json:"data"`
	}
	_ = json.Unmarshal(raw, &parsed)
	chargeID := parsed.Data.TransactionID
	if chargeID == "" {
		chargeID = parsed.TransactionID
	}

	return &ChargeResult{
		Provider: string(domain.ProviderSCB),
		ChargeID: chargeID,
		Status:   "created",
	}, nil
}
