package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// KBankClient handles K Bank's client_credentials OAuth flow. Tokens are
// cached per (customer_id, consumer_secret) pair for expires_in-60s; the
// cache is safe for concurrent callers sharing the same credentials, and a
// singleflight group collapses simultaneous refreshes of the same expired
// entry into one HTTP round trip instead of a stampede on the token
// endpoint.
type KBankClient struct {
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[string]kbankCachedToken

	refresh singleflight.Group
}

type kbankCachedToken struct {
	token     string
	expiresAt time.Time
}

func NewKBankClient() *KBankClient {
	return &KBankClient{
		httpClient: newHTTPClient(),
		tokens:     make(map[string]kbankCachedToken),
	}
}

// AccessToken returns a cached or freshly obtained bearer token.
func (c *KBankClient) AccessToken(ctx context.Context, customerID, consumerSecret, tokenURL string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	consumerSecret = strings.TrimSpace(consumerSecret)
	if customerID == "" || consumerSecret == "" {
		return "", domain.NewValidationError("K Bank OAuth requires customer_id and consumer_secret")
	}

	key := customerID + "|" + consumerSecret
	c.mu.Lock()
	cached, ok := c.tokens[key]
	c.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.token, nil
	}

	token, err, _ := c.refresh.Do(key, func() (any, error) {
		return c.fetchToken(ctx, key, customerID, consumerSecret, tokenURL)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (c *KBankClient) fetchToken(ctx context.Context, key, customerID, consumerSecret, tokenURL string) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[key]
	c.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.token, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(customerID + ":" + consumerSecret))
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.NewGatewayError("building K Bank oauth request", err)
	}
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logRequest(ctx, "kbank", "/oauth/token", "")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logResponse("kbank", "/oauth/token", 0, "", err)
		return "", domain.NewGatewayError("K Bank oauth request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	logResponse("kbank", "/oauth/token", resp.StatusCode, "", nil)
	if resp.StatusCode != http.StatusOK {
		return "", domain.NewGatewayError(fmt.Sprintf("K Bank oauth failed: %d %s", resp.StatusCode, raw), nil)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", domain.NewGatewayError("decoding K Bank oauth response", err)
	}
	if parsed.AccessToken == "" {
		return "", domain.NewGatewayError("K Bank oauth response missing access_token", nil)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 1799
	}

	c.mu.Lock()
	c.tokens[key] = kbankCachedToken{token: parsed.AccessToken, expiresAt: time.Now().Add(time.Duration(expiresIn-60) * time.Second)}
	c.mu.Unlock()

	return parsed.AccessToken, nil
}

// ClearTokenCache discards every cached token; used when credentials rotate.
func (c *KBankClient) ClearTokenCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = make(map[string]kbankCachedToken)
}
