package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

const omiseBaseURL = "https://api.omise.co"

// OmiseClient creates PromptPay charges via Omise and exposes the QR
// download URI Omise returns at source.scannable_code.image.download_uri.
type OmiseClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewOmiseClient() *OmiseClient {
	return &OmiseClient{httpClient: newHTTPClient(), baseURL: omiseBaseURL}
}

// CreateQRCharge posts a PromptPay charge; amountMinor is satang, passed
// through unscaled since Omise already bills in the smallest currency unit.
func (c *OmiseClient) CreateQRCharge(ctx context.Context, secretKey string, amountMinor int64, ref1 string) (*ChargeResult, error) {
	form := url.Values{
		"amount":         {strconv.FormatInt(amountMinor, 10)},
		"currency":       {"thb"},
		"source[type]":   {"promptpay"},
		"metadata[ref1]": {ref1},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.NewGatewayError("building Omise charge request", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(secretKey+":")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logRequest(ctx, "omise", "/charges", ref1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logResponse("omise", "/charges", 0, ref1, err)
		return nil, domain.NewGatewayError("Omise charge request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	logResponse("omise", "/charges", resp.StatusCode, ref1, nil)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, domain.NewGatewayError(fmt.Sprintf("Omise charge failed: %d %s", resp.StatusCode, raw), nil)
	}

	var parsed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Source struct {
			ScannableCode struct {
				Image struct {
					DownloadURI string `json:"download_uri"`
				} `json:"image"`
			} `json:"scannable_code"`
		} `json:"source"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.NewGatewayError("decoding Omise charge response", err)
	}

	return &ChargeResult{
		Provider: string(domain.ProviderOmise),
		ChargeID: parsed.ID,
		QRImage:  parsed.Source.ScannableCode.Image.DownloadURI,
		Status:   parsed.Status,
	}, nil
}
