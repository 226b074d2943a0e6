package appstore

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"github.com/golang-jwt/jwt/v5"
)

const (
	apiAudience      = "appstoreconnect-v1"
	apiTokenLifetime = 5 * time.Minute
	maxErrorBody     = 64 << 10
)

// apiClient talks to the App Store Server API.
type apiClient struct {
	http       *http.Client
	baseURL    string
	keyID      string
	issuerID   string
	bundleID   string
	signingKey *ecdsa.PrivateKey
	now        clock.Clock
}

type transactionInfoResponse struct {
	SignedTransactionInfo string `json:"signedTransactionInfo"`
}

type apiErrorResponse struct {
	ErrorCode    int64  `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// apiToken signs the short-lived ES256 bearer token the API expects.
func (c *apiClient) apiToken() (string, error) {
	now := c.now.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.issuerID,
		"iat": now.Unix(),
		"exp": now.Add(apiTokenLifetime).Unix(),
		"aud": apiAudience,
		"bid": c.bundleID,
	})
	token.Header["kid"] = c.keyID
	return token.SignedString(c.signingKey)
}

// transactionInfo fetches the signed transaction payload for an id.
func (c *apiClient) transactionInfo(
	ctx context.Context,
	transactionID string,
) (
	string,
	error,
) {
	bearer, err := c.apiToken()
	if err != nil {
		return "", iap.NewVerificationError(0, "couldn't sign App Store API token: %v", err)
	}

	endpoint := fmt.Sprintf("%s/inApps/v1/transactions/%s", c.baseURL, url.PathEscape(transactionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", iap.NewVerificationError(0, "couldn't build App Store request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", iap.NewVerificationError(0, "App Store request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apiError(resp)
	}

	body := transactionInfoResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", iap.NewVerificationError(0, "App Store response malformed: %v", err)
	}
	if body.SignedTransactionInfo == "" {
		return "", iap.NewVerificationError(0, "Apple did not return signedTransactionInfo for the provided transaction id")
	}
	return body.SignedTransactionInfo, nil
}

func apiError(resp *http.Response) *iap.VerificationError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := apiErrorResponse{}
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.ErrorCode != 0 {
		return iap.NewVerificationError(resp.StatusCode,
			"Apple API error %d (%d): %s", resp.StatusCode, apiErr.ErrorCode, apiErr.ErrorMessage)
	}
	return iap.NewVerificationError(resp.StatusCode, "Apple API error %d", resp.StatusCode)
}
