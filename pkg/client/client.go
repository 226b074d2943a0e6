package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/catalog"
	"git.sr.ht/~jakintosh/tollgate/internal/muse"
	"git.sr.ht/~jakintosh/tollgate/internal/service"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
)

var (
	ErrTokenRequest  = errors.New("failed to reach tollgate")
	ErrTokenResponse = errors.New("invalid tollgate response")
)

// APIError is a non-2xx reply. Detail is the server's caller-facing
// message.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tollgate: %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.http = c }
}

func New(
	baseURL string,
	opts ...Option,
) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AdminToken exchanges the admin password for an admin token.
func (c *Client) AdminToken(
	ctx context.Context,
	password string,
) (
	*service.TokenResponse,
	error,
) {
	req := service.TokenRequest{
		GrantType: service.GrantPassword,
		Password:  password,
	}
	resp := &service.TokenResponse{}
	if err := c.do(ctx, http.MethodPost, "/token", "", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ExchangeTransaction exchanges a signed App Store transaction for a user
// token.
func (c *Client) ExchangeTransaction(
	ctx context.Context,
	signedTransaction string,
) (
	*service.TokenResponse,
	error,
) {
	req := service.TokenRequest{
		GrantType:   service.GrantTransaction,
		Transaction: signedTransaction,
	}
	resp := &service.TokenResponse{}
	if err := c.do(ctx, http.MethodPost, "/token", "", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) VerifyReceipt(
	ctx context.Context,
	transactionID string,
	appUserID string,
) (
	*service.ReceiptResponse,
	error,
) {
	req := service.ReceiptRequest{
		TransactionID: transactionID,
		AppUserID:     appUserID,
	}
	resp := &service.ReceiptResponse{}
	if err := c.do(ctx, http.MethodPost, "/iap/receipts/verify", "", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Products(ctx context.Context) ([]catalog.Product, error) {
	products := []catalog.Product{}
	if err := c.do(ctx, http.MethodGet, "/iap/products", "", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GenerateCreature calls the metered generation route with a user token
// and returns the stat block.
func (c *Client) GenerateCreature(
	ctx context.Context,
	token string,
	req muse.Request,
) (
	json.RawMessage,
	error,
) {
	var statBlock json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/mech-muse/creatures/generate", token, req, &statBlock); err != nil {
		return nil, err
	}
	return statBlock, nil
}

// Usage reads a subscription's usage record. It needs an admin token.
func (c *Client) Usage(
	ctx context.Context,
	adminToken string,
	subscriptionID string,
) (
	*usage.Record,
	error,
) {
	record := &usage.Record{}
	path := "/usage/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, http.MethodGet, path, adminToken, nil, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	token string,
	body any,
	out any,
) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("couldn't encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenResponse, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body := struct {
		Detail string `json:"detail"`
	}{}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		apiErr.Detail = body.Detail
	} else {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
