// Package payment is a thin client for the external payment provider.
// The provider is treated as an opaque collaborator: the service sends
// it a checkout preference and receives a redirect URL, and later
// fetches a payment by id to learn its status and external reference.
// Provider-specific shapes beyond those two calls are deliberately not
// modelled here.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusApproved is the provider's terminal success status for a payment.
const StatusApproved = "approved"

// Client talks to the payment provider's HTTP API using a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a Client for the given API base URL and access token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// PreferenceRequest describes the checkout to register with the
// provider.  ExternalReference carries the purchase-group reference so
// the webhook can later be resolved back to the ledger rows.
type PreferenceRequest struct {
	ExternalReference string `json:"external_reference"`
	Title             string `json:"title"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	PayerName         string `json:"payer_name"`
	PayerEmail        string `json:"payer_email"`
}

// Preference is the provider's answer to a preference creation: an id
// and the URL the buyer must be redirected to.
type Preference struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

// Payment is the subset of the provider's payment resource the service
// cares about: its status and the external reference it was created
// with.
type Payment struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

// CreatePreference registers a checkout with the provider and returns
// the redirect URL.  Nothing is written to the ledger before this call
// succeeds, so a provider failure leaves no local state behind.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal preference: %w", err)
	}
	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", bytes.NewReader(body), &pref); err != nil {
		return nil, err
	}
	if pref.RedirectURL == "" {
		return nil, fmt.Errorf("payment provider returned no redirect url")
	}
	return &pref, nil
}

// GetPayment fetches a payment by the id delivered in a webhook event.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var p Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment provider request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("payment provider %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
