// Package ledger implements the HTTP client for the external reward ledger.
// Error classification matters here: only a response the ledger definitively
// produced may be mapped onto staking.ErrTransferRejected. Transport errors,
// timeouts and 5xx responses stay unclassified so the engine treats the
// transfer as indeterminate and reconciles it later.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"ravenstake/native/staking"
)

// Config captures the parameters for the ledger connection.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the reward ledger over HTTP. It satisfies
// staking.RewardLedger.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds a ledger client using the supplied configuration.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("ledger: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
	}, nil
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Ref    string `json:"ref"`
}

// Transfer submits an idempotent reward transfer keyed on ref. A 4xx response
// is the ledger definitively refusing the transfer and maps onto
// staking.ErrTransferRejected. Anything else that is not a 2xx is returned
// unwrapped so the caller treats the outcome as unknown.
func (c *Client) Transfer(ctx context.Context, to string, amount *big.Int, ref string) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("ledger: client not configured")
	}
	if amount == nil {
		return fmt.Errorf("ledger: amount required")
	}
	payload := transferRequest{To: to, Amount: amount.String(), Ref: ref}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: transfer: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errors.Join(staking.ErrTransferRejected, fmt.Errorf("ledger: status=%d", resp.StatusCode))
	default:
		return fmt.Errorf("ledger: transfer unresolved: status=%d", resp.StatusCode)
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

// TransferStatus queries the ledger's record of a previously submitted ref. A
// 404 means the ledger never saw the transfer.
func (c *Client) TransferStatus(ctx context.Context, ref string) (staking.TransferOutcome, error) {
	if c == nil || c.httpClient == nil {
		return staking.TransferOutcomeUnknown, fmt.Errorf("ledger: client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transfers/"+ref, nil)
	if err != nil {
		return staking.TransferOutcomeUnknown, err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return staking.TransferOutcomeUnknown, fmt.Errorf("ledger: status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return staking.TransferOutcomeNotFound, nil
	}
	if resp.StatusCode >= 300 {
		return staking.TransferOutcomeUnknown, fmt.Errorf("ledger: status lookup failed: status=%d", resp.StatusCode)
	}
	var decoded statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return staking.TransferOutcomeUnknown, fmt.Errorf("ledger: decode response: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(decoded.Status)) {
	case "confirmed", "settled":
		return staking.TransferOutcomeConfirmed, nil
	case "failed", "rejected":
		return staking.TransferOutcomeFailed, nil
	default:
		return staking.TransferOutcomeUnknown, fmt.Errorf("ledger: unrecognised status %q", decoded.Status)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

var _ staking.RewardLedger = (*Client)(nil)
