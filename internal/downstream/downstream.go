// Package downstream is the HTTP client for the banking collaborator
// service that holds the accounts and actually moves money. Read-only
// lookups retry once on transient failures; the transfer call never
// retries, since a duplicated transfer is worse than a failed one.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
)

// BalanceResponse mirrors the collaborator's GET /api/balance payload.
type BalanceResponse struct {
	AccountID string  `json:"accountId"`
	Balance   float64 `json:"balance"`
}

// TransferRequest mirrors the collaborator's POST /api/transfer payload.
type TransferRequest struct {
	FromAccount string  `json:"fromAccount"`
	ToAccount   string  `json:"toAccount"`
	Amount      float64 `json:"amount"`
}

// TransferResponse mirrors the collaborator's POST /api/transfer result.
type TransferResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client is the downstream banking collaborator client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client. timeout bounds every individual call.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Balance calls GET /api/balance?accountId=....
func (c *Client) Balance(ctx context.Context, accountID string) (*BalanceResponse, error) {
	body, err := c.get(ctx, "/api/balance", accountID)
	if err != nil {
		return nil, err
	}
	var out BalanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, bankerr.New(bankerr.KindDownstream, "downstream.decode", err)
	}
	return &out, nil
}

// Transfer calls POST /api/transfer. Exactly one attempt: the caller owns
// idempotency, this client must not create a second side effect.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, bankerr.New(bankerr.KindDownstream, "downstream.marshal", err)
	}
	body, status, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/transfer", data)
	if err != nil {
		return nil, bankerr.New(bankerr.KindDownstream, "downstream.transfer", err)
	}
	if status >= 500 {
		return nil, bankerr.New(bankerr.KindDownstream, "downstream.transfer",
			fmt.Errorf("backend error: %d", status))
	}

	// A rejected transfer comes back as 400 with a TransferResponse body,
	// not a transport failure. Decode it like any other result.
	var out TransferResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, bankerr.New(bankerr.KindDownstream, "downstream.decode", err)
	}
	return &out, nil
}

// Statement calls GET /api/statement?accountId=..., which returns plain text.
func (c *Client) Statement(ctx context.Context, accountID string) (string, error) {
	body, err := c.get(ctx, "/api/statement", accountID)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Loan calls GET /api/loan?accountId=..., which returns plain text.
func (c *Client) Loan(ctx context.Context, accountID string) (string, error) {
	body, err := c.get(ctx, "/api/loan", accountID)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// get performs an idempotent account lookup, retrying once when the first
// attempt fails in a way that looks transient (transport error or 5xx).
func (c *Client) get(ctx context.Context, path, accountID string) ([]byte, error) {
	u := c.baseURL + path + "?" + url.Values{"accountId": {accountID}}.Encode()

	body, status, err := c.do(ctx, http.MethodGet, u, nil)
	if retryable(status, err) {
		body, status, err = c.do(ctx, http.MethodGet, u, nil)
	}
	if err != nil {
		return nil, bankerr.New(bankerr.KindDownstream, "downstream.get", err)
	}
	if status < 200 || status >= 300 {
		return nil, bankerr.New(bankerr.KindDownstream, "downstream.status",
			fmt.Errorf("backend error: %d", status))
	}
	return body, nil
}

func retryable(status int, err error) bool {
	if err != nil {
		return isRecoverable(err)
	}
	return status >= 500
}

// do executes one HTTP exchange and returns the raw body and status code.
func (c *Client) do(ctx context.Context, method, u string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
