// Package bank is the client for the banking partner. Every operation can
// fail two distinct ways: the call itself failed (network/HTTP, safe to
// retry) or the call succeeded but the response violates the contract
// (retrying risks duplicate side effects). Callers branch on ErrCallFailed
// vs ErrMalformedResponse.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrCallFailed        = errors.New("bank: call failed")
	ErrMalformedResponse = errors.New("bank: malformed response")
)

type PaymentRequest struct {
	RecipientName    string `json:"recipient_name"`
	RecipientAccount string `json:"recipient_account"`
	RecipientBankID  string `json:"recipient_bank_id"`
	Amount           int64  `json:"amount"`
	Reference        string `json:"reference"`
}

// API is the surface the orchestrator, retry handlers and payment worker
// consume. Client is the HTTP implementation.
type API interface {
	SetNotificationURL(ctx context.Context, url string) error
	CreateAccount(ctx context.Context) (string, error)
	RequestLoan(ctx context.Context, amount int64) (string, error)
	MakePayment(ctx context.Context, p PaymentRequest) (string, error)
	Balance(ctx context.Context) (int64, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetNotificationURL(ctx context.Context, url string) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.post(ctx, "/notification-url", map[string]string{"url": url}, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("%w: notification url rejected", ErrMalformedResponse)
	}
	return nil
}

func (c *Client) CreateAccount(ctx context.Context) (string, error) {
	var out struct {
		AccountNumber string `json:"account_number"`
	}
	if err := c.post(ctx, "/account", nil, &out); err != nil {
		return "", err
	}
	if out.AccountNumber == "" {
		return "", fmt.Errorf("%w: missing account_number", ErrMalformedResponse)
	}
	return out.AccountNumber, nil
}

func (c *Client) RequestLoan(ctx context.Context, amount int64) (string, error) {
	var out struct {
		LoanReference string `json:"loan_reference"`
	}
	if err := c.post(ctx, "/loan", map[string]int64{"amount": amount}, &out); err != nil {
		return "", err
	}
	if out.LoanReference == "" {
		return "", fmt.Errorf("%w: missing loan_reference", ErrMalformedResponse)
	}
	return out.LoanReference, nil
}

func (c *Client) MakePayment(ctx context.Context, p PaymentRequest) (string, error) {
	var out struct {
		TransactionReference string `json:"transaction_reference"`
	}
	if err := c.post(ctx, "/payment", p, &out); err != nil {
		return "", err
	}
	if out.TransactionReference == "" {
		return "", fmt.Errorf("%w: missing transaction_reference", ErrMalformedResponse)
	}
	return out.TransactionReference, nil
}

func (c *Client) Balance(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/account/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrCallFailed, resp.StatusCode)
	}
	var out struct {
		Balance *int64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Balance == nil {
		return 0, fmt.Errorf("%w: missing balance", ErrMalformedResponse)
	}
	return *out.Balance, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%w: %v", ErrCallFailed, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrCallFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
