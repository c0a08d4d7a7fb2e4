// Package paystack is the payment gateway client: charge verification, bank
// transfers for payouts, and webhook signature checks. Every call carries an
// explicit timeout so a slow provider cannot hold a settlement open.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

type Client struct {
	baseURL string
	key     string
	hc      *http.Client
	timeout time.Duration
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		key:     secretKey,
		hc:      &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(domain.ErrProvider, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Wrapf(domain.ErrProvider, "paystack %s: status %d: %s", path, resp.StatusCode, rbody)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(domain.ErrProvider, err.Error())
	}
	if !env.Status {
		return errors.Wrapf(domain.ErrProvider, "paystack %s: %s", path, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(domain.ErrProvider, err.Error())
		}
	}
	return nil
}

// Verify fetches the charge by reference. Amounts are in the minor unit.
func (c *Client) Verify(ctx context.Context, reference string) (domain.Verification, error) {
	var data struct {
		Status   string         `json:"status"`
		Amount   int64          `json:"amount"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return domain.Verification{}, err
	}
	return domain.Verification{
		Reference: reference,
		Status:    data.Status,
		Amount:    domain.Money(data.Amount),
		Metadata:  data.Metadata,
	}, nil
}

// CreateTransferRecipient registers the bank account and returns the
// recipient code used to initiate transfers.
func (c *Client) CreateTransferRecipient(ctx context.Context, account domain.BankAccount) (string, error) {
	body := map[string]string{
		"type":           "nuban",
		"name":           account.AccountName,
		"account_number": account.AccountNumber,
		"bank_code":      account.BankCode,
		"currency":       "NGN",
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.call(ctx, http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

func (c *Client) InitiateTransfer(ctx context.Context, recipientCode string, amount domain.Money, reference string) (domain.TransferResult, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    int64(amount),
		"recipient": recipientCode,
		"reference": reference,
		"reason":    fmt.Sprintf("UniHub payout %s", reference),
	}
	var data struct {
		Status       string `json:"status"`
		TransferCode string `json:"transfer_code"`
	}
	if err := c.call(ctx, http.MethodPost, "/transfer", body, &data); err != nil {
		return domain.TransferResult{}, err
	}
	return domain.TransferResult{Status: data.Status, TransferID: data.TransferCode}, nil
}

// Signature computes the HMAC-SHA512 of a webhook body, hex encoded.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature checks the x-paystack-signature header against the raw
// webhook body.
func ValidSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Signature(secret, body)), []byte(signature))
}
