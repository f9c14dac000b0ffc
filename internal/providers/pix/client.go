package pix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client talks to the Pix charge provider (Woovi/OpenPix API shape).
type Client struct {
	AppID   string
	BaseURL string
	HTTP    *http.Client
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"taxID"`
	Phone string `json:"phone,omitempty"`
}

type CreateChargeRequest struct {
	CorrelationID string   `json:"correlationID"`
	ValueCents    int      `json:"value"`
	Customer      Customer `json:"customer"`
}

type Charge struct {
	CorrelationID  string
	Status         string
	BRCode         string
	QRCodeURL      string
	PaymentLinkURL string
	ExpiresAt      *time.Time
}

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pix provider status %d: %s", e.Status, e.Message)
}

// IsChargeExists reports the provider's duplicate-correlationID rejection.
// The provider answers 400 with a Portuguese message for this case.
func IsChargeExists(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(ae.Message), "existe uma cobran")
}

type chargeJSON struct {
	CorrelationID  string `json:"correlationID"`
	Status         string `json:"status"`
	BRCode         string `json:"brCode"`
	QRCodeImage    string `json:"qrCodeImage"`
	PaymentLinkURL string `json:"paymentLinkUrl"`
	ExpiresDate    string `json:"expiresDate"`
}

func (c *Client) CreateCharge(ctx context.Context, req CreateChargeRequest) (Charge, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Charge{}, err
	}
	return c.do(ctx, http.MethodPost, "/api/v1/charge", body)
}

func (c *Client) GetCharge(ctx context.Context, correlationID string) (Charge, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/charge/"+correlationID, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (Charge, error) {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.woovi.com"
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, _ := http.NewRequestWithContext(ctx, method, baseURL+path, rd)
	httpReq.Header.Set("Authorization", c.AppID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return Charge{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(b, &apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = string(b)
		}
		return Charge{}, &APIError{Status: resp.StatusCode, Message: msg}
	}

	// Responses come either wrapped as {"charge": {...}} or flat.
	var env struct {
		Charge *chargeJSON `json:"charge"`
	}
	_ = json.Unmarshal(b, &env)
	if env.Charge == nil {
		var flat chargeJSON
		if err := json.Unmarshal(b, &flat); err != nil {
			return Charge{}, fmt.Errorf("decode charge response: %w", err)
		}
		env.Charge = &flat
	}

	out := Charge{
		CorrelationID:  env.Charge.CorrelationID,
		Status:         env.Charge.Status,
		BRCode:         env.Charge.BRCode,
		QRCodeURL:      env.Charge.QRCodeImage,
		PaymentLinkURL: env.Charge.PaymentLinkURL,
	}
	if env.Charge.ExpiresDate != "" {
		if t, err := time.Parse(time.RFC3339, env.Charge.ExpiresDate); err == nil {
			out.ExpiresAt = &t
		}
	}
	return out, nil
}

// Retry decision for transient errors
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.Status == 429 || ae.Status == 408 {
			return true
		}
		return ae.Status >= 500 && ae.Status <= 599
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// Connection-level failures without a status are worth retrying.
	return true
}
