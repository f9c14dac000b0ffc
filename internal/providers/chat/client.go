package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"auditflow/internal/util"
)

// Client sends WhatsApp messages through the chat platform's webhook API.
// Every message goes to a subscriber, so sends first resolve or create one.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

type Subscriber struct {
	ID int64 `json:"id"`
}

func (c *Client) baseURL() string {
	b := strings.TrimRight(c.BaseURL, "/")
	if b == "" {
		b = "https://backend.botconversa.com.br/api/v1/webhook"
	}
	return b
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequestWithContext(ctx, method, c.baseURL()+path, rd)
	req.Header.Set("API-KEY", c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

// FindSubscriber returns nil without error when the phone is unknown.
func (c *Client) FindSubscriber(ctx context.Context, phone string) (*Subscriber, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/subscriber/get_by_phone/"+phone+"/", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("chat get subscriber status %d: %s", status, body)
	}
	var sub Subscriber
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("decode subscriber: %w", err)
	}
	return &sub, nil
}

func (c *Client) CreateSubscriber(ctx context.Context, phone, firstName, lastName string) (*Subscriber, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/subscriber/", map[string]string{
		"phone":      phone,
		"first_name": firstName,
		"last_name":  lastName,
	})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("chat create subscriber status %d: %s", status, body)
	}
	var sub Subscriber
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("decode subscriber: %w", err)
	}
	return &sub, nil
}

func (c *Client) SendMessage(ctx context.Context, subscriberID int64, text string) error {
	status, body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/subscriber/%d/send_message/", subscriberID), map[string]string{
		"type":  "text",
		"value": text,
	})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("chat send message status %d: %s", status, body)
	}
	return nil
}

// EnsureSubscriberAndSend normalizes the phone, resolves or creates the
// subscriber, then delivers the message.
func (c *Client) EnsureSubscriberAndSend(ctx context.Context, phone, name, text string) error {
	normalized := util.NormalizePhone(phone)
	if normalized == "" {
		return fmt.Errorf("empty phone after normalization: %q", phone)
	}

	sub, err := c.FindSubscriber(ctx, normalized)
	if err != nil {
		return err
	}
	if sub == nil {
		first, last := splitName(name)
		sub, err = c.CreateSubscriber(ctx, normalized, first, last)
		if err != nil {
			return err
		}
	}
	return c.SendMessage(ctx, sub.ID, text)
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return "Cliente", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
