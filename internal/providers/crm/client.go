package crm

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
)

// Client wraps the CRM's OData API (Ploomes shape). All lookups go through
// $filter/$select queries; writes are plain JSON posts.
type Client struct {
	UserKey string
	BaseURL string
	HTTP    *http.Client
}

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm status %d: %s", e.Status, e.Message)
}

// IsNotFound reports a 404, which on deal updates means the deal was removed
// on the CRM side and the update can be skipped.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

type ContactInput struct {
	Name     string
	Email    string
	Phone    string
	OriginID int64
}

type DealInput struct {
	ContactID  int64
	Title      string
	PipelineID int64
	StageID    int64
	OwnerID    int64
}

func (c *Client) baseURL() string {
	b := strings.TrimRight(c.BaseURL, "/")
	if b == "" {
		b = "https://public-api2.ploomes.com"
	}
	return b
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequestWithContext(ctx, method, c.baseURL()+path, rd)
	req.Header.Set("User-Key", c.UserKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: string(b)}
	}
	return b, nil
}

// firstID pulls value[0].Id from an OData collection response. Zero means
// the filter matched nothing.
func firstID(body []byte) (int64, error) {
	var out struct {
		Value []struct {
			ID int64 `json:"Id"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode odata collection: %w", err)
	}
	if len(out.Value) == 0 {
		return 0, nil
	}
	return out.Value[0].ID, nil
}

func emailFilter(email string) string {
	// Single quotes double up inside OData string literals.
	escaped := strings.ReplaceAll(email, "'", "''")
	return url.PathEscape(fmt.Sprintf("Email eq '%s'", escaped))
}

func (c *Client) UserIDByEmail(ctx context.Context, email string) (int64, error) {
	body, err := c.do(ctx, http.MethodGet, "/Users?$select=Id&$filter="+emailFilter(email), nil)
	if err != nil {
		return 0, err
	}
	return firstID(body)
}

func (c *Client) ContactIDByEmail(ctx context.Context, email string) (int64, error) {
	body, err := c.do(ctx, http.MethodGet, "/Contacts?$select=Id&$filter="+emailFilter(email), nil)
	if err != nil {
		return 0, err
	}
	return firstID(body)
}

func (c *Client) CreateContact(ctx context.Context, in ContactInput) (int64, error) {
	payload := map[string]any{
		"Name":     in.Name,
		"Email":    in.Email,
		"OriginId": in.OriginID,
	}
	if in.Phone != "" {
		payload["Phones"] = []map[string]any{{"PhoneNumber": in.Phone, "TypeId": 1}}
	}
	body, err := c.do(ctx, http.MethodPost, "/Contacts", payload)
	if err != nil {
		return 0, err
	}
	return createdID(body)
}

func (c *Client) CreateDeal(ctx context.Context, in DealInput) (int64, error) {
	payload := map[string]any{
		"ContactId":  in.ContactID,
		"PipelineId": in.PipelineID,
		"StageId":    in.StageID,
		"OwnerId":    in.OwnerID,
	}
	if in.Title != "" {
		payload["Title"] = in.Title
	}
	body, err := c.do(ctx, http.MethodPost, "/Deals", payload)
	if err != nil {
		return 0, err
	}
	return createdID(body)
}

func (c *Client) UpdateDeal(ctx context.Context, dealID int64, patch map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/Deals(%d)", dealID), patch)
	return err
}

// createdID handles both the bare-entity and collection-wrapped response
// shapes the API uses for creates.
func createdID(body []byte) (int64, error) {
	if id, err := firstID(body); err == nil && id != 0 {
		return id, nil
	}
	var ent struct {
		ID int64 `json:"Id"`
	}
	if err := json.Unmarshal(body, &ent); err != nil {
		return 0, fmt.Errorf("decode created entity: %w", err)
	}
	if ent.ID == 0 {
		return 0, errors.New("crm create returned no Id")
	}
	return ent.ID, nil
}
