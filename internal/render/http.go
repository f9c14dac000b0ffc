package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPRenderer calls a rendering service that accepts HTML and responds with
// the PDF body plus an X-Page-Count header.
type HTTPRenderer struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	return &HTTPRenderer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, html string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/render", strings.NewReader(html))
	if err != nil {
		return Document{}, err
	}
	req.Header.Set("Content-Type", "text/html; charset=utf-8")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("render service status %d: %s", resp.StatusCode, snippet(body))
	}

	pages, err := strconv.Atoi(resp.Header.Get("X-Page-Count"))
	if err != nil || pages < 1 {
		return Document{}, fmt.Errorf("render service returned bad X-Page-Count %q", resp.Header.Get("X-Page-Count"))
	}
	return Document{PDF: body, PageCount: pages}, nil
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
