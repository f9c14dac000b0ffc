package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auditflow/internal/domain"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<p>x</p>", "<p>x</p>"},
		{"```html\n<p>x</p>\n```", "<p>x</p>"},
		{"```\n<p>x</p>\n```", "<p>x</p>"},
		{"  ```html\n<p>x</p>\n```  ", "<p>x</p>"},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Fatalf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildPromptUsesQuestionWording(t *testing.T) {
	ans := domain.Answers{
		Name:  "Ana",
		Email: "a@b.c",
		Fields: map[string]any{
			"name":        "Ana",
			"email":       "a@b.c",
			"nicho":       "moda",
			"extra_field": "valor",
		},
	}

	prompt := buildPrompt(ans)
	if !strings.Contains(prompt, domain.QuestionLabels["nicho"]) {
		t.Fatalf("question wording missing: %s", prompt)
	}
	if !strings.Contains(prompt, "extra_field") || !strings.Contains(prompt, "valor") {
		t.Fatal("unknown fields must reach the prompt")
	}
	// Known questions come before passthrough fields.
	if strings.Index(prompt, "nicho") > strings.Index(prompt, "extra_field") {
		t.Fatal("known questions must precede unknown fields")
	}
}

func TestReportHTMLWrapsCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Fatal("missing bearer token")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```html\\n<h2>Análise</h2>\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	g := &Generator{Client: &Client{APIKey: "k", Model: "m", BaseURL: srv.URL, HTTP: srv.Client()}}
	html, err := g.ReportHTML(context.Background(), domain.Answers{Name: "Ana", Fields: map[string]any{}}, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReportHTML: %v", err)
	}

	if !strings.Contains(html, "<h2>Análise</h2>") {
		t.Fatalf("body not injected: %s", html)
	}
	if strings.Contains(html, "```") {
		t.Fatal("code fences must be stripped")
	}
	if !strings.Contains(html, "--pageH: 1200mm;") {
		t.Fatal("page height property missing from template")
	}
	if !strings.Contains(html, "Ana") || !strings.Contains(html, "01/05/2026") {
		t.Fatal("name and date must be rendered")
	}
}
