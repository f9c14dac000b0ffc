package domain

import "testing"

func TestMapAnswersResolvesOpaqueKeys(t *testing.T) {
	payload := map[string]any{
		"data": map[string]any{
			"data": map[string]any{
				"os30zscm7hd00tp6qkabp90q": "Ana Silva",
				"kp5n1z4vi4b63q56xh29qucc": " ana@x.com ",
				"qxuxu27rubvcq0ntvodpjm0d": "@ana silva",
				"nicho":                    "moda",
				"xyz_unknown":              "kept",
			},
		},
	}

	ans := MapAnswers(payload)
	if ans.Name != "Ana Silva" {
		t.Fatalf("name %q", ans.Name)
	}
	if ans.Email != "ana@x.com" {
		t.Fatalf("email %q", ans.Email)
	}
	if ans.Instagram != "ana_silva" {
		t.Fatalf("instagram %q", ans.Instagram)
	}
	if ans.Fields["nicho"] != "moda" {
		t.Fatalf("nicho %v", ans.Fields["nicho"])
	}
	if ans.Fields["xyz_unknown"] != "kept" {
		t.Fatal("unknown keys must pass through")
	}
}

func TestMapAnswersSemanticKeysAccepted(t *testing.T) {
	payload := map[string]any{
		"data": map[string]any{
			"data": map[string]any{"name": "Bia", "email": "b@x.com"},
		},
	}
	ans := MapAnswers(payload)
	if ans.Name != "Bia" || ans.Email != "b@x.com" {
		t.Fatalf("answers %+v", ans)
	}
}

func TestMapAnswersEmptyPayload(t *testing.T) {
	ans := MapAnswers(map[string]any{"event": "ping"})
	if ans.Email != "" || len(ans.Fields) != 0 {
		t.Fatalf("answers %+v", ans)
	}
}

func TestFirstNameFallback(t *testing.T) {
	if got := (Answers{Name: "Ana Silva"}).FirstName(); got != "Ana" {
		t.Fatalf("first name %q", got)
	}
	if got := (Answers{}).FirstName(); got != "Cliente" {
		t.Fatalf("fallback %q", got)
	}
}
