package util

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(11) 99999-0000", "5511999990000"},
		{"11 9999-0000", "551199990000"},
		{"5511999990000", "5511999990000"},
		{"+55 11 99999-0000", "5511999990000"},
		{"abc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("oi {name}, link: {link}", map[string]string{"name": "Ana", "link": "http://x"})
	if got != "oi Ana, link: http://x" {
		t.Fatalf("rendered %q", got)
	}
}

func TestNewExportIDShape(t *testing.T) {
	a, b := NewExportID(), NewExportID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected id lengths: %q %q", a, b)
	}
	if a == b {
		t.Fatal("ids must be unique")
	}
}
