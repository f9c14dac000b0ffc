package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NormalizePhone strips everything that is not a digit and prefixes the
// Brazilian country code when a bare local number (DDD + number) is given.
// The messaging provider only accepts fully qualified numbers.
func NormalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if (len(clean) == 10 || len(clean) == 11) && !strings.HasPrefix(clean, "55") {
		clean = "55" + clean
	}
	return clean
}

// RenderTemplate does simple {var} replacement over a message body.
func RenderTemplate(body string, vars map[string]string) string {
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// NewExportID returns a sortable id for exported artifacts (nice for
// storage listings and dashboards).
func NewExportID() string {
	t := time.Now().UTC()
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
