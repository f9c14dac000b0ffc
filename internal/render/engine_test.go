package render

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"testing"
)

// fakeRenderer reports one page iff the requested height is at least
// fitsAt. It reads the height back out of the substituted HTML, which also
// exercises the property rewrite.
type fakeRenderer struct {
	fitsAt int
	calls  int
	err    error
}

var heightRe = regexp.MustCompile(`--pageH:\s*(\d+)mm\s*;`)

func (f *fakeRenderer) Render(_ context.Context, html string) (Document, error) {
	f.calls++
	if f.err != nil {
		return Document{}, f.err
	}
	m := heightRe.FindStringSubmatch(html)
	if len(m) != 2 {
		return Document{}, errors.New("no height property in html")
	}
	h, _ := strconv.Atoi(m[1])
	pages := 1
	if h < f.fitsAt {
		pages = 1 + (f.fitsAt-h)/h + 1
	}
	return Document{PDF: []byte("pdf@" + m[1]), PageCount: pages}, nil
}

const testHTML = `<style>:root { --pageH: 1200mm; }</style><body>x</body>`

func newEngine(r Renderer) *Engine {
	return &Engine{Renderer: r, MinHeightMM: 400, MaxHeightMM: 5000}
}

func TestFitFindsMinimalHeight(t *testing.T) {
	for _, fitsAt := range []int{400, 401, 437, 1134, 4999, 5000} {
		r := &fakeRenderer{fitsAt: fitsAt}
		fit, err := newEngine(r).FitToOnePage(context.Background(), testHTML)
		if err != nil {
			t.Fatalf("fitsAt=%d: %v", fitsAt, err)
		}
		if fit.HeightMM != fitsAt {
			t.Fatalf("fitsAt=%d: got height %d", fitsAt, fit.HeightMM)
		}
		if fit.PageCount != 1 {
			t.Fatalf("fitsAt=%d: got %d pages", fitsAt, fit.PageCount)
		}
		if want := fmt.Sprintf("pdf@%d", fitsAt); string(fit.PDF) != want {
			t.Fatalf("fitsAt=%d: pdf %q, want %q", fitsAt, fit.PDF, want)
		}
	}
}

func TestFitBelowMinimumClampsToMin(t *testing.T) {
	// Content that fits everywhere resolves to the search floor.
	r := &fakeRenderer{fitsAt: 1}
	fit, err := newEngine(r).FitToOnePage(context.Background(), testHTML)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if fit.HeightMM != 400 {
		t.Fatalf("got height %d, want 400", fit.HeightMM)
	}
}

func TestFitContentTooLarge(t *testing.T) {
	r := &fakeRenderer{fitsAt: 5001}
	_, err := newEngine(r).FitToOnePage(context.Background(), testHTML)
	if !errors.Is(err, ErrContentTooLarge) {
		t.Fatalf("got %v, want ErrContentTooLarge", err)
	}
	// Fail-fast: only the precondition render happens.
	if r.calls != 1 {
		t.Fatalf("got %d renders, want 1", r.calls)
	}
}

func TestFitRenderCountBounded(t *testing.T) {
	// Search space is 4600 heights: log2 ~ 12.2, plus the precondition
	// render and the confirmation render.
	r := &fakeRenderer{fitsAt: 2777}
	fit, err := newEngine(r).FitToOnePage(context.Background(), testHTML)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if fit.Passes != r.calls {
		t.Fatalf("reported %d passes, renderer saw %d", fit.Passes, r.calls)
	}
	if r.calls > 15 {
		t.Fatalf("search used %d renders", r.calls)
	}
}

func TestFitRenderErrorPropagates(t *testing.T) {
	boom := errors.New("renderer down")
	r := &fakeRenderer{err: boom}
	_, err := newEngine(r).FitToOnePage(context.Background(), testHTML)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped renderer error", err)
	}
}

func TestWithHeightRewritesProperty(t *testing.T) {
	e := newEngine(nil)
	out := e.withHeight(`a { --pageH:  900mm ; } b { --pageH: 5mm; }`, 444)
	if got := heightRe.FindAllString(out, -1); len(got) != 2 {
		t.Fatalf("expected both properties rewritten, got %v", got)
	}
	if !regexp.MustCompile(`--pageH: 444mm;`).MatchString(out) {
		t.Fatalf("height not substituted: %s", out)
	}
}
