package render

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"auditflow/internal/observability"
)

// ErrContentTooLarge means the document overflows one page even at the
// maximum allowed page height. Retrying cannot fix it.
var ErrContentTooLarge = errors.New("content does not fit one page at maximum height")

type Document struct {
	PDF       []byte
	PageCount int
}

// Renderer turns HTML into a paginated PDF.
type Renderer interface {
	Render(ctx context.Context, html string) (Document, error)
}

// pageHeightRe matches the CSS custom property that drives the page size,
// e.g. "--pageH: 1200mm;".
var pageHeightRe = regexp.MustCompile(`--pageH:\s*\d+mm\s*;`)

type FitResult struct {
	Document
	HeightMM int
	Passes   int
}

// Engine searches for the smallest integer page height, in millimeters,
// at which the given HTML renders as a single page.
type Engine struct {
	Renderer    Renderer
	MinHeightMM int
	MaxHeightMM int
}

func (e *Engine) withHeight(html string, mm int) string {
	return pageHeightRe.ReplaceAllString(html, fmt.Sprintf("--pageH: %dmm;", mm))
}

// FitToOnePage binary-searches [MinHeightMM, MaxHeightMM]. It first renders
// at the maximum to rule out content that cannot fit at all, then narrows to
// the smallest single-page height and re-renders there to confirm.
func (e *Engine) FitToOnePage(ctx context.Context, html string) (FitResult, error) {
	passes := 0
	defer func() { observability.RenderPasses.Observe(float64(passes)) }()

	renderAt := func(mm int) (Document, error) {
		passes++
		return e.Renderer.Render(ctx, e.withHeight(html, mm))
	}

	doc, err := renderAt(e.MaxHeightMM)
	if err != nil {
		return FitResult{}, fmt.Errorf("render at %dmm: %w", e.MaxHeightMM, err)
	}
	if doc.PageCount > 1 {
		return FitResult{}, ErrContentTooLarge
	}

	best := e.MaxHeightMM
	lo, hi := e.MinHeightMM, e.MaxHeightMM-1
	for lo <= hi {
		mid := (lo + hi) / 2
		doc, err = renderAt(mid)
		if err != nil {
			return FitResult{}, fmt.Errorf("render at %dmm: %w", mid, err)
		}
		if doc.PageCount == 1 {
			best = mid
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}

	final, err := renderAt(best)
	if err != nil {
		return FitResult{}, fmt.Errorf("render at %dmm: %w", best, err)
	}
	if final.PageCount != 1 {
		return FitResult{}, fmt.Errorf("render unstable: %d pages at %dmm after fit", final.PageCount, best)
	}
	return FitResult{Document: final, HeightMM: best, Passes: passes}, nil
}
