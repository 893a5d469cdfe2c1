// Package extract converts PDF bytes into per-page text, falling back
// to OCR for pages with no embedded text layer.
package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
)

const defaultOCRWorkers = 2

// Document is one open PDF. PageText returns the embedded text layer
// in reading order; RenderPage rasterizes a page to a PNG suitable for
// OCR. Implementations must allow RenderPage calls from multiple
// goroutines.
type Document interface {
	PageCount() int
	PageText(index int) string
	RenderPage(index int) ([]byte, error)
	Close() error
}

// OCR recognizes text in a rendered page image. Confidences returns
// the engine's raw per-word confidence values; failures there are
// non-fatal to extraction.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Confidences(ctx context.Context, image []byte) ([]float64, error)
}

// Config holds engine tuning.
type Config struct {
	// OCRWorkers bounds concurrent OCR. Rendering and recognition are
	// CPU and memory heavy per page, so this stays small.
	OCRWorkers int
}

// Engine runs the per-document extraction pipeline. It is
// deterministic and does no network I/O.
type Engine struct {
	ocrWorkers int
	ocr        OCR
	open       func(content []byte) (Document, error)
}

// New creates an Engine backed by the real PDF reader and a local
// Tesseract OCR client.
func New(cfg Config) *Engine {
	workers := cfg.OCRWorkers
	if workers <= 0 {
		workers = defaultOCRWorkers
	}
	return &Engine{
		ocrWorkers: workers,
		ocr:        &tesseractOCR{},
		open:       openDocument,
	}
}

// Extract produces the ExtractionResult for one PDF's bytes. Every
// page yields exactly one PageResult, in physical page order.
func (e *Engine) Extract(ctx context.Context, content []byte) (ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return ExtractionResult{}, err
	}

	doc, err := e.open(content)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("extract: open document: %w", err)
	}
	defer doc.Close()

	return e.extract(ctx, doc)
}

func (e *Engine) extract(ctx context.Context, doc Document) (ExtractionResult, error) {
	total := doc.PageCount()
	pages := make([]PageResult, total)

	// First pass: classify every page. A page whose embedded text
	// trims to empty is scanned/image-only; classification is final
	// and never re-checked after rendering.
	var ocrIndexes []int
	for i := 0; i < total; i++ {
		text := doc.PageText(i)
		if strings.TrimSpace(text) != "" {
			pages[i] = PageResult{Index: i, Source: SourceNative, Text: text}
		} else {
			pages[i] = PageResult{Index: i, Source: SourceOCR}
			ocrIndexes = append(ocrIndexes, i)
		}
	}

	// Second pass: OCR the textless pages on a bounded worker pool.
	// Each worker writes into its own slot of pages, so completions
	// land back in index order no matter how they finish.
	if len(ocrIndexes) > 0 {
		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(e.ocrWorkers)

		for _, idx := range ocrIndexes {
			eg.Go(func() error {
				image, err := doc.RenderPage(idx)
				if err != nil {
					return fmt.Errorf("extract: render page %d: %w", idx, err)
				}
				text, err := e.ocr.Recognize(gctx, image)
				if err != nil {
					return fmt.Errorf("extract: ocr page %d: %w", idx, err)
				}
				pages[idx].Text = text

				// Confidence data is best effort; text stands
				// even when the engine can't report it.
				if confs, err := e.ocr.Confidences(gctx, image); err == nil {
					if avg, ok := meanConfidence(confs); ok {
						pages[idx].OCRAvgConfidence = &avg
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return ExtractionResult{}, err
		}
	}

	result := ExtractionResult{PerPage: pages}
	for _, p := range pages {
		if p.Source == SourceNative {
			result.TextPages++
		} else {
			result.OCRPages++
		}
	}
	result.FullText = assembleFullText(pages)
	return result, nil
}

// meanConfidence averages the usable confidence values. Tesseract
// reports -1 for regions with no recognized text; those and any other
// negatives are dropped. ok is false when nothing usable remains.
func meanConfidence(confs []float64) (avg float64, ok bool) {
	var sum float64
	var n int
	for _, c := range confs {
		if c < 0 {
			continue
		}
		sum += c
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// assembleFullText joins page texts with a form-feed separator and
// strips leading whitespace from every line, preserving line and page
// boundaries. Extracted PDF text commonly carries indentation
// artifacts from multi-column layouts.
func assembleFullText(pages []PageResult) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = trimLineIndent(p.Text)
	}
	return strings.Join(texts, "\f")
}

func trimLineIndent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeftFunc(line, unicode.IsSpace)
	}
	return strings.Join(lines, "\n")
}
