// Package batch walks a directory of PDFs through the extraction
// engine and writes per-document artifacts plus an aggregate summary.
package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/civicpulse/civicpulse/internal/extract"
)

// Extractor is the per-document pipeline the processor runs. Satisfied
// by *extract.Engine.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (extract.ExtractionResult, error)
}

// Naming selects how output files are named.
type Naming string

const (
	// NamingRelPath names outputs by the sanitized relative path, so
	// same-named files in different subdirectories cannot collide.
	NamingRelPath Naming = "relpath"
	// NamingBasename reproduces the upstream behavior: the base name
	// up to the first dot. Two inputs sharing a base name under
	// different subdirectories will overwrite each other's outputs.
	NamingBasename Naming = "basename"
)

// Summary is one row of the aggregate table, per processed document.
type Summary struct {
	File        string
	Pages       int
	TextPages   int
	OCRPages    int
	TotalChars  int
	KeywordHits map[string]int
}

// artifact is the JSON written alongside each text file; the metadata
// stage consumes these and nothing else.
type artifact struct {
	File      string               `json:"file"`
	Pages     int                  `json:"pages"`
	TextPages int                  `json:"text_pages"`
	OCRPages  int                  `json:"ocr_pages"`
	PerPage   []extract.PageResult `json:"per_page"`
}

// Options tunes a Processor.
type Options struct {
	Naming Naming
	// Logger overrides the default per-run log file under
	// <outputDir>/logs/ocr.log. Mostly for tests.
	Logger *slog.Logger
	// Metrics, when set, receives per-document timing and outcome
	// aggregates.
	Metrics *Metrics
}

// Processor runs the batch walk. Documents are handled one at a time;
// OCR concurrency lives inside the engine.
type Processor struct {
	engine  Extractor
	naming  Naming
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a Processor around an extraction engine.
func New(engine Extractor, opts Options) *Processor {
	naming := opts.Naming
	if naming == "" {
		naming = NamingRelPath
	}
	return &Processor{engine: engine, naming: naming, logger: opts.Logger, metrics: opts.Metrics}
}

// Process walks pdfDir recursively, extracts every file with a
// case-insensitive .pdf suffix, and writes <name>.txt and <name>.json
// into outputDir plus logs/summary.csv when at least one document was
// summarized. Per-document failures are logged and skipped; failures
// that would corrupt the whole batch's output state (output dirs,
// summary write) are fatal.
func (p *Processor) Process(ctx context.Context, pdfDir, outputDir string, keywords []string) ([]Summary, error) {
	logDir := filepath.Join(outputDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("batch: create output directory: %w", err)
	}

	logger := p.logger
	if logger == nil {
		logFile, err := os.OpenFile(filepath.Join(logDir, "ocr.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("batch: open log file: %w", err)
		}
		defer logFile.Close()
		logger = slog.New(slog.NewTextHandler(logFile, nil))
	}

	pdfs, err := collectPDFs(pdfDir)
	if err != nil {
		return nil, fmt.Errorf("batch: walk %s: %w", pdfDir, err)
	}

	var rows []Summary
	for _, pdfPath := range pdfs {
		// Cancellation is cooperative between documents; partial
		// page state has no meaning in the artifact model.
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		rel, err := filepath.Rel(pdfDir, pdfPath)
		if err != nil {
			rel = filepath.Base(pdfPath)
		}
		rel = filepath.ToSlash(rel)

		docStart := time.Now()
		ev := batchEvent{}

		readStart := time.Now()
		content, err := os.ReadFile(pdfPath)
		ev.read = time.Since(readStart)
		if err != nil {
			logger.Error("failed reading pdf", "path", pdfPath, "error", err)
			p.recordSkip(ev, docStart, "read")
			continue
		}

		extractStart := time.Now()
		result, err := p.engine.Extract(ctx, content)
		ev.extract = time.Since(extractStart)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return rows, err
			}
			logger.Error("failed processing pdf", "path", pdfPath, "error", err)
			p.recordSkip(ev, docStart, "extract")
			continue
		}
		ev.nativePages = result.TextPages
		ev.ocrPages = result.OCRPages

		name := p.outputName(rel)

		// Raw bytes, not re-encoded, so non-ASCII content survives.
		writeStart := time.Now()
		txtPath := filepath.Join(outputDir, name+".txt")
		if err := os.WriteFile(txtPath, []byte(result.FullText), 0644); err != nil {
			ev.write = time.Since(writeStart)
			logger.Error("failed writing text", "path", pdfPath, "error", err)
			p.recordSkip(ev, docStart, "write")
			continue
		}
		logger.Info("wrote text", "path", pdfPath, "out", txtPath)

		payload := artifact{
			File:      rel,
			Pages:     result.TextPages + result.OCRPages,
			TextPages: result.TextPages,
			OCRPages:  result.OCRPages,
			PerPage:   result.PerPage,
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			ev.write = time.Since(writeStart)
			logger.Error("failed encoding json", "path", pdfPath, "error", err)
			p.recordSkip(ev, docStart, "encode")
			continue
		}
		jsonPath := filepath.Join(outputDir, name+".json")
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			ev.write = time.Since(writeStart)
			logger.Error("failed writing json", "path", pdfPath, "error", err)
			p.recordSkip(ev, docStart, "write")
			continue
		}
		ev.write = time.Since(writeStart)
		logger.Info("wrote json", "path", pdfPath, "out", jsonPath)

		p.metrics.Record(DocumentEvent{
			Read:        ev.read,
			Extract:     ev.extract,
			Write:       ev.write,
			Overall:     time.Since(docStart),
			Outcome:     "ok",
			NativePages: ev.nativePages,
			OCRPages:    ev.ocrPages,
		})

		rows = append(rows, summarize(rel, result, keywords))
	}

	if len(rows) > 0 {
		if err := writeSummaryCSV(filepath.Join(logDir, "summary.csv"), rows); err != nil {
			return rows, fmt.Errorf("batch: write summary: %w", err)
		}
	}

	logger.Info("batch complete", "processed", len(rows))
	return rows, nil
}

// batchEvent accumulates stage timings for one document while it moves
// through the loop.
type batchEvent struct {
	read    time.Duration
	extract time.Duration
	write   time.Duration

	nativePages int
	ocrPages    int
}

func (p *Processor) recordSkip(ev batchEvent, docStart time.Time, reason string) {
	p.metrics.Record(DocumentEvent{
		Read:        ev.read,
		Extract:     ev.extract,
		Write:       ev.write,
		Overall:     time.Since(docStart),
		Outcome:     "skipped",
		SkipReason:  reason,
		NativePages: ev.nativePages,
		OCRPages:    ev.ocrPages,
	})
}

func collectPDFs(dir string) ([]string, error) {
	var pdfs []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".pdf") {
			pdfs = append(pdfs, p)
		}
		return nil
	})
	return pdfs, err
}

func summarize(rel string, result extract.ExtractionResult, keywords []string) Summary {
	row := Summary{
		File:       rel,
		Pages:      result.TextPages + result.OCRPages,
		TextPages:  result.TextPages,
		OCRPages:   result.OCRPages,
		TotalChars: utf8.RuneCountInString(result.FullText),
	}
	if len(keywords) > 0 {
		row.KeywordHits = make(map[string]int, len(keywords))
		low := strings.ToLower(result.FullText)
		for _, k := range keywords {
			row.KeywordHits[k] = strings.Count(low, strings.ToLower(k))
		}
	}
	return row
}

func (p *Processor) outputName(rel string) string {
	if p.naming == NamingBasename {
		return strings.SplitN(path.Base(rel), ".", 2)[0]
	}
	trimmed := rel[:len(rel)-len(path.Ext(rel))]
	return sanitize(trimmed)
}

// sanitize replaces non-alphanumeric characters with underscores, so a
// relative path flattens into one collision-safe file name.
func sanitize(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// writeSummaryCSV emits the fixed columns followed by the sorted union
// of keyword columns across all rows; rows that didn't track a keyword
// leave that cell blank.
func writeSummaryCSV(csvPath string, rows []Summary) error {
	kwSet := make(map[string]struct{})
	for _, row := range rows {
		for k := range row.KeywordHits {
			kwSet[k] = struct{}{}
		}
	}
	kwCols := make([]string, 0, len(kwSet))
	for k := range kwSet {
		kwCols = append(kwCols, k)
	}
	sort.Strings(kwCols)

	f, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"file", "pages", "text_pages", "ocr_pages", "total_chars"}
	for _, k := range kwCols {
		header = append(header, "kw:"+k)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.File,
			strconv.Itoa(row.Pages),
			strconv.Itoa(row.TextPages),
			strconv.Itoa(row.OCRPages),
			strconv.Itoa(row.TotalChars),
		}
		for _, k := range kwCols {
			if n, ok := row.KeywordHits[k]; ok {
				record = append(record, strconv.Itoa(n))
			} else {
				record = append(record, "")
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
