package extract

// PageSource tags where a page's text came from.
type PageSource string

const (
	// SourceNative means the text came from the PDF's embedded text layer.
	SourceNative PageSource = "native"
	// SourceOCR means the page had no usable text layer and was
	// rasterized and recognized instead.
	SourceOCR PageSource = "ocr"
)

// PageResult is the extraction outcome for a single page.
// OCRAvgConfidence is set only for OCR pages, and only when the engine
// returned at least one usable per-word confidence value.
type PageResult struct {
	Index            int        `json:"index"`
	Source           PageSource `json:"source"`
	Text             string     `json:"text"`
	OCRAvgConfidence *float64   `json:"ocr_avg_conf,omitempty"`
}

// ExtractionResult is the structured output for one document.
// PerPage is ordered by physical page; TextPages+OCRPages always
// equals len(PerPage).
type ExtractionResult struct {
	PerPage   []PageResult
	TextPages int
	OCRPages  int
	FullText  string
}
