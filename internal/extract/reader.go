package extract

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// renderDPI is 2x the PDF default of 72 DPI. The upscale improves OCR
// accuracy on the small print common in agenda packets.
const renderDPI = 144

// pdfDocument reads the embedded text layer with ledongthuc/pdf and
// rasterizes pages with MuPDF. The page count comes from MuPDF, which
// copes with more malformed files; a page the text reader can't see
// simply classifies as textless and falls through to OCR.
type pdfDocument struct {
	reader *pdf.Reader
	fz     *fitz.Document

	// MuPDF contexts are not goroutine-safe; rendering is serialized.
	mu sync.Mutex
}

func openDocument(content []byte) (Document, error) {
	fz, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("rasterizer: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		fz.Close()
		return nil, fmt.Errorf("text reader: %w", err)
	}

	return &pdfDocument{reader: reader, fz: fz}, nil
}

func (d *pdfDocument) PageCount() int {
	return d.fz.NumPage()
}

// PageText returns the page's embedded text in reading order, or ""
// when the page has no readable text layer. Rows come back sorted
// top-to-bottom, which keeps multi-column layouts and header/footer
// content from interleaving the way raw stream order would.
func (d *pdfDocument) PageText(index int) string {
	if index+1 > d.reader.NumPage() {
		return ""
	}
	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return ""
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}

	var b strings.Builder
	for _, row := range rows {
		for _, word := range row.Content {
			b.WriteString(word.S)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (d *pdfDocument) RenderPage(index int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fz.ImagePNG(index, renderDPI)
}

func (d *pdfDocument) Close() error {
	return d.fz.Close()
}
