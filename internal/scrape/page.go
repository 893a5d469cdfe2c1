// Package scrape pulls PDF document links out of agenda-center style
// meeting pages. It is deliberately generic: anchor hrefs ending in
// .pdf, resolved against the page URL. Site-specific navigation stays
// outside this module.
package scrape

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ExtractPDFLinks parses an HTML page and returns the absolute URLs of
// every linked PDF, in document order, de-duplicated.
func ExtractPDFLinks(r io.Reader, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse html: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !strings.HasSuffix(strings.ToLower(resolved.Path), ".pdf") {
			return
		}
		link := resolved.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	return links, nil
}

var (
	// Portals render dates with glued month and day ("Nov6, 2025").
	gluedMonthDay = regexp.MustCompile(`([A-Za-z]+)(\d+)`)
	monthDayYear  = regexp.MustCompile(`([A-Za-z]+)\s+(\d+),\s+(\d{4})`)
)

var dateFormats = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
}

// ParseMeetingDate extracts a meeting date from the messy text portals
// attach to meeting rows, e.g. "Nov 6, 2025", "October 14, 2025", or
// "Nov6, 2025— AmendedOct30, 2025 4:32 PM". Amendment suffixes after
// an em dash or hyphen separator are ignored.
func ParseMeetingDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)

	if i := strings.Index(text, "—"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	} else if i := strings.Index(text, " - "); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}

	text = gluedMonthDay.ReplaceAllString(text, "$1 $2")

	for _, format := range dateFormats {
		if t, err := time.Parse(format, text); err == nil {
			return t, true
		}
	}

	// Fall back to pulling a "Month Day, Year" shape out of longer text.
	if m := monthDayYear.FindStringSubmatch(text); m != nil {
		candidate := fmt.Sprintf("%s %s, %s", m[1], m[2], m[3])
		for _, format := range []string{"January 2, 2006", "Jan 2, 2006"} {
			if t, err := time.Parse(format, candidate); err == nil {
				return t, true
			}
		}
	}

	return time.Time{}, false
}

// MeetingFilename builds the canonical stored name for a meeting
// document, e.g. "Wichita_11-06-2025_Agenda.pdf".
func MeetingFilename(cityName string, date time.Time, docType string) string {
	return fmt.Sprintf("%s_%02d-%02d-%d_%s.pdf", cityName, date.Month(), date.Day(), date.Year(), docType)
}
