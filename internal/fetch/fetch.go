// Package fetch downloads candidate documents for the ingestion
// ledger: paced HTTP GETs with a size cap, plus the PDF and domain
// checks callers run before submitting bytes to the store.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultMaxSize   = 100 << 20 // 100MB
	defaultUserAgent = "CivicPulse/1.0"
)

// ErrTooLarge means the response body exceeded the configured cap.
var ErrTooLarge = errors.New("fetch: response exceeds size limit")

// Config tunes a Fetcher. Zero values get sane defaults; Delay of zero
// means unpaced.
type Config struct {
	Delay     time.Duration
	Timeout   time.Duration
	MaxSize   int64
	UserAgent string
}

// Fetcher performs paced downloads. One Fetcher per source keeps the
// fixed inter-request delay that portals expect.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxSize   int64
	userAgent string
}

// New creates a Fetcher from cfg.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}

	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
		maxSize:   maxSize,
		userAgent: userAgent,
	}
}

// Fetch downloads url and returns the body bytes and Content-Type
// header. The size cap is enforced while reading, so an oversized
// response fails without being held in memory whole.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, "", fmt.Errorf("%w: %s", ErrTooLarge, url)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// IsPDFContent reports whether the response looks like a PDF, by
// Content-Type header or by the %PDF- magic bytes. Scrapers run this
// before submitting bytes to the ledger, which does not validate
// content type itself.
func IsPDFContent(contentType string, content []byte) bool {
	if contentType != "" && strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(content, []byte("%PDF-"))
}

// IsAllowedDomain reports whether host matches an allowed domain
// exactly or as a subdomain.
func IsAllowedDomain(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, domain := range allowed {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
