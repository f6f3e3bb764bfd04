package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"podforge/internal/config"
	"podforge/internal/services"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultUserAgent     = "podforge/1.0 (+https://github.com/podforge/podforge)"
	defaultMinContentLen = 200
	maxBodyBytes         = 8 << 20
)

// Result holds the extracted article text and a candidate title.
type Result struct {
	Text  string
	Title string
}

// Fetcher downloads a source article and extracts readable text plus a
// candidate title from the HTML.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	minLength  int
}

// Option customizes the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// NewFetcher constructs a fetcher from the fetch configuration section.
func NewFetcher(cfg config.Fetch, opts ...Option) *Fetcher {
	timeout := defaultTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	fetcher := &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  strings.TrimSpace(cfg.UserAgent),
		minLength:  cfg.MinContentLength,
	}
	for _, opt := range opts {
		opt(fetcher)
	}
	if fetcher.userAgent == "" {
		fetcher.userAgent = defaultUserAgent
	}
	if fetcher.minLength <= 0 {
		fetcher.minLength = defaultMinContentLen
	}
	return fetcher
}

// Fetch downloads the URL and extracts its text. A near-empty extraction
// fails with a fetch error so the pipeline does not generate a podcast
// from boilerplate.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Result, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Result{}, services.Wrap(services.ErrValidation, "", "fetch", "empty url", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "", "fetch", "invalid url "+url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Result{}, services.Wrap(services.ErrFetch, "", "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, services.Wrap(services.ErrFetch, "", "fetch",
			fmt.Sprintf("http %d fetching %s", resp.StatusCode, url), nil)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, services.Wrap(services.ErrFetch, "", "fetch", "parse html", err)
	}

	result := Result{
		Title: extractTitle(doc),
		Text:  extractText(doc),
	}
	if len([]rune(result.Text)) < f.minLength {
		return Result{}, services.Wrap(services.ErrFetch, "", "fetch",
			fmt.Sprintf("extracted only %d characters from %s", len([]rune(result.Text)), url), nil)
	}
	return result, nil
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if title := strings.TrimSpace(og); title != "" {
			return title
		}
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// extractText prefers semantic article containers and falls back to the
// whole body with navigation chrome stripped.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, aside, form, noscript").Remove()

	for _, selector := range []string{"article", "main", `[role="main"]`, ".post-content", ".article-content"} {
		if node := doc.Find(selector).First(); node.Length() > 0 {
			if text := collapseWhitespace(node.Text()); text != "" {
				return text
			}
		}
	}
	return collapseWhitespace(doc.Find("body").Text())
}

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, strings.Join(strings.Fields(line), " "))
		}
	}
	return strings.Join(kept, "\n")
}
