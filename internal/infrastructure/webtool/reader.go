package webtool

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Chrome-like UA: several news sites refuse the default Go user agent.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Elements that carry chrome, not content.
var strippedSelectors = []string{"script", "style", "nav", "footer", "aside", "header"}

// PageReader fetches web pages and reduces them to plain text.
type PageReader struct {
	client *http.Client
	logger *zap.Logger
}

// NewPageReader creates a reader with a 15 second per-page budget.
func NewPageReader(logger *zap.Logger) *PageReader {
	return &PageReader{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With(zap.String("component", "page-reader")),
	}
}

// Read fetches one URL and returns its visible text.
func (r *PageReader) Read(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", pageURL, err)
	}

	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}

	return collapseWhitespace(doc.Find("body").Text()), nil
}

// ReadPages fetches several URLs in parallel and concatenates the
// extracted texts in submission order, each labeled with its source URL.
// A page that fails contributes an error note instead of text, so one
// bad link never sinks the whole read.
func (r *PageReader) ReadPages(ctx context.Context, urls []string) string {
	texts := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, pageURL := range urls {
		i, pageURL := i, pageURL
		g.Go(func() error {
			text, err := r.Read(gctx, pageURL)
			if err != nil {
				r.logger.Warn("Page read failed", zap.String("url", pageURL), zap.Error(err))
				texts[i] = fmt.Sprintf("[could not read %s: %v]", pageURL, err)
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	for i, pageURL := range urls {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Content from %s ---\n%s", pageURL, texts[i])
	}
	return b.String()
}

// collapseWhitespace normalizes extracted text: trims each line and
// drops runs of blank lines.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	return strings.Join(out, "\n")
}
