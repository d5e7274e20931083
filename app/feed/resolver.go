package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Resolver produces a post body for entries that carry only a link.
// It fetches the linked page, extracts the configured content region
// (or the readability-detected article when no selector is set) and
// converts it to Markdown. Every failure degrades to an empty body so
// the entry is still published with its attribution line.
type Resolver struct {
	httpClient  *http.Client
	sanitizer   *bluemonday.Policy
	mdConverter *converter.Converter
	userAgent   string
	timeout     time.Duration
}

func NewResolver(httpClient *http.Client, userAgent string, timeout time.Duration) *Resolver {
	return &Resolver{
		httpClient: httpClient,
		sanitizer:  bluemonday.UGCPolicy(),
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Resolve returns the page's content region as Markdown, or "" when
// the page cannot be fetched or the region cannot be extracted.
func (r *Resolver) Resolve(ctx context.Context, pageURL, selector string) string {
	data, err := r.fetchPage(ctx, pageURL)
	if err != nil {
		slog.Error("Failed to fetch article page", "url", pageURL, "error", err)
		return ""
	}

	html, err := r.extractRegion(data, pageURL, selector)
	if err != nil {
		slog.Error("Failed to extract article content", "url", pageURL, "selector", selector, "error", err)
		return ""
	}

	markdown, err := r.toMarkdown(html, pageURL)
	if err != nil {
		slog.Error("Failed to convert article content", "url", pageURL, "error", err)
		return ""
	}

	slog.Debug("Article content resolved", "url", pageURL, "content_length", len(markdown))
	return markdown
}

func (r *Resolver) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func (r *Resolver) extractRegion(data []byte, pageURL, selector string) (string, error) {
	if selector != "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to parse HTML: %w", err)
		}

		region := doc.Find(selector).First()
		if region.Length() == 0 {
			return "", fmt.Errorf("selector matched nothing: %s", selector)
		}

		html, err := region.Html()
		if err != nil {
			return "", fmt.Errorf("failed to serialize region: %w", err)
		}
		return html, nil
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(data), parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}
	if article.Content == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}
	return article.Content, nil
}

func (r *Resolver) toMarkdown(html, pageURL string) (string, error) {
	sanitized := r.sanitizer.Sanitize(html)

	markdown, err := r.mdConverter.ConvertString(sanitized, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("failed to convert to markdown: %w", err)
	}

	return strings.TrimSpace(markdown), nil
}
