package feed

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

// Fetcher retrieves and parses syndication feeds. A fetch or parse
// problem surfaces as a single error for the whole feed; no partial
// entry lists are returned.
type Fetcher struct {
	httpClient   *http.Client
	gofeedParser *gofeed.Parser
	userAgent    string
	timeout      time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient:   httpClient,
		gofeedParser: gofeed.NewParser(),
		userAgent:    userAgent,
		timeout:      timeout,
	}
}

// Fetch returns at most maxCount entries in document order, which for
// syndication feeds is newest-first.
func (f *Fetcher) Fetch(ctx context.Context, url string, maxCount int) ([]Entry, error) {
	data, err := f.fetchFeed(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	parsed, err := f.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := parsed.Items
	if maxCount > 0 && len(items) > maxCount {
		items = items[:maxCount]
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, f.normalizeItem(item))
	}

	return entries, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func (f *Fetcher) normalizeItem(item *gofeed.Item) Entry {
	return Entry{
		ID:          cmp.Or(item.GUID, item.Link, item.Title),
		Title:       item.Title,
		Link:        item.Link,
		Content:     cmp.Or(item.Content, item.Description),
		PublishedAt: entryDate(item),
		Categories:  item.Categories,
	}
}

// entryDate resolves the entry's publish time: published, then
// updated, then the observation time. Raw date strings that gofeed
// could not parse get a second chance through dateparse.
func entryDate(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t
		}
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	if item.Updated != "" {
		if t, err := dateparse.ParseAny(item.Updated); err == nil {
			return t
		}
	}
	return time.Now()
}
