package feed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/feed2forum/feed2forum/app/database"
)

const (
	feedsSetKey   = "feeds"
	defaultPull   = 4
	objectKeyBase = "feed:"
)

// Store persists feed configurations as "feed:<url>" objects plus a
// "feeds" registry set, keyed by the canonicalized URL.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CanonicalizeURL strips trailing slashes; feed identity is the
// resulting URL.
func CanonicalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

func objectKey(url string) string {
	return objectKeyBase + url
}

func (s *Store) SaveFeed(f Feed) error {
	f.URL = CanonicalizeURL(f.URL)
	if f.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	fields := map[string]string{
		"url":             f.URL,
		"category":        strconv.FormatInt(f.Category, 10),
		"username":        f.Username,
		"tags":            f.Tags,
		"interval":        strconv.Itoa(f.Interval),
		"entriesToPull":   strconv.Itoa(f.EntriesToPull),
		"timestamp":       f.Timestamp,
		"contentMode":     f.ContentMode,
		"contentSelector": f.ContentSelector,
	}

	if err := s.db.SetObject(objectKey(f.URL), fields); err != nil {
		return fmt.Errorf("failed to save feed: %w", err)
	}
	if err := s.db.SetAdd(feedsSetKey, f.URL); err != nil {
		return fmt.Errorf("failed to register feed: %w", err)
	}
	return nil
}

// GetFeed returns the feed configured for the URL, or nil when the
// feed is unknown. Missing numeric fields fall back to their defaults
// (entriesToPull 4, content mode inline).
func (s *Store) GetFeed(url string) (*Feed, error) {
	url = CanonicalizeURL(url)

	fields, err := s.db.GetObject(objectKey(url))
	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}
	if fields == nil {
		return nil, nil
	}

	f := &Feed{
		URL:             url,
		Category:        parseInt64(fields["category"]),
		Username:        fields["username"],
		Tags:            fields["tags"],
		Interval:        int(parseInt64(fields["interval"])),
		EntriesToPull:   int(parseInt64(fields["entriesToPull"])),
		Timestamp:       fields["timestamp"],
		ContentMode:     fields["contentMode"],
		ContentSelector: fields["contentSelector"],
	}

	if f.EntriesToPull <= 0 {
		f.EntriesToPull = defaultPull
	}
	if f.ContentMode == "" {
		f.ContentMode = ModeInline
	}

	return f, nil
}

func (s *Store) ListFeedURLs() ([]string, error) {
	urls, err := s.db.GetSetMembers(feedsSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed URLs: %w", err)
	}
	return urls, nil
}

func (s *Store) ListFeeds() ([]Feed, error) {
	urls, err := s.ListFeedURLs()
	if err != nil {
		return nil, err
	}

	feeds := make([]Feed, 0, len(urls))
	for _, url := range urls {
		f, err := s.GetFeed(url)
		if err != nil {
			return nil, err
		}
		if f != nil {
			feeds = append(feeds, *f)
		}
	}
	return feeds, nil
}

// ListFeedsByInterval returns the feeds whose poll interval equals the
// given number of seconds.
func (s *Store) ListFeedsByInterval(interval int) ([]Feed, error) {
	feeds, err := s.ListFeeds()
	if err != nil {
		return nil, err
	}

	matched := make([]Feed, 0, len(feeds))
	for _, f := range feeds {
		if f.Interval == interval {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

// ListIntervals returns the distinct poll intervals of all configured
// feeds, zero values excluded.
func (s *Store) ListIntervals() ([]int, error) {
	feeds, err := s.ListFeeds()
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var intervals []int
	for _, f := range feeds {
		if f.Interval > 0 && !seen[f.Interval] {
			seen[f.Interval] = true
			intervals = append(intervals, f.Interval)
		}
	}
	return intervals, nil
}

func (s *Store) GetFeedCount() (int, error) {
	urls, err := s.ListFeedURLs()
	if err != nil {
		return 0, err
	}
	return len(urls), nil
}

// DeleteFeed removes the feed's configuration. The caller is expected
// to drop the feed's dedup ledger alongside.
func (s *Store) DeleteFeed(url string) error {
	url = CanonicalizeURL(url)

	if err := s.db.DeleteObjects([]string{objectKey(url)}); err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	if err := s.db.SetRemove(feedsSetKey, []string{url}); err != nil {
		return fmt.Errorf("failed to unregister feed: %w", err)
	}
	return nil
}

// DeleteAllFeeds removes every feed's configuration and clears the
// registry set. It returns the removed URLs so the caller can drop the
// matching dedup ledgers.
func (s *Store) DeleteAllFeeds() ([]string, error) {
	urls, err := s.ListFeedURLs()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(urls))
	for _, url := range urls {
		keys = append(keys, objectKey(url))
	}
	if err := s.db.DeleteObjects(keys); err != nil {
		return nil, fmt.Errorf("failed to delete feeds: %w", err)
	}
	if err := s.db.DeleteSet(feedsSetKey); err != nil {
		return nil, fmt.Errorf("failed to clear feed registry: %w", err)
	}
	return urls, nil
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
