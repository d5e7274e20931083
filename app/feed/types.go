package feed

import (
	"time"
)

// Content modes

const (
	// ModeInline posts the entry's own content as the topic body.
	ModeInline = "inline"
	// ModeArticle fetches the linked page and posts the extracted
	// article region, converted to Markdown, with an attribution line.
	ModeArticle = "article"
)

// Feed is the persisted per-feed configuration. Identity is the
// canonicalized URL.
type Feed struct {
	URL             string `yaml:"url"`
	Category        int64  `yaml:"category"`
	Username        string `yaml:"username"`
	Tags            string `yaml:"tags"`     // comma-separated
	Interval        int    `yaml:"interval"` // seconds
	EntriesToPull   int    `yaml:"entries_to_pull"`
	Timestamp       string `yaml:"timestamp"`        // "feed" backdates topics to the entry date
	ContentMode     string `yaml:"content_mode"`     // inline | article
	ContentSelector string `yaml:"content_selector"` // CSS selector for article mode; empty uses readability
}

// Entry is one parsed feed item. Entries are transient per poll; only
// the identifier survives, in the dedup ledger.
type Entry struct {
	ID          string // stable identifier: guid, else link, else title
	Title       string
	Link        string
	Content     string
	PublishedAt time.Time
	Categories  []string
}
