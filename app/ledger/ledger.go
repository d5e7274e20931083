// Package ledger tracks which feed entries have already been turned
// into topics. Each feed owns an ordered set keyed by its URL; members
// are entry identifiers scored by the topic id they produced, so a
// purged topic can be swept out of every feed's namespace by score.
package ledger

import (
	"fmt"

	"github.com/feed2forum/feed2forum/app/database"
)

type Ledger struct {
	db *database.DB
}

func New(db *database.DB) *Ledger {
	return &Ledger{db: db}
}

func Key(feedURL string) string {
	return "feed:" + feedURL + ":uuid"
}

// IsNew reports whether the identifier has not been recorded for the
// feed. An identifier present in the ledger is never reprocessed.
func (l *Ledger) IsNew(feedURL, id string) (bool, error) {
	isMember, err := l.db.IsSortedSetMember(Key(feedURL), id)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger membership: %w", err)
	}
	return !isMember, nil
}

// Record maps the entry identifier to the topic it produced.
// Re-recording an identifier is a no-op in effect.
func (l *Ledger) Record(feedURL, id string, topicID int64) error {
	if err := l.db.SortedSetAdd(Key(feedURL), topicID, id); err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

// TopicID returns the topic recorded for the identifier, if any.
func (l *Ledger) TopicID(feedURL, id string) (int64, bool, error) {
	return l.db.SortedSetScore(Key(feedURL), id)
}

// Purge removes ledger rows produced by the given topic from every
// feed namespace. The ledger does not track which feed produced a
// topic, so all namespaces are swept.
func (l *Ledger) Purge(feedURLs []string, topicID int64) error {
	keys := make([]string, 0, len(feedURLs))
	for _, url := range feedURLs {
		keys = append(keys, Key(url))
	}

	if err := l.db.SortedSetsRemoveRangeByScore(keys, topicID, topicID); err != nil {
		return fmt.Errorf("failed to purge topic from ledgers: %w", err)
	}
	return nil
}

// DeleteFeed drops the feed's entire ledger namespace.
func (l *Ledger) DeleteFeed(feedURL string) error {
	if err := l.db.DeleteSortedSet(Key(feedURL)); err != nil {
		return fmt.Errorf("failed to delete feed ledger: %w", err)
	}
	return nil
}

// Size returns the number of recorded entries for the feed.
func (l *Ledger) Size(feedURL string) (int, error) {
	return l.db.SortedSetCard(Key(feedURL))
}
