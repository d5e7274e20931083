package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/feed2forum/feed2forum/app/feed"
	"github.com/feed2forum/feed2forum/app/publisher"
)

// PullFeedsTask processes every feed configured for one poll interval:
// fetch, reorder to oldest-first, publish entry by entry. One feed's
// failure never touches the next feed, and one entry's failure never
// touches the next entry.
type PullFeedsTask struct {
	Task
	Interval  int
	feedStore *feed.Store
	fetcher   *feed.Fetcher
	publisher *publisher.Publisher
}

func NewPullFeedsTask(interval int, feedStore *feed.Store, fetcher *feed.Fetcher, pub *publisher.Publisher) *PullFeedsTask {
	return &PullFeedsTask{
		Task:      NewTask(TaskTypePullFeeds),
		Interval:  interval,
		feedStore: feedStore,
		fetcher:   fetcher,
		publisher: pub,
	}
}

func (t *PullFeedsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	feeds, err := t.feedStore.ListFeedsByInterval(t.Interval)
	if err != nil {
		return fmt.Errorf("failed to load feeds for interval: %w", err)
	}

	if len(feeds) == 0 {
		slog.Debug("No feeds configured for interval", "interval", t.Interval)
		return nil
	}

	posted := 0
	for _, f := range feeds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		posted += t.pullFeed(ctx, f)
	}

	slog.Info("Task completed",
		"type", string(t.GetType()),
		"interval", t.Interval,
		"duration", t.GetDuration(),
		"feeds", len(feeds),
		"posted", posted)

	return nil
}

// pullFeed runs one feed's pull-and-publish sequence and returns the
// number of topics created. A fetch failure abandons the feed for this
// cycle only.
func (t *PullFeedsTask) pullFeed(ctx context.Context, f feed.Feed) int {
	entries, err := t.fetcher.Fetch(ctx, f.URL, f.EntriesToPull)
	if err != nil {
		slog.Error("Unable to pull feed", "feed", f.URL, "error", err)
		return 0
	}

	// Feeds list newest-first; publish oldest-first.
	slices.Reverse(entries)

	posted := 0
	for _, entry := range entries {
		ok, err := t.publisher.PublishEntry(ctx, f, entry)
		if err != nil {
			slog.Error("Failed to publish entry", "feed", f.URL, "id", entry.ID, "title", entry.Title, "error", err)
			continue
		}
		if ok {
			posted++
		}
	}

	return posted
}
