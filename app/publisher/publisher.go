// Package publisher turns new feed entries into forum topics. An
// entry flows through validation, dedup, identity resolution, body
// building, topic creation, optional timestamp backdating, poster
// throttling and finally the ledger record. Every failure abandons
// only the entry at hand.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/feed2forum/feed2forum/app/feed"
	"github.com/feed2forum/feed2forum/app/forum"
	"github.com/feed2forum/feed2forum/app/ledger"
)

// IndexStore is the slice of the shared store used to rewrite the
// forum's time-ordered indexes when a topic is backdated.
type IndexStore interface {
	SetObjectField(key, field, value string) error
	SortedSetsAdd(keys []string, score int64, member string) error
}

type Publisher struct {
	ledger   *ledger.Ledger
	forum    forum.Client
	resolver *feed.Resolver
	index    IndexStore
	now      func() time.Time
}

func New(l *ledger.Ledger, forumClient forum.Client, resolver *feed.Resolver, index IndexStore) *Publisher {
	return &Publisher{
		ledger:   l,
		forum:    forumClient,
		resolver: resolver,
		index:    index,
		now:      time.Now,
	}
}

// PublishEntry posts one entry as a topic. It returns true when a
// topic was created; invalid and already-seen entries are skipped with
// a log line and no error. The ledger is only written after a
// successful create, so a failed publish is retried on the next poll.
func (p *Publisher) PublishEntry(ctx context.Context, f feed.Feed, e feed.Entry) (bool, error) {
	if !p.validate(f, e) {
		return false, nil
	}

	isNew, err := p.ledger.IsNew(f.URL, e.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	if !isNew {
		slog.Info("Entry is not new", "feed", f.URL, "id", e.ID, "title", e.Title)
		return false, nil
	}

	uid := p.resolvePoster(ctx, f.Username)

	slog.Info("Posting entry", "feed", f.URL, "title", e.Title, "published_at", e.PublishedAt)

	result, err := p.forum.CreateTopic(ctx, forum.TopicRequest{
		UID:        uid,
		Title:      e.Title,
		Content:    p.buildBody(ctx, f, e),
		CategoryID: f.Category,
		Tags:       buildTags(f.Tags, e.Categories),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create topic: %w", err)
	}

	if f.Timestamp == "feed" {
		p.backdate(result, e)
	}

	if err := p.throttlePoster(ctx, uid); err != nil {
		return false, err
	}

	if err := p.ledger.Record(f.URL, e.ID, result.TopicID); err != nil {
		return false, err
	}

	return true, nil
}

// validate applies the per-mode entry checks: article mode needs a
// link, inline mode needs content, both need a title.
func (p *Publisher) validate(f feed.Feed, e feed.Entry) bool {
	if f.ContentMode == feed.ModeArticle {
		if e.Link == "" {
			slog.Warn("Invalid link for entry", "feed", f.URL, "title", e.Title)
			return false
		}
	} else {
		if e.Content == "" {
			slog.Warn("Invalid content for entry", "feed", f.URL, "title", e.Title)
			return false
		}
	}

	if e.Title == "" {
		slog.Warn("Invalid title for entry", "feed", f.URL, "id", e.ID)
		return false
	}

	return true
}

func (p *Publisher) resolvePoster(ctx context.Context, username string) int64 {
	uid, err := p.forum.UIDByUsername(ctx, username)
	if err != nil {
		slog.Warn("Failed to resolve poster username", "username", username, "error", err)
		uid = 0
	}
	if uid == 0 {
		uid = forum.FallbackUID
	}
	return uid
}

func (p *Publisher) buildBody(ctx context.Context, f feed.Feed, e feed.Entry) string {
	if f.ContentMode != feed.ModeArticle {
		return e.Content
	}

	content := p.resolver.Resolve(ctx, e.Link, f.ContentSelector)
	return content + "\n\nVia: " + e.Link
}

// buildTags unions the feed's static tag list with the entry's
// category terms; empty terms are dropped.
func buildTags(feedTags string, categories []string) []string {
	var tags []string
	if feedTags != "" {
		tags = strings.Split(feedTags, ",")
	}
	for _, term := range categories {
		if term != "" {
			tags = append(tags, term)
		}
	}
	return tags
}

// backdate rewrites the created topic's and post's stored timestamp to
// the entry's declared publish date and re-scores them in every
// time-ordered index the forum maintains. Best effort: a failed index
// write is logged, the entry is not abandoned.
func (p *Publisher) backdate(result *forum.TopicResult, e feed.Entry) {
	publishedAt := e.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = p.now()
	}
	timestamp := publishedAt.UnixMilli()
	ts := strconv.FormatInt(timestamp, 10)

	tid := strconv.FormatInt(result.TopicID, 10)
	pid := strconv.FormatInt(result.PostID, 10)
	cid := strconv.FormatInt(result.CategoryID, 10)
	uid := strconv.FormatInt(result.AuthorID, 10)

	if err := p.index.SetObjectField("topic:"+tid, "timestamp", ts); err != nil {
		slog.Error("Failed to backdate topic", "tid", tid, "error", err)
	}
	err := p.index.SortedSetsAdd([]string{
		"topics:tid",
		"cid:" + cid + ":tids",
		"cid:" + cid + ":uid:" + uid + ":tids",
		"uid:" + uid + ":topics",
	}, timestamp, tid)
	if err != nil {
		slog.Error("Failed to reindex topic", "tid", tid, "error", err)
	}

	if err := p.index.SetObjectField("post:"+pid, "timestamp", ts); err != nil {
		slog.Error("Failed to backdate post", "pid", pid, "error", err)
	}
	err = p.index.SortedSetsAdd([]string{
		"posts:pid",
		"cid:" + cid + ":pids",
	}, timestamp, pid)
	if err != nil {
		slog.Error("Failed to reindex post", "pid", pid, "error", err)
	}
}

// throttlePoster rewinds the poster's last post time so the next real
// post by the same identity is not blocked by the forum's anti-spam
// delay.
func (p *Publisher) throttlePoster(ctx context.Context, uid int64) error {
	settings, err := p.forum.GetSettings(ctx)
	if err != nil {
		slog.Warn("Failed to fetch forum settings, using defaults", "error", err)
		settings = forum.Settings{PostDelay: forum.DefaultPostDelay, NewbiePostDelay: forum.DefaultPostDelay}
	}

	delay := max(settings.PostDelay, settings.NewbiePostDelay) + 1
	lastPostTime := p.now().UnixMilli() - int64(delay)*1000

	if err := p.forum.SetUserField(ctx, uid, "lastposttime", lastPostTime); err != nil {
		return fmt.Errorf("failed to throttle poster: %w", err)
	}
	return nil
}
