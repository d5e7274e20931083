package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/feed2forum/feed2forum/app/database"
	"github.com/feed2forum/feed2forum/app/feed"
	"github.com/feed2forum/feed2forum/app/forum"
	"github.com/feed2forum/feed2forum/app/ledger"
)

// MockForumClient implements forum.Client for testing
type MockForumClient struct {
	users       map[string]int64
	settings    forum.Settings
	createErr   error
	created     []forum.TopicRequest
	userFields  map[string]int64
	nextTopicID int64
}

var _ forum.Client = (*MockForumClient)(nil)

func newMockForum() *MockForumClient {
	return &MockForumClient{
		users:       map[string]int64{"rssbot": 3},
		settings:    forum.Settings{PostDelay: 10, NewbiePostDelay: 10},
		userFields:  make(map[string]int64),
		nextTopicID: 100,
	}
}

func (m *MockForumClient) CreateTopic(ctx context.Context, req forum.TopicRequest) (*forum.TopicResult, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, req)
	m.nextTopicID++
	return &forum.TopicResult{
		TopicID:    m.nextTopicID,
		PostID:     m.nextTopicID + 1000,
		CategoryID: req.CategoryID,
		AuthorID:   req.UID,
	}, nil
}

func (m *MockForumClient) UIDByUsername(ctx context.Context, username string) (int64, error) {
	return m.users[username], nil
}

func (m *MockForumClient) SetUserField(ctx context.Context, uid int64, field string, value int64) error {
	m.userFields[fmt.Sprintf("%d:%s", uid, field)] = value
	return nil
}

func (m *MockForumClient) GetSettings(ctx context.Context) (forum.Settings, error) {
	return m.settings, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func newTestPublisher(t *testing.T, forumClient forum.Client) (*Publisher, *ledger.Ledger, *database.DB) {
	t.Helper()

	db := openTestDB(t)
	l := ledger.New(db)
	resolver := feed.NewResolver(&http.Client{}, "test-agent", 2*time.Second)
	return New(l, forumClient, resolver, db), l, db
}

func inlineFeed() feed.Feed {
	return feed.Feed{
		URL:           "http://example.com/rss",
		Category:      2,
		Username:      "rssbot",
		Tags:          "news,tech",
		Interval:      300,
		EntriesToPull: 4,
		ContentMode:   feed.ModeInline,
	}
}

func TestPublishInlineEntry(t *testing.T) {
	mock := newMockForum()
	p, l, _ := newTestPublisher(t, mock)

	entry := feed.Entry{
		ID:          "entry-1",
		Title:       "Hello World",
		Link:        "http://example.com/1",
		Content:     "Body text",
		PublishedAt: time.Now(),
		Categories:  []string{"golang", ""},
	}

	posted, err := p.PublishEntry(context.Background(), inlineFeed(), entry)
	if err != nil {
		t.Fatalf("PublishEntry failed: %v", err)
	}
	if !posted {
		t.Fatal("Expected entry to be posted")
	}

	if len(mock.created) != 1 {
		t.Fatalf("Expected 1 created topic, got %d", len(mock.created))
	}
	req := mock.created[0]
	if req.Title != "Hello World" || req.Content != "Body text" {
		t.Errorf("Unexpected topic request: %+v", req)
	}
	if req.UID != 3 {
		t.Errorf("Expected poster uid 3, got %d", req.UID)
	}
	if req.CategoryID != 2 {
		t.Errorf("Expected category 2, got %d", req.CategoryID)
	}

	// Static feed tags unioned with non-empty entry categories
	wantTags := []string{"news", "tech", "golang"}
	if len(req.Tags) != len(wantTags) {
		t.Fatalf("Expected tags %v, got %v", wantTags, req.Tags)
	}
	for i, tag := range wantTags {
		if req.Tags[i] != tag {
			t.Errorf("Expected tag %s at %d, got %s", tag, i, req.Tags[i])
		}
	}

	// Ledger records the topic id
	isNew, _ := l.IsNew("http://example.com/rss", "entry-1")
	if isNew {
		t.Error("Expected entry to be ledgered after publish")
	}
	topicID, ok, _ := l.TopicID("http://example.com/rss", "entry-1")
	if !ok || topicID != 101 {
		t.Errorf("Expected ledgered topic 101, got %d (ok=%v)", topicID, ok)
	}
}

func TestPublishDuplicateEntry(t *testing.T) {
	mock := newMockForum()
	p, _, _ := newTestPublisher(t, mock)

	entry := feed.Entry{ID: "entry-1", Title: "Hello", Content: "Body", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), inlineFeed(), entry)
	if err != nil || !posted {
		t.Fatalf("First publish failed: posted=%v err=%v", posted, err)
	}

	// Second pass finds the entry non-new
	posted, err = p.PublishEntry(context.Background(), inlineFeed(), entry)
	if err != nil {
		t.Fatalf("Second publish errored: %v", err)
	}
	if posted {
		t.Error("Expected duplicate entry to be skipped")
	}
	if len(mock.created) != 1 {
		t.Errorf("Expected exactly 1 topic, got %d", len(mock.created))
	}
}

func TestPublishMissingTitle(t *testing.T) {
	mock := newMockForum()
	p, l, _ := newTestPublisher(t, mock)

	entry := feed.Entry{ID: "entry-1", Content: "Body", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), inlineFeed(), entry)
	if err != nil {
		t.Fatalf("PublishEntry errored: %v", err)
	}
	if posted {
		t.Error("Expected untitled entry to be skipped")
	}
	if len(mock.created) != 0 {
		t.Errorf("Expected no topics, got %d", len(mock.created))
	}

	// Ledger unchanged
	if isNew, _ := l.IsNew("http://example.com/rss", "entry-1"); !isNew {
		t.Error("Expected ledger to be unchanged")
	}
}

func TestPublishMissingContentInlineMode(t *testing.T) {
	mock := newMockForum()
	p, l, _ := newTestPublisher(t, mock)

	entry := feed.Entry{ID: "entry-1", Title: "Hello", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), inlineFeed(), entry)
	if err != nil || posted {
		t.Fatalf("Expected contentless entry to be skipped: posted=%v err=%v", posted, err)
	}
	if len(mock.created) != 0 {
		t.Errorf("Expected no topics, got %d", len(mock.created))
	}
	if isNew, _ := l.IsNew("http://example.com/rss", "entry-1"); !isNew {
		t.Error("Expected ledger to be unchanged")
	}
}

func TestPublishMissingLinkArticleMode(t *testing.T) {
	mock := newMockForum()
	p, l, _ := newTestPublisher(t, mock)

	f := inlineFeed()
	f.ContentMode = feed.ModeArticle

	entry := feed.Entry{ID: "entry-1", Title: "Hello", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), f, entry)
	if err != nil || posted {
		t.Fatalf("Expected linkless entry to be skipped: posted=%v err=%v", posted, err)
	}
	if len(mock.created) != 0 {
		t.Errorf("Expected no topics, got %d", len(mock.created))
	}
	if isNew, _ := l.IsNew("http://example.com/rss", "entry-1"); !isNew {
		t.Error("Expected ledger to be unchanged")
	}
}

func TestPublishArticleModeResolverFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	mock := newMockForum()
	p, _, _ := newTestPublisher(t, mock)

	f := inlineFeed()
	f.ContentMode = feed.ModeArticle
	f.ContentSelector = ".entry-content"

	entry := feed.Entry{ID: "entry-1", Title: "Hello", Link: server.URL + "/article", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), f, entry)
	if err != nil {
		t.Fatalf("PublishEntry failed: %v", err)
	}
	if !posted {
		t.Fatal("Expected entry to be posted despite resolution failure")
	}

	// Body degrades to the attribution line alone
	want := "\n\nVia: " + server.URL + "/article"
	if mock.created[0].Content != want {
		t.Errorf("Expected attribution-only body %q, got %q", want, mock.created[0].Content)
	}
}

func TestPublishArticleModeExtractsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div class="entry-content"><p>Article body</p></div></body></html>`))
	}))
	defer server.Close()

	mock := newMockForum()
	p, _, _ := newTestPublisher(t, mock)

	f := inlineFeed()
	f.ContentMode = feed.ModeArticle
	f.ContentSelector = ".entry-content"

	entry := feed.Entry{ID: "entry-1", Title: "Hello", Link: server.URL + "/article", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), f, entry)
	if err != nil || !posted {
		t.Fatalf("PublishEntry failed: posted=%v err=%v", posted, err)
	}

	body := mock.created[0].Content
	if !strings.Contains(body, "Article body") {
		t.Errorf("Expected extracted content in body, got %q", body)
	}
	if !strings.Contains(body, "Via: "+server.URL+"/article") {
		t.Errorf("Expected attribution line in body, got %q", body)
	}
}

func TestPublishFallbackPoster(t *testing.T) {
	mock := newMockForum()
	p, _, _ := newTestPublisher(t, mock)

	f := inlineFeed()
	f.Username = "ghost"

	entry := feed.Entry{ID: "entry-1", Title: "Hello", Content: "Body", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), f, entry)
	if err != nil || !posted {
		t.Fatalf("PublishEntry failed: posted=%v err=%v", posted, err)
	}
	if mock.created[0].UID != forum.FallbackUID {
		t.Errorf("Expected fallback uid %d, got %d", forum.FallbackUID, mock.created[0].UID)
	}
}

func TestPublishFailureLeavesLedgerUnchanged(t *testing.T) {
	mock := newMockForum()
	mock.createErr = fmt.Errorf("forum rejected the topic")
	p, l, _ := newTestPublisher(t, mock)

	entry := feed.Entry{ID: "entry-1", Title: "Hello", Content: "Body", PublishedAt: time.Now()}

	posted, err := p.PublishEntry(context.Background(), inlineFeed(), entry)
	if err == nil {
		t.Error("Expected error from failed creation")
	}
	if posted {
		t.Error("Expected entry to not be posted")
	}

	// No ledger record, so the next poll retries
	if isNew, _ := l.IsNew("http://example.com/rss", "entry-1"); !isNew {
		t.Error("Expected ledger to be unchanged after publish failure")
	}
}

func TestPublishThrottlesPoster(t *testing.T) {
	mock := newMockForum()
	mock.settings = forum.Settings{PostDelay: 10, NewbiePostDelay: 25}
	p, _, _ := newTestPublisher(t, mock)

	fixedNow := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixedNow }

	entry := feed.Entry{ID: "entry-1", Title: "Hello", Content: "Body", PublishedAt: fixedNow}

	if _, err := p.PublishEntry(context.Background(), inlineFeed(), entry); err != nil {
		t.Fatalf("PublishEntry failed: %v", err)
	}

	// max(10, 25) + 1 = 26 seconds rewound from now, in milliseconds
	want := fixedNow.UnixMilli() - 26*1000
	got, ok := mock.userFields["3:lastposttime"]
	if !ok {
		t.Fatal("Expected lastposttime to be set")
	}
	if got != want {
		t.Errorf("Expected lastposttime %d, got %d", want, got)
	}
}

func TestPublishBackdatesToFeedDate(t *testing.T) {
	mock := newMockForum()
	p, _, db := newTestPublisher(t, mock)

	f := inlineFeed()
	f.Timestamp = "feed"

	publishedAt := time.Date(2020, 3, 15, 8, 30, 0, 0, time.UTC)
	entry := feed.Entry{ID: "entry-1", Title: "Hello", Content: "Body", PublishedAt: publishedAt}

	posted, err := p.PublishEntry(context.Background(), f, entry)
	if err != nil || !posted {
		t.Fatalf("PublishEntry failed: posted=%v err=%v", posted, err)
	}

	ts := publishedAt.UnixMilli()
	tsStr := fmt.Sprintf("%d", ts)

	// Topic and post objects carry the overridden timestamp
	if got, _ := db.GetObjectField("topic:101", "timestamp"); got != tsStr {
		t.Errorf("Expected topic timestamp %s, got %s", tsStr, got)
	}
	if got, _ := db.GetObjectField("post:1101", "timestamp"); got != tsStr {
		t.Errorf("Expected post timestamp %s, got %s", tsStr, got)
	}

	// Every time-ordered topic index holds the topic at the overridden score
	topicKeys := []string{"topics:tid", "cid:2:tids", "cid:2:uid:3:tids", "uid:3:topics"}
	for _, key := range topicKeys {
		score, ok, err := db.SortedSetScore(key, "101")
		if err != nil {
			t.Fatalf("SortedSetScore failed for %s: %v", key, err)
		}
		if !ok || score != ts {
			t.Errorf("Expected topic score %d in %s, got %d (ok=%v)", ts, key, score, ok)
		}
	}

	// And the post indexes hold the post
	postKeys := []string{"posts:pid", "cid:2:pids"}
	for _, key := range postKeys {
		score, ok, err := db.SortedSetScore(key, "1101")
		if err != nil {
			t.Fatalf("SortedSetScore failed for %s: %v", key, err)
		}
		if !ok || score != ts {
			t.Errorf("Expected post score %d in %s, got %d (ok=%v)", ts, key, score, ok)
		}
	}
}

func TestPublishDefaultTimestampPolicySkipsBackdating(t *testing.T) {
	mock := newMockForum()
	p, _, db := newTestPublisher(t, mock)

	entry := feed.Entry{
		ID: "entry-1", Title: "Hello", Content: "Body",
		PublishedAt: time.Date(2020, 3, 15, 8, 30, 0, 0, time.UTC),
	}

	if _, err := p.PublishEntry(context.Background(), inlineFeed(), entry); err != nil {
		t.Fatalf("PublishEntry failed: %v", err)
	}

	if got, _ := db.GetObjectField("topic:101", "timestamp"); got != "" {
		t.Errorf("Expected no timestamp override, got %s", got)
	}
	if _, ok, _ := db.SortedSetScore("topics:tid", "101"); ok {
		t.Error("Expected no index rewrite under default timestamp policy")
	}
}
