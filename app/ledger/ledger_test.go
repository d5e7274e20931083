package ledger

import (
	"path/filepath"
	"testing"

	"github.com/feed2forum/feed2forum/app/database"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return New(db)
}

const feedURL = "http://example.com/rss"

func TestIsNewAndRecord(t *testing.T) {
	l := openTestLedger(t)

	isNew, err := l.IsNew(feedURL, "entry-1")
	if err != nil {
		t.Fatalf("IsNew failed: %v", err)
	}
	if !isNew {
		t.Error("Expected unrecorded entry to be new")
	}

	if err := l.Record(feedURL, "entry-1", 42); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	isNew, _ = l.IsNew(feedURL, "entry-1")
	if isNew {
		t.Error("Expected recorded entry to not be new")
	}

	topicID, ok, err := l.TopicID(feedURL, "entry-1")
	if err != nil {
		t.Fatalf("TopicID failed: %v", err)
	}
	if !ok || topicID != 42 {
		t.Errorf("Expected topic 42, got %d (ok=%v)", topicID, ok)
	}

	// Re-recording is a no-op in effect
	if err := l.Record(feedURL, "entry-1", 42); err != nil {
		t.Fatalf("Duplicate Record failed: %v", err)
	}
	size, _ := l.Size(feedURL)
	if size != 1 {
		t.Errorf("Expected ledger size 1, got %d", size)
	}
}

func TestLedgerIsScopedPerFeed(t *testing.T) {
	l := openTestLedger(t)

	l.Record("http://a.example.com/rss", "shared-id", 1)

	isNew, err := l.IsNew("http://b.example.com/rss", "shared-id")
	if err != nil {
		t.Fatalf("IsNew failed: %v", err)
	}
	if !isNew {
		t.Error("Expected identifier to be new for the other feed")
	}
}

func TestPurgeSweepsAllNamespaces(t *testing.T) {
	l := openTestLedger(t)

	urls := []string{"http://a.example.com/rss", "http://b.example.com/rss"}
	l.Record(urls[0], "entry-a", 7)
	l.Record(urls[0], "entry-b", 8)
	l.Record(urls[1], "entry-c", 7)

	if err := l.Purge(urls, 7); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	if isNew, _ := l.IsNew(urls[0], "entry-a"); !isNew {
		t.Error("Expected entry-a to be purged")
	}
	if isNew, _ := l.IsNew(urls[1], "entry-c"); !isNew {
		t.Error("Expected entry-c to be purged")
	}
	if isNew, _ := l.IsNew(urls[0], "entry-b"); isNew {
		t.Error("Expected entry-b (other topic) to survive")
	}
}

func TestDeleteFeed(t *testing.T) {
	l := openTestLedger(t)

	l.Record(feedURL, "entry-1", 1)
	l.Record(feedURL, "entry-2", 2)

	if err := l.DeleteFeed(feedURL); err != nil {
		t.Fatalf("DeleteFeed failed: %v", err)
	}

	size, err := l.Size(feedURL)
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 0 {
		t.Errorf("Expected empty ledger after delete, got %d entries", size)
	}
}
