package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/feed2forum/feed2forum/app/feed"
	"github.com/feed2forum/feed2forum/app/ledger"
	"github.com/gin-gonic/gin"
)

func NewHandler(feedStore *feed.Store, l *ledger.Ledger, version string) *Handler {
	return &Handler{
		feedStore: feedStore,
		ledger:    l,
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"version":   h.version,
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedStore.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	feeds, err := h.feedStore.ListFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats := make([]map[string]interface{}, 0, len(feeds))
	for _, f := range feeds {
		feedInfo := map[string]interface{}{
			"url":          f.URL,
			"category":     f.Category,
			"interval":     (time.Duration(f.Interval) * time.Second).String(),
			"content_mode": f.ContentMode,
		}

		if size, err := h.ledger.Size(f.URL); err == nil {
			feedInfo["published_entries"] = size
		}

		stats = append(stats, feedInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": stats,
		"total": len(stats),
	})
}

// TopicPurged handles the forum's topic purge notification. The purged
// topic is removed from every feed ledger so its entries can be
// re-published on a later poll.
func (h *Handler) TopicPurged(c *gin.Context) {
	var payload topicPurgedPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Topic.TopicID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid topic id"})
		return
	}

	urls, err := h.feedStore.ListFeedURLs()
	if err != nil {
		slog.Error("Database error", "operation", "list_feed_urls", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := h.ledger.Purge(urls, payload.Topic.TopicID); err != nil {
		slog.Error("Error purging topic from ledgers", "topic", payload.Topic.TopicID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to purge topic"})
		return
	}

	slog.Info("Topic purged from ledgers", "topic", payload.Topic.TopicID, "feeds", len(urls))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"topic":   payload.Topic.TopicID,
	})
}
