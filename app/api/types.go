package api

import (
	"github.com/feed2forum/feed2forum/app/feed"
	"github.com/feed2forum/feed2forum/app/ledger"
)

type Handler struct {
	feedStore *feed.Store
	ledger    *ledger.Ledger
	version   string
}

// topicPurgedPayload mirrors the forum's topic purge webhook body.
type topicPurgedPayload struct {
	Topic struct {
		TopicID int64 `json:"tid"`
	} `json:"topic"`
}
