// Package forum defines the consumed forum services: topic creation,
// user lookup and anti-spam settings. The forum itself is an external
// system; this package only carries creation parameters across.
package forum

import (
	"context"
)

// FallbackUID is the system identity used when a feed's configured
// poster cannot be resolved.
const FallbackUID int64 = 1

const DefaultPostDelay = 10 // seconds

type TopicRequest struct {
	UID        int64
	Title      string
	Content    string
	CategoryID int64
	Tags       []string
}

type TopicResult struct {
	TopicID    int64
	PostID     int64
	CategoryID int64
	AuthorID   int64
}

// Settings carries the forum's anti-spam delays in seconds.
type Settings struct {
	PostDelay       int
	NewbiePostDelay int
}

type Client interface {
	// CreateTopic posts a new topic and returns the created topic and
	// post identifiers.
	CreateTopic(ctx context.Context, req TopicRequest) (*TopicResult, error)
	// UIDByUsername resolves a username to a uid; 0 means not found.
	UIDByUsername(ctx context.Context, username string) (int64, error)
	// SetUserField overwrites a single numeric field on a user.
	SetUserField(ctx context.Context, uid int64, field string, value int64) error
	// GetSettings returns the forum's anti-spam settings.
	GetSettings(ctx context.Context) (Settings, error)
}
