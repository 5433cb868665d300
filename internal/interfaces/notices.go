package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/ebbwatch/internal/models"
)

// FeedFetcher downloads the raw HTML of an operator's bulletin board page
type FeedFetcher interface {
	Fetch(ctx context.Context) (string, error)
	URL() string
}

// NoticeExtractor turns a raw EBB page into notices, in document order.
// Extraction never fails; unusable input yields no notices.
type NoticeExtractor interface {
	Extract(raw string) []*models.Notice
}

// SignalDetector selects the notices that are trading signals as of now
type SignalDetector interface {
	Detect(notices []*models.Notice, now time.Time) []*models.Notice
}

// NotificationSender delivers one notice to a chat channel
type NotificationSender interface {
	Send(ctx context.Context, notice *models.Notice) error
}

// PollRecorder observes the outcome of each poll cycle
type PollRecorder interface {
	RecordPoll(found, tradable, delivered, failed int, duration time.Duration, err error)
}
