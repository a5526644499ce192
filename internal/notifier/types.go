package notifier

import (
	"context"
	"time"

	kit "postbot/internal/transport"
)

// Config controls the notice pipeline. Zero values pick defaults.
type Config struct {
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Notice is one message to a private chat.
type Notice struct {
	ChatID int64
	Text   string
	Opt    *kit.SendOptions
	// DedupKey suppresses repeats within the dedup window; empty disables.
	DedupKey string
}

// Sender is the subset of the transport adapter the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Event types published on the bus.
const (
	EventSent    = "notice.sent"
	EventFailed  = "notice.failed"
	EventDeduped = "notice.deduped"
)

// NoticeEvent is the Data of notifier bus events.
type NoticeEvent struct {
	ChatID int64     `json:"chat_id"`
	Key    string    `json:"key,omitempty"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
