package transport

import "context"

type UpdateKind string

const (
	UpdateMessage   UpdateKind = "message"
	UpdateCallback  UpdateKind = "callback"
	UpdateChatAdded UpdateKind = "chat_added"
)

type Update struct {
	Kind      UpdateKind
	Message   *Message
	Callback  *Callback
	ChatAdded *ChatAdded
}

// Message is a text or photo message sent to the bot in a private chat.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromName     string
	Text         string // message text, or photo caption
	PhotoID      string // Telegram file id of the largest photo size (empty if none)
	IsPrivate    bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// ChatAdded is emitted when the bot becomes a member/admin of a group or channel.
type ChatAdded struct {
	ChatID  int64
	Title   string
	ByID    int64
	Removed bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photoID, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// IsAdmin reports whether userID administers chatID. Lookup failures
	// must be reported as an error; callers treat them as "not admin".
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}
