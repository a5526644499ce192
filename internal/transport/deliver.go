package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxCaptionRunes is Telegram's photo caption limit.
	MaxCaptionRunes = 1024
	// MaxTextRunes is Telegram's message text limit.
	MaxTextRunes = 4096
)

var (
	ErrEmptyPost   = errors.New("post has neither text nor photo")
	ErrTextTooLong = errors.New("text exceeds the telegram message limit")
)

// CheckText rejects text Telegram would refuse or cut.
func CheckText(text string) error {
	if n := utf8.RuneCountInString(text); n > MaxTextRunes {
		return fmt.Errorf("%w: %d runes", ErrTextTooLong, n)
	}
	return nil
}

// Poster delivers scheduled posts through an Adapter.
type Poster struct {
	ad Adapter
}

func NewPoster(ad Adapter) *Poster { return &Poster{ad: ad} }

// Deliver sends text and/or photo to chatID. A caption over the photo limit
// is sent as a separate text message after the photo.
func (p *Poster) Deliver(ctx context.Context, chatID int64, text, photo string) error {
	to := ChatTarget{ChatID: chatID}
	text = strings.TrimSpace(text)
	// checked up front so a photo never goes out without its text
	if err := CheckText(text); err != nil {
		return err
	}
	if photo == "" {
		if text == "" {
			return ErrEmptyPost
		}
		_, err := p.ad.SendText(ctx, to, text, nil)
		return err
	}
	caption := text
	if utf8.RuneCountInString(text) > MaxCaptionRunes {
		caption = ""
	}
	if _, err := p.ad.SendPhoto(ctx, to, photo, caption, nil); err != nil {
		return err
	}
	if caption == "" && text != "" {
		_, err := p.ad.SendText(ctx, to, text, nil)
		return err
	}
	return nil
}
