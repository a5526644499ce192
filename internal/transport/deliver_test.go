package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	kind    string
	chatID  int64
	text    string
	photoID string
}

type recordingAdapter struct {
	Adapter

	out    []sent
	failOn string
}

func (a *recordingAdapter) SendText(_ context.Context, to ChatTarget, text string, _ *SendOptions) (MessageRef, error) {
	if a.failOn == "text" {
		return MessageRef{}, errors.New("boom")
	}
	a.out = append(a.out, sent{kind: "text", chatID: to.ChatID, text: text})
	return MessageRef{ChatID: to.ChatID, MessageID: len(a.out)}, nil
}

func (a *recordingAdapter) SendPhoto(_ context.Context, to ChatTarget, photoID, caption string, _ *SendOptions) (MessageRef, error) {
	if a.failOn == "photo" {
		return MessageRef{}, errors.New("boom")
	}
	a.out = append(a.out, sent{kind: "photo", chatID: to.ChatID, text: caption, photoID: photoID})
	return MessageRef{ChatID: to.ChatID, MessageID: len(a.out)}, nil
}

func TestPosterDeliver(t *testing.T) {
	long := strings.Repeat("é", MaxCaptionRunes+1)

	tests := []struct {
		name  string
		text  string
		photo string
		want  []sent
	}{
		{name: "text", text: " hello ", want: []sent{{kind: "text", chatID: 555, text: "hello"}}},
		{name: "photo with caption", text: "cap", photo: "F1", want: []sent{{kind: "photo", chatID: 555, text: "cap", photoID: "F1"}}},
		{name: "photo only", photo: "F1", want: []sent{{kind: "photo", chatID: 555, photoID: "F1"}}},
		{name: "long caption split", text: long, photo: "F1", want: []sent{
			{kind: "photo", chatID: 555, photoID: "F1"},
			{kind: "text", chatID: 555, text: long},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := &recordingAdapter{}
			require.NoError(t, NewPoster(ad).Deliver(context.Background(), 555, tt.text, tt.photo))
			assert.Equal(t, tt.want, ad.out)
		})
	}
}

func TestPosterDeliverErrors(t *testing.T) {
	ad := &recordingAdapter{}
	err := NewPoster(ad).Deliver(context.Background(), 1, "  ", "")
	assert.ErrorIs(t, err, ErrEmptyPost)
	assert.Empty(t, ad.out)

	ad = &recordingAdapter{failOn: "photo"}
	err = NewPoster(ad).Deliver(context.Background(), 1, "x", "F1")
	assert.Error(t, err)
	assert.Empty(t, ad.out)
}

func TestPosterDeliverTextTooLong(t *testing.T) {
	long := strings.Repeat("é", MaxTextRunes+1)
	for _, photo := range []string{"", "F1"} {
		ad := &recordingAdapter{}
		err := NewPoster(ad).Deliver(context.Background(), 1, long, photo)
		assert.ErrorIs(t, err, ErrTextTooLong)
		assert.Empty(t, ad.out, "nothing is sent when the text cannot go whole")
	}

	assert.NoError(t, CheckText(strings.Repeat("é", MaxTextRunes)))
}
