package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
)

func TestClassifyMembership(t *testing.T) {
	tests := []struct {
		name     string
		from, to tele.MemberStatus
		want     membership
	}{
		{"added to channel", tele.Left, tele.Administrator, membershipJoined},
		{"added to group", tele.Left, tele.Member, membershipJoined},
		{"first contact", "", tele.Member, membershipJoined},
		{"re-added after kick", tele.Kicked, tele.Administrator, membershipJoined},
		{"promoted", tele.Member, tele.Administrator, membershipSame},
		{"demoted", tele.Administrator, tele.Member, membershipSame},
		{"removed", tele.Administrator, tele.Left, membershipLeft},
		{"kicked", tele.Member, tele.Kicked, membershipLeft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyMembership(tt.from, tt.to))
		})
	}
}

func TestJoinWindow(t *testing.T) {
	var w joinWindow
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	assert.True(t, w.first(-100, now))
	assert.False(t, w.first(-100, now.Add(time.Second)), "service message after my_chat_member")
	assert.True(t, w.first(-200, now.Add(time.Second)))
	assert.True(t, w.first(-100, now.Add(joinDedupWindow+time.Second)))

	w.forget(-200)
	assert.True(t, w.first(-200, now.Add(joinDedupWindow)), "re-add after removal")
}

func TestSendTextRefusesOverLimit(t *testing.T) {
	a := &Adapter{}
	_, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, strings.Repeat("a", kit.MaxTextRunes+1), nil)
	assert.ErrorIs(t, err, kit.ErrTextTooLong)
}
