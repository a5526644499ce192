package adapter

import (
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
)

type membership int

const (
	membershipSame membership = iota
	membershipJoined
	membershipLeft
)

// classifyMembership maps a my_chat_member transition of the bot. Role
// changes while staying in the chat (member to admin) report membershipSame.
func classifyMembership(oldRole, newRole tele.MemberStatus) membership {
	was, is := inChat(oldRole), inChat(newRole)
	switch {
	case !was && is:
		return membershipJoined
	case was && !is:
		return membershipLeft
	default:
		return membershipSame
	}
}

func inChat(r tele.MemberStatus) bool {
	switch r {
	case tele.Creator, tele.Administrator, tele.Member, tele.Restricted:
		return true
	}
	return false
}

const joinDedupWindow = 2 * time.Minute

// joinWindow remembers recent joins per chat so the my_chat_member update and
// the group service message produce one "added" event.
type joinWindow struct {
	mu   sync.Mutex
	seen map[int64]time.Time
}

// first reports whether chatID has no join recorded within the window, and
// records this one.
func (w *joinWindow) first(chatID int64, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = map[int64]time.Time{}
	}
	for id, at := range w.seen {
		if now.Sub(at) >= joinDedupWindow {
			delete(w.seen, id)
		}
	}
	if _, ok := w.seen[chatID]; ok {
		return false
	}
	w.seen[chatID] = now
	return true
}

func (w *joinWindow) forget(chatID int64) {
	w.mu.Lock()
	delete(w.seen, chatID)
	w.mu.Unlock()
}
