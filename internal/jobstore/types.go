package jobstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound    = errors.New("jobstore: not found")
	ErrInvalidTime = errors.New("jobstore: invalid time")
)

// Time is a wall-clock time of day in the scheduler's timezone.
type Time struct {
	Hour   int
	Minute int
}

func (t Time) Valid() bool { return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59 }

func (t Time) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// ParseTime parses "HH:MM".
func ParseTime(s string) (Time, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	t := Time{Hour: h, Minute: m}
	if err1 != nil || err2 != nil || !t.Valid() {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// Job is one scheduled post of a channel.
type Job struct {
	ID          int
	Text        string
	Photo       string // Telegram file id
	Time        Time
	Days        Days
	OwnerUserID int64
	Paused      bool
}

// HasContent reports whether the job carries text or a photo.
func (j Job) HasContent() bool { return strings.TrimSpace(j.Text) != "" || j.Photo != "" }

type Channel struct {
	ID    int64
	Title string
	Jobs  []Job
}

// NewJob carries the fields of a job to be added. The store assigns the id.
type NewJob struct {
	Text        string
	Photo       string
	Time        Time
	Days        Days
	OwnerUserID int64
}

// JobPatch updates only the non-nil fields.
type JobPatch struct {
	Text  *string
	Photo *string
	Time  *Time
	Days  *Days
}

// Result reports durability of a mutation that succeeded in memory.
type Result struct {
	Persisted bool
	Err       error
}

// DefaultTitle is used for channels created before their title is known.
func DefaultTitle(channelID int64) string { return "Channel " + strconv.FormatInt(channelID, 10) }

func (p JobPatch) apply(j *Job) {
	if p.Text != nil {
		j.Text = *p.Text
	}
	if p.Photo != nil {
		j.Photo = *p.Photo
	}
	if p.Time != nil {
		j.Time = *p.Time
	}
	if p.Days != nil {
		j.Days = *p.Days
	}
}

func cloneChannel(c *Channel) Channel {
	cp := *c
	cp.Jobs = append([]Job(nil), c.Jobs...)
	return cp
}
