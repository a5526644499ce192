// Package wizard holds the per-user dialog that collects the fields of a
// job. Transitions are pure: they only mutate the Session they are called on.
package wizard

import (
	"errors"
	"strings"
	"unicode/utf8"

	"postbot/internal/jobstore"
)

type Step int

const (
	StepWaitText Step = iota
	StepWaitPeriod
	StepWaitHour
	StepWaitMinute
	StepWaitDays
)

func (s Step) String() string {
	switch s {
	case StepWaitText:
		return "wait_text"
	case StepWaitPeriod:
		return "wait_period"
	case StepWaitHour:
		return "wait_hour"
	case StepWaitMinute:
		return "wait_minute"
	case StepWaitDays:
		return "wait_days"
	default:
		return "unknown"
	}
}

type Mode int

const (
	ModeAdd Mode = iota
	ModeEditText
	ModeEditTime
	ModeEditDays
	ModeEditAll
)

func (m Mode) String() string {
	switch m {
	case ModeAdd:
		return "add"
	case ModeEditText:
		return "edit_text"
	case ModeEditTime:
		return "edit_time"
	case ModeEditDays:
		return "edit_days"
	case ModeEditAll:
		return "edit_all"
	default:
		return "unknown"
	}
}

// IsEdit reports whether the mode changes an existing job.
func (m Mode) IsEdit() bool { return m != ModeAdd }

type Period int

const (
	PeriodUnset Period = iota
	AM
	PM
)

func (p Period) String() string {
	switch p {
	case AM:
		return "AM"
	case PM:
		return "PM"
	default:
		return ""
	}
}

// Outcome tells the caller what to render after an input.
type Outcome int

const (
	// Ignored: the input does not apply to the current step.
	Ignored Outcome = iota
	// Reprompt: the input was invalid; the step is unchanged.
	Reprompt
	// Advanced: the session moved to another step.
	Advanced
	// Updated: the step is unchanged but the draft changed (day toggles).
	Updated
	// Commit: the flow is complete; the caller should commit.
	Commit
	// TooLong: the text exceeds MaxTextRunes; the step is unchanged.
	TooLong
)

// MaxTextRunes is Telegram's message text limit. Longer posts could never be
// delivered whole, so they are refused at input.
const MaxTextRunes = 4096

// Minutes offered by the minute keyboard.
var Minutes = []int{0, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55}

var ErrNoSession = errors.New("wizard: no active session")

// Draft accumulates the answers.
type Draft struct {
	Text      string
	Photo     string
	Period    Period
	Hour12    int // 1-12, 0 when unset
	Minute    int
	MinuteSet bool
	Days      jobstore.Days
}

// Time converts the 12-hour answers into a time of day.
func (d Draft) Time() (jobstore.Time, bool) {
	if d.Period == PeriodUnset || d.Hour12 < 1 || d.Hour12 > 12 || !d.MinuteSet {
		return jobstore.Time{}, false
	}
	h := d.Hour12 % 12
	if d.Period == PM {
		h += 12
	}
	return jobstore.Time{Hour: h, Minute: d.Minute}, true
}

func (d Draft) hasContent() bool { return strings.TrimSpace(d.Text) != "" || d.Photo != "" }

type Session struct {
	UserID    int64
	ChannelID int64
	Mode      Mode
	EditJobID int // 0 for ModeAdd
	Step      Step
	Draft     Draft
}

// New starts a session. job must be the edited job for edit modes and is
// ignored for ModeAdd. Edit modes pre-seed the day set from the job.
func New(userID, channelID int64, mode Mode, job *jobstore.Job) *Session {
	s := &Session{UserID: userID, ChannelID: channelID, Mode: mode}
	if mode.IsEdit() && job != nil {
		s.EditJobID = job.ID
		s.Draft.Days = job.Days
	}
	switch mode {
	case ModeEditTime:
		s.Step = StepWaitPeriod
	case ModeEditDays:
		s.Step = StepWaitDays
	default:
		s.Step = StepWaitText
	}
	return s
}

// Empty reports whether nothing was collected beyond pre-seeded values.
func (s *Session) Empty() bool {
	d := s.Draft
	return !d.hasContent() && d.Period == PeriodUnset && d.Hour12 == 0 && !d.MinuteSet
}

// Text handles a message in the text step. Photo is a file id; text may be a caption.
func (s *Session) Text(text, photo string) Outcome {
	if s.Step != StepWaitText {
		return Ignored
	}
	text = strings.TrimSpace(text)
	if text == "" && photo == "" {
		return Reprompt
	}
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return TooLong
	}
	s.Draft.Text = text
	s.Draft.Photo = photo
	if s.Mode == ModeEditText {
		return Commit
	}
	s.Step = StepWaitPeriod
	return Advanced
}

func (s *Session) SelectPeriod(p Period) Outcome {
	if s.Step != StepWaitPeriod || (p != AM && p != PM) {
		return Ignored
	}
	s.Draft.Period = p
	s.Step = StepWaitHour
	return Advanced
}

func (s *Session) SelectHour(h int) Outcome {
	if s.Step != StepWaitHour || h < 1 || h > 12 {
		return Ignored
	}
	s.Draft.Hour12 = h
	s.Step = StepWaitMinute
	return Advanced
}

func (s *Session) SelectMinute(m int) Outcome {
	if s.Step != StepWaitMinute || m < 0 || m > 55 || m%5 != 0 {
		return Ignored
	}
	s.Draft.Minute = m
	s.Draft.MinuteSet = true
	s.Step = StepWaitDays
	return Advanced
}

func (s *Session) ToggleDay(d int) Outcome {
	if s.Step != StepWaitDays || d < 0 || d > 6 {
		return Ignored
	}
	s.Draft.Days = s.Draft.Days.Toggle(d)
	return Updated
}

func (s *Session) ToggleAll() Outcome {
	if s.Step != StepWaitDays {
		return Ignored
	}
	s.Draft.Days = s.Draft.Days.ToggleAll()
	return Updated
}

// RequestCommit checks the draft for the session's mode. It never changes
// the session.
func (s *Session) RequestCommit() error {
	if m := s.missing(); len(m) > 0 {
		return &ValidationError{Missing: m}
	}
	return nil
}

func (s *Session) missing() []string {
	d := s.Draft
	var out []string
	needContent := s.Mode == ModeAdd || s.Mode == ModeEditAll || s.Mode == ModeEditText
	needTime := s.Mode == ModeAdd || s.Mode == ModeEditAll || s.Mode == ModeEditTime
	needDays := s.Mode != ModeEditText

	if needContent && !d.hasContent() {
		out = append(out, FieldContent)
	}
	if needTime {
		if d.Period == PeriodUnset {
			out = append(out, FieldPeriod)
		}
		if d.Hour12 == 0 {
			out = append(out, FieldHour)
		}
		if !d.MinuteSet {
			out = append(out, FieldMinute)
		}
	}
	if needDays && d.Days.Empty() {
		out = append(out, FieldDays)
	}
	return out
}

// NewJob builds the job to add. Call only after RequestCommit succeeded.
func (s *Session) NewJob() jobstore.NewJob {
	t, _ := s.Draft.Time()
	return jobstore.NewJob{
		Text:        s.Draft.Text,
		Photo:       s.Draft.Photo,
		Time:        t,
		Days:        s.Draft.Days,
		OwnerUserID: s.UserID,
	}
}

// Patch builds the update for an edit mode: only the fields the mode collects.
func (s *Session) Patch() jobstore.JobPatch {
	var p jobstore.JobPatch
	d := s.Draft
	if s.Mode == ModeEditText || s.Mode == ModeEditAll {
		text, photo := d.Text, d.Photo
		p.Text, p.Photo = &text, &photo
	}
	if s.Mode == ModeEditTime || s.Mode == ModeEditAll {
		if t, ok := d.Time(); ok {
			p.Time = &t
		}
	}
	if s.Mode != ModeEditText {
		days := d.Days
		p.Days = &days
	}
	return p
}
