package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"postbot/internal/jobstore"
	"postbot/internal/scheduler"
	"postbot/internal/wizard"
	logx "postbot/pkg/logx"
)

// AdminChecker answers whether a user administers a chat.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

type Options struct {
	// SuperAdmins pass every permission check.
	SuperAdmins    []int64
	DeliverTimeout time.Duration
}

// Service owns the job table, the live triggers and the wizard sessions.
// Mutations of the table and triggers run under one lock so stored state
// and triggers never disagree.
type Service struct {
	store   *jobstore.Store
	sched   *scheduler.Service
	deliver scheduler.Deliverer
	admins  AdminChecker
	opt     Options
	log     logx.Logger

	mu sync.Mutex // table + triggers

	sessMu   sync.Mutex
	sessions map[int64]*wizard.Session
	users    userLocks
}

// Step is the result of a wizard input.
type Step struct {
	Session   wizard.Session // state after the input
	Active    bool           // false once the session is gone
	Outcome   wizard.Outcome
	Committed *Commit
}

// Commit describes a successful wizard commit.
type Commit struct {
	ChannelID int64
	Job       jobstore.Job
	Added     bool
	Result    jobstore.Result
	// ScheduleErr is set when the job was stored but no trigger could be
	// registered for it.
	ScheduleErr error
}

func New(store *jobstore.Store, sched *scheduler.Service, deliver scheduler.Deliverer, admins AdminChecker, opt Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.DeliverTimeout <= 0 {
		opt.DeliverTimeout = 30 * time.Second
	}
	return &Service{
		store:    store,
		sched:    sched,
		deliver:  deliver,
		admins:   admins,
		opt:      opt,
		log:      log,
		sessions: map[int64]*wizard.Session{},
	}
}

// Rearm registers triggers for every stored, non-paused job.
func (s *Service) Rearm() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.RescheduleAll(s.store.AllJobs())
}

func (s *Service) Location() *time.Location { return s.sched.Location() }

func (s *Service) isSuperAdmin(userID int64) bool {
	for _, id := range s.opt.SuperAdmins {
		if id == userID {
			return true
		}
	}
	return false
}

// CanManage reports whether userID may change jobs of channelID. Lookup
// failures count as "no".
func (s *Service) CanManage(ctx context.Context, channelID, userID int64) bool {
	if s.isSuperAdmin(userID) {
		return true
	}
	if s.admins == nil {
		return false
	}
	ok, err := s.admins.IsAdmin(ctx, channelID, userID)
	if err != nil {
		s.log.Warn("admin check failed", logx.Int64("channel_id", channelID), logx.Int64("user_id", userID), logx.Err(err))
		return false
	}
	return ok
}

func (s *Service) authorize(ctx context.Context, channelID, userID int64) error {
	if !s.CanManage(ctx, channelID, userID) {
		return ErrPermission
	}
	return nil
}

// ---- sessions ----

// StartSession discards any session of userID and starts a new one. Edit
// modes require an existing job.
func (s *Service) StartSession(ctx context.Context, userID, channelID int64, mode wizard.Mode, jobID int) (wizard.Session, error) {
	if err := s.authorize(ctx, channelID, userID); err != nil {
		return wizard.Session{}, err
	}
	var job *jobstore.Job
	if mode.IsEdit() {
		j, err := s.store.Job(channelID, jobID)
		if err != nil {
			return wizard.Session{}, err
		}
		job = &j
	}

	unlock := s.users.lock(userID)
	defer unlock()

	sess := wizard.New(userID, channelID, mode, job)
	s.sessMu.Lock()
	prev := s.sessions[userID]
	s.sessions[userID] = sess
	s.sessMu.Unlock()

	if prev != nil && !prev.Empty() {
		s.log.Debug("wizard draft replaced",
			logx.Int64("user_id", userID),
			logx.String("prev_mode", prev.Mode.String()),
			logx.String("prev_step", prev.Step.String()),
		)
	}
	s.log.Debug("wizard started",
		logx.Int64("user_id", userID), logx.Int64("channel_id", channelID),
		logx.String("mode", mode.String()), logx.Int("job_id", jobID))
	return *sess, nil
}

// CancelSession drops the user's session; it reports whether one existed.
func (s *Service) CancelSession(userID int64) bool {
	unlock := s.users.lock(userID)
	defer unlock()
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	return ok
}

func (s *Service) Session(userID int64) (wizard.Session, bool) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return wizard.Session{}, false
	}
	return *sess, true
}

func (s *Service) session(userID int64) (*wizard.Session, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

// Text feeds a text or photo message to the user's session.
func (s *Service) Text(ctx context.Context, userID int64, text, photo string) (Step, error) {
	unlock := s.users.lock(userID)
	defer unlock()
	sess, err := s.session(userID)
	if err != nil {
		return Step{}, err
	}
	out := sess.Text(text, photo)
	if out == wizard.Commit {
		return s.commit(ctx, sess)
	}
	return Step{Session: *sess, Active: true, Outcome: out}, nil
}

// Choose applies a wizard button press (period, hour, minute, day toggles,
// commit). Other selections are rejected with ErrBadSelection.
func (s *Service) Choose(ctx context.Context, userID int64, sel Selection) (Step, error) {
	unlock := s.users.lock(userID)
	defer unlock()
	sess, err := s.session(userID)
	if err != nil {
		return Step{}, err
	}

	var out wizard.Outcome
	switch sel.Kind {
	case SelPeriod:
		out = sess.SelectPeriod(wizard.Period(sel.Value))
	case SelHour:
		out = sess.SelectHour(sel.Value)
	case SelMinute:
		out = sess.SelectMinute(sel.Value)
	case SelDay:
		out = sess.ToggleDay(sel.Value)
	case SelAllDays:
		out = sess.ToggleAll()
	case SelCommit:
		return s.commit(ctx, sess)
	default:
		return Step{}, fmt.Errorf("%w: kind %d is not a wizard input", ErrBadSelection, sel.Kind)
	}
	return Step{Session: *sess, Active: true, Outcome: out}, nil
}

// commit validates and applies the session. The caller holds the user lock.
// On any error the session is left as it was.
func (s *Service) commit(ctx context.Context, sess *wizard.Session) (Step, error) {
	keep := Step{Session: *sess, Active: true, Outcome: wizard.Reprompt}
	if err := sess.RequestCommit(); err != nil {
		return keep, err
	}
	if err := s.authorize(ctx, sess.ChannelID, sess.UserID); err != nil {
		return keep, err
	}

	s.mu.Lock()
	c := Commit{ChannelID: sess.ChannelID}
	if sess.Mode == wizard.ModeAdd {
		c.Job, c.Result = s.store.AddJob(ctx, sess.ChannelID, sess.NewJob())
		c.Added = true
	} else {
		s.sched.Unschedule(sess.ChannelID, sess.EditJobID)
		job, res, err := s.store.UpdateJob(ctx, sess.ChannelID, sess.EditJobID, sess.Patch())
		if err != nil {
			s.mu.Unlock()
			return keep, err
		}
		c.Job, c.Result = job, res
	}
	if !c.Job.Paused {
		if err := s.sched.Schedule(sess.ChannelID, c.Job); err != nil {
			c.ScheduleErr = err
			s.log.Error("schedule after commit failed",
				logx.Int64("channel_id", sess.ChannelID), logx.Int("job_id", c.Job.ID), logx.Err(err))
		}
	}
	s.mu.Unlock()

	s.sessMu.Lock()
	if s.sessions[sess.UserID] == sess {
		delete(s.sessions, sess.UserID)
	}
	s.sessMu.Unlock()

	s.log.Info("job committed",
		logx.Int64("channel_id", c.ChannelID), logx.Int("job_id", c.Job.ID),
		logx.String("mode", sess.Mode.String()), logx.Bool("persisted", c.Result.Persisted))
	return Step{Session: *sess, Outcome: wizard.Commit, Committed: &c}, nil
}

// ---- job actions ----

func (s *Service) Pause(ctx context.Context, userID, channelID int64, jobID int) (jobstore.Job, jobstore.Result, error) {
	if err := s.authorize(ctx, channelID, userID); err != nil {
		return jobstore.Job{}, jobstore.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, res, err := s.store.SetPaused(ctx, channelID, jobID, true)
	if err != nil {
		return job, res, err
	}
	s.sched.Unschedule(channelID, jobID)
	return job, res, nil
}

func (s *Service) Resume(ctx context.Context, userID, channelID int64, jobID int) (jobstore.Job, jobstore.Result, error) {
	if err := s.authorize(ctx, channelID, userID); err != nil {
		return jobstore.Job{}, jobstore.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.store.Job(channelID, jobID)
	if err != nil {
		return jobstore.Job{}, jobstore.Result{}, err
	}
	// refuse before touching the stored flag so a broken job stays paused
	if !cur.HasContent() {
		return cur, jobstore.Result{}, ErrEmptyJob
	}
	if err := scheduler.Check(channelID, cur); err != nil {
		return cur, jobstore.Result{}, err
	}
	job, res, err := s.store.SetPaused(ctx, channelID, jobID, false)
	if err != nil {
		return job, res, err
	}
	if err := s.sched.Schedule(channelID, job); err != nil {
		return job, res, err
	}
	return job, res, nil
}

func (s *Service) Delete(ctx context.Context, userID, channelID int64, jobID int) (jobstore.Result, error) {
	if err := s.authorize(ctx, channelID, userID); err != nil {
		return jobstore.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.store.Job(channelID, jobID); err != nil {
		return jobstore.Result{}, err
	}
	s.sched.Unschedule(channelID, jobID)
	return s.store.RemoveJob(ctx, channelID, jobID)
}

// SendNow delivers the stored payload immediately; the trigger is untouched.
func (s *Service) SendNow(ctx context.Context, userID, channelID int64, jobID int) error {
	if err := s.authorize(ctx, channelID, userID); err != nil {
		return err
	}
	job, err := s.store.Job(channelID, jobID)
	if err != nil {
		return err
	}
	if !job.HasContent() {
		return ErrEmptyJob
	}
	dctx, cancel := context.WithTimeout(ctx, s.opt.DeliverTimeout)
	defer cancel()
	if err := s.deliver.Deliver(dctx, channelID, job.Text, job.Photo); err != nil {
		return fmt.Errorf("send now: %w", err)
	}
	s.log.Info("job sent on demand", logx.Int64("channel_id", channelID), logx.Int("job_id", jobID), logx.Int64("user_id", userID))
	return nil
}

// ---- channels ----

// ChannelJoined records a chat the bot was added to.
func (s *Service) ChannelJoined(ctx context.Context, chatID int64, title string) (jobstore.Channel, jobstore.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, res := s.store.EnsureChannel(ctx, chatID, title)
	s.log.Info("channel registered", logx.Int64("channel_id", chatID), logx.String("title", ch.Title))
	return ch, res
}

// ManagedChannels lists known channels userID may manage.
func (s *Service) ManagedChannels(ctx context.Context, userID int64) []jobstore.Channel {
	all := s.store.Channels()
	out := make([]jobstore.Channel, 0, len(all))
	for _, ch := range all {
		if s.CanManage(ctx, ch.ID, userID) {
			out = append(out, ch)
		}
	}
	return out
}

func (s *Service) Channel(id int64) (jobstore.Channel, bool) { return s.store.Channel(id) }

func (s *Service) Jobs(channelID int64) []jobstore.Job { return s.store.ListJobs(channelID) }

func (s *Service) Job(channelID int64, jobID int) (jobstore.Job, error) {
	return s.store.Job(channelID, jobID)
}

// NextRun returns the next fire time of an active job.
func (s *Service) NextRun(channelID int64, jobID int) (time.Time, bool) {
	return s.sched.Next(scheduler.Key{ChannelID: channelID, JobID: jobID})
}

// IsValidation reports whether err is a wizard validation failure.
func IsValidation(err error) (*wizard.ValidationError, bool) {
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
