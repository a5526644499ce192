package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	"postbot/internal/jobstore"
	logx "postbot/pkg/logx"
)

const defaultDeliverTimeout = 30 * time.Second

func New(cfg Config, deliver Deliverer, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = defaultDeliverTimeout
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		deliver: deliver,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		regs:    map[Key]*registration{},
		runCtx:  context.Background(),
	}
	s.loc = loadLocation(cfg.Timezone, log)
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return s
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

// Location is the timezone job times are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// CronSpec renders a weekly trigger. Weekday index d (Monday=0) becomes
// cron day-of-week (d+1)%7 (Sunday=0).
func CronSpec(t jobstore.Time, days jobstore.Days) string {
	dows := make([]int, 0, 7)
	for _, d := range days.Slice() {
		dows = append(dows, (d+1)%7)
	}
	sort.Ints(dows)
	parts := make([]string, len(dows))
	for i, d := range dows {
		parts[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("%d %d * * %s", t.Minute, t.Hour, strings.Join(parts, ","))
}

// Start arms every registration on a new cron runner.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, r := range s.regs {
		s.addCronLocked(r)
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("triggers", len(s.regs)))
}

// Stop halts triggering and waits for running deliveries until ctx is done.
// Registrations are kept and re-armed by the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.runCancel
	for _, r := range s.regs {
		r.entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("stop timed out; canceling in-flight deliveries")
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Schedule replaces any trigger for (channelID, job.ID). A paused job ends
// up with no trigger.
func (s *Service) Schedule(channelID int64, job jobstore.Job) error {
	key := Key{ChannelID: channelID, JobID: job.ID}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	if job.Paused {
		s.log.Debug("job paused; not scheduled", logx.String("key", key.String()))
		return nil
	}
	if err := Check(channelID, job); err != nil {
		return err
	}

	spec := CronSpec(job.Time, job.Days)
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse %q: %w", spec, err)
	}
	r := &registration{
		key:     key,
		spec:    spec,
		sched:   sched,
		owner:   job.OwnerUserID,
		payload: Payload{Text: job.Text, Photo: job.Photo},
	}
	p := r.payload
	owner := r.owner
	r.job = cron.FuncJob(func() { s.fire(key, owner, p) })
	s.regs[key] = r
	if s.c != nil {
		s.addCronLocked(r)
	}
	s.log.Debug("job scheduled",
		logx.String("key", key.String()),
		logx.String("spec", spec),
		logx.Time("next", sched.Next(time.Now().In(s.loc))),
	)
	return nil
}

// Check reports whether job could be given a trigger, ignoring Paused.
func Check(channelID int64, job jobstore.Job) error {
	if !job.Time.Valid() || job.Days.Empty() {
		return fmt.Errorf("%w: %s", ErrInvalidJob, Key{ChannelID: channelID, JobID: job.ID})
	}
	return nil
}

// Unschedule cancels the trigger if present. It reports whether one existed.
func (s *Service) Unschedule(channelID int64, jobID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(Key{ChannelID: channelID, JobID: jobID})
}

// RescheduleAll registers every non-paused job. Failures are logged and
// skipped. It returns the number of armed triggers.
func (s *Service) RescheduleAll(jobs []jobstore.ChannelJob) int {
	armed := 0
	for _, cj := range jobs {
		if cj.Job.Paused {
			continue
		}
		if err := s.Schedule(cj.ChannelID, cj.Job); err != nil {
			s.log.Warn("reschedule failed",
				logx.Int64("channel_id", cj.ChannelID), logx.Int("job_id", cj.Job.ID), logx.Err(err))
			continue
		}
		armed++
	}
	s.log.Info("jobs rescheduled", logx.Int("armed", armed), logx.Int("total", len(jobs)))
	return armed
}

func (s *Service) Active(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.regs[key]
	return ok
}

// Next returns the next fire time of an active registration.
func (s *Service) Next(key Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[key]
	if !ok {
		return time.Time{}, false
	}
	return r.sched.Next(time.Now().In(s.loc)), true
}

// Entries lists registrations ordered by key with their next fire time.
func (s *Service) Entries() []TriggerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().In(s.loc)
	out := make([]TriggerInfo, 0, len(s.regs))
	for _, r := range s.regs {
		out = append(out, TriggerInfo{Key: r.key, Spec: r.spec, Next: r.sched.Next(now)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.ChannelID != out[j].Key.ChannelID {
			return out[i].Key.ChannelID < out[j].Key.ChannelID
		}
		return out[i].Key.JobID < out[j].Key.JobID
	})
	return out
}

func (s *Service) addCronLocked(r *registration) {
	r.entryID = s.c.Schedule(r.sched, r.job)
}

func (s *Service) removeLocked(key Key) bool {
	r, ok := s.regs[key]
	if !ok {
		return false
	}
	if s.c != nil && r.entryID != 0 {
		s.c.Remove(r.entryID)
	}
	delete(s.regs, key)
	s.log.Debug("job unscheduled", logx.String("key", key.String()))
	return true
}

// fire delivers one snapshot. Failures are logged and published; there is
// no retry.
func (s *Service) fire(key Key, owner int64, p Payload) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	log := s.log.With(logx.String("key", key.String()))
	start := time.Now()
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			log.Warn("delivery skipped", logx.Err(err))
			return
		}
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliverTimeout)
	err := s.deliver.Deliver(dctx, key.ChannelID, p.Text, p.Photo)
	cancel()

	d := Delivery{Key: key, OwnerID: owner, Took: time.Since(start), Err: err}
	if err != nil {
		log.Error("delivery failed", logx.Duration("took", d.Took), logx.Err(err))
		s.publish(EventPostFailed, d)
		return
	}
	log.Info("post delivered", logx.Duration("took", d.Took))
	s.publish(EventPostSent, d)
}

func (s *Service) publish(typ string, d Delivery) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: d})
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
