package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// Store is the in-memory channel table backed by a storage.Backend.
// Every mutation saves the whole table synchronously; a failed save keeps
// the in-memory change and is reported through Result.
type Store struct {
	backend storage.Backend
	log     logx.Logger

	mu       sync.RWMutex
	channels map[int64]*Channel
	dirty    bool // last save failed
}

// New creates an empty store. backend may be nil for a memory-only table.
func New(backend storage.Backend, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{backend: backend, log: log, channels: map[int64]*Channel{}}
}

// Load replaces the table with the backend contents. Missing or unreadable
// storage leaves an empty table; it never fails.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = map[int64]*Channel{}
	if s.backend == nil {
		return
	}

	snap, err := s.backend.Load(ctx)
	if err != nil {
		s.log.Warn("store load failed; starting empty", logx.Err(err))
		return
	}
	jobs := 0
	for id, rec := range snap {
		ch := &Channel{ID: id, Title: rec.Title, Jobs: make([]Job, 0, len(rec.Jobs))}
		seen := make(map[int]bool, len(rec.Jobs))
		for _, jr := range rec.Jobs {
			j, err := fromRecord(jr)
			if err == nil && seen[j.ID] {
				err = fmt.Errorf("duplicate job id %d", j.ID)
			}
			if err != nil {
				s.log.Warn("stored job skipped", logx.Int64("channel_id", id), logx.Int("job_id", jr.ID), logx.Err(err))
				continue
			}
			seen[j.ID] = true
			ch.Jobs = append(ch.Jobs, j)
		}
		sort.SliceStable(ch.Jobs, func(a, b int) bool { return ch.Jobs[a].ID < ch.Jobs[b].ID })
		s.channels[id] = ch
		jobs += len(ch.Jobs)
	}
	s.log.Info("store loaded", logx.Int("channels", len(s.channels)), logx.Int("jobs", jobs))
}

// Save writes the full table.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx).Err
}

func (s *Store) saveLocked(ctx context.Context) Result {
	if s.backend == nil {
		return Result{}
	}
	if err := s.backend.Save(ctx, s.snapshotLocked()); err != nil {
		s.dirty = true
		s.log.Error("store save failed", logx.Err(err))
		return Result{Err: fmt.Errorf("save: %w", err)}
	}
	s.dirty = false
	return Result{Persisted: true}
}

// unchangedLocked reports durability for a call that mutated nothing.
func (s *Store) unchangedLocked() Result {
	return Result{Persisted: s.backend != nil && !s.dirty}
}

func (s *Store) snapshotLocked() storage.Snapshot {
	snap := make(storage.Snapshot, len(s.channels))
	for id, ch := range s.channels {
		rec := storage.ChannelRecord{Title: ch.Title, Jobs: make([]storage.JobRecord, 0, len(ch.Jobs))}
		for _, j := range ch.Jobs {
			rec.Jobs = append(rec.Jobs, toRecord(j))
		}
		snap[id] = rec
	}
	return snap
}

func (s *Store) channelLocked(id int64) *Channel {
	ch, ok := s.channels[id]
	if !ok {
		ch = &Channel{ID: id, Title: DefaultTitle(id)}
		s.channels[id] = ch
	}
	return ch
}

// EnsureChannel creates the channel or updates its title. An empty title
// keeps the current one.
func (s *Store) EnsureChannel(ctx context.Context, id int64, title string) (Channel, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, existed := s.channels[id]
	if existed && (title == "" || title == ch.Title) {
		return cloneChannel(ch), s.unchangedLocked()
	}
	ch = s.channelLocked(id)
	if title != "" {
		ch.Title = title
	}
	return cloneChannel(ch), s.saveLocked(ctx)
}

// AddJob appends a job with id max(existing)+1 (1 for an empty channel),
// creating the channel if needed.
func (s *Store) AddJob(ctx context.Context, channelID int64, in NewJob) (Job, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channelLocked(channelID)
	next := 1
	for _, j := range ch.Jobs {
		if j.ID >= next {
			next = j.ID + 1
		}
	}
	job := Job{
		ID:          next,
		Text:        in.Text,
		Photo:       in.Photo,
		Time:        in.Time,
		Days:        in.Days,
		OwnerUserID: in.OwnerUserID,
	}
	ch.Jobs = append(ch.Jobs, job)
	return job, s.saveLocked(ctx)
}

func (s *Store) jobLocked(channelID int64, jobID int) (*Channel, int, error) {
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, -1, fmt.Errorf("%w: channel %d", ErrNotFound, channelID)
	}
	for i := range ch.Jobs {
		if ch.Jobs[i].ID == jobID {
			return ch, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: job %d in channel %d", ErrNotFound, jobID, channelID)
}

func (s *Store) UpdateJob(ctx context.Context, channelID int64, jobID int, patch JobPatch) (Job, Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, i, err := s.jobLocked(channelID, jobID)
	if err != nil {
		return Job{}, Result{}, err
	}
	patch.apply(&ch.Jobs[i])
	return ch.Jobs[i], s.saveLocked(ctx), nil
}

// RemoveJob deletes the job; the channel stays, possibly with no jobs.
func (s *Store) RemoveJob(ctx context.Context, channelID int64, jobID int) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, i, err := s.jobLocked(channelID, jobID)
	if err != nil {
		return Result{}, err
	}
	ch.Jobs = append(ch.Jobs[:i], ch.Jobs[i+1:]...)
	return s.saveLocked(ctx), nil
}

func (s *Store) SetPaused(ctx context.Context, channelID int64, jobID int, paused bool) (Job, Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, i, err := s.jobLocked(channelID, jobID)
	if err != nil {
		return Job{}, Result{}, err
	}
	if ch.Jobs[i].Paused == paused {
		return ch.Jobs[i], s.unchangedLocked(), nil
	}
	ch.Jobs[i].Paused = paused
	return ch.Jobs[i], s.saveLocked(ctx), nil
}

// ListJobs returns a copy of the channel's jobs; empty for an unknown channel.
func (s *Store) ListJobs(channelID int64) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return []Job{}
	}
	return append([]Job{}, ch.Jobs...)
}

func (s *Store) Job(channelID int64, jobID int) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, i, err := s.jobLocked(channelID, jobID)
	if err != nil {
		return Job{}, err
	}
	return ch.Jobs[i], nil
}

func (s *Store) Channel(id int64) (Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return Channel{}, false
	}
	return cloneChannel(ch), true
}

// Channels returns copies ordered by title, then id.
func (s *Store) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, cloneChannel(ch))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Title != out[b].Title {
			return out[a].Title < out[b].Title
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// ChannelJob pairs a job with its channel id.
type ChannelJob struct {
	ChannelID int64
	Job       Job
}

// AllJobs lists every stored job, ordered by channel id then job id.
func (s *Store) AllJobs() []ChannelJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var out []ChannelJob
	for _, id := range ids {
		for _, j := range s.channels[id].Jobs {
			out = append(out, ChannelJob{ChannelID: id, Job: j})
		}
	}
	return out
}

func toRecord(j Job) storage.JobRecord {
	return storage.JobRecord{
		ID:     j.ID,
		Text:   j.Text,
		Photo:  j.Photo,
		Time:   j.Time.String(),
		Days:   j.Days.Slice(),
		UserID: j.OwnerUserID,
		Paused: j.Paused,
	}
}

// fromRecord rebuilds a stored job and rejects any record that breaks the
// committed-job invariant.
func fromRecord(r storage.JobRecord) (Job, error) {
	if r.ID <= 0 {
		return Job{}, fmt.Errorf("invalid job id %d", r.ID)
	}
	t, err := ParseTime(r.Time)
	if err != nil {
		return Job{}, err
	}
	var days Days
	for _, d := range r.Days {
		if d < 0 || d > 6 {
			return Job{}, fmt.Errorf("weekday %d out of range", d)
		}
		days = days.With(d)
	}
	if days.Empty() {
		return Job{}, errors.New("no weekdays")
	}
	j := Job{
		ID:          r.ID,
		Text:        r.Text,
		Photo:       r.Photo,
		Time:        t,
		Days:        days,
		OwnerUserID: r.UserID,
		Paused:      r.Paused,
	}
	if !j.HasContent() {
		return Job{}, errors.New("neither text nor photo")
	}
	return j, nil
}
