package jobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

type memBackend struct {
	mu      sync.Mutex
	snap    storage.Snapshot
	saves   int
	failErr error
}

func (b *memBackend) Load(context.Context) (storage.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snap == nil {
		return storage.Snapshot{}, nil
	}
	return b.snap, nil
}

func (b *memBackend) Save(_ context.Context, snap storage.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return b.failErr
	}
	b.snap = snap
	b.saves++
	return nil
}

func (b *memBackend) Close() error { return nil }

func sample() NewJob {
	return NewJob{Text: "hello", Time: Time{Hour: 15, Minute: 30}, Days: NewDays(0, 2, 4), OwnerUserID: 42}
}

func TestAddJobAssignsIDs(t *testing.T) {
	ctx := context.Background()
	st := New(&memBackend{}, logx.Nop())

	j1, res := st.AddJob(ctx, 555, sample())
	require.True(t, res.Persisted)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, j1.ID)

	j2, _ := st.AddJob(ctx, 555, sample())
	assert.Equal(t, 2, j2.ID)

	ch, ok := st.Channel(555)
	require.True(t, ok)
	assert.Equal(t, "Channel 555", ch.Title)

	// ids continue after the current maximum
	_, err := st.RemoveJob(ctx, 555, 1)
	require.NoError(t, err)
	j3, _ := st.AddJob(ctx, 555, sample())
	assert.Equal(t, 3, j3.ID)

	ids := []int{}
	for _, j := range st.ListJobs(555) {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []int{2, 3}, ids)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	st := New(&memBackend{}, logx.Nop())

	_, _, err := st.UpdateJob(ctx, 1, 1, JobPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.RemoveJob(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = st.SetPaused(ctx, 1, 1, true)
	assert.ErrorIs(t, err, ErrNotFound)

	st.AddJob(ctx, 1, sample())
	_, err = st.Job(1, 9)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, st.ListJobs(2))
}

func TestUpdateJobMergesSuppliedFields(t *testing.T) {
	ctx := context.Background()
	st := New(&memBackend{}, logx.Nop())
	j, _ := st.AddJob(ctx, 555, sample())

	text := "updated"
	got, res, err := st.UpdateJob(ctx, 555, j.ID, JobPatch{Text: &text})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, "updated", got.Text)
	assert.Equal(t, Time{Hour: 15, Minute: 30}, got.Time)
	assert.Equal(t, NewDays(0, 2, 4), got.Days)
	assert.Equal(t, int64(42), got.OwnerUserID)
}

func TestRemoveKeepsChannel(t *testing.T) {
	ctx := context.Background()
	st := New(&memBackend{}, logx.Nop())
	j, _ := st.AddJob(ctx, 555, sample())
	_, err := st.RemoveJob(ctx, 555, j.ID)
	require.NoError(t, err)

	_, ok := st.Channel(555)
	assert.True(t, ok)
	assert.Empty(t, st.ListJobs(555))
}

func TestListJobsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := New(nil, logx.Nop())
	st.AddJob(ctx, 555, sample())

	jobs := st.ListJobs(555)
	jobs[0].Text = "mutated"
	got, err := st.Job(555, 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
}

func TestPersistenceFailureKeepsMemoryChange(t *testing.T) {
	ctx := context.Background()
	b := &memBackend{failErr: errors.New("disk full")}
	st := New(b, logx.Nop())

	j, res := st.AddJob(ctx, 555, sample())
	assert.False(t, res.Persisted)
	require.Error(t, res.Err)
	assert.Len(t, st.ListJobs(555), 1)

	// nothing changed, but the table is still not durable
	_, res, err := st.SetPaused(ctx, 555, j.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Persisted)

	b.failErr = nil
	_, res, err = st.SetPaused(ctx, 555, j.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.True(t, b.snap[555].Jobs[0].Paused)
}

func TestEnsureChannel(t *testing.T) {
	ctx := context.Background()
	b := &memBackend{}
	st := New(b, logx.Nop())

	ch, res := st.EnsureChannel(ctx, -100, "")
	assert.True(t, res.Persisted)
	assert.Equal(t, "Channel -100", ch.Title)

	ch, _ = st.EnsureChannel(ctx, -100, "Daily news")
	assert.Equal(t, "Daily news", ch.Title)
	saves := b.saves

	ch, res = st.EnsureChannel(ctx, -100, "")
	assert.Equal(t, "Daily news", ch.Title)
	assert.True(t, res.Persisted)
	assert.Equal(t, saves, b.saves)
}

func TestLoadFromFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "channels.json")
	b, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	st := New(b, logx.Nop())
	st.Load(ctx)
	st.AddJob(ctx, 555, sample())
	photo := NewJob{Photo: "AgAD", Time: Time{Hour: 8, Minute: 5}, Days: NewDays(6), OwnerUserID: 7}
	st.AddJob(ctx, 555, photo)
	_, _, err = st.SetPaused(ctx, 555, 2, true)
	require.NoError(t, err)

	reloaded := New(b, logx.Nop())
	reloaded.Load(ctx)
	assert.Equal(t, st.ListJobs(555), reloaded.ListJobs(555))
	assert.Len(t, reloaded.AllJobs(), 2)
}

func TestLoadCorruptStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "channels.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"555": [`), 0o600))
	b, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	require.NoError(t, err)

	st := New(b, logx.Nop())
	st.Load(ctx)
	assert.Empty(t, st.Channels())

	j, res := st.AddJob(ctx, 555, sample())
	assert.True(t, res.Persisted)
	assert.Equal(t, 1, j.ID)
}

func TestLoadSkipsInvalidJobs(t *testing.T) {
	b := &memBackend{snap: storage.Snapshot{
		1: {Title: "A", Jobs: []storage.JobRecord{
			{ID: 2, Text: "ok", Time: "07:00", Days: []int{1}},
			{ID: 1, Text: "bad time", Time: "25:00", Days: []int{1}},
			{ID: 3, Text: "bad day", Time: "07:00", Days: []int{9}},
			{ID: 4, Text: "no days", Time: "07:00", Days: []int{}, Paused: true},
			{ID: 5, Text: "  ", Time: "07:00", Days: []int{1}},
			{ID: 2, Text: "duplicate", Time: "08:00", Days: []int{2}},
			{ID: 0, Text: "no id", Time: "07:00", Days: []int{1}},
			{ID: 6, Photo: "file-1", Time: "09:15", Days: []int{0, 6}},
		}},
	}}
	st := New(b, logx.Nop())
	st.Load(context.Background())

	jobs := st.ListJobs(1)
	require.Len(t, jobs, 2)
	assert.Equal(t, 2, jobs[0].ID)
	assert.Equal(t, "ok", jobs[0].Text)
	assert.Equal(t, 6, jobs[1].ID)
	for _, j := range jobs {
		assert.True(t, j.HasContent())
		assert.False(t, j.Days.Empty())
	}
}

func TestAllJobsOrdered(t *testing.T) {
	ctx := context.Background()
	st := New(nil, logx.Nop())
	st.AddJob(ctx, 20, sample())
	st.AddJob(ctx, 10, sample())
	st.AddJob(ctx, 10, sample())

	all := st.AllJobs()
	require.Len(t, all, 3)
	assert.Equal(t, int64(10), all[0].ChannelID)
	assert.Equal(t, 2, all[1].Job.ID)
	assert.Equal(t, int64(20), all[2].ChannelID)
}
