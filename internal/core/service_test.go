package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/jobstore"
	"postbot/internal/scheduler"
	"postbot/internal/wizard"
	logx "postbot/pkg/logx"
)

const (
	channel = int64(555)
	admin   = int64(42)
	visitor = int64(99)
)

type fakeAdmins struct {
	err error
}

func (f fakeAdmins) IsAdmin(_ context.Context, _ int64, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return userID == admin, nil
}

type fakeDeliverer struct {
	mu  sync.Mutex
	got []string
}

func (f *fakeDeliverer) Deliver(_ context.Context, chatID int64, text, photo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, text+photo)
	return nil
}

type fixture struct {
	svc     *Service
	store   *jobstore.Store
	sched   *scheduler.Service
	deliver *fakeDeliverer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	d := &fakeDeliverer{}
	store := jobstore.New(nil, logx.Nop())
	sched := scheduler.New(scheduler.Config{Timezone: "UTC"}, d, nil, logx.Nop())
	svc := New(store, sched, d, fakeAdmins{}, Options{DeliverTimeout: time.Second}, logx.Nop())
	return fixture{svc: svc, store: store, sched: sched, deliver: d}
}

func key(job int) scheduler.Key { return scheduler.Key{ChannelID: channel, JobID: job} }

// addJob drives the add flow: "hello", 3 PM, :30, Mon/Wed/Fri.
func (f fixture) addJob(t *testing.T) *Commit {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.StartSession(ctx, admin, channel, wizard.ModeAdd, 0)
	require.NoError(t, err)

	_, err = f.svc.Text(ctx, admin, "hello", "")
	require.NoError(t, err)
	for _, sel := range []Selection{
		Pick(SelPeriod, int(wizard.PM)),
		Pick(SelHour, 3),
		Pick(SelMinute, 30),
		Pick(SelDay, 0),
		Pick(SelDay, 2),
		Pick(SelDay, 4),
	} {
		_, err := f.svc.Choose(ctx, admin, sel)
		require.NoError(t, err)
	}
	step, err := f.svc.Choose(ctx, admin, Pick(SelCommit, 0))
	require.NoError(t, err)
	require.NotNil(t, step.Committed)
	assert.False(t, step.Active)
	return step.Committed
}

func TestAddCreatesJobAndOneTrigger(t *testing.T) {
	f := newFixture(t)
	c := f.addJob(t)

	assert.True(t, c.Added)
	assert.Equal(t, 1, c.Job.ID)
	assert.Equal(t, jobstore.Time{Hour: 15, Minute: 30}, c.Job.Time)
	assert.Equal(t, jobstore.NewDays(0, 2, 4), c.Job.Days)
	assert.Equal(t, admin, c.Job.OwnerUserID)

	entries := f.sched.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, key(1), entries[0].Key)
	assert.Equal(t, "30 15 * * 1,3,5", entries[0].Spec)

	_, ok := f.svc.Session(admin)
	assert.False(t, ok)
	ch, ok := f.svc.Channel(channel)
	require.True(t, ok)
	assert.Equal(t, "Channel 555", ch.Title)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()

	job, _, err := f.svc.Pause(ctx, admin, channel, 1)
	require.NoError(t, err)
	assert.True(t, job.Paused)
	assert.False(t, f.sched.Active(key(1)))

	job, _, err = f.svc.Resume(ctx, admin, channel, 1)
	require.NoError(t, err)
	assert.False(t, job.Paused)
	assert.True(t, f.sched.Active(key(1)))
	assert.Len(t, f.sched.Entries(), 1)
}

func TestResumeRefusesUnschedulableJob(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()

	_, _, err := f.svc.Pause(ctx, admin, channel, 1)
	require.NoError(t, err)
	var none jobstore.Days
	_, _, err = f.store.UpdateJob(ctx, channel, 1, jobstore.JobPatch{Days: &none})
	require.NoError(t, err)

	_, _, err = f.svc.Resume(ctx, admin, channel, 1)
	assert.ErrorIs(t, err, scheduler.ErrInvalidJob)
	stored, err := f.store.Job(channel, 1)
	require.NoError(t, err)
	assert.True(t, stored.Paused, "a refused resume leaves the job paused")
	assert.False(t, f.sched.Active(key(1)))

	days := jobstore.NewDays(1)
	empty := ""
	_, _, err = f.store.UpdateJob(ctx, channel, 1, jobstore.JobPatch{Days: &days, Text: &empty})
	require.NoError(t, err)
	_, _, err = f.svc.Resume(ctx, admin, channel, 1)
	assert.ErrorIs(t, err, ErrEmptyJob)
	stored, _ = f.store.Job(channel, 1)
	assert.True(t, stored.Paused)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()

	_, err := f.svc.Delete(ctx, admin, channel, 1)
	require.NoError(t, err)
	assert.Empty(t, f.svc.Jobs(channel))
	assert.Empty(t, f.sched.Entries())

	_, err = f.svc.Delete(ctx, admin, channel, 1)
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestEditTextKeepsTimeAndDays(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, admin, channel, wizard.ModeEditText, 1)
	require.NoError(t, err)
	step, err := f.svc.Text(ctx, admin, "new text", "")
	require.NoError(t, err)
	require.NotNil(t, step.Committed)
	assert.False(t, step.Committed.Added)

	job, err := f.svc.Job(channel, 1)
	require.NoError(t, err)
	assert.Equal(t, "new text", job.Text)
	assert.Equal(t, jobstore.Time{Hour: 15, Minute: 30}, job.Time)
	assert.Equal(t, jobstore.NewDays(0, 2, 4), job.Days)
	assert.Len(t, f.sched.Entries(), 1)
}

func TestCommitReportsScheduleFailure(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()
	var none jobstore.Days
	_, _, err := f.store.UpdateJob(ctx, channel, 1, jobstore.JobPatch{Days: &none})
	require.NoError(t, err)
	f.sched.Unschedule(channel, 1)

	_, err = f.svc.StartSession(ctx, admin, channel, wizard.ModeEditText, 1)
	require.NoError(t, err)
	step, err := f.svc.Text(ctx, admin, "still stored", "")
	require.NoError(t, err)
	require.NotNil(t, step.Committed)
	assert.ErrorIs(t, step.Committed.ScheduleErr, scheduler.ErrInvalidJob)
	assert.Equal(t, "still stored", step.Committed.Job.Text)
	assert.False(t, f.sched.Active(key(1)))

	c := f.addJob(t)
	assert.NoError(t, c.ScheduleErr)
}

func TestEditPausedJobStaysUnscheduled(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()
	_, _, err := f.svc.Pause(ctx, admin, channel, 1)
	require.NoError(t, err)

	_, err = f.svc.StartSession(ctx, admin, channel, wizard.ModeEditDays, 1)
	require.NoError(t, err)
	_, err = f.svc.Choose(ctx, admin, Pick(SelDay, 6))
	require.NoError(t, err)
	step, err := f.svc.Choose(ctx, admin, Pick(SelCommit, 0))
	require.NoError(t, err)
	assert.Equal(t, jobstore.NewDays(0, 2, 4, 6), step.Committed.Job.Days)
	assert.False(t, f.sched.Active(key(1)))
}

func TestValidationFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, admin, channel, wizard.ModeEditDays, 1)
	require.NoError(t, err)
	for _, d := range []int{0, 2, 4} {
		_, err = f.svc.Choose(ctx, admin, Pick(SelDay, d))
		require.NoError(t, err)
	}
	before, _ := f.svc.Session(admin)

	step, err := f.svc.Choose(ctx, admin, Pick(SelCommit, 0))
	verr, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{wizard.FieldDays}, verr.Missing)
	assert.True(t, step.Active)

	after, ok := f.svc.Session(admin)
	require.True(t, ok)
	assert.Equal(t, before, after)

	job, _ := f.svc.Job(channel, 1)
	assert.Equal(t, jobstore.NewDays(0, 2, 4), job.Days)
	assert.True(t, f.sched.Active(key(1)))
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, visitor, channel, wizard.ModeAdd, 0)
	assert.ErrorIs(t, err, ErrPermission)
	_, _, err = f.svc.Pause(ctx, visitor, channel, 1)
	assert.ErrorIs(t, err, ErrPermission)
	_, err = f.svc.Delete(ctx, visitor, channel, 1)
	assert.ErrorIs(t, err, ErrPermission)
	assert.ErrorIs(t, f.svc.SendNow(ctx, visitor, channel, 1), ErrPermission)

	assert.Len(t, f.svc.Jobs(channel), 1)
	assert.True(t, f.sched.Active(key(1)))
}

func TestAdminLookupFailureDenies(t *testing.T) {
	d := &fakeDeliverer{}
	store := jobstore.New(nil, logx.Nop())
	sched := scheduler.New(scheduler.Config{}, d, nil, logx.Nop())
	svc := New(store, sched, d, fakeAdmins{err: errors.New("telegram down")}, Options{SuperAdmins: []int64{7}}, logx.Nop())

	assert.False(t, svc.CanManage(context.Background(), channel, admin))
	assert.True(t, svc.CanManage(context.Background(), channel, 7))
}

func TestNewSessionReplacesOld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, admin, channel, wizard.ModeAdd, 0)
	require.NoError(t, err)
	_, err = f.svc.Text(ctx, admin, "draft", "")
	require.NoError(t, err)

	sess, err := f.svc.StartSession(ctx, admin, channel, wizard.ModeAdd, 0)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepWaitText, sess.Step)
	assert.Empty(t, sess.Draft.Text)

	assert.True(t, f.svc.CancelSession(admin))
	assert.False(t, f.svc.CancelSession(admin))
	_, err = f.svc.Text(ctx, admin, "orphan", "")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestEditUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartSession(context.Background(), admin, channel, wizard.ModeEditAll, 9)
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
	_, ok := f.svc.Session(admin)
	assert.False(t, ok)
}

func TestChooseRejectsNavigation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartSession(ctx, admin, channel, wizard.ModeAdd, 0)
	require.NoError(t, err)
	_, err = f.svc.Choose(ctx, admin, OpenChannel(channel))
	assert.ErrorIs(t, err, ErrBadSelection)
}

func TestSendNow(t *testing.T) {
	f := newFixture(t)
	f.addJob(t)
	require.NoError(t, f.svc.SendNow(context.Background(), admin, channel, 1))
	assert.Equal(t, []string{"hello"}, f.deliver.got)
	assert.True(t, f.sched.Active(key(1)))
}

func TestRearm(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{}
	store := jobstore.New(nil, logx.Nop())
	store.AddJob(ctx, channel, jobstore.NewJob{Text: "a", Time: jobstore.Time{Hour: 1}, Days: jobstore.NewDays(0)})
	store.AddJob(ctx, channel, jobstore.NewJob{Text: "b", Time: jobstore.Time{Hour: 2}, Days: jobstore.NewDays(1)})
	_, _, err := store.SetPaused(ctx, channel, 2, true)
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{}, d, nil, logx.Nop())
	svc := New(store, sched, d, fakeAdmins{}, Options{}, logx.Nop())
	assert.Equal(t, 1, svc.Rearm())
	assert.True(t, sched.Active(key(1)))
	assert.False(t, sched.Active(key(2)))
}

func TestManagedChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.ChannelJoined(ctx, -100, "News")
	f.svc.ChannelJoined(ctx, -200, "")

	assert.Len(t, f.svc.ManagedChannels(ctx, admin), 2)
	assert.Empty(t, f.svc.ManagedChannels(ctx, visitor))
}
