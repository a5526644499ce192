package wizard

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/jobstore"
)

func existing() *jobstore.Job {
	return &jobstore.Job{
		ID:   3,
		Text: "old",
		Time: jobstore.Time{Hour: 9, Minute: 0},
		Days: jobstore.NewDays(1, 3),
	}
}

func TestAddFlow(t *testing.T) {
	s := New(42, 555, ModeAdd, nil)
	assert.Equal(t, StepWaitText, s.Step)
	assert.True(t, s.Empty())

	assert.Equal(t, Reprompt, s.Text("   ", ""))
	assert.Equal(t, StepWaitText, s.Step)

	assert.Equal(t, Advanced, s.Text("hello", ""))
	assert.Equal(t, Advanced, s.SelectPeriod(PM))
	assert.Equal(t, Advanced, s.SelectHour(3))
	assert.Equal(t, Advanced, s.SelectMinute(30))
	assert.Equal(t, StepWaitDays, s.Step)

	for _, d := range []int{0, 2, 4} {
		assert.Equal(t, Updated, s.ToggleDay(d))
	}
	require.NoError(t, s.RequestCommit())

	nj := s.NewJob()
	assert.Equal(t, "hello", nj.Text)
	assert.Equal(t, jobstore.Time{Hour: 15, Minute: 30}, nj.Time)
	assert.Equal(t, jobstore.NewDays(0, 2, 4), nj.Days)
	assert.Equal(t, int64(42), nj.OwnerUserID)
}

func TestInputsOutsideStepAreIgnored(t *testing.T) {
	s := New(1, 2, ModeAdd, nil)
	assert.Equal(t, Ignored, s.SelectPeriod(AM))
	assert.Equal(t, Ignored, s.SelectHour(5))
	assert.Equal(t, Ignored, s.ToggleDay(1))
	assert.Equal(t, Ignored, s.ToggleAll())

	s.Text("x", "")
	assert.Equal(t, Ignored, s.SelectPeriod(PeriodUnset))
	s.SelectPeriod(AM)
	assert.Equal(t, Ignored, s.SelectHour(0))
	assert.Equal(t, Ignored, s.SelectHour(13))
	s.SelectHour(12)
	assert.Equal(t, Ignored, s.SelectMinute(7))
	assert.Equal(t, Ignored, s.SelectMinute(60))
	assert.Equal(t, Ignored, s.Text("late text", ""))
	assert.Equal(t, StepWaitMinute, s.Step)
	assert.Equal(t, "x", s.Draft.Text)
}

func TestTwelveHourConversion(t *testing.T) {
	cases := []struct {
		p    Period
		h    int
		want int
	}{
		{AM, 12, 0},
		{AM, 1, 1},
		{AM, 11, 11},
		{PM, 12, 12},
		{PM, 1, 13},
		{PM, 11, 23},
	}
	for _, tc := range cases {
		tm, ok := Draft{Period: tc.p, Hour12: tc.h, Minute: 5, MinuteSet: true}.Time()
		require.True(t, ok)
		assert.Equal(t, tc.want, tm.Hour, "%s %d", tc.p, tc.h)
	}
	_, ok := Draft{Period: AM, Hour12: 1}.Time()
	assert.False(t, ok)
}

func TestToggleAll(t *testing.T) {
	s := New(1, 2, ModeEditDays, existing())
	assert.Equal(t, StepWaitDays, s.Step)
	assert.Equal(t, jobstore.NewDays(1, 3), s.Draft.Days)

	s.ToggleAll()
	assert.Equal(t, jobstore.AllDays, s.Draft.Days)
	s.ToggleAll()
	assert.True(t, s.Draft.Days.Empty())
	s.ToggleAll()
	assert.Equal(t, jobstore.AllDays, s.Draft.Days)
}

func TestEmptyDaysRejected(t *testing.T) {
	s := New(1, 2, ModeEditDays, existing())
	s.ToggleDay(1)
	s.ToggleDay(3)
	before := *s

	err := s.RequestCommit()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{FieldDays}, verr.Missing)
	assert.Equal(t, before, *s)
}

func TestAddMissingFields(t *testing.T) {
	s := New(1, 2, ModeAdd, nil)
	err := s.RequestCommit()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{FieldContent, FieldPeriod, FieldHour, FieldMinute, FieldDays}, verr.Missing)
	assert.Contains(t, err.Error(), "text or photo")
}

func TestEditTextCommitsFromTextStep(t *testing.T) {
	s := New(1, 2, ModeEditText, existing())
	assert.Equal(t, Commit, s.Text("", "AgADphoto"))
	require.NoError(t, s.RequestCommit())

	p := s.Patch()
	require.NotNil(t, p.Text)
	require.NotNil(t, p.Photo)
	assert.Equal(t, "", *p.Text)
	assert.Equal(t, "AgADphoto", *p.Photo)
	assert.Nil(t, p.Time)
	assert.Nil(t, p.Days)
}

func TestEditTimeFlow(t *testing.T) {
	s := New(1, 2, ModeEditTime, existing())
	assert.Equal(t, StepWaitPeriod, s.Step)
	assert.Equal(t, 3, s.EditJobID)

	s.SelectPeriod(AM)
	s.SelectHour(7)
	s.SelectMinute(45)
	require.NoError(t, s.RequestCommit())

	p := s.Patch()
	assert.Nil(t, p.Text)
	require.NotNil(t, p.Time)
	assert.Equal(t, jobstore.Time{Hour: 7, Minute: 45}, *p.Time)
	require.NotNil(t, p.Days)
	assert.Equal(t, jobstore.NewDays(1, 3), *p.Days)
}

func TestEditAllFlow(t *testing.T) {
	s := New(1, 2, ModeEditAll, existing())
	assert.Equal(t, StepWaitText, s.Step)
	s.Text("new body", "")
	s.SelectPeriod(PM)
	s.SelectHour(12)
	s.SelectMinute(0)
	s.ToggleDay(6)
	require.NoError(t, s.RequestCommit())

	p := s.Patch()
	assert.Equal(t, "new body", *p.Text)
	assert.Equal(t, jobstore.Time{Hour: 12, Minute: 0}, *p.Time)
	assert.Equal(t, jobstore.NewDays(1, 3, 6), *p.Days)
}

func TestTextOverLimitRejected(t *testing.T) {
	s := New(42, 555, ModeAdd, nil)
	long := strings.Repeat("я", MaxTextRunes+1)

	assert.Equal(t, TooLong, s.Text(long, ""))
	assert.Equal(t, TooLong, s.Text(long, "photo-1"))
	assert.Equal(t, StepWaitText, s.Step)
	assert.True(t, s.Empty())

	assert.Equal(t, Advanced, s.Text(strings.Repeat("я", MaxTextRunes), ""))
	assert.Equal(t, StepWaitPeriod, s.Step)
}

func TestEditTextOverLimitDoesNotCommit(t *testing.T) {
	s := New(42, 555, ModeEditText, existing())
	assert.Equal(t, TooLong, s.Text(strings.Repeat("x", MaxTextRunes+10), ""))
	assert.Equal(t, StepWaitText, s.Step)
	assert.Empty(t, s.Draft.Text)
}
