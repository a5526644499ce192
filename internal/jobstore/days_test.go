package jobstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysToggle(t *testing.T) {
	d := NewDays(0, 2, 4)
	assert.Equal(t, []int{0, 2, 4}, d.Slice())

	d = d.Toggle(2)
	assert.False(t, d.Has(2))
	d = d.Toggle(2)
	assert.True(t, d.Has(2))

	assert.Equal(t, NewDays(1), NewDays(1, 1, 1))
	assert.Equal(t, NewDays(3), NewDays(3, 7, -1))
}

func TestDaysToggleAll(t *testing.T) {
	assert.Equal(t, AllDays, Days(0).ToggleAll())
	assert.Equal(t, AllDays, NewDays(1, 5).ToggleAll())
	assert.True(t, AllDays.ToggleAll().Empty())
	assert.Equal(t, 7, AllDays.Len())
}

func TestDaysString(t *testing.T) {
	assert.Equal(t, "none", Days(0).String())
	assert.Equal(t, "every day", AllDays.String())
	assert.Equal(t, "Mon, Wed, Fri", NewDays(4, 0, 2).String())
}

func TestDaysJSON(t *testing.T) {
	b, err := json.Marshal(NewDays(6, 0))
	require.NoError(t, err)
	assert.JSONEq(t, `[0,6]`, string(b))

	var d Days
	require.NoError(t, json.Unmarshal([]byte(`[4,4,1]`), &d))
	assert.Equal(t, NewDays(1, 4), d)
	assert.Error(t, json.Unmarshal([]byte(`[7]`), &d))
}

func TestParseTime(t *testing.T) {
	tm, err := ParseTime("09:05")
	require.NoError(t, err)
	assert.Equal(t, Time{Hour: 9, Minute: 5}, tm)
	assert.Equal(t, "09:05", tm.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd", "-1:00"} {
		_, err := ParseTime(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
}
