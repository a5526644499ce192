package tgui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataRoundTrip(t *testing.T) {
	d := Data("w", "jb", "-1001234567890", "12")
	assert.Equal(t, "w:jb:-1001234567890:12", d)
	require.NoError(t, CheckData(d))

	ns, action, args, err := ParseData(d)
	require.NoError(t, err)
	assert.Equal(t, "w", ns)
	assert.Equal(t, "jb", action)
	assert.Equal(t, []string{"-1001234567890", "12"}, args)

	_, _, _, err = ParseData("nocolon")
	assert.ErrorIs(t, err, ErrCallbackDataInvalid)
	assert.ErrorIs(t, CheckData(string(make([]byte, 65))), ErrCallbackDataTooLong)
}

func TestTruncRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncRunes("héllo", 5))
	assert.Equal(t, "hé…", TruncRunes("héllo", 2))
	assert.Equal(t, "", TruncRunes("x", 0))
}

func TestBuilderEscapes(t *testing.T) {
	msg := New().Title("📅", "Jobs <b>").KV("Time", "15:30 & more").Line("a<b").Build()
	assert.Equal(t, "📅 <b>Jobs &lt;b&gt;</b>\n• <b>Time</b>: 15:30 &amp; more\na&lt;b", msg.Text)
	assert.Equal(t, "HTML", msg.Opt.ParseMode)
	assert.Nil(t, msg.Opt.ReplyMarkupAdapter)

	kb := NewInline().Grid(3, Btn("1", "a"), Btn("2", "b"), Btn("3", "c"), Btn("4", "d"))
	assert.Equal(t, 2, kb.Rows())
	msg = New().Line("x").Inline(kb).Build()
	assert.NotNil(t, msg.Opt.ReplyMarkupAdapter)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	p := Paginate(items, 1, 2)
	assert.Equal(t, []int{3, 4}, p.Items)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)
	assert.Equal(t, "Page 2/3", p.Label())

	p = Paginate(items, 9, 2)
	assert.Equal(t, 2, p.Index)
	assert.Equal(t, []int{5}, p.Items)

	empty := Paginate([]int{}, 0, 2)
	assert.Equal(t, 1, empty.Pages)
	assert.Empty(t, empty.Items)
}
