package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/eventbus"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int
	sent  []string
	calls int
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return kit.MessageRef{}, errors.New("flood wait")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), f.calls
}

func fastConfig() Config {
	return Config{
		RatePerSec:    100,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		DedupWindow:   time.Hour,
	}
}

func TestNotifyDelivers(t *testing.T) {
	snd := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, EventSent)
	defer unsub()

	s := New(fastConfig(), snd, bus, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	require.NoError(t, s.Notify(context.Background(), Notice{ChatID: 7, Text: "hello"}))

	select {
	case e := <-events:
		ev := e.Data.(NoticeEvent)
		assert.Equal(t, int64(7), ev.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("no sent event")
	}
	sent, _ := snd.snapshot()
	assert.Equal(t, []string{"hello"}, sent)
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	snd := &fakeSender{fails: 2}
	s := New(fastConfig(), snd, nil, logx.Nop())
	s.Start(context.Background())

	require.NoError(t, s.Notify(context.Background(), Notice{ChatID: 1, Text: "x"}))
	s.Stop(context.Background())

	sent, calls := snd.snapshot()
	assert.Equal(t, []string{"x"}, sent)
	assert.Equal(t, 3, calls)
}

func TestNotifyGivesUpAfterRetries(t *testing.T) {
	snd := &fakeSender{fails: 10}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, EventFailed)
	defer unsub()

	s := New(fastConfig(), snd, bus, logx.Nop())
	s.Start(context.Background())
	require.NoError(t, s.Notify(context.Background(), Notice{ChatID: 1, Text: "x"}))
	s.Stop(context.Background())

	_, calls := snd.snapshot()
	assert.Equal(t, 3, calls)
	select {
	case e := <-events:
		assert.Equal(t, "flood wait", e.Data.(NoticeEvent).Error)
	default:
		t.Fatal("no failed event")
	}
}

func TestNotifyDedup(t *testing.T) {
	snd := &fakeSender{}
	s := New(fastConfig(), snd, nil, logx.Nop())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, s.Notify(ctx, Notice{ChatID: 1, Text: "a", DedupKey: "k"}))
	require.NoError(t, s.Notify(ctx, Notice{ChatID: 1, Text: "b", DedupKey: "k"}))
	require.NoError(t, s.Notify(ctx, Notice{ChatID: 1, Text: "c", DedupKey: "other"}))
	now = now.Add(2 * time.Hour)
	require.NoError(t, s.Notify(ctx, Notice{ChatID: 1, Text: "d", DedupKey: "k"}))
	s.Stop(context.Background())

	sent, _ := snd.snapshot()
	assert.Equal(t, []string{"a", "c", "d"}, sent)
}

func TestDedupCap(t *testing.T) {
	cfg := fastConfig()
	cfg.DedupMaxEntries = 2
	s := New(cfg, &fakeSender{}, nil, logx.Nop())
	base := time.Now()
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	assert.True(t, s.dedupAllow("a"))
	assert.True(t, s.dedupAllow("b"))
	assert.True(t, s.dedupAllow("c"))
	assert.Len(t, s.dedup, 2)
	assert.True(t, s.dedupAllow("a"), "oldest entry was evicted")
}

func TestNotifyStopped(t *testing.T) {
	s := New(fastConfig(), &fakeSender{}, nil, logx.Nop())
	assert.ErrorIs(t, s.Notify(context.Background(), Notice{ChatID: 1, Text: "x"}), ErrStopped)

	s.Start(context.Background())
	s.Stop(context.Background())
	assert.ErrorIs(t, s.Notify(context.Background(), Notice{ChatID: 1, Text: "x"}), ErrStopped)
}

func TestRetryDelayBounds(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for i := 0; i < 20; i++ {
		d := retryDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 70*time.Millisecond)
		assert.LessOrEqual(t, d, 130*time.Millisecond)
		assert.LessOrEqual(t, retryDelay(cfg, 10), time.Second)
	}
}
