package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "scheduler"))
	log.Info("trigger registered", Int64("chat_id", 555), Int("job_id", 1))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "scheduler", rec["comp"])
	assert.Equal(t, "trigger registered", rec["message"])
	assert.EqualValues(t, 555, rec["chat_id"])
	assert.EqualValues(t, 1, rec["job_id"])
	assert.Contains(t, rec["caller"], "logx_test.go:")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelDebug))
	assert.True(t, log.Enabled(LevelError))
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Error("nothing happens")
	assert.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning", zerolog.InfoLevel))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" debug ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus", zerolog.InfoLevel))
}

func TestFormatTelegramRecord(t *testing.T) {
	got := formatTelegramRecord([]byte(`{"level":"warn","message":"deliver failed","chat_id":555,"time":"x"}`))
	assert.Equal(t, "[WARN] deliver failed\n- chat_id=555", got)
	assert.Equal(t, "plain", formatTelegramRecord([]byte("plain\n")))
}
