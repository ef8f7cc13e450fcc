package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, lvl zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(lvl)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestCategoriesAreNamedLoggers(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Stream("created message %s", "123")
	DispatchError("failed: %v", "boom")
	HistoryDebug("loaded %d turns", 4)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "stream", entries[0].LoggerName)
	assert.Equal(t, "created message 123", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	assert.Equal(t, "dispatch", entries[1].LoggerName)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)

	assert.Equal(t, "history", entries[2].LoggerName)
	assert.Equal(t, "loaded 4 turns", entries[2].Message)
}

func TestLevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	StreamDebug("hidden")
	Stream("hidden")
	StreamWarn("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestGetCachesLoggers(t *testing.T) {
	observe(t, zapcore.InfoLevel)

	assert.Same(t, Get(CategoryPlatform), Get(CategoryPlatform))
}

func TestDefaultIsNop(t *testing.T) {
	SetLogger(nil)
	assert.NotPanics(t, func() {
		Boot("nothing to see")
		Get(CategoryMetrics).Info("still nothing")
	})
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	err := Initialize(Config{Level: "loud"})
	require.Error(t, err)

	require.NoError(t, Initialize(Config{Level: "debug", Format: "console"}))
	assert.True(t, Root().Core().Enabled(zapcore.DebugLevel))
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	timer := StartTimer(CategoryGeneration, "generate")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Millisecond)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Contains(t, logs.All()[0].Message, "generate took")
}
