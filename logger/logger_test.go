package logger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  LogLevel
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			os.Setenv("CDP_LOG_LEVEL", tt.value)
			defer os.Unsetenv("CDP_LOG_LEVEL")
			assert.Equal(t, tt.want, GetLevelFromEnv())
		})
	}
}

func TestConsoleLoggerLevels(t *testing.T) {
	l := NewConsoleLogger(LevelInfo)
	assert.False(t, l.IsTraceEnabled())
	assert.False(t, l.IsDebugEnabled())
	assert.True(t, l.IsLevelEnabled(LevelInfo))
	assert.True(t, l.IsLevelEnabled(LevelError))
}

func TestConsoleLoggerWith(t *testing.T) {
	l := NewConsoleLogger(LevelInfo)
	l2 := l.With(map[string]interface{}{"session": "abc"})
	assert.NotSame(t, l, l2)
	l3 := l2.WithPrefix("cdp")
	assert.NotSame(t, l2, l3)
}

func TestTestLogger(t *testing.T) {
	l := NewTestLogger()
	l.Trace("trace %d", 1)
	l.Debug("debug")
	l.Warn("warn")
	logs := l.Logs()
	assert.Len(t, logs, 3)
	assert.Equal(t, "TRACE", logs[0].Severity)
	assert.Equal(t, "trace %d", logs[0].Message)
	assert.Equal(t, []interface{}{1}, logs[0].Arguments)
	assert.Equal(t, "WARNING", logs[2].Severity)
}
