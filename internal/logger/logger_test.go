package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/straye-as/invoice-api/internal/config"
	"github.com/straye-as/invoice-api/internal/logger"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		env       string
		wantLevel zapcore.Level
	}{
		{name: "console debug", level: "debug", format: "console", env: "development", wantLevel: zapcore.DebugLevel},
		{name: "json warn", level: "warn", format: "json", env: "staging", wantLevel: zapcore.WarnLevel},
		{name: "bad level falls back to info", level: "loud", format: "console", env: "production", wantLevel: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := logger.NewLogger(
				&config.LoggingConfig{Level: tt.level, Format: tt.format},
				&config.AppConfig{Name: "invoice-api", Environment: tt.env},
			)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.wantLevel))
			assert.False(t, log.Core().Enabled(tt.wantLevel-1))
		})
	}
}

func TestContextLoggers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	logger.WithRequest(base, "GET", "/api/v1/invoice-sessions", "req-1").Info("request")
	logger.WithSession(base, "sess-1", "proj-1").Info("session")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{
		"method":     "GET",
		"path":       "/api/v1/invoice-sessions",
		"request_id": "req-1",
	}, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{
		"session_id": "sess-1",
		"project_id": "proj-1",
	}, entries[1].ContextMap())
}
