package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&Config{Level: "info", Format: "json", Service: "quotebot", Version: "1.0"}, &buf)
	require.NotNil(t, logger)

	logger.Info("test message", slog.String("key", "value"))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "quotebot", logEntry["service_name"])
	assert.Equal(t, "1.0", logEntry["service_version"])
	assert.Equal(t, "value", logEntry["key"])
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&Config{Level: "debug", Format: "text", Service: "quotebot"}, &buf)

	logger.Debug("debug message")

	assert.Contains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "quotebot")
}

func TestNewWithWriter_PrettyFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&Config{Level: "info", Format: "pretty"}, &buf)

	logger.Info("pretty message")
	logger.Debug("hidden")

	assert.Contains(t, buf.String(), "pretty message")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&Config{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewWithWriter_WithFileConfig(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "quotebot.log")

	var buf bytes.Buffer
	logger := NewWithWriter(&Config{
		Level:  "info",
		Format: "json",
		File: FileConfig{
			Enabled:    true,
			Path:       logFile,
			MaxSizeMB:  1,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}, &buf)

	logger.Info("test message to file")

	assert.Contains(t, buf.String(), "test message to file")
	assert.FileExists(t, logFile)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message to file")
}

func TestRedaction(t *testing.T) {
	for _, format := range []string{"json", "text", "pretty"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&Config{Level: "info", Format: format}, &buf)

			logger.Info("starting", slog.String("token", "hunter2"), slog.String("note", fakeToken))
			logger.With(slog.String("token", "hunter3")).Info("child")

			out := buf.String()
			assert.Contains(t, out, "starting")
			assert.NotContains(t, out, "hunter2")
			assert.NotContains(t, out, "hunter3")
			assert.NotContains(t, out, fakeToken)
			assert.Contains(t, out, "[REDACTED]")
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestTraceLevel(t *testing.T) {
	for _, format := range []string{"json", "text", "pretty"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&Config{Level: "trace", Format: format}, &buf)

			logger.Log(context.Background(), LevelTrace, "trace message")

			assert.Contains(t, buf.String(), "trace message")
			if format != "pretty" {
				assert.Contains(t, buf.String(), "TRACE")
			}
		})
	}

	t.Run("filtered at debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&Config{Level: "debug", Format: "pretty"}, &buf)

		logger.Log(context.Background(), LevelTrace, "trace message")
		logger.Debug("debug message")

		assert.NotContains(t, buf.String(), "trace message")
		assert.Contains(t, buf.String(), "debug message")
	})
}

func TestSlogToCharmLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    slog.Level
		expected log.Level
	}{
		{"trace maps to debug", LevelTrace, log.DebugLevel},
		{"debug", slog.LevelDebug, log.DebugLevel},
		{"info", slog.LevelInfo, log.InfoLevel},
		{"warn", slog.LevelWarn, log.WarnLevel},
		{"error", slog.LevelError, log.ErrorLevel},
		{"above error", slog.Level(12), log.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, toCharmLevel(tt.input))
		})
	}
}

type errHandler struct{ slog.Handler }

func (errHandler) Handle(context.Context, slog.Record) error { return assert.AnError }

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	multi := NewMultiHandler(
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(multi).WithGroup("g").With(slog.Int("n", 1))

	assert.True(t, multi.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, multi.Enabled(context.Background(), slog.LevelDebug))

	logger.Info("info only")
	logger.Error("both")

	assert.Contains(t, a.String(), "info only")
	assert.Contains(t, a.String(), "both")
	assert.NotContains(t, b.String(), "info only")
	assert.Contains(t, b.String(), "both")
	assert.Contains(t, b.String(), `"g":{"n":1}`)
}

func TestMultiHandler_JoinsErrors(t *testing.T) {
	multi := NewMultiHandler(
		errHandler{slog.NewTextHandler(io.Discard, nil)},
		slog.NewTextHandler(io.Discard, nil),
	)

	err := multi.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "x", 0))
	assert.ErrorIs(t, err, assert.AnError)
}
