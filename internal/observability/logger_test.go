package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "WARN", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", FormatJSON, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Creating bucket", zap.String("bucket", "b"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "Creating bucket", entry["msg"])
	assert.Equal(t, "b", entry["bucket"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", "", zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("Checking bucket availability", zap.String("bucket", "b"))
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "Checking bucket availability")
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger("info", "xml", zapcore.AddSync(&bytes.Buffer{}))
	require.Error(t, err)

	_, err = NewLogger("loud", FormatJSON, zapcore.AddSync(&bytes.Buffer{}))
	require.Error(t, err)
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	require.NoError(t, InitCLILogger("warn", FormatConsole))
	assert.NotNil(t, CLILogger)
	assert.False(t, CLILogger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, CLILogger.Core().Enabled(zapcore.WarnLevel))

	require.Error(t, InitCLILogger("warn", "yaml"))
}
