// Package observability holds the process-wide CLI logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by CLI commands. It is a no-op until
// InitCLILogger runs, so library code exercised from tests stays quiet.
var CLILogger = zap.NewNop()

// Supported log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// InitCLILogger replaces CLILogger with a stderr logger at level using
// format ("console" or "json"). Stdout is reserved for JSONL records.
func InitCLILogger(level, format string) error {
	logger, err := NewLogger(level, format, zapcore.AddSync(os.Stderr))
	if err != nil {
		return err
	}
	CLILogger = logger
	return nil
}

// NewLogger builds a logger writing to out.
func NewLogger(level, format string, out zapcore.WriteSyncer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unsupported log format %q (want console or json)", format)
	}

	return zap.New(zapcore.NewCore(enc, out, lvl)), nil
}

// ParseLevel maps a level name to a zap level. An empty name means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level %q", level)
	}
	return lvl, nil
}
