package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/platformlayer/openstack-jenkins/server/flags"
	"github.com/spf13/viper"
)

// Kept as its own package so editors do not confuse it with the standard "log".

// Base is a bare logger without attributes, handed to library packages.
var Base *slog.Logger

// logger is the daemon logger with default attributes
var logger *slog.Logger

func Init() error {
	return InitWriter(os.Stdout)
}

// InitWriter is Init with a custom destination.
func InitWriter(w io.Writer) error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(viper.GetString(flags.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	options := slog.HandlerOptions{
		AddSource: viper.GetBool(flags.LogSource),
		Level:     logLevel,
	}

	switch format := viper.GetString(flags.LogFormat); format {
	case "json":
		Base = slog.New(slog.NewJSONHandler(w, &options))
	case "text":
		Base = slog.New(slog.NewTextHandler(w, &options))
	default:
		return fmt.Errorf("unknown log format '%s'", format)
	}

	logger = Base.With("component", "cloudd")
	return nil
}

// Proxies for slog.Logger methods

func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	logger.DebugContext(ctx, msg, args...)
}

func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	logger.WarnContext(ctx, msg, args...)
}

func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	logger.ErrorContext(ctx, msg, args...)
}

func With(args ...any) *slog.Logger {
	return logger.With(args...)
}
