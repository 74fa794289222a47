package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arloliu/chorus/types"
)

// Backend names accepted by New.
const (
	BackendZap  = "zap"
	BackendSlog = "slog"
)

// New builds a logger for the given backend and level.
//
// Parameters:
//   - backend: "zap" (default) or "slog"
//   - level: "debug", "info", "warn" or "error"
//   - format: "json" or "console"
//   - w: Destination for slog output (ignored by zap, which writes to stderr)
//
// Returns:
//   - types.Logger: Configured logger
//   - func(): Flush function to call before exit
//   - error: Unknown backend or level
//
// Example:
//
//	logger, flush, err := logging.New("zap", "info", "json", os.Stderr)
//	defer flush()
func New(backend, level, format string, w io.Writer) (types.Logger, func(), error) {
	switch strings.ToLower(backend) {
	case "", BackendZap:
		sugar, err := NewZap(level, format)
		if err != nil {
			return nil, nil, err
		}

		return sugar, func() { _ = sugar.Sync() }, nil
	case BackendSlog:
		lvl, err := parseSlogLevel(level)
		if err != nil {
			return nil, nil, err
		}
		opts := &slog.HandlerOptions{Level: lvl}

		var handler slog.Handler
		if strings.EqualFold(format, "json") {
			handler = slog.NewJSONHandler(w, opts)
		} else {
			handler = slog.NewTextHandler(w, opts)
		}

		return NewSlog(slog.New(handler)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

// NewZap builds a zap SugaredLogger, which satisfies types.Logger directly.
//
// Parameters:
//   - level: "debug", "info", "warn" or "error"
//   - format: "json" for production encoding, anything else for console encoding
//
// Returns:
//   - *zap.SugaredLogger: Configured logger
//   - error: Invalid level or zap build failure
func NewZap(level, format string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(defaultLevel(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if !strings.EqualFold(format, "json") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return logger.Sugar(), nil
}

func parseSlogLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(defaultLevel(level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return lvl, nil
}

func defaultLevel(level string) string {
	if level == "" {
		return "info"
	}

	return strings.ToLower(level)
}
