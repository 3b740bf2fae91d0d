// Package logger provides context-aware structured logging using logrus.
// Commands log through G(ctx); the process-wide entry L is configured once
// at startup from the resolved configuration and, once the runtime tree
// exists, mirrors its output into the runtime logs directory.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogFileName is the file written inside the runtime logs directory.
const LogFileName = "autoagent.log"

var (
	// G is a convenience alias for GetLogger.
	G = GetLogger
	// L is the fallback entry used when no logger is attached to a context.
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

// WithLogger attaches a logger entry to ctx, making it retrievable via GetLogger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	e := logger.WithContext(ctx)
	return context.WithValue(ctx, loggerKey{}, e)
}

// GetLogger retrieves the logger entry from ctx, falling back to L.
func GetLogger(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(loggerKey{})
	if logger == nil {
		return L.WithContext(ctx)
	}
	return logger.(*logrus.Entry)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	setLoggerFormat(l, "fmt")
	return l
}

func setLoggerFormat(logger *logrus.Logger, format string) {
	switch format {
	case "json":
		logger.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	case "text", "fmt":
		fallthrough
	default:
		logger.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		}
	}
}

// Options configures a logrus logger.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Configure applies opts to logger. An empty level keeps the current one.
func Configure(logger *logrus.Logger, opts Options) error {
	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", opts.Level)
		}
		logger.SetLevel(level)
	}
	setLoggerFormat(logger, opts.Format)
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}
	return nil
}

// Setup configures the global logger.
func Setup(opts Options) error {
	return Configure(L.Logger, opts)
}

// AttachLogFile mirrors the global logger into <logsDir>/autoagent.log in
// addition to stderr. The returned closer must be called before exit. The
// directory must already exist; nothing is created here.
func AttachLogFile(logsDir string) (io.Closer, error) {
	path := filepath.Join(logsDir, LogFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", path)
	}
	L.Logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}
