package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// InstrumentationName identifies panel records in the OTel log pipeline.
const InstrumentationName = "controlpanel"

// Options selects the log sinks. Nil writers are skipped; when neither
// Console nor File is set, records go to stdout.
type Options struct {
	Level    string
	Console  io.Writer
	File     io.Writer
	Graylog  io.Writer
	Provider *sdklog.LoggerProvider
	// Context is evaluated for every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger  *slog.Logger
	zero    zerolog.Logger
	hasZero bool

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zeroLevel(level slog.Level) zerolog.Level {
	switch level {
	case slog.LevelDebug:
		return zerolog.DebugLevel
	case slog.LevelWarn:
		return zerolog.WarnLevel
	case slog.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup initializes the logging system. Calling it again replaces every sink.
func (m *SlogManager) Setup(opts Options) {
	lvl := parseLevel(opts.Level)
	m.logProvider = opts.Provider

	console := opts.Console
	if console == nil && opts.File == nil {
		console = os.Stdout
	}

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	var zeroWriters []io.Writer

	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
		zeroWriters = append(zeroWriters, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
	}

	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, handlerOpts))
		zeroWriters = append(zeroWriters, zerolog.ConsoleWriter{Out: opts.File, TimeFormat: time.RFC3339, NoColor: true})
	}

	// Graylog gets one JSON document per record
	if opts.Graylog != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.Graylog, handlerOpts))
		zeroWriters = append(zeroWriters, opts.Graylog)
	}

	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(opts.Provider)))
	}

	var handler slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		handler = NewContextHandler(handler, opts.Context)
	}
	m.logger = slog.New(handler)

	zl := zerolog.New(zerolog.MultiLevelWriter(zeroWriters...)).Level(zeroLevel(lvl)).With().Timestamp()
	if opts.Context != nil {
		for _, a := range opts.Context() {
			zl = zl.Interface(a.Key, a.Value.Any())
		}
	}
	m.zero = zl.Logger()
	m.hasZero = true

	m.logger.Info("Logging initialized", "level", lvl.String())
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// ZeroLogger returns a zerolog.Logger writing to the same console, file and
// Graylog sinks. Context attributes are captured once, at Setup.
func (m *SlogManager) ZeroLogger() zerolog.Logger {
	if !m.hasZero {
		return zerolog.Nop()
	}
	return m.zero
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
