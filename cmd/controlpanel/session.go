package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/google/uuid"

	"github.com/streamheart/controlpanel/internal/channel/websocket"
	"github.com/streamheart/controlpanel/internal/config"
	"github.com/streamheart/controlpanel/internal/logging"
	intOtel "github.com/streamheart/controlpanel/internal/otel"
	"github.com/streamheart/controlpanel/internal/state"
	"github.com/streamheart/controlpanel/internal/telemetry"
)

// session carries the ambient stack shared by every subcommand.
type session struct {
	id        string
	start     time.Time
	target    string
	slog      *logging.SlogManager
	logger    *slog.Logger
	otel      *intOtel.Provider
	telemetry telemetry.Recorder
	closers   []io.Closer
	// connection is read by the log context; set once a panel exists.
	connection func() state.ConnectionState
}

func newSession(ctx context.Context, f *globalFlags, withTelemetry bool) (*session, error) {
	s := &session{
		id:        uuid.NewString(),
		start:     time.Now(),
		slog:      logging.NewSlogManager(),
		telemetry: telemetry.Nop{},
	}

	// Console-only logging until the config is known.
	s.slog.Setup(logging.Options{Level: f.LogLevel, Console: os.Stderr})
	s.logger = s.slog.Logger()

	if err := config.Load(f.ConfigDir); err != nil {
		return nil, err
	}
	level := config.GetString("logLevel")
	if f.LogLevel != "" {
		level = f.LogLevel
	}
	s.target = config.GetChannelConfig().Target
	if f.Target != "" {
		s.target = f.Target
	}

	logPath := logging.LogFilePath(config.GetString("logsDir"), appName, s.start)
	logFile, err := logging.OpenLogFile(logPath)
	if err != nil {
		s.logger.Warn("Logging to console only", "error", err)
	} else {
		s.closers = append(s.closers, logFile)
	}

	opts := logging.Options{
		Level:   level,
		Console: os.Stderr,
		Context: s.logContext,
	}
	if logFile != nil {
		opts.File = logFile
	}

	if gc := config.GetGraylogConfig(); gc.Enabled {
		gw, err := gelf.NewWriter(gc.Address)
		if err != nil {
			s.logger.Error("Failed to connect to Graylog", "error", err, "address", gc.Address)
		} else {
			opts.Graylog = gw
			s.closers = append(s.closers, gw)
		}
	}

	if oc := config.GetOTelConfig(); oc.Enabled {
		otelCfg := intOtel.Config{
			Enabled:        true,
			ServiceName:    oc.ServiceName,
			ServiceVersion: Version,
			SessionID:      s.id,
			BatchTimeout:   oc.BatchTimeout,
			Endpoint:       oc.Endpoint,
			Insecure:       oc.Insecure,
			OnError: func(err error) {
				s.logger.Debug("OTel export failed", "error", err)
			},
		}
		if logFile != nil {
			otelCfg.LogWriter = logFile
		}
		p, err := intOtel.New(ctx, otelCfg)
		if err != nil {
			s.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			s.otel = p
			opts.Provider = p.LoggerProvider()
		}
	}

	s.slog.Setup(opts)
	s.logger = s.slog.Logger()
	s.logger.Info("Session started", "target", s.target, "log", logPath, "version", Version)

	if ic := config.GetInfluxConfig(); withTelemetry && ic.Enabled {
		rec, err := telemetry.NewInflux(ctx, telemetry.InfluxConfig{
			URL:          ic.URL(),
			Token:        ic.Token,
			Org:          ic.Org,
			Bucket:       ic.Bucket,
			EnsureBucket: ic.EnsureBucket,
			BackupPath:   ic.BackupPath,
			Session:      s.id,
		}, s.slog.ZeroLogger())
		if err != nil {
			s.logger.Error("Telemetry disabled", "error", err)
		} else {
			s.telemetry = rec
		}
	}

	return s, nil
}

func (s *session) logContext() []slog.Attr {
	attrs := []slog.Attr{slog.String("session", s.id)}
	if s.connection != nil {
		attrs = append(attrs, slog.String("connection", s.connection().String()))
	}
	return attrs
}

func (s *session) channel() *websocket.Client {
	return websocket.New(websocket.Config{
		RequestTimeout: config.GetChannelConfig().RequestTimeout,
		Logger:         s.logger,
	})
}

// Close flushes logs and releases sinks. Telemetry is closed by its owner.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.slog.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flush logs: %v\n", err)
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown otel: %v\n", err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}
