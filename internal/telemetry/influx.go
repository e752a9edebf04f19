package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/streamheart/controlpanel/internal/geo"
)

// DefaultBucket receives every panel point.
const DefaultBucket = "panel_events"

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// EnsureBucket creates the organization and bucket when missing.
	EnsureBucket bool
	// BackupPath receives gzip'd line protocol while the server is unreachable.
	BackupPath string
	// Session tags every point.
	Session string
}

// Influx writes telemetry to InfluxDB through the non-blocking write API,
// or to a gzip backup file when the server did not answer the initial ping.
type Influx struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPI

	mu         sync.Mutex
	backupFile *os.File
	backup     *gzip.Writer
	closed     bool

	cfg    InfluxConfig
	logger zerolog.Logger
}

var _ Recorder = (*Influx)(nil)

// NewInflux connects to InfluxDB. A failed ping is not an error when a
// backup path is configured; points then go to the backup file.
func NewInflux(ctx context.Context, cfg InfluxConfig, logger zerolog.Logger) (*Influx, error) {
	if cfg.URL == "" {
		return nil, errors.New("influx url is empty")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}

	m := &Influx{cfg: cfg, logger: logger.With().Str("component", "telemetry").Logger()}
	m.client = influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.client.Close()
		m.client = nil
		if cfg.BackupPath == "" {
			return nil, fmt.Errorf("influxdb unreachable at %s: %w", cfg.URL, err)
		}

		m.logger.Warn().Str("backupPath", cfg.BackupPath).
			Msg("Failed to reach InfluxDB, writing to backup file")
		file, err := os.OpenFile(cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("error creating backup file: %w", err)
		}
		m.backupFile = file
		m.backup = gzip.NewWriter(file)
		return m, nil
	}

	if cfg.EnsureBucket {
		if err := m.ensureBucket(ctx); err != nil {
			m.client.Close()
			return nil, err
		}
	}

	m.writer = m.client.WriteAPI(cfg.Org, cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error().Err(writeErr).Str("bucket", cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.logger.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("InfluxDB client initialized")
	return m, nil
}

func (m *Influx) ensureBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	if _, err := m.client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}

	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: 60 * 60 * 24 * 30, // 30 days
	})
	if err != nil {
		return fmt.Errorf("creating bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// RecordTransition writes one state change. kind becomes a tag.
func (m *Influx) RecordTransition(kind string, fields map[string]any) {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementTransition).
		AddTag("kind", kind).
		SetTime(time.Now())
	if m.cfg.Session != "" {
		p.AddTag("session", m.cfg.Session)
	}
	if len(fields) == 0 {
		p.AddField("count", 1)
	}
	for k, v := range fields {
		p.AddField(k, v)
	}
	m.write(p)
}

// RecordPosition writes a sensor sample in both WGS84 and WebMercator.
func (m *Influx) RecordPosition(latitude, longitude float64) {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementPosition).
		AddField("latitude", latitude).
		AddField("longitude", longitude).
		SetTime(time.Now())
	if m.cfg.Session != "" {
		p.AddTag("session", m.cfg.Session)
	}

	merc, err := geo.Coords3857From4326(longitude, latitude)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Skipping WebMercator fields")
	} else if c, ok := merc.Coordinates(); ok {
		p.AddField("x3857", c.X).AddField("y3857", c.Y)
	}
	m.write(p)
}

func (m *Influx) write(p *influxdb2_write.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	if m.writer != nil {
		m.writer.WritePoint(p)
		return
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := m.backup.Write([]byte(lineProtocol)); err != nil {
		m.logger.Error().Err(err).Msg("Error writing to InfluxDB backup file")
	}
}

// Close flushes pending points and releases the client or backup file.
func (m *Influx) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	if m.backup != nil {
		if err := m.backup.Close(); err != nil {
			m.logger.Error().Err(err).Msg("Error closing backup writer")
		}
		if err := m.backupFile.Close(); err != nil {
			m.logger.Error().Err(err).Msg("Error closing backup file")
		}
	}
}
