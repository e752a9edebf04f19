// Package sensor answers the remote's position requests with one sample
// from the local location capability.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamheart/controlpanel/internal/channel"
	"github.com/streamheart/controlpanel/internal/geo"
	"github.com/streamheart/controlpanel/internal/telemetry"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

// DefaultTimeout bounds a single Locate call.
const DefaultTimeout = 10 * time.Second

// ErrorCode classifies a failed location request.
type ErrorCode int

const (
	Unknown             ErrorCode = 0
	PermissionDenied    ErrorCode = 1
	PositionUnavailable ErrorCode = 2
	Timeout             ErrorCode = 3
)

// Reason is the human-readable text sent to the remote.
func (c ErrorCode) Reason() string {
	switch c {
	case PermissionDenied:
		return "User denied the request for Geolocation"
	case PositionUnavailable:
		return "Location information is unavailable"
	case Timeout:
		return "The request to get user location timed out"
	default:
		return "An unknown error occurred"
	}
}

// LocationError is a failed location request.
type LocationError struct {
	Code ErrorCode
	Err  error
}

func (e *LocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code.Reason(), e.Err)
	}
	return e.Code.Reason()
}

func (e *LocationError) Unwrap() error { return e.Err }

// Position is a WGS84 coordinate pair.
type Position struct {
	Latitude  float64
	Longitude float64
}

// Locator is the host's location capability.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Position, error)

func (f LocatorFunc) Locate(ctx context.Context) (Position, error) { return f(ctx) }

// Static always reports the same position.
type Static Position

func (s Static) Locate(context.Context) (Position, error) { return Position(s), nil }

// Sample is the outcome of one location request: a position or an error.
type Sample struct {
	Position Position
	Err      *LocationError
}

// Payload returns the CurrentPosition event payload.
func (s Sample) Payload() any {
	if s.Err != nil {
		return protocol.PositionError{Error: s.Err.Code.Reason()}
	}
	return protocol.CurrentPosition{Latitude: s.Position.Latitude, Longitude: s.Position.Longitude}
}

// Relay takes one sample per request and emits it. It keeps no history.
type Relay struct {
	locator   Locator
	emitter   channel.Emitter
	telemetry telemetry.Recorder
	timeout   time.Duration
	logger    *slog.Logger
}

type RelayConfig struct {
	Timeout   time.Duration
	Telemetry telemetry.Recorder
	Logger    *slog.Logger
}

// NewRelay creates a relay. A nil locator means the host has no location
// capability; requests are then logged and left unanswered.
func NewRelay(locator Locator, emitter channel.Emitter, cfg RelayConfig) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		locator:   locator,
		emitter:   emitter,
		telemetry: cfg.Telemetry,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger.With("component", "sensor"),
	}
}

// RelayPosition takes one sample and emits it as a CurrentPosition event.
// Failures are reported to the remote, never retried.
func (r *Relay) RelayPosition(ctx context.Context) error {
	if r.locator == nil {
		r.logger.Info("Geolocation is not supported")
		return nil
	}

	sample := r.sample(ctx)
	if sample.Err != nil {
		r.logger.Warn("Position request failed", "error", sample.Err)
	} else {
		r.telemetry.RecordPosition(sample.Position.Latitude, sample.Position.Longitude)
		r.logger.Debug("Position sampled", "latitude", sample.Position.Latitude, "longitude", sample.Position.Longitude)
	}

	if err := r.emitter.Emit(protocol.EventCurrentPosition, sample.Payload()); err != nil {
		return fmt.Errorf("emit %s: %w", protocol.EventCurrentPosition, err)
	}
	return nil
}

func (r *Relay) sample(ctx context.Context) Sample {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pos, err := r.locator.Locate(ctx)
	if err != nil {
		return Sample{Err: classify(err)}
	}
	if err := geo.Validate(pos.Latitude, pos.Longitude); err != nil {
		return Sample{Err: &LocationError{Code: PositionUnavailable, Err: err}}
	}
	return Sample{Position: pos}
}

func classify(err error) *LocationError {
	var le *LocationError
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LocationError{Code: Timeout, Err: err}
	}
	return &LocationError{Code: Unknown, Err: err}
}
