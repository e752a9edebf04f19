// Package handlers reconciles panel state with events pushed by the remote.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streamheart/controlpanel/internal/dispatcher"
	"github.com/streamheart/controlpanel/internal/projection"
	"github.com/streamheart/controlpanel/internal/state"
	"github.com/streamheart/controlpanel/internal/telemetry"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

// PositionRelay answers a position request.
type PositionRelay interface {
	RelayPosition(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	// Context bounds work started by handlers, such as position lookups.
	// It is cancelled when the panel shuts down.
	Context   context.Context
	State     *state.State
	View      projection.View
	Relay     PositionRelay
	Telemetry telemetry.Recorder
	Logger    *slog.Logger
}

// Service applies remote events to state and projection. Every handler
// sets state from the event itself, so a repeated event is harmless.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	deps.Logger = deps.Logger.With("component", "handlers")
	return &Service{deps: deps}
}

// RegisterHandlers registers every remote event handler with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Sensor requests may block on the locator - buffered
	d.Register(protocol.EventGetPosition, s.handleGetPosition, dispatcher.Buffered(4), dispatcher.Logged())

	d.Register(protocol.EventSwitchScenes, s.handleSwitchScenes, dispatcher.Logged())
	d.Register(protocol.EventStreamStarted, s.handleStreamStarted, dispatcher.Logged())
	d.Register(protocol.EventStreamStopped, s.handleStreamStopped, dispatcher.Logged())
	d.Register(protocol.EventSceneItemVisibilityChanged, s.handleVisibilityChanged, dispatcher.Logged())
	d.Register(protocol.EventBrbDisabled, s.handleBrbDisabled, dispatcher.Logged())
	d.Register(protocol.EventBrbEnabled, s.handleBrbEnabled, dispatcher.Logged())

	// Connection lifecycle
	d.Register(protocol.EventUnsubscribedFrom, s.handleUnsubscribedFrom, dispatcher.Logged())
	d.Register(protocol.EventExiting, s.handleExiting, dispatcher.Logged())
	d.Register(protocol.EventError, s.handleTransportError)
}

func (s *Service) handleGetPosition(dispatcher.Event) (any, error) {
	if s.deps.Relay == nil {
		return nil, nil
	}
	return nil, s.deps.Relay.RelayPosition(s.deps.Context)
}

func (s *Service) handleUnsubscribedFrom(e dispatcher.Event) (any, error) {
	var p protocol.UnsubscribedFrom
	if err := e.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Name, err)
	}
	s.deps.Logger.Warn("Unsubscribed from remote", "name", p.Name)
	s.deps.View.TogglePanels()
	s.deps.Telemetry.RecordTransition("panels", map[string]any{"cause": e.Name})
	return nil, nil
}

func (s *Service) handleExiting(e dispatcher.Event) (any, error) {
	s.deps.Logger.Warn("Remote is exiting")
	s.deps.View.TogglePanels()
	s.deps.Telemetry.RecordTransition("panels", map[string]any{"cause": e.Name})
	return nil, nil
}

// handleSwitchScenes ignores scenes the scene list never announced,
// including every switch that arrives before the list is loaded.
func (s *Service) handleSwitchScenes(e dispatcher.Event) (any, error) {
	var p protocol.SwitchScenes
	if err := e.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Name, err)
	}
	name := p.Name()

	var previous string
	err := s.deps.State.Apply(func() error {
		var err error
		previous, err = s.deps.State.SwitchScene(name)
		if err != nil {
			return err
		}
		if previous != "" && previous != name {
			s.deps.View.SetSceneDisabled(previous, false)
		}
		s.deps.View.SetSceneDisabled(name, true)
		return nil
	})
	if errors.Is(err, state.ErrUnknownScene) {
		s.deps.Logger.Debug("Ignoring switch to unknown scene", "scene", name)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.deps.Telemetry.RecordTransition("scene", map[string]any{"scene": name, "previous": previous})
	return nil, nil
}

func (s *Service) handleStreamStarted(dispatcher.Event) (any, error) {
	s.setStreaming(true)
	return nil, nil
}

func (s *Service) handleStreamStopped(dispatcher.Event) (any, error) {
	s.setStreaming(false)
	return nil, nil
}

func (s *Service) setStreaming(streaming bool) {
	label := projection.LabelGoLive
	if streaming {
		label = projection.LabelStopStream
	}
	var changed bool
	_ = s.deps.State.Apply(func() error {
		changed = s.deps.State.SetStreaming(streaming)
		s.deps.View.SetStreamButton(streaming, label)
		return nil
	})
	if changed {
		s.deps.Telemetry.RecordTransition("streaming", map[string]any{"streaming": streaming})
	}
}

func (s *Service) handleVisibilityChanged(e dispatcher.Event) (any, error) {
	var p protocol.SceneItemVisibilityChanged
	if err := e.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Name, err)
	}
	if p.Item() != protocol.OverlayItem {
		return nil, nil
	}
	visible, ok := p.Visible()
	if !ok {
		return nil, fmt.Errorf("%s for %s carries no visibility", e.Name, protocol.OverlayItem)
	}

	var changed bool
	_ = s.deps.State.Apply(func() error {
		changed = s.deps.State.SetOverlayVisible(visible)
		// The toggle is pressed while the overlay is hidden.
		s.deps.View.SetOverlayPressed(!visible)
		return nil
	})
	if changed {
		s.deps.Telemetry.RecordTransition("overlay", map[string]any{"visible": visible})
	}
	return nil, nil
}

func (s *Service) handleBrbDisabled(dispatcher.Event) (any, error) {
	s.setAutoBrb(false)
	return nil, nil
}

func (s *Service) handleBrbEnabled(dispatcher.Event) (any, error) {
	s.setAutoBrb(true)
	return nil, nil
}

func (s *Service) setAutoBrb(enabled bool) {
	var changed bool
	_ = s.deps.State.Apply(func() error {
		changed = s.deps.State.SetAutoBrb(enabled)
		if enabled {
			s.deps.View.SetBrbToggle(false, projection.LabelBrbOn)
		} else {
			s.deps.View.SetBrbToggle(true, projection.LabelBrbOff)
		}
		return nil
	})
	if changed {
		s.deps.Telemetry.RecordTransition("auto_brb", map[string]any{"enabled": enabled})
	}
}

func (s *Service) handleTransportError(e dispatcher.Event) (any, error) {
	var p protocol.TransportFailure
	if err := e.Decode(&p); err != nil {
		s.deps.Logger.Error("Undecodable channel error", "error", err, "payload", string(e.Payload.Raw))
		return nil, nil
	}
	s.deps.Logger.Error("Channel error", "error", p.Error)
	return nil, nil
}
