// Package bootstrap brings a fresh panel in sync with the remote: connect,
// then load scenes, streaming status, overlay visibility and auto-BRB status,
// strictly in that order.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamheart/controlpanel/internal/channel"
	"github.com/streamheart/controlpanel/internal/projection"
	"github.com/streamheart/controlpanel/internal/state"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

// DefaultRevealDelay separates the last bootstrap reply from the reveal.
const DefaultRevealDelay = 600 * time.Millisecond

// Step is one stage of the bootstrap chain.
type Step int

const (
	StepConnect Step = iota
	StepSceneList
	StepStreamingStatus
	StepOverlayStatus
	StepBrbStatus
)

// Steps lists the chain in execution order.
var Steps = []Step{StepConnect, StepSceneList, StepStreamingStatus, StepOverlayStatus, StepBrbStatus}

func (s Step) String() string {
	switch s {
	case StepConnect:
		return "connect"
	case StepSceneList:
		return "scene list"
	case StepStreamingStatus:
		return "streaming status"
	case StepOverlayStatus:
		return "overlay status"
	case StepBrbStatus:
		return "auto brb status"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ready reports whether the step's precondition holds.
func (s Step) ready(p state.Progress) bool {
	switch s {
	case StepConnect:
		return true
	case StepSceneList:
		return p.Connected
	case StepStreamingStatus:
		return p.SceneListLoaded
	case StepOverlayStatus:
		return p.StreamingStatusLoaded
	case StepBrbStatus:
		return p.OverlayStatusLoaded
	default:
		return false
	}
}

// Class names the part of the system a failed bootstrap points at.
type Class int

const (
	ClassTransportUnreachable Class = iota
	ClassControlSurfaceUnavailable
	ClassCompanionUnavailable
)

func (c Class) String() string {
	switch c {
	case ClassTransportUnreachable:
		return "transport unreachable"
	case ClassControlSurfaceUnavailable:
		return "remote control surface unavailable"
	default:
		return "companion service unavailable"
	}
}

// Classify derives the failure class from how far bootstrap got.
func Classify(p state.Progress) Class {
	switch {
	case !p.Connected:
		return ClassTransportUnreachable
	case !p.SceneListLoaded || !p.StreamingStatusLoaded || !p.OverlayStatusLoaded:
		return ClassControlSurfaceUnavailable
	default:
		return ClassCompanionUnavailable
	}
}

// Error is a failed bootstrap.
type Error struct {
	Step  Step
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap %s: %s: %v", e.Step, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var errPrecondition = errors.New("previous step did not complete")

type Config struct {
	Target      string
	RevealDelay time.Duration
}

// Sequencer runs the bootstrap chain once.
type Sequencer struct {
	ch     channel.Channel
	state  *state.State
	view   projection.View
	cfg    Config
	logger *slog.Logger
}

func New(ch channel.Channel, st *state.State, view projection.View, cfg Config, logger *slog.Logger) *Sequencer {
	if cfg.RevealDelay < 0 {
		cfg.RevealDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		ch:     ch,
		state:  st,
		view:   view,
		cfg:    cfg,
		logger: logger.With("component", "bootstrap"),
	}
}

// Run executes every step in order and stops at the first failure, which
// is logged once and returned as *Error. On success it waits the reveal
// delay and switches the panels. Failures are not retried.
func (s *Sequencer) Run(ctx context.Context) error {
	s.state.BeginConnecting()

	for _, step := range Steps {
		err := s.run(ctx, step)
		if err == nil {
			s.logger.Debug("Bootstrap step complete", "step", step.String())
			continue
		}

		berr := &Error{Step: step, Class: Classify(s.state.Progress()), Err: err}
		s.logger.Error("Bootstrap failed", "step", step.String(), "class", berr.Class.String(), "error", err)
		return berr
	}

	if s.cfg.RevealDelay > 0 {
		timer := time.NewTimer(s.cfg.RevealDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.view.TogglePanels()
	s.logger.Info("Panel in sync", "scenes", len(s.state.Scenes()), "active", s.state.ActiveScene())
	return nil
}

func (s *Sequencer) run(ctx context.Context, step Step) error {
	if !step.ready(s.state.Progress()) {
		return errPrecondition
	}

	switch step {
	case StepConnect:
		return s.connect(ctx)
	case StepSceneList:
		return s.loadSceneList(ctx)
	case StepStreamingStatus:
		return s.loadStreamingStatus(ctx)
	case StepOverlayStatus:
		return s.loadOverlayStatus(ctx)
	case StepBrbStatus:
		return s.loadBrbStatus(ctx)
	default:
		return fmt.Errorf("unknown step %d", int(step))
	}
}

func (s *Sequencer) connect(ctx context.Context) error {
	if err := s.ch.Connect(ctx, s.cfg.Target); err != nil {
		return err
	}
	s.state.MarkConnected()
	return nil
}

func (s *Sequencer) request(ctx context.Context, namespace, command string, params, out any) error {
	resp, err := s.ch.Request(ctx, namespace, command, params)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s reply: %w", command, err)
	}
	return nil
}

func (s *Sequencer) loadSceneList(ctx context.Context) error {
	var list protocol.SceneList
	if err := s.request(ctx, protocol.ControlServer, protocol.CmdGetSceneList, nil, &list); err != nil {
		return err
	}

	// Load and render in one unit so a SwitchScenes handled meanwhile sees
	// either no scenes or the rendered list, never a half-projected one.
	return s.state.Apply(func() error {
		if err := s.state.LoadScenes(list.Names(), list.Current()); err != nil {
			return err
		}
		s.view.RenderScenes(s.state.Scenes())
		s.view.SetSceneDisabled(s.state.ActiveScene(), true)
		return nil
	})
}

func (s *Sequencer) loadStreamingStatus(ctx context.Context) error {
	var st protocol.StreamingStatus
	if err := s.request(ctx, protocol.ControlServer, protocol.CmdGetStreamingStatus, nil, &st); err != nil {
		return err
	}

	return s.state.Apply(func() error {
		if s.state.LoadStreaming(st.Streaming) {
			s.view.SetStreamButton(true, projection.LabelStopStream)
		}
		return nil
	})
}

func (s *Sequencer) loadOverlayStatus(ctx context.Context) error {
	var props protocol.SceneItemProperties
	params := protocol.GetSceneItemProperties{Item: protocol.OverlayItem, SceneName: protocol.LiveScene}
	if err := s.request(ctx, protocol.ControlServer, protocol.CmdGetSceneItemProperties, params, &props); err != nil {
		return err
	}

	return s.state.Apply(func() error {
		if !s.state.LoadOverlay(props.Visible) {
			s.view.SetOverlayPressed(true)
		}
		return nil
	})
}

func (s *Sequencer) loadBrbStatus(ctx context.Context) error {
	var st protocol.BrbStatus
	if err := s.request(ctx, protocol.CompanionService, protocol.CmdGetBrbStatus, nil, &st); err != nil {
		return err
	}

	return s.state.Apply(func() error {
		if !s.state.LoadAutoBrb(st.Enabled) {
			s.view.SetBrbToggle(true, projection.LabelBrbOff)
		}
		return nil
	})
}
