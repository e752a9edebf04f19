// Package panel assembles one panel session: state, dispatcher, handlers,
// sensor relay and bootstrap around a single channel.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamheart/controlpanel/internal/bootstrap"
	"github.com/streamheart/controlpanel/internal/channel"
	"github.com/streamheart/controlpanel/internal/commands"
	"github.com/streamheart/controlpanel/internal/dispatcher"
	"github.com/streamheart/controlpanel/internal/handlers"
	"github.com/streamheart/controlpanel/internal/projection"
	"github.com/streamheart/controlpanel/internal/sensor"
	"github.com/streamheart/controlpanel/internal/state"
	"github.com/streamheart/controlpanel/internal/telemetry"
)

type Options struct {
	Target        string
	RevealDelay   time.Duration
	PulseDelay    time.Duration
	SensorTimeout time.Duration
	// Locator is nil when the host cannot report its position.
	Locator   sensor.Locator
	Telemetry telemetry.Recorder
	Logger    *slog.Logger
	// DispatcherLogger defaults to Logger.
	DispatcherLogger dispatcher.Logger
}

// Panel is one session against one remote. It is not reusable once closed.
type Panel struct {
	ch         channel.Channel
	state      *state.State
	dispatcher *dispatcher.Dispatcher
	sequencer  *bootstrap.Sequencer
	commands   *commands.Commands
	telemetry  telemetry.Recorder
	logger     *slog.Logger

	// cancel ends work handlers started on the session context.
	cancel context.CancelFunc
}

// New wires every event handler to ch before anything connects, so no
// remote event can arrive unhandled.
func New(ch channel.Channel, view projection.View, opts Options) (*Panel, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Nop{}
	}
	dlog := opts.DispatcherLogger
	if dlog == nil {
		dlog = opts.Logger
	}
	if opts.RevealDelay == 0 {
		opts.RevealDelay = bootstrap.DefaultRevealDelay
	}
	if opts.PulseDelay == 0 {
		opts.PulseDelay = commands.DefaultPulseDelay
	}

	d, err := dispatcher.New(dlog)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := state.New()
	relay := sensor.NewRelay(opts.Locator, ch, sensor.RelayConfig{
		Timeout:   opts.SensorTimeout,
		Telemetry: opts.Telemetry,
		Logger:    opts.Logger,
	})

	handlers.NewService(handlers.Dependencies{
		Context:   ctx,
		State:     st,
		View:      view,
		Relay:     relay,
		Telemetry: opts.Telemetry,
		Logger:    opts.Logger,
	}).RegisterHandlers(d)
	d.Bind(ch)

	return &Panel{
		ch:         ch,
		state:      st,
		dispatcher: d,
		sequencer: bootstrap.New(ch, st, view, bootstrap.Config{
			Target:      opts.Target,
			RevealDelay: opts.RevealDelay,
		}, opts.Logger),
		commands:  commands.New(ch, commands.Config{PulseDelay: opts.PulseDelay}, opts.Logger),
		telemetry: opts.Telemetry,
		logger:    opts.Logger.With("component", "panel"),
		cancel:    cancel,
	}, nil
}

func (p *Panel) State() *state.State { return p.state }

// Commands returns the operator command helpers bound to this session.
func (p *Panel) Commands() *commands.Commands { return p.commands }

// Bootstrap connects and syncs the panel once.
func (p *Panel) Bootstrap(ctx context.Context) error {
	return p.sequencer.Run(ctx)
}

// Run bootstraps and then keeps applying remote events until ctx ends.
// A cancelled ctx after a successful bootstrap is a clean exit.
func (p *Panel) Run(ctx context.Context) error {
	if err := p.Bootstrap(ctx); err != nil {
		return err
	}
	p.logger.Info("Serving remote events", "events", len(p.dispatcher.Names()))
	<-ctx.Done()
	return nil
}

// Close cancels in-flight handler work, releases the channel and flushes
// telemetry.
func (p *Panel) Close() error {
	p.cancel()
	err := p.ch.Close()
	p.telemetry.Close()
	if err != nil && !errors.Is(err, channel.ErrClosed) {
		return fmt.Errorf("close channel: %w", err)
	}
	return nil
}
