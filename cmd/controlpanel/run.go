package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/streamheart/controlpanel/internal/config"
	"github.com/streamheart/controlpanel/internal/logging"
	"github.com/streamheart/controlpanel/internal/panel"
	"github.com/streamheart/controlpanel/internal/projection"
	"github.com/streamheart/controlpanel/internal/sensor"
)

func newRunCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync the panel with the remote and serve its events",
		Example: `  # Run against the default endpoint
  controlpanel run

  # Run against a studio machine with debug logs
  controlpanel run --target ws://studio.local:4445 --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runPanel(ctx, f)
		},
	}
}

func runPanel(ctx context.Context, f *globalFlags) error {
	s, err := newSession(ctx, f, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var locator sensor.Locator
	if sc := config.GetSensorConfig(); sc.Enabled {
		locator = sensor.Static{Latitude: sc.Latitude, Longitude: sc.Longitude}
	}
	pc := config.GetPanelConfig()

	p, err := panel.New(s.channel(), projection.NewLogged(projection.NewRecorder(), s.logger), panel.Options{
		Target:           s.target,
		RevealDelay:      pc.RevealDelay,
		PulseDelay:       pc.PulseDelay,
		SensorTimeout:    config.GetSensorConfig().Timeout,
		Locator:          locator,
		Telemetry:        s.telemetry,
		Logger:           s.logger,
		DispatcherLogger: logging.NewDispatcherLogger(s.slog.ZeroLogger()),
	})
	if err != nil {
		return err
	}
	defer p.Close()
	s.connection = p.State().Connection

	if err := p.Run(ctx); err != nil {
		return err
	}
	s.logger.Info("Shutting down")
	return nil
}
