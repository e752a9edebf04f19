package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamheart/controlpanel/internal/commands"
	"github.com/streamheart/controlpanel/internal/config"
)

// withCommands connects once, runs fn and disconnects. No bootstrap runs;
// the panel process, if any, learns the outcome from remote events.
func withCommands(cmd *cobra.Command, f *globalFlags, fn func(context.Context, *commands.Commands) error) error {
	ctx := cmd.Context()
	s, err := newSession(ctx, f, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ch := s.channel()
	if err := ch.Connect(ctx, s.target); err != nil {
		return err
	}
	defer ch.Close()

	c := commands.New(ch, commands.Config{PulseDelay: config.GetPanelConfig().PulseDelay}, s.logger)
	return fn(ctx, c)
}

func newSceneCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scene <name>",
		Short: "Switch the program scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCommands(cmd, f, func(ctx context.Context, c *commands.Commands) error {
				return c.SwitchScene(ctx, args[0])
			})
		},
	}
}

func newStreamCommand(f *globalFlags) *cobra.Command {
	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Control the stream",
	}
	streamCmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Start the stream on the Start scene, or stop it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCommands(cmd, f, func(ctx context.Context, c *commands.Commands) error {
				return c.ToggleStreaming(ctx)
			})
		},
	})
	return streamCmd
}

func newOverlayCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "overlay <toggle|refresh>",
		Short:     "Toggle or reload the overlay item",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"toggle", "refresh"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCommands(cmd, f, func(ctx context.Context, c *commands.Commands) error {
				switch args[0] {
				case "toggle":
					return c.ToggleOverlay(ctx)
				case "refresh":
					return c.RefreshOverlay(ctx)
				default:
					return fmt.Errorf("unknown overlay action %q", args[0])
				}
			})
		},
	}
}

func newBrbCommand(f *globalFlags) *cobra.Command {
	brbCmd := &cobra.Command{
		Use:   "brb",
		Short: "Control the companion's automatic BRB switch",
	}
	brbCmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Invert the auto-BRB setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCommands(cmd, f, func(ctx context.Context, c *commands.Commands) error {
				return c.ToggleAutoBrb(ctx)
			})
		},
	})
	return brbCmd
}

func newRefreshCommand(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload every source by cycling the scene collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCommands(cmd, f, func(ctx context.Context, c *commands.Commands) error {
				return c.RefreshSceneCollection(ctx)
			})
		},
	}
}
