// Package commands sends the operator's button presses to the remote.
// Nothing here touches panel state; the remote's events reconcile it.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamheart/controlpanel/internal/channel"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

// DefaultPulseDelay separates the two halves of a refresh.
const DefaultPulseDelay = time.Second

type Config struct {
	PulseDelay time.Duration
}

type Commands struct {
	req    channel.Requester
	pulse  time.Duration
	logger *slog.Logger
}

func New(req channel.Requester, cfg Config, logger *slog.Logger) *Commands {
	if cfg.PulseDelay < 0 {
		cfg.PulseDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{req: req, pulse: cfg.PulseDelay, logger: logger.With("component", "commands")}
}

func (c *Commands) send(ctx context.Context, namespace, command string, params any) (*protocol.Response, error) {
	c.logger.Debug("Sending command", "namespace", namespace, "command", command)
	resp, err := c.req.Request(ctx, namespace, command, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return resp, nil
}

func (c *Commands) query(ctx context.Context, namespace, command string, params, out any) error {
	resp, err := c.send(ctx, namespace, command, params)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s reply: %w", command, err)
	}
	return nil
}

func (c *Commands) wait(ctx context.Context) error {
	if c.pulse == 0 {
		return nil
	}
	timer := time.NewTimer(c.pulse)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SwitchScene makes name the program scene.
func (c *Commands) SwitchScene(ctx context.Context, name string) error {
	_, err := c.send(ctx, protocol.ControlServer, protocol.CmdSetCurrentScene, protocol.SetCurrentScene{SceneName: name})
	return err
}

// ToggleStreaming starts or stops the stream. A stream always starts on
// the Start scene.
func (c *Commands) ToggleStreaming(ctx context.Context) error {
	var st protocol.StreamingStatus
	if err := c.query(ctx, protocol.ControlServer, protocol.CmdGetStreamingStatus, nil, &st); err != nil {
		return err
	}
	if !st.Streaming {
		if err := c.SwitchScene(ctx, protocol.StartScene); err != nil {
			return err
		}
	}
	_, err := c.send(ctx, protocol.ControlServer, protocol.CmdStartStopStreaming, nil)
	return err
}

// RefreshSceneCollection switches to the Refresh collection and back to Main
// so every source reloads.
func (c *Commands) RefreshSceneCollection(ctx context.Context) error {
	if _, err := c.send(ctx, protocol.ControlServer, protocol.CmdSetCurrentSceneCollection,
		protocol.SetCurrentSceneCollection{Name: protocol.RefreshCollection}); err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.send(ctx, protocol.ControlServer, protocol.CmdSetCurrentSceneCollection,
		protocol.SetCurrentSceneCollection{Name: protocol.MainCollection})
	return err
}

// RefreshOverlay hides and re-shows the overlay item.
func (c *Commands) RefreshOverlay(ctx context.Context) error {
	if _, err := c.send(ctx, protocol.ControlServer, protocol.CmdSetSceneItemProperties,
		protocol.SetSceneItemProperties{Item: protocol.OverlayItem, Visible: false}); err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.send(ctx, protocol.ControlServer, protocol.CmdSetSceneItemProperties,
		protocol.SetSceneItemProperties{Item: protocol.OverlayItem, Visible: true})
	return err
}

// ToggleOverlay inverts the overlay visibility the remote reports.
func (c *Commands) ToggleOverlay(ctx context.Context) error {
	var props protocol.SceneItemProperties
	params := protocol.GetSceneItemProperties{Item: protocol.OverlayItem, SceneName: protocol.LiveScene}
	if err := c.query(ctx, protocol.ControlServer, protocol.CmdGetSceneItemProperties, params, &props); err != nil {
		return err
	}
	_, err := c.send(ctx, protocol.ControlServer, protocol.CmdSetSceneItemProperties,
		protocol.SetSceneItemProperties{Item: protocol.OverlayItem, Visible: !props.Visible})
	return err
}

// ToggleAutoBrb inverts the auto-BRB setting the companion reports.
func (c *Commands) ToggleAutoBrb(ctx context.Context) error {
	var st protocol.BrbStatus
	if err := c.query(ctx, protocol.CompanionService, protocol.CmdGetBrbStatus, nil, &st); err != nil {
		return err
	}
	command := protocol.CmdEnableBrb
	if st.Enabled {
		command = protocol.CmdDisableBrb
	}
	_, err := c.send(ctx, protocol.CompanionService, command, nil)
	return err
}
