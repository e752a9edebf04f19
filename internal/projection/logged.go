package projection

import "log/slog"

// Logged decorates a View and logs every instruction it receives.
// The headless CLI uses it so projection changes are visible in the logs.
type Logged struct {
	inner  View
	logger *slog.Logger
}

var _ View = (*Logged)(nil)

func NewLogged(inner View, logger *slog.Logger) *Logged {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logged{inner: inner, logger: logger.With("component", "projection")}
}

func (l *Logged) RenderScenes(names []string) {
	l.logger.Info("render scenes", "scenes", names)
	l.inner.RenderScenes(names)
}

func (l *Logged) SetSceneDisabled(name string, disabled bool) {
	l.logger.Debug("scene control", "scene", name, "disabled", disabled)
	l.inner.SetSceneDisabled(name, disabled)
}

func (l *Logged) SetStreamButton(streaming bool, label string) {
	l.logger.Info("stream button", "streaming", streaming, "label", label)
	l.inner.SetStreamButton(streaming, label)
}

func (l *Logged) SetOverlayPressed(pressed bool) {
	l.logger.Info("overlay toggle", "pressed", pressed)
	l.inner.SetOverlayPressed(pressed)
}

func (l *Logged) SetBrbToggle(pressed bool, label string) {
	l.logger.Info("auto brb toggle", "pressed", pressed, "label", label)
	l.inner.SetBrbToggle(pressed, label)
}

func (l *Logged) TogglePanels() {
	l.logger.Info("toggle panels")
	l.inner.TogglePanels()
}
