// Package projection renders panel state into the visible interface.
// Views are write-only sinks: the panel never reads state back from them.
package projection

// Button labels shown by the panel.
const (
	LabelGoLive     = "Go live"
	LabelStopStream = "Stream beenden"
	LabelBrbOn      = "Auto BRB ON"
	LabelBrbOff     = "Auto BRB OFF"
)

// View is the UI capability the sync core draws into.
type View interface {
	// RenderScenes creates one control per scene, in order.
	RenderScenes(names []string)
	// SetSceneDisabled marks a scene control as (non-)interactive.
	SetSceneDisabled(name string, disabled bool)
	// SetStreamButton sets the stream button's streaming class and label.
	SetStreamButton(streaming bool, label string)
	// SetOverlayPressed marks the overlay toggle pressed (overlay hidden).
	SetOverlayPressed(pressed bool)
	// SetBrbToggle sets the auto-BRB toggle's pressed class and label.
	SetBrbToggle(pressed bool, label string)
	// TogglePanels swaps visibility of the main and error panels.
	TogglePanels()
}
