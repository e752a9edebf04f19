package protocol

// Commands sent to the control server.
const (
	CmdGetSceneList              = "GetSceneList"
	CmdSetCurrentScene           = "SetCurrentScene"
	CmdGetStreamingStatus        = "GetStreamingStatus"
	CmdStartStopStreaming        = "StartStopStreaming"
	CmdGetSceneItemProperties    = "GetSceneItemProperties"
	CmdSetSceneItemProperties    = "SetSceneItemProperties"
	CmdSetCurrentSceneCollection = "SetCurrentSceneCollection"
)

// Commands sent to the companion service.
const (
	CmdGetBrbStatus = "GetBrbStatus"
	CmdEnableBrb    = "EnableBrb"
	CmdDisableBrb   = "DisableBrb"
)

// Inbound event names.
const (
	EventGetPosition                = "GetPosition"
	EventUnsubscribedFrom           = "UnsubscribedFrom"
	EventSwitchScenes               = "SwitchScenes"
	EventStreamStarted              = "StreamStarted"
	EventStreamStopped              = "StreamStopped"
	EventSceneItemVisibilityChanged = "SceneItemVisibilityChanged"
	EventBrbDisabled                = "BrbDisabled"
	EventBrbEnabled                 = "BrbEnabled"
	EventExiting                    = "Exiting"
	// EventError is raised by the transport itself, never by the remote.
	EventError = "error"
)

// EventCurrentPosition is the outbound sensor event.
const EventCurrentPosition = "CurrentPosition"

// Fixed identifiers on the remote control surface.
const (
	OverlayItem       = "Overlay"
	LiveScene         = "Live"
	StartScene        = "Start"
	RefreshCollection = "Refresh"
	MainCollection    = "Main"
)

type Scene struct {
	Name string `json:"name"`
}

// SceneList is the GetSceneList reply. The control server spells the
// current scene "current-scene"; client libraries camel-case it.
type SceneList struct {
	Scenes             []Scene `json:"scenes"`
	CurrentScene       string  `json:"currentScene"`
	LegacyCurrentScene string  `json:"current-scene"`
}

// Current returns the active scene name in either spelling.
func (s SceneList) Current() string {
	if s.CurrentScene != "" {
		return s.CurrentScene
	}
	return s.LegacyCurrentScene
}

// Names returns the scene names in server order.
func (s SceneList) Names() []string {
	names := make([]string, 0, len(s.Scenes))
	for _, sc := range s.Scenes {
		names = append(names, sc.Name)
	}
	return names
}

type StreamingStatus struct {
	Streaming bool `json:"streaming"`
}

type SceneItemProperties struct {
	Visible bool `json:"visible"`
}

type BrbStatus struct {
	Enabled bool `json:"enabled"`
}

type SetCurrentScene struct {
	SceneName string `json:"scene-name"`
}

type GetSceneItemProperties struct {
	Item      string `json:"item"`
	SceneName string `json:"scene-name"`
}

type SetSceneItemProperties struct {
	Item    string `json:"item"`
	Visible bool   `json:"visible"`
}

type SetCurrentSceneCollection struct {
	Name string `json:"sc-name"`
}

// SwitchScenes is the payload of the SwitchScenes event.
type SwitchScenes struct {
	SceneName       string `json:"sceneName"`
	LegacySceneName string `json:"scene-name"`
}

// Name returns the new scene name in either spelling.
func (s SwitchScenes) Name() string {
	if s.SceneName != "" {
		return s.SceneName
	}
	return s.LegacySceneName
}

// SceneItemVisibilityChanged is the payload of the visibility event.
type SceneItemVisibilityChanged struct {
	ItemName          string `json:"itemName"`
	LegacyItemName    string `json:"item-name"`
	ItemVisible       *bool  `json:"itemVisible"`
	LegacyItemVisible *bool  `json:"item-visible"`
}

func (s SceneItemVisibilityChanged) Item() string {
	if s.ItemName != "" {
		return s.ItemName
	}
	return s.LegacyItemName
}

// Visible returns the new visibility and whether the payload carried one.
func (s SceneItemVisibilityChanged) Visible() (visible, ok bool) {
	switch {
	case s.ItemVisible != nil:
		return *s.ItemVisible, true
	case s.LegacyItemVisible != nil:
		return *s.LegacyItemVisible, true
	default:
		return false, false
	}
}

type UnsubscribedFrom struct {
	Name string `json:"name"`
}

// CurrentPosition is the success payload of the outbound sensor event.
type CurrentPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PositionError is the failure payload of the outbound sensor event.
type PositionError struct {
	Error string `json:"error"`
}

// TransportFailure is the payload of the transport-level error event.
type TransportFailure struct {
	Error string `json:"error"`
}
