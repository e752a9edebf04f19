package projection

import (
	"slices"
	"sync"
)

// SceneControl is one scene button.
type SceneControl struct {
	Name     string
	Disabled bool
}

// Panel is what a Recorder currently shows.
type Panel struct {
	Scenes         []SceneControl
	StreamActive   bool
	StreamLabel    string
	OverlayPressed bool
	BrbPressed     bool
	BrbLabel       string
	MainVisible    bool
	ErrorVisible   bool
}

// Scene returns the control for name.
func (p Panel) Scene(name string) (SceneControl, bool) {
	for _, sc := range p.Scenes {
		if sc.Name == name {
			return sc, true
		}
	}
	return SceneControl{}, false
}

// DisabledScenes returns the names of all disabled scene controls.
func (p Panel) DisabledScenes() []string {
	var out []string
	for _, sc := range p.Scenes {
		if sc.Disabled {
			out = append(out, sc.Name)
		}
	}
	return out
}

// Recorder is an in-memory View. It starts the way the page loads: error
// panel shown, main panel hidden, every toggle in its default position.
type Recorder struct {
	mu    sync.Mutex
	panel Panel
}

var _ View = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{panel: Panel{
		StreamLabel:  LabelGoLive,
		BrbLabel:     LabelBrbOn,
		ErrorVisible: true,
	}}
}

func (r *Recorder) RenderScenes(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panel.Scenes = r.panel.Scenes[:0]
	for _, n := range names {
		r.panel.Scenes = append(r.panel.Scenes, SceneControl{Name: n})
	}
}

// SetSceneDisabled ignores names that were never rendered.
func (r *Recorder) SetSceneDisabled(name string, disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.panel.Scenes {
		if r.panel.Scenes[i].Name == name {
			r.panel.Scenes[i].Disabled = disabled
			return
		}
	}
}

func (r *Recorder) SetStreamButton(streaming bool, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panel.StreamActive = streaming
	r.panel.StreamLabel = label
}

func (r *Recorder) SetOverlayPressed(pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panel.OverlayPressed = pressed
}

func (r *Recorder) SetBrbToggle(pressed bool, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panel.BrbPressed = pressed
	r.panel.BrbLabel = label
}

func (r *Recorder) TogglePanels() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panel.MainVisible = !r.panel.MainVisible
	r.panel.ErrorVisible = !r.panel.ErrorVisible
}

// Panel returns a copy of what is shown.
func (r *Recorder) Panel() Panel {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.panel
	p.Scenes = slices.Clone(r.panel.Scenes)
	return p
}
