// Package state holds the panel's local mirror of remote state. One State is
// shared by the bootstrap sequencer, the event handlers and the command
// helpers; every mutation happens under its lock. Writers that also project
// the result go through Apply so state and view change together.
package state

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnknownScene is returned when a scene name is not part of the collection.
var ErrUnknownScene = errors.New("unknown scene")

// ConnectionState tracks the channel handshake. It only moves forward.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (c ConnectionState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Progress records which bootstrap steps have completed. Flags are set once
// and never cleared.
type Progress struct {
	Connected             bool
	SceneListLoaded       bool
	StreamingStatusLoaded bool
	OverlayStatusLoaded   bool
	BrbStatusLoaded       bool
}

// Complete reports whether every bootstrap step has finished.
func (p Progress) Complete() bool {
	return p.Connected && p.SceneListLoaded && p.StreamingStatusLoaded && p.OverlayStatusLoaded && p.BrbStatusLoaded
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Connection     ConnectionState
	Progress       Progress
	Scenes         []string
	ActiveScene    string
	Streaming      bool
	OverlayVisible bool
	AutoBrbEnabled bool
}

// State is the panel's owned copy of remote state.
type State struct {
	// apply serializes mutate-and-project units; mu guards the fields.
	apply sync.Mutex
	mu    sync.RWMutex

	conn     ConnectionState
	progress Progress

	scenes []string
	known  map[string]struct{}
	active string

	streaming      bool
	overlayVisible bool
	autoBrb        bool

	// Set by events. A bootstrap reply never overrides an event value.
	streamingSet bool
	overlaySet   bool
	autoBrbSet   bool
}

// New creates an empty, disconnected State.
func New() *State {
	return &State{known: make(map[string]struct{})}
}

// Apply runs fn as one unit with respect to other Apply calls. Callers pair
// a mutation with its projection inside fn. fn must not call Apply.
func (s *State) Apply(fn func() error) error {
	s.apply.Lock()
	defer s.apply.Unlock()
	return fn()
}

// BeginConnecting moves Disconnected to Connecting. Later states are kept.
func (s *State) BeginConnecting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == Disconnected {
		s.conn = Connecting
	}
}

// MarkConnected records a successful handshake.
func (s *State) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = Connected
	s.progress.Connected = true
}

// Connection returns the current connection state.
func (s *State) Connection() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// Progress returns the bootstrap progress flags.
func (s *State) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// LoadScenes installs the scene collection and its active scene.
// Duplicate names are collapsed; active must be one of names.
func (s *State) LoadScenes(names []string, active string) error {
	known := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := known[n]; dup {
			continue
		}
		known[n] = struct{}{}
		unique = append(unique, n)
	}
	if _, ok := known[active]; !ok {
		return fmt.Errorf("%w: current scene %q is not in the scene list", ErrUnknownScene, active)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = unique
	s.known = known
	s.active = active
	s.progress.SceneListLoaded = true
	return nil
}

// Scenes returns the scene names in server order.
func (s *State) Scenes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scenes)
}

// HasScene reports whether name was registered by the scene list.
func (s *State) HasScene(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[name]
	return ok
}

// ActiveScene returns the active scene name, or "" before the scene list loads.
func (s *State) ActiveScene() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SwitchScene makes name the active scene and returns the previously active
// one. Unknown names leave the state untouched.
func (s *State) SwitchScene(name string) (previous string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.known[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}
	previous = s.active
	s.active = name
	return previous, nil
}

// LoadStreaming installs the bootstrap streaming status and returns the
// resulting value. A status already set by an event is kept.
func (s *State) LoadStreaming(streaming bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streamingSet {
		s.streaming = streaming
	}
	s.progress.StreamingStatusLoaded = true
	return s.streaming
}

// SetStreaming sets the streaming flag and reports whether it changed.
func (s *State) SetStreaming(streaming bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.streaming != streaming
	s.streaming = streaming
	s.streamingSet = true
	return changed
}

func (s *State) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// LoadOverlay installs the bootstrap overlay visibility and returns the
// resulting value. A visibility already set by an event is kept.
func (s *State) LoadOverlay(visible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.overlaySet {
		s.overlayVisible = visible
	}
	s.progress.OverlayStatusLoaded = true
	return s.overlayVisible
}

// SetOverlayVisible sets the overlay visibility and reports whether it changed.
func (s *State) SetOverlayVisible(visible bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.overlayVisible != visible
	s.overlayVisible = visible
	s.overlaySet = true
	return changed
}

func (s *State) OverlayVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlayVisible
}

// LoadAutoBrb installs the bootstrap auto-BRB status and returns the
// resulting value. A status already set by an event is kept.
func (s *State) LoadAutoBrb(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.autoBrbSet {
		s.autoBrb = enabled
	}
	s.progress.BrbStatusLoaded = true
	return s.autoBrb
}

// SetAutoBrb sets the auto-BRB flag and reports whether it changed.
func (s *State) SetAutoBrb(enabled bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.autoBrb != enabled
	s.autoBrb = enabled
	s.autoBrbSet = true
	return changed
}

func (s *State) AutoBrbEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoBrb
}

// Snapshot returns a copy of the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Connection:     s.conn,
		Progress:       s.progress,
		Scenes:         slices.Clone(s.scenes),
		ActiveScene:    s.active,
		Streaming:      s.streaming,
		OverlayVisible: s.overlayVisible,
		AutoBrbEnabled: s.autoBrb,
	}
}
