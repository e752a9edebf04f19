package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamheart/controlpanel/internal/channel/channeltest"
	"github.com/streamheart/controlpanel/internal/dispatcher"
	"github.com/streamheart/controlpanel/internal/projection"
	"github.com/streamheart/controlpanel/internal/state"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

type transitions struct {
	mu    sync.Mutex
	kinds []string
}

func (r *transitions) RecordTransition(kind string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}
func (r *transitions) RecordPosition(float64, float64) {}
func (r *transitions) Close()                          {}

type relayFunc func(ctx context.Context) error

func (f relayFunc) RelayPosition(ctx context.Context) error { return f(ctx) }

type fixture struct {
	ch    *channeltest.Fake
	d     *dispatcher.Dispatcher
	state *state.State
	view  *projection.Recorder
	tel   *transitions
}

func newFixture(t *testing.T, relay PositionRelay) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		ch:    channeltest.New(),
		state: state.New(),
		view:  projection.NewRecorder(),
		tel:   &transitions{},
	}
	d, err := dispatcher.New(logger)
	require.NoError(t, err)
	f.d = d

	svc := NewService(Dependencies{
		State:     f.state,
		View:      f.view,
		Relay:     relay,
		Telemetry: f.tel,
		Logger:    logger,
	})
	svc.RegisterHandlers(d)
	d.Bind(f.ch)
	return f
}

func (f *fixture) loadScenes(t *testing.T, active string, names ...string) {
	t.Helper()
	require.NoError(t, f.state.LoadScenes(names, active))
	f.view.RenderScenes(names)
	f.view.SetSceneDisabled(active, true)
}

func (f *fixture) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	require.NoError(t, f.ch.Deliver(event, payload))
}

func TestRegisterHandlers_SubscribesEveryEvent(t *testing.T) {
	f := newFixture(t, nil)

	for _, name := range []string{
		protocol.EventGetPosition,
		protocol.EventUnsubscribedFrom,
		protocol.EventSwitchScenes,
		protocol.EventStreamStarted,
		protocol.EventStreamStopped,
		protocol.EventSceneItemVisibilityChanged,
		protocol.EventBrbDisabled,
		protocol.EventBrbEnabled,
		protocol.EventExiting,
		protocol.EventError,
	} {
		assert.True(t, f.ch.Subscribed(name), name)
	}
}

func TestSwitchScenes(t *testing.T) {
	f := newFixture(t, nil)
	f.loadScenes(t, "Start", "Start", "Live", "BRB")

	f.deliver(t, protocol.EventSwitchScenes, map[string]string{"sceneName": "Live"})

	assert.Equal(t, "Live", f.state.ActiveScene())
	assert.Equal(t, []string{"Live"}, f.view.Panel().DisabledScenes())

	// legacy spelling
	f.deliver(t, protocol.EventSwitchScenes, map[string]string{"scene-name": "BRB"})

	assert.Equal(t, "BRB", f.state.ActiveScene())
	assert.Equal(t, []string{"BRB"}, f.view.Panel().DisabledScenes())
	assert.Equal(t, []string{"scene", "scene"}, f.tel.kinds)
}

func TestSwitchScenes_SameSceneKeepsItDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.loadScenes(t, "Live", "Start", "Live")

	f.deliver(t, protocol.EventSwitchScenes, map[string]string{"sceneName": "Live"})

	assert.Equal(t, []string{"Live"}, f.view.Panel().DisabledScenes())
}

func TestSwitchScenes_UnknownSceneIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.loadScenes(t, "Start", "Start", "Live")

	f.deliver(t, protocol.EventSwitchScenes, map[string]string{"sceneName": "Ghost"})

	assert.Equal(t, "Start", f.state.ActiveScene())
	assert.Equal(t, []string{"Start"}, f.view.Panel().DisabledScenes())
	assert.Empty(t, f.tel.kinds)
}

func TestSwitchScenes_BeforeSceneListIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	f.deliver(t, protocol.EventSwitchScenes, map[string]string{"sceneName": "Live"})

	assert.Empty(t, f.state.ActiveScene())
	assert.Empty(t, f.view.Panel().Scenes)
}

func TestStreamEvents(t *testing.T) {
	f := newFixture(t, nil)

	f.deliver(t, protocol.EventStreamStarted, nil)
	p := f.view.Panel()
	assert.True(t, f.state.Streaming())
	assert.True(t, p.StreamActive)
	assert.Equal(t, projection.LabelStopStream, p.StreamLabel)

	// Duplicate delivery keeps the state.
	f.deliver(t, protocol.EventStreamStarted, nil)
	assert.True(t, f.state.Streaming())
	assert.True(t, f.view.Panel().StreamActive)

	f.deliver(t, protocol.EventStreamStopped, nil)
	p = f.view.Panel()
	assert.False(t, f.state.Streaming())
	assert.False(t, p.StreamActive)
	assert.Equal(t, projection.LabelGoLive, p.StreamLabel)

	assert.Equal(t, []string{"streaming", "streaming"}, f.tel.kinds)
}

func TestSceneItemVisibilityChanged(t *testing.T) {
	f := newFixture(t, nil)

	f.deliver(t, protocol.EventSceneItemVisibilityChanged, map[string]any{"itemName": "Overlay", "itemVisible": false})
	assert.False(t, f.state.OverlayVisible())
	assert.True(t, f.view.Panel().OverlayPressed)

	f.deliver(t, protocol.EventSceneItemVisibilityChanged, map[string]any{"item-name": "Overlay", "item-visible": true})
	assert.True(t, f.state.OverlayVisible())
	assert.False(t, f.view.Panel().OverlayPressed)

	f.deliver(t, protocol.EventSceneItemVisibilityChanged, map[string]any{"item-name": "Overlay", "item-visible": true})
	assert.True(t, f.state.OverlayVisible())
	assert.False(t, f.view.Panel().OverlayPressed)
}

func TestSceneItemVisibilityChanged_OtherItemIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.state.LoadOverlay(true)

	f.deliver(t, protocol.EventSceneItemVisibilityChanged, map[string]any{"itemName": "Webcam", "itemVisible": false})

	assert.True(t, f.state.OverlayVisible())
	assert.False(t, f.view.Panel().OverlayPressed)
}

func TestSceneItemVisibilityChanged_MissingVisibility(t *testing.T) {
	f := newFixture(t, nil)
	f.state.LoadOverlay(true)

	ev, err := protocol.NewEvent(protocol.EventSceneItemVisibilityChanged, map[string]any{"itemName": "Overlay"})
	require.NoError(t, err)
	_, err = f.d.Dispatch(dispatcher.Event{Name: protocol.EventSceneItemVisibilityChanged, Payload: ev})

	assert.Error(t, err)
	assert.True(t, f.state.OverlayVisible())
}

func TestBrbEvents(t *testing.T) {
	f := newFixture(t, nil)
	f.state.LoadAutoBrb(true)

	f.deliver(t, protocol.EventBrbDisabled, nil)
	p := f.view.Panel()
	assert.False(t, f.state.AutoBrbEnabled())
	assert.True(t, p.BrbPressed)
	assert.Equal(t, projection.LabelBrbOff, p.BrbLabel)

	f.deliver(t, protocol.EventBrbEnabled, nil)
	p = f.view.Panel()
	assert.True(t, f.state.AutoBrbEnabled())
	assert.False(t, p.BrbPressed)
	assert.Equal(t, projection.LabelBrbOn, p.BrbLabel)
}

func TestPanelToggles(t *testing.T) {
	f := newFixture(t, nil)

	f.deliver(t, protocol.EventUnsubscribedFrom, map[string]string{"name": "OBS Studio"})
	assert.True(t, f.view.Panel().MainVisible)

	f.deliver(t, protocol.EventExiting, nil)
	p := f.view.Panel()
	assert.False(t, p.MainVisible)
	assert.True(t, p.ErrorVisible)
}

func TestTransportErrorOnlyLogs(t *testing.T) {
	f := newFixture(t, nil)
	before := f.view.Panel()

	f.deliver(t, protocol.EventError, protocol.TransportFailure{Error: "connection reset"})

	assert.Equal(t, before, f.view.Panel())
	assert.Equal(t, state.Disconnected, f.state.Connection())
}

func TestGetPosition_RunsRelay(t *testing.T) {
	called := make(chan struct{}, 1)
	f := newFixture(t, relayFunc(func(context.Context) error {
		called <- struct{}{}
		return nil
	}))

	f.deliver(t, protocol.EventGetPosition, nil)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("relay was not invoked")
	}
}

func TestGetPosition_WithoutRelay(t *testing.T) {
	f := newFixture(t, nil)

	f.deliver(t, protocol.EventGetPosition, nil)

	assert.Empty(t, f.ch.Emitted())
}

func TestTransportError_UndecodablePayloadIsLogged(t *testing.T) {
	var buf bytes.Buffer
	ch := channeltest.New()
	d, err := dispatcher.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	NewService(Dependencies{
		State:  state.New(),
		View:   projection.NewRecorder(),
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}).RegisterHandlers(d)
	d.Bind(ch)

	require.NoError(t, ch.Deliver(protocol.EventError, map[string]any{"error": 42}))

	out := buf.String()
	assert.Contains(t, out, "Undecodable channel error")
	assert.Contains(t, out, `\"error\":42`)
}

func TestGetPosition_UsesServiceContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	ch := channeltest.New()
	d, err := dispatcher.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	NewService(Dependencies{
		Context: ctx,
		State:   state.New(),
		View:    projection.NewRecorder(),
		Relay: relayFunc(func(ctx context.Context) error {
			<-ctx.Done()
			got <- ctx.Err()
			return ctx.Err()
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).RegisterHandlers(d)
	d.Bind(ch)

	require.NoError(t, ch.Deliver(protocol.EventGetPosition, nil))
	cancel()

	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not observe cancellation")
	}
}

func TestSwitchScenes_WaitsForConcurrentApply(t *testing.T) {
	f := newFixture(t, nil)
	f.loadScenes(t, "Start", "Start", "Live")

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = f.state.Apply(func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	delivered := make(chan struct{})
	go func() {
		f.deliver(t, protocol.EventSwitchScenes, map[string]string{"sceneName": "Live"})
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("switch applied while another unit held the state")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, "Start", f.state.ActiveScene())

	close(release)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("switch never applied")
	}
	assert.Equal(t, "Live", f.state.ActiveScene())
	assert.Equal(t, []string{"Live"}, f.view.Panel().DisabledScenes())
}
