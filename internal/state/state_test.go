package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disconnected(t *testing.T) {
	s := New()
	assert.Equal(t, Disconnected, s.Connection())
	assert.Equal(t, Progress{}, s.Progress())
	assert.Empty(t, s.ActiveScene())
	assert.Empty(t, s.Scenes())
}

func TestConnection_OnlyMovesForward(t *testing.T) {
	s := New()
	s.BeginConnecting()
	assert.Equal(t, Connecting, s.Connection())

	s.MarkConnected()
	assert.Equal(t, Connected, s.Connection())
	assert.True(t, s.Progress().Connected)

	s.BeginConnecting()
	assert.Equal(t, Connected, s.Connection(), "connected state must not revert")
}

func TestLoadScenes(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadScenes([]string{"Start", "Live", "Start"}, "Live"))

	assert.Equal(t, []string{"Start", "Live"}, s.Scenes())
	assert.Equal(t, "Live", s.ActiveScene())
	assert.True(t, s.HasScene("Start"))
	assert.False(t, s.HasScene("BRB"))
	assert.True(t, s.Progress().SceneListLoaded)
}

func TestLoadScenes_ActiveMustBeMember(t *testing.T) {
	s := New()
	err := s.LoadScenes([]string{"Start"}, "Live")
	require.ErrorIs(t, err, ErrUnknownScene)
	assert.False(t, s.Progress().SceneListLoaded)
	assert.Empty(t, s.ActiveScene())
}

func TestSwitchScene(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadScenes([]string{"Start", "Live", "BRB"}, "Start"))

	prev, err := s.SwitchScene("Live")
	require.NoError(t, err)
	assert.Equal(t, "Start", prev)
	assert.Equal(t, "Live", s.ActiveScene())

	_, err = s.SwitchScene("Nope")
	require.ErrorIs(t, err, ErrUnknownScene)
	assert.Equal(t, "Live", s.ActiveScene())
}

func TestSwitchScene_BeforeSceneList(t *testing.T) {
	s := New()
	_, err := s.SwitchScene("Live")
	require.ErrorIs(t, err, ErrUnknownScene)
	assert.Empty(t, s.ActiveScene())
}

func TestSetters_ReportChange(t *testing.T) {
	s := New()

	assert.True(t, s.SetStreaming(true))
	assert.False(t, s.SetStreaming(true))
	assert.True(t, s.Streaming())

	assert.True(t, s.SetOverlayVisible(true))
	assert.False(t, s.SetOverlayVisible(true))

	assert.False(t, s.SetAutoBrb(false))
	assert.True(t, s.SetAutoBrb(true))
	assert.True(t, s.AutoBrbEnabled())
}

func TestLoaders_SetProgress(t *testing.T) {
	s := New()
	s.MarkConnected()
	require.NoError(t, s.LoadScenes([]string{"Live"}, "Live"))
	s.LoadStreaming(true)
	s.LoadOverlay(false)
	s.LoadAutoBrb(true)

	snap := s.Snapshot()
	assert.True(t, snap.Progress.Complete())
	assert.True(t, snap.Streaming)
	assert.False(t, snap.OverlayVisible)
	assert.True(t, snap.AutoBrbEnabled)
	assert.Equal(t, "Live", snap.ActiveScene)
}

func TestSnapshot_IsCopy(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadScenes([]string{"Start", "Live"}, "Start"))

	snap := s.Snapshot()
	snap.Scenes[0] = "mutated"

	assert.Equal(t, []string{"Start", "Live"}, s.Scenes())
}

func TestConcurrentSwitches_SingleActive(t *testing.T) {
	s := New()
	names := []string{"A", "B", "C", "D"}
	require.NoError(t, s.LoadScenes(names, "A"))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.SwitchScene(names[i%len(names)])
		}(i)
	}
	wg.Wait()

	assert.Contains(t, names, s.ActiveScene())
}

func TestLoaders_KeepEventValues(t *testing.T) {
	s := New()
	s.SetStreaming(true)
	s.SetOverlayVisible(false)
	s.SetAutoBrb(true)

	assert.True(t, s.LoadStreaming(false))
	assert.False(t, s.LoadOverlay(true))
	assert.True(t, s.LoadAutoBrb(false))

	snap := s.Snapshot()
	assert.True(t, snap.Streaming)
	assert.False(t, snap.OverlayVisible)
	assert.True(t, snap.AutoBrbEnabled)
	assert.True(t, snap.Progress.StreamingStatusLoaded)
	assert.True(t, snap.Progress.OverlayStatusLoaded)
	assert.True(t, snap.Progress.BrbStatusLoaded)
}

func TestApply_ReturnsFnError(t *testing.T) {
	s := New()
	err := s.Apply(func() error {
		return s.LoadScenes([]string{"Start"}, "Live")
	})
	assert.ErrorIs(t, err, ErrUnknownScene)
}
