package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamheart/controlpanel/internal/channel"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

// testServer upgrades to WebSocket, records every frame it receives and
// answers requests depending on their request-type:
//
//	GetStreamingStatus  ok, streaming=true
//	Fail                error status
//	Silent              no reply
//	Push                three SwitchScenes events, then ok
//	Ask                 sends its own request, records the client's answer, then ok
//	Drop                closes the connection
func testServer(t *testing.T) (*httptest.Server, *frameLog) {
	t.Helper()
	fl := &frameLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		reply := func(id protocol.MessageID, status protocol.Status, errMsg string, fields any) error {
			resp, err := protocol.NewResponse(id, status, errMsg, fields)
			if err != nil {
				return err
			}
			return c.WriteMessage(ws.TextMessage, resp.Raw)
		}

		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			fl.add(data)

			msg, err := protocol.Parse(data)
			if err != nil || msg.Kind != protocol.KindRequest {
				continue
			}
			req := msg.Request

			switch req.RequestType {
			case protocol.CmdGetStreamingStatus:
				err = reply(req.MessageID, protocol.StatusOK, "", protocol.StreamingStatus{Streaming: true})
			case "Fail":
				err = reply(req.MessageID, protocol.StatusError, "no such scene", nil)
			case "Silent":
			case "Push":
				for _, name := range []string{"A", "B", "C"} {
					ev, _ := protocol.NewEvent(protocol.EventSwitchScenes, protocol.SwitchScenes{SceneName: name})
					if err = c.WriteMessage(ws.TextMessage, ev.Raw); err != nil {
						return
					}
				}
				err = reply(req.MessageID, protocol.StatusOK, "", nil)
			case "Ask":
				ping, _ := protocol.Request{Application: "Middleware", RequestType: "Ping", MessageID: "srv-1"}.MarshalJSON()
				if err = c.WriteMessage(ws.TextMessage, ping); err != nil {
					return
				}
				_, answer, rerr := c.ReadMessage()
				if rerr != nil {
					return
				}
				fl.add(answer)
				err = reply(req.MessageID, protocol.StatusOK, "", nil)
			case "Drop":
				return
			}
			if err != nil {
				return
			}
		}
	}))

	return srv, fl
}

type frameLog struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (f *frameLog) add(data []byte) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, m)
}

func (f *frameLog) all() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]map[string]any, len(f.frames))
	copy(cp, f.frames)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	c := New(Config{RequestTimeout: timeout})
	require.NoError(t, c.Connect(context.Background(), wsURL(srv)))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectFailure(t *testing.T) {
	c := New(Config{})
	err := c.Connect(context.Background(), "ws://127.0.0.1:1")

	var te *channel.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ws://127.0.0.1:1", te.Target)
}

func TestRequestBeforeConnect(t *testing.T) {
	c := New(Config{})
	_, err := c.Request(context.Background(), protocol.ControlServer, protocol.CmdGetSceneList, nil)
	assert.ErrorIs(t, err, channel.ErrNotConnected)
	assert.ErrorIs(t, c.Emit("x", nil), channel.ErrNotConnected)
}

func TestRequestReply(t *testing.T) {
	srv, fl := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	resp, err := c.Request(context.Background(), protocol.ControlServer, protocol.CmdGetStreamingStatus, nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, protocol.MessageID("0"), resp.MessageID)

	var st protocol.StreamingStatus
	require.NoError(t, resp.Decode(&st))
	assert.True(t, st.Streaming)

	frames := fl.all()
	require.Len(t, frames, 1)
	assert.Equal(t, "OBS Studio", frames[0][protocol.FieldApplication])
	assert.Equal(t, protocol.CmdGetStreamingStatus, frames[0][protocol.FieldRequestType])
	assert.Equal(t, "0", frames[0][protocol.FieldMessageID])
}

func TestRequestIDsIncrease(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	for want := range 3 {
		resp, err := c.Request(context.Background(), protocol.CompanionService, protocol.CmdGetStreamingStatus, nil)
		require.NoError(t, err)
		assert.Equal(t, protocol.MessageID(strconv.Itoa(want)), resp.MessageID)
	}
}

func TestRequestErrorStatus(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	_, err := c.Request(context.Background(), protocol.ControlServer, "Fail", nil)

	var re *channel.RemoteRequestError
	require.ErrorAs(t, err, &re)
	assert.False(t, re.Timeout)
	assert.Equal(t, "no such scene", re.Reason)
	assert.Equal(t, "Fail", re.Command)
}

func TestRequestTimeout(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, 50*time.Millisecond)

	_, err := c.Request(context.Background(), protocol.ControlServer, "Silent", nil)

	var re *channel.RemoteRequestError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Timeout)
}

func TestRequestContextCancelled(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, protocol.ControlServer, "Silent", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventsDeliveredInOrder(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	var mu sync.Mutex
	var got []string
	c.On(protocol.EventSwitchScenes, func(ev protocol.Event) {
		var p protocol.SwitchScenes
		_ = ev.Decode(&p)
		mu.Lock()
		got = append(got, p.Name())
		mu.Unlock()
	})

	_, err := c.Request(context.Background(), protocol.ControlServer, "Push", nil)
	require.NoError(t, err)

	// Events precede the reply on the wire, so they are handled by now.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func TestHandlerPanicDoesNotStopReadLoop(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	c.On(protocol.EventSwitchScenes, func(protocol.Event) { panic("boom") })

	_, err := c.Request(context.Background(), protocol.ControlServer, "Push", nil)
	require.NoError(t, err)
	_, err = c.Request(context.Background(), protocol.ControlServer, protocol.CmdGetStreamingStatus, nil)
	require.NoError(t, err)
}

func TestEmit(t *testing.T) {
	srv, fl := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	require.NoError(t, c.Emit(protocol.EventCurrentPosition, protocol.CurrentPosition{Latitude: 52.5, Longitude: 13.4}))

	require.Eventually(t, func() bool { return len(fl.all()) == 1 }, time.Second, 10*time.Millisecond)
	frame := fl.all()[0]
	assert.Equal(t, protocol.EventCurrentPosition, frame[protocol.FieldUpdateType])
	assert.InDelta(t, 52.5, frame["latitude"], 1e-9)
	assert.InDelta(t, 13.4, frame["longitude"], 1e-9)
}

func TestInboundRequestRejected(t *testing.T) {
	srv, fl := testServer(t)
	defer srv.Close()
	c := connect(t, srv, time.Second)

	_, err := c.Request(context.Background(), protocol.ControlServer, "Ask", nil)
	require.NoError(t, err)

	frames := fl.all()
	require.Len(t, frames, 2)
	answer := frames[1]
	assert.Equal(t, "srv-1", answer[protocol.FieldMessageID])
	assert.Equal(t, "error", answer[protocol.FieldStatus])
	assert.Equal(t, "Invalid request-type", answer[protocol.FieldError])
}

func TestReadFailureRaisesErrorEvent(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, 5*time.Second)

	raised := make(chan protocol.TransportFailure, 1)
	c.On(protocol.EventError, func(ev protocol.Event) {
		var p protocol.TransportFailure
		_ = ev.Decode(&p)
		raised <- p
	})

	_, err := c.Request(context.Background(), protocol.ControlServer, "Drop", nil)
	var te *channel.TransportError
	require.ErrorAs(t, err, &te)

	select {
	case p := <-raised:
		assert.NotEmpty(t, p.Error)
	case <-time.After(time.Second):
		t.Fatal("error event not raised")
	}
}

func TestClose(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := New(Config{})
	require.NoError(t, c.Connect(context.Background(), wsURL(srv)))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Request(context.Background(), protocol.ControlServer, protocol.CmdGetSceneList, nil)
	assert.True(t, errors.Is(err, channel.ErrClosed))
	assert.ErrorIs(t, c.Connect(context.Background(), wsURL(srv)), channel.ErrClosed)
}

func TestRequestAfterReadFailureFailsFast(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()
	c := connect(t, srv, 5*time.Second)

	raised := make(chan struct{}, 1)
	c.On(protocol.EventError, func(protocol.Event) { raised <- struct{}{} })

	_, err := c.Request(context.Background(), protocol.ControlServer, "Drop", nil)
	require.Error(t, err)
	select {
	case <-raised:
	case <-time.After(time.Second):
		t.Fatal("error event not raised")
	}

	start := time.Now()
	_, err = c.Request(context.Background(), protocol.ControlServer, protocol.CmdGetSceneList, nil)
	var te *channel.TransportError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), time.Second)

	var emitErr *channel.TransportError
	assert.ErrorAs(t, c.Emit("ping", nil), &emitErr)
	assert.NoError(t, c.Close())
}
