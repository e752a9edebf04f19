// Package channeltest provides a scripted in-memory channel for tests.
package channeltest

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/streamheart/controlpanel/internal/channel"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

// Call is a request the fake received.
type Call struct {
	Namespace string
	Command   string
	Params    any
}

// Emitted is an outbound event the fake received.
type Emitted struct {
	Event   string
	Payload json.RawMessage
}

type reply struct {
	fields any
	err    error
}

// Fake implements channel.Channel. Replies are scripted per namespace and
// command; unscripted requests fail with a RemoteRequestError.
type Fake struct {
	mu sync.Mutex

	connectErr error
	target     string
	connected  bool
	closed     bool

	replies  map[string][]reply
	calls    []Call
	emitted  []Emitted
	handlers map[string][]channel.EventHandler
	nextID   int
}

var _ channel.Channel = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		replies:  make(map[string][]reply),
		handlers: make(map[string][]channel.EventHandler),
	}
}

func key(namespace, command string) string {
	return namespace + "/" + command
}

// FailConnect makes Connect return err wrapped in a TransportError.
func (f *Fake) FailConnect(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
	return f
}

// Reply scripts a successful reply. Several replies for the same command
// are consumed in order; the last one is repeated.
func (f *Fake) Reply(namespace, command string, fields any) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(namespace, command)
	f.replies[k] = append(f.replies[k], reply{fields: fields})
	return f
}

// Fail scripts a failing reply.
func (f *Fake) Fail(namespace, command string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(namespace, command)
	f.replies[k] = append(f.replies[k], reply{err: err})
	return f
}

func (f *Fake) Connect(_ context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = target
	if f.connectErr != nil {
		return &channel.TransportError{Target: target, Err: f.connectErr}
	}
	f.connected = true
	return nil
}

func (f *Fake) Request(ctx context.Context, namespace, command string, params any) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, channel.ErrClosed
	}
	if !f.connected {
		return nil, channel.ErrNotConnected
	}

	f.calls = append(f.calls, Call{Namespace: namespace, Command: command, Params: params})
	id := protocol.MessageID(strconv.Itoa(f.nextID))
	f.nextID++

	k := key(namespace, command)
	queue := f.replies[k]
	if len(queue) == 0 {
		return nil, &channel.RemoteRequestError{Namespace: namespace, Command: command, MessageID: id, Reason: "no reply scripted"}
	}
	r := queue[0]
	if len(queue) > 1 {
		f.replies[k] = queue[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return protocol.NewResponse(id, protocol.StatusOK, "", r.fields)
}

func (f *Fake) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return channel.ErrClosed
	}
	f.emitted = append(f.emitted, Emitted{Event: event, Payload: raw})
	return nil
}

func (f *Fake) On(event string, h channel.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], h)
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Deliver simulates an inbound event and runs its handlers synchronously.
func (f *Fake) Deliver(event string, payload any) error {
	ev, err := protocol.NewEvent(event, payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	hs := append([]channel.EventHandler(nil), f.handlers[event]...)
	f.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
	return nil
}

// Target returns the address passed to Connect.
func (f *Fake) Target() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}

// Calls returns the requests received so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns "namespace/command" for every request received so far.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, key(c.Namespace, c.Command))
	}
	return out
}

// Emitted returns the outbound events received so far.
func (f *Fake) Emitted() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emitted(nil), f.emitted...)
}

// Subscribed reports whether any handler is registered for event.
func (f *Fake) Subscribed(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event]) > 0
}
