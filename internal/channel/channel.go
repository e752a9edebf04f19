// Package channel defines the bidirectional message channel the panel uses
// to reach the control server and the companion service.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamheart/controlpanel/pkg/protocol"
)

var (
	// ErrNotConnected is returned when a message is sent before Connect succeeded.
	ErrNotConnected = errors.New("channel not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("channel closed")
)

// EventHandler receives an inbound event. Handlers for one channel are
// invoked one at a time, in arrival order.
type EventHandler func(protocol.Event)

// Requester issues a request and waits for its reply.
type Requester interface {
	Request(ctx context.Context, namespace, command string, params any) (*protocol.Response, error)
}

// Emitter sends a fire-and-forget event.
type Emitter interface {
	Emit(event string, payload any) error
}

// Subscriber registers handlers for inbound events.
type Subscriber interface {
	On(event string, h EventHandler)
}

// Channel is the full adapter.
type Channel interface {
	Requester
	Emitter
	Subscriber
	Connect(ctx context.Context, target string) error
	Close() error
}

// TransportError means the channel itself could not be reached.
type TransportError struct {
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteRequestError means a request reached the channel but got no usable
// reply: the remote answered with an error status or never answered.
type RemoteRequestError struct {
	Namespace string
	Command   string
	MessageID protocol.MessageID
	Reason    string
	Timeout   bool
}

func (e *RemoteRequestError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s (message-id %s): no reply: %s", e.Namespace, e.Command, e.MessageID, e.Reason)
	}
	return fmt.Sprintf("%s %s (message-id %s): %s", e.Namespace, e.Command, e.MessageID, e.Reason)
}
