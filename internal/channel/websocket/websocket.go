// Package websocket implements the panel channel over a gorilla WebSocket
// connection to the middleware.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/streamheart/controlpanel/internal/channel"
	"github.com/streamheart/controlpanel/pkg/protocol"
)

const (
	sendChSize = 256
	writeWait  = 10 * time.Second

	// DefaultRequestTimeout is how long a request waits for its reply.
	DefaultRequestTimeout = 6 * time.Second

	invalidRequestType = "Invalid request-type"
)

var errAlreadyConnected = errors.New("already connected")

type Config struct {
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type result struct {
	resp *protocol.Response
	err  error
}

// Client is a channel.Channel backed by one WebSocket connection with a
// single write goroutine. Inbound events are delivered on the read
// goroutine, one at a time, in arrival order.
type Client struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	closed bool
	target string
	lost   error // set once the read loop fails; the client is unusable after

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[protocol.MessageID]chan result

	handlersMu sync.RWMutex
	handlers   map[string][]channel.EventHandler

	timeout time.Duration
	logger  *slog.Logger
}

var _ channel.Channel = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		sendCh:   make(chan []byte, sendChSize),
		done:     make(chan struct{}),
		pending:  make(map[protocol.MessageID]chan result),
		handlers: make(map[string][]channel.EventHandler),
		timeout:  cfg.RequestTimeout,
		logger:   cfg.Logger.With("component", "channel"),
	}
}

// Connect dials target and starts the read and write loops.
func (c *Client) Connect(ctx context.Context, target string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channel.ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return errAlreadyConnected
	}
	c.mu.Unlock()

	conn, _, err := ws.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return &channel.TransportError{Target: target, Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return channel.ErrClosed
	}
	c.conn = conn
	c.target = target
	c.mu.Unlock()

	c.logger.Info("Connected", "target", target)

	stop := make(chan struct{})
	go c.writeLoop(conn, stop)
	go c.readLoop(conn, stop)

	return nil
}

func (c *Client) state() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	if c.lost != nil {
		return c.lost
	}
	if c.conn == nil {
		return channel.ErrNotConnected
	}
	return nil
}

// markLost records err as the reason every later call fails.
func (c *Client) markLost(err error) {
	c.mu.Lock()
	c.lost = err
	c.mu.Unlock()
}

// Request sends command to namespace and waits for the matching reply.
// An error status or a missing reply yields a *channel.RemoteRequestError.
func (c *Client) Request(ctx context.Context, namespace, command string, params any) (*protocol.Response, error) {
	if err := c.state(); err != nil {
		return nil, err
	}

	id := protocol.MessageID(strconv.FormatInt(c.nextID.Add(1)-1, 10))
	data, err := protocol.Request{
		Application: protocol.Application(namespace),
		RequestType: command,
		MessageID:   id,
		Params:      params,
	}.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command, err)
	}

	replyCh := make(chan result, 1)
	c.pendingMu.Lock()
	c.pending[id] = replyCh
	c.pendingMu.Unlock()
	defer c.forget(id)

	// The read loop may have failed after the first check; its failPending
	// would then have missed this entry.
	if err := c.state(); err != nil {
		return nil, err
	}

	select {
	case c.sendCh <- data:
	case <-c.done:
		return nil, channel.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-replyCh:
		if r.err != nil {
			return nil, r.err
		}
		if !r.resp.OK() {
			return nil, &channel.RemoteRequestError{Namespace: namespace, Command: command, MessageID: id, Reason: r.resp.Error}
		}
		return r.resp, nil
	case <-timer.C:
		return nil, &channel.RemoteRequestError{
			Namespace: namespace,
			Command:   command,
			MessageID: id,
			Reason:    fmt.Sprintf("timed out after %s", c.timeout),
			Timeout:   true,
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, channel.ErrClosed
	}
}

// Emit queues an event for sending without waiting.
func (c *Client) Emit(event string, payload any) error {
	if err := c.state(); err != nil {
		return err
	}
	ev, err := protocol.NewEvent(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	data, err := ev.MarshalJSON()
	if err != nil {
		return err
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return channel.ErrClosed
	default:
		c.logger.Warn("Send channel full, dropping event", "event", event)
		return fmt.Errorf("send queue full, dropped %s", event)
	}
}

func (c *Client) On(event string, h channel.EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

func (c *Client) forget(id protocol.MessageID) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) resolve(resp *protocol.Response) bool {
	c.pendingMu.Lock()
	replyCh, ok := c.pending[resp.MessageID]
	delete(c.pending, resp.MessageID)
	c.pendingMu.Unlock()
	if ok {
		replyCh <- result{resp: resp}
	}
	return ok
}

// failPending releases every waiting request with err.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, replyCh := range c.pending {
		replyCh <- result{err: err}
		delete(c.pending, id)
	}
}

// writeLoop drains sendCh and writes frames to conn. It returns on error or shutdown.
func (c *Client) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				// Closing the socket unblocks readLoop, which reports the failure.
				_ = conn.Close()
				return
			}
		}
	}
}

// readLoop routes replies to their waiting requests and delivers events.
// A read failure marks the client lost, fails waiting requests and is
// surfaced as an "error" event.
func (c *Client) readLoop(conn *ws.Conn, stop chan<- struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			terr := &channel.TransportError{Target: c.target, Err: err}
			c.markLost(terr)
			close(stop)
			_ = conn.Close()
			c.failPending(terr)
			c.raise(err.Error())
			return
		}

		msg, err := protocol.Parse(message)
		if err != nil {
			c.logger.Debug("Invalid message received", "error", err, "raw", string(message))
			continue
		}

		switch msg.Kind {
		case protocol.KindEvent:
			c.deliver(msg.Event)
		case protocol.KindResponse:
			if msg.Response.MessageID == "" {
				c.raise("response without message-id")
				continue
			}
			if !c.resolve(msg.Response) {
				c.logger.Debug("Unmatched response", "messageId", msg.Response.MessageID)
			}
		case protocol.KindRequest:
			// The panel serves no requests.
			c.reject(msg.Request)
		}
	}
}

func (c *Client) reject(req protocol.Request) {
	resp, err := protocol.NewResponse(req.MessageID, protocol.StatusError, invalidRequestType, nil)
	if err != nil {
		c.logger.Error("Failed to build error response", "error", err)
		return
	}
	select {
	case c.sendCh <- resp.Raw:
	default:
		c.logger.Warn("Send channel full, dropping error response", "messageId", req.MessageID)
	}
}

func (c *Client) raise(reason string) {
	ev, err := protocol.NewEvent(protocol.EventError, protocol.TransportFailure{Error: reason})
	if err != nil {
		c.logger.Error("Failed to build error event", "error", err)
		return
	}
	c.deliver(ev)
}

func (c *Client) deliver(ev protocol.Event) {
	c.handlersMu.RLock()
	hs := append([]channel.EventHandler(nil), c.handlers[ev.UpdateType]...)
	c.handlersMu.RUnlock()

	if len(hs) == 0 {
		c.logger.Debug("No handler for event", "event", ev.UpdateType)
		return
	}
	for _, h := range hs {
		c.invoke(h, ev)
	}
}

func (c *Client) invoke(h channel.EventHandler, ev protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Event handler panicked", "event", ev.UpdateType, "panic", r)
		}
	}()
	h(ev)
}

// Close sends a close frame and shuts down both loops. Waiting requests
// fail with channel.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	lost := c.lost
	c.mu.Unlock()

	c.failPending(channel.ErrClosed)

	// A lost connection was already closed by the read loop.
	if conn != nil && lost == nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
