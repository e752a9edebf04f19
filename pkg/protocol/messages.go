// Package protocol defines the JSON messages exchanged with the middleware
// that fronts the control server and the companion service.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Field names shared by every message on the wire.
const (
	FieldApplication = "application"
	FieldRequestType = "request-type"
	FieldMessageID   = "message-id"
	FieldStatus      = "status"
	FieldError       = "error"
	FieldUpdateType  = "update-type"
)

// Namespaces addressed by the panel.
const (
	ControlServer    = "ControlServer"
	CompanionService = "CompanionService"
)

// applications maps a namespace to the application name the middleware routes on.
var applications = map[string]string{
	ControlServer:    "OBS Studio",
	CompanionService: "Heartrate",
}

// Application returns the middleware application name for a namespace.
// Unknown namespaces are passed through unchanged.
func Application(namespace string) string {
	if app, ok := applications[namespace]; ok {
		return app
	}
	return namespace
}

// Status is the outcome carried by a response.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

var (
	// ErrInvalidMessage is returned when a frame is not a JSON object.
	ErrInvalidMessage = errors.New("message is not a JSON object")
	// ErrUnknownMessage is returned when a JSON object matches no message kind.
	ErrUnknownMessage = errors.New("message doesn't match the protocol")
)

// MessageID correlates a request with its response. The middleware emits it
// either as a string or as a number; both decode to the same value.
type MessageID string

// UnmarshalJSON accepts string and numeric ids.
func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("message-id: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// Request is an outbound command. Params must encode to a JSON object (or be nil);
// its fields are flattened next to the header fields.
type Request struct {
	Application string
	RequestType string
	MessageID   MessageID
	Params      any
}

// MarshalJSON flattens the header and params into one object.
func (r Request) MarshalJSON() ([]byte, error) {
	return mergeObject(map[string]any{
		FieldApplication: r.Application,
		FieldRequestType: r.RequestType,
		FieldMessageID:   string(r.MessageID),
	}, r.Params)
}

// Response is a reply to a request. Raw keeps the whole frame so typed
// payloads can be decoded with Decode.
type Response struct {
	MessageID MessageID
	Status    Status
	Error     string
	Raw       json.RawMessage
}

// NewResponse builds a response frame with the given fields flattened in.
func NewResponse(id MessageID, status Status, errMsg string, fields any) (*Response, error) {
	header := map[string]any{
		FieldMessageID: string(id),
		FieldStatus:    string(status),
	}
	if status == StatusError {
		header[FieldError] = errMsg
	}
	raw, err := mergeObject(header, fields)
	if err != nil {
		return nil, err
	}
	return &Response{MessageID: id, Status: status, Error: errMsg, Raw: raw}, nil
}

// UnmarshalJSON decodes the header fields and keeps the raw frame.
func (r *Response) UnmarshalJSON(data []byte) error {
	var h struct {
		MessageID MessageID `json:"message-id"`
		Status    Status    `json:"status"`
		Error     string    `json:"error"`
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	r.MessageID = h.MessageID
	r.Status = h.Status
	r.Error = h.Error
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the raw frame.
func (r *Response) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	resp, err := NewResponse(r.MessageID, r.Status, r.Error, nil)
	if err != nil {
		return nil, err
	}
	return resp.Raw, nil
}

// OK reports whether the response carries a success status.
func (r *Response) OK() bool {
	return r.Status == StatusOK
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	if len(r.Raw) == 0 {
		return errors.New("empty response")
	}
	return json.Unmarshal(r.Raw, v)
}

// Event is an asynchronous notification, inbound or outbound.
type Event struct {
	UpdateType string
	Raw        json.RawMessage
}

// NewEvent builds an event frame with payload fields flattened in.
func NewEvent(updateType string, payload any) (Event, error) {
	raw, err := mergeObject(map[string]any{FieldUpdateType: updateType}, payload)
	if err != nil {
		return Event{}, err
	}
	return Event{UpdateType: updateType, Raw: raw}, nil
}

// MarshalJSON returns the raw frame.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(map[string]string{FieldUpdateType: e.UpdateType})
}

// Decode unmarshals the event payload into v. An event without payload
// decodes as an empty object.
func (e Event) Decode(v any) error {
	if len(e.Raw) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Raw, v)
}

// Kind classifies an inbound frame.
type Kind int

const (
	KindInvalid Kind = iota
	KindEvent
	KindRequest
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Message is a parsed inbound frame. Only the field matching Kind is set.
type Message struct {
	Kind     Kind
	Event    Event
	Request  Request
	Response *Response
}

// Parse classifies a frame. Events win over requests, requests over
// responses, mirroring the order the middleware checks them in.
func Parse(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Message{}, ErrInvalidMessage
	}

	if ut := stringField(fields, FieldUpdateType); ut != "" {
		return Message{Kind: KindEvent, Event: Event{UpdateType: ut, Raw: append(json.RawMessage(nil), data...)}}, nil
	}

	app := stringField(fields, FieldApplication)
	rt := stringField(fields, FieldRequestType)
	if rawID, ok := fields[FieldMessageID]; ok && app != "" && rt != "" {
		var id MessageID
		if err := json.Unmarshal(rawID, &id); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
		}
		delete(fields, FieldApplication)
		delete(fields, FieldRequestType)
		delete(fields, FieldMessageID)
		return Message{Kind: KindRequest, Request: Request{Application: app, RequestType: rt, MessageID: id, Params: fields}}, nil
	}

	if _, ok := fields[FieldStatus]; ok {
		resp := &Response{}
		if err := resp.UnmarshalJSON(data); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
		}
		if resp.Status != StatusOK && resp.Status != StatusError {
			return Message{}, fmt.Errorf("%w: status %q", ErrUnknownMessage, resp.Status)
		}
		return Message{Kind: KindResponse, Response: resp}, nil
	}

	return Message{}, ErrUnknownMessage
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// mergeObject encodes body as a JSON object and overlays the header fields.
func mergeObject(header map[string]any, body any) ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(header))

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if err := json.Unmarshal(raw, &merged); err != nil {
				return nil, fmt.Errorf("payload must be a JSON object: %w", err)
			}
		}
	}

	for k, v := range header {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		merged[k] = raw
	}

	return json.Marshal(merged)
}
