package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Event is the wire envelope exchanged with clients. Dispatcher is the id of
// the connection the event arrived on; it is set by the transport and never
// serialized.
type Event struct {
	Dispatcher string          `json:"-"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Dispatcher: %s, Type: %s, Payload.Size: %d}", e.Dispatcher, e.Type, len(e.Payload))
}

// NewEvent builds an outbound event by marshalling payload. A nil payload
// produces an event with an empty body.
func NewEvent(t string, payload interface{}) (*Event, error) {
	e := &Event{Type: t}
	if payload == nil {
		return e, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	e.Payload = b
	return e, nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// EventSender delivers events to connections by id. Unknown ids are skipped
// silently.
type EventSender interface {
	SendToConns(e *Event, connIDs ...string)
}

type EventHandler func(context.Context, *Event) error

// EventRouter maps inbound event types to handlers. Dispatch runs the
// handler synchronously on the calling goroutine: the transport invokes it
// from each connection's read loop, so one connection's events are handled
// strictly in arrival order while separate connections proceed concurrently.
type EventRouter struct {
	handlers map[string]EventHandler
	ctx      context.Context
	sender   EventSender
	logger   *slog.Logger
}

func NewEventRouter(ctx context.Context, logger *slog.Logger, sender EventSender) *EventRouter {
	return &EventRouter{
		handlers: make(map[string]EventHandler),
		ctx:      ctx,
		sender:   sender,
		logger:   logger,
	}
}

func (r *EventRouter) On(eventType string, handler EventHandler) {
	if _, ok := r.handlers[eventType]; ok {
		panic(fmt.Sprintf("handler(%s): already registered", eventType))
	}
	r.handlers[eventType] = handler
}

func (r *EventRouter) Dispatch(e *Event) {
	handler, ok := r.handlers[e.Type]
	if !ok {
		r.logger.Debug(fmt.Sprintf("no handler for %s: dropped", e.Type))
		return
	}
	if err := handler(r.ctx, e); err != nil {
		r.logger.Error(fmt.Sprintf("handler(%s): %v", e.Type, err))
	}
}

// EmitTo sends an event to the given connections.
func (r *EventRouter) EmitTo(t string, payload interface{}, connIDs ...string) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	r.sender.SendToConns(e, connIDs...)
	return nil
}
