package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/putto11262002/relay/core"
)

const (
	JoinEvent         = "join"
	MessageEvent      = "message"
	HistoryEvent      = "history"
	SystemEvent       = "system"
	RoomUsersEvent    = "room-users"
	WebRTCOfferEvent  = "webrtc-offer"
	WebRTCAnswerEvent = "webrtc-answer"
	WebRTCICEEvent    = "webrtc-ice"
	CallUserEvent     = "call-user"
	IncomingCallEvent = "incoming-call"
	CallAcceptedEvent = "call-accepted"
	CallRejectedEvent = "call-rejected"
	CallEndedEvent    = "call-ended"
)

const historyLimit = 100

// messageTimeLayout renders message timestamps the way the browser clients
// display them.
const messageTimeLayout = "3:04:05 PM"

type JoinPayload struct {
	Username string `json:"username" validate:"required"`
	Room     string `json:"room" validate:"required"`
}

type MessagePayload struct {
	Text     string `json:"text"`
	FileURL  string `json:"fileUrl"`
	Filename string `json:"filename"`
}

// MessageView is the delivery shape of a persisted message, used both for
// history replay and for room broadcasts.
type MessageView struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Text     string `json:"text,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
	Filename string `json:"filename,omitempty"`
	Time     string `json:"time"`
}

func newMessageView(m *core.Message) MessageView {
	return MessageView{
		ID:       m.ID,
		Username: m.Username,
		Text:     m.Text,
		FileURL:  m.FileURL,
		Filename: m.Filename,
		Time:     m.CreatedAt.Local().Format(messageTimeLayout),
	}
}

type SystemPayload struct {
	Msg string `json:"msg"`
}

type OfferPayload struct {
	To    string          `json:"to,omitempty"`
	From  string          `json:"from,omitempty"`
	Offer json.RawMessage `json:"offer"`
}

type AnswerPayload struct {
	To     string          `json:"to,omitempty"`
	From   string          `json:"from,omitempty"`
	Answer json.RawMessage `json:"answer"`
}

type ICEPayload struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallUserPayload struct {
	To       string `json:"to"`
	CallType string `json:"callType"`
}

type IncomingCallPayload struct {
	From     string `json:"from"`
	Username string `json:"username,omitempty"`
	CallType string `json:"callType"`
}

type CallSignalPayload struct {
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`
}

// RelayHandler implements the room coordination pipeline: joins with history
// replay, persist-then-broadcast messaging, addressed signaling relays and
// the disconnect side effects.
type RelayHandler struct {
	registry core.Registry
	store    core.MessageStore
	fabric   *core.RoomBroadcaster
	router   *core.EventRouter
	logger   *slog.Logger
}

func NewRelayHandler(registry core.Registry, store core.MessageStore,
	fabric *core.RoomBroadcaster, router *core.EventRouter, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		registry: registry,
		store:    store,
		fabric:   fabric,
		router:   router,
		logger:   logger,
	}
}

// Register mounts the handler on the event router.
func (h *RelayHandler) Register(r *core.EventRouter) {
	r.On(JoinEvent, h.JoinHandler)
	r.On(MessageEvent, h.MessageHandler)
	r.On(WebRTCOfferEvent, h.OfferHandler)
	r.On(WebRTCAnswerEvent, h.AnswerHandler)
	r.On(WebRTCICEEvent, h.ICEHandler)
	r.On(CallUserEvent, h.CallUserHandler)
	r.On(CallAcceptedEvent, h.CallAcceptedHandler)
	r.On(CallRejectedEvent, h.CallRejectedHandler)
	r.On(CallEndedEvent, h.CallEndedHandler)
}

// JoinHandler runs the join path: ensure the room exists, register presence,
// replay history to the joiner only, then announce the join and the
// refreshed member list to the whole room. A re-join replaces the previous
// presence entry, so the next membership broadcast of the old room no longer
// lists the connection.
func (h *RelayHandler) JoinHandler(ctx context.Context, e *core.Event) error {
	var payload JoinPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}
	if err := validate.Struct(&payload); err != nil {
		h.logger.Debug(fmt.Sprintf("join from %s missing username or room: dropped", e.Dispatcher))
		return nil
	}

	if err := h.store.EnsureRoom(ctx, payload.Room); err != nil {
		return fmt.Errorf("EnsureRoom: %w", err)
	}

	h.registry.Join(e.Dispatcher, payload.Username, payload.Room)

	// Presence is committed before the history fetch: if the fetch fails the
	// connection stays in the room and still receives subsequent broadcasts,
	// it just never got its history.
	messages, err := h.store.RecentMessages(ctx, payload.Room, historyLimit)
	if err != nil {
		return fmt.Errorf("RecentMessages: %w", err)
	}

	history := make([]MessageView, 0, len(messages))
	for i := range messages {
		history = append(history, newMessageView(&messages[i]))
	}
	if err := h.router.EmitTo(HistoryEvent, history, e.Dispatcher); err != nil {
		return fmt.Errorf("EmitTo(history): %w", err)
	}

	if err := h.fabric.Broadcast(payload.Room, SystemEvent,
		SystemPayload{Msg: fmt.Sprintf("%s joined the room", payload.Username)}); err != nil {
		return fmt.Errorf("Broadcast(system): %w", err)
	}
	if err := h.fabric.Broadcast(payload.Room, RoomUsersEvent,
		h.registry.MembersOf(payload.Room)); err != nil {
		return fmt.Errorf("Broadcast(room-users): %w", err)
	}

	return nil
}

// MessageHandler runs the message path: persist first, broadcast after. A
// message from a connection that has not joined a room is dropped, as is one
// carrying neither text nor a file.
func (h *RelayHandler) MessageHandler(ctx context.Context, e *core.Event) error {
	entry, ok := h.registry.Get(e.Dispatcher)
	if !ok {
		h.logger.Debug(fmt.Sprintf("message from unjoined connection %s: dropped", e.Dispatcher))
		return nil
	}

	var payload MessagePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}

	created, err := h.store.InsertMessage(ctx, core.MessageCreateInput{
		Room:     entry.Room,
		Username: entry.Username,
		Text:     payload.Text,
		FileURL:  payload.FileURL,
		Filename: payload.Filename,
	})
	if err != nil {
		if errors.Is(err, core.ErrEmptyMessage) {
			h.logger.Debug(fmt.Sprintf("empty message from %s: dropped", e.Dispatcher))
			return nil
		}
		return fmt.Errorf("InsertMessage: %w", err)
	}

	if err := h.fabric.Broadcast(entry.Room, MessageEvent, newMessageView(created)); err != nil {
		return fmt.Errorf("Broadcast(message): %w", err)
	}
	return nil
}

// DisconnectHandler runs when the transport loses a connection. If the
// connection had joined a room it is removed from the registry first, then
// the departure and the refreshed member list are broadcast to the former
// room, in that order.
func (h *RelayHandler) DisconnectHandler(ctx context.Context, connID string) {
	entry, ok := h.registry.Get(connID)
	if !ok {
		return
	}
	h.registry.Leave(connID)

	if err := h.fabric.Broadcast(entry.Room, SystemEvent,
		SystemPayload{Msg: fmt.Sprintf("%s left the room", entry.Username)}); err != nil {
		h.logger.Error(fmt.Sprintf("Broadcast(system): %v", err))
	}
	if err := h.fabric.Broadcast(entry.Room, RoomUsersEvent,
		h.registry.MembersOf(entry.Room)); err != nil {
		h.logger.Error(fmt.Sprintf("Broadcast(room-users): %v", err))
	}
}

func (h *RelayHandler) OfferHandler(ctx context.Context, e *core.Event) error {
	var payload OfferPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}
	return h.router.EmitTo(WebRTCOfferEvent,
		OfferPayload{From: e.Dispatcher, Offer: payload.Offer}, payload.To)
}

func (h *RelayHandler) AnswerHandler(ctx context.Context, e *core.Event) error {
	var payload AnswerPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}
	return h.router.EmitTo(WebRTCAnswerEvent,
		AnswerPayload{From: e.Dispatcher, Answer: payload.Answer}, payload.To)
}

func (h *RelayHandler) ICEHandler(ctx context.Context, e *core.Event) error {
	var payload ICEPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}
	return h.router.EmitTo(WebRTCICEEvent,
		ICEPayload{From: e.Dispatcher, Candidate: payload.Candidate}, payload.To)
}

// CallUserHandler relays a call invite. The caller's username is resolved
// from the registry; a caller that has not joined a room simply has no
// username on the invite.
func (h *RelayHandler) CallUserHandler(ctx context.Context, e *core.Event) error {
	var payload CallUserPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}

	incoming := IncomingCallPayload{From: e.Dispatcher, CallType: payload.CallType}
	if entry, ok := h.registry.Get(e.Dispatcher); ok {
		incoming.Username = entry.Username
	}
	return h.router.EmitTo(IncomingCallEvent, incoming, payload.To)
}

func (h *RelayHandler) CallAcceptedHandler(ctx context.Context, e *core.Event) error {
	var payload CallSignalPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}
	return h.router.EmitTo(CallAcceptedEvent,
		CallSignalPayload{From: e.Dispatcher}, payload.To)
}

func (h *RelayHandler) CallRejectedHandler(ctx context.Context, e *core.Event) error {
	var payload CallSignalPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}
	return h.router.EmitTo(CallRejectedEvent,
		CallSignalPayload{From: e.Dispatcher}, payload.To)
}

func (h *RelayHandler) CallEndedHandler(ctx context.Context, e *core.Event) error {
	var payload CallSignalPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("Unmarshal: %w", err)
	}
	return h.router.EmitTo(CallEndedEvent, nil, payload.To)
}
