package gatewaysession

import (
	"sync"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

// EventKind identifies one of the five event kinds the Manager emits
// (spec.md §2/§6.2), plus the generic message kind.
type EventKind string

const (
	EventStatusChange  EventKind = "status_change"
	EventConnected     EventKind = "connected"
	EventAuthenticated EventKind = "authenticated"
	EventDisconnected  EventKind = "disconnected"
	EventError         EventKind = "error"
	EventMessage       EventKind = "message"
)

// Event is delivered to every subscribed handler for its kind. Payload
// shape depends on Kind: StatusChangePayload, nil (connected),
// gatewayproto.RtnLogin (authenticated), DisconnectedPayload,
// *gatewayproto.Error, MessagePayload.
type Event struct {
	GatewayID string
	Kind      EventKind
	Payload   interface{}
}

// StatusChangePayload accompanies EventStatusChange.
type StatusChangePayload struct {
	From ConnectionState
	To   ConnectionState
}

// DisconnectedPayload accompanies EventDisconnected.
type DisconnectedPayload struct {
	Reason string
}

// MessagePayload accompanies EventMessage: the envelope is always present;
// Payload is the typed decode when the Type matched a known response, or
// nil for forward-compatible/unknown types.
type MessagePayload struct {
	Envelope *gatewayproto.Envelope
	Payload  interface{}
}

// EventHandler receives events of the kind it was subscribed for.
type EventHandler func(Event)

// Unsubscribe removes a previously registered handler.
type Unsubscribe func()

// emitter is the Manager-wide event bus: handlers subscribe by kind and
// receive events tagged with the originating gateway ID, mirroring the
// "thin reactive adapter" consumer described in spec.md §2.
type emitter struct {
	mu       sync.RWMutex
	handlers map[EventKind]map[int]EventHandler
	nextID   int
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[EventKind]map[int]EventHandler)}
}

func (e *emitter) on(kind EventKind, handler EventHandler) Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[int]EventHandler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[kind][id] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[kind], id)
	}
}

func (e *emitter) emit(gatewayID string, kind EventKind, payload interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.handlers[kind]))
	for _, h := range e.handlers[kind] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	ev := Event{GatewayID: gatewayID, Kind: kind, Payload: payload}
	for _, h := range handlers {
		h(ev)
	}
}
