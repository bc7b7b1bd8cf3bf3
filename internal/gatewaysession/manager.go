// Package gatewaysession implements the Gateway Session Manager: one
// Session per gateway, each running its own single-goroutine event loop,
// coordinated by a Manager that owns the gatewayId -> *Session map.
package gatewaysession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sensemesh/gatewayclient/internal/config"
	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
	"github.com/sensemesh/gatewayclient/internal/readingstore"
	"github.com/sensemesh/gatewayclient/internal/registry"
)

// Manager is the process-wide Session Manager singleton of spec.md §4.1. It
// owns only the gatewayId -> *Session map and the mutex guarding it; all
// other state lives on each Session and is mutated exclusively by that
// Session's own loop goroutine.
type Manager struct {
	cfg      *config.Config
	store    *readingstore.Store
	registry registry.GatewayRegistry
	dialer   Dialer
	events   *emitter

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a Manager. dialer is typically NewRealDialer in
// production and a fake Dialer in tests.
func NewManager(cfg *config.Config, store *readingstore.Store, reg registry.GatewayRegistry, dialer Dialer) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		registry: reg,
		dialer:   dialer,
		events:   newEmitter(),
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) sessionFor(gatewayID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[gatewayID]
	if !ok {
		s = newSession(gatewayID, m.cfg, m.store, m.dialer, m.events)
		m.sessions[gatewayID] = s
	}
	return s
}

func (m *Manager) existingSession(gatewayID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[gatewayID]
	return s, ok
}

// Connect opens (or idempotently no-ops) a session to gatewayID, whose
// descriptor is fetched from the registry. A descriptor missing id or url
// is a programmer error (spec.md §7) and panics rather than returning
// false.
func (m *Manager) Connect(ctx context.Context, gatewayID string) bool {
	descriptor, err := m.registry.Get(ctx, gatewayID)
	if err != nil {
		slog.Error("gateway descriptor lookup failed", "gatewayId", gatewayID, "error", err)
		return false
	}
	if verr := descriptor.Validate(); verr != nil {
		panic(fmt.Sprintf("gatewaysession: invalid descriptor for %q: %v", gatewayID, verr))
	}

	s := m.sessionFor(gatewayID)
	return s.submit(func(sess *Session) bool { return sess.handleConnect(descriptor) })
}

// Disconnect closes gatewayID's session cleanly.
func (m *Manager) Disconnect(gatewayID string, reason string) bool {
	s, ok := m.existingSession(gatewayID)
	if !ok {
		return false
	}
	return s.submit(func(sess *Session) bool { return sess.handleDisconnect(reason) })
}

// SendMessage validates and sends (or queues) msg for gatewayID.
func (m *Manager) SendMessage(gatewayID string, msg gatewayproto.RequestMessage) bool {
	s, ok := m.existingSession(gatewayID)
	if !ok {
		return false
	}
	return s.submit(func(sess *Session) bool { return sess.handleSendMessage(msg) })
}

// TakeDynamicReading requests one fresh vibration reading for serial.
func (m *Manager) TakeDynamicReading(gatewayID string, serial int) bool {
	return m.SendMessage(gatewayID, gatewayproto.TakeDynReading{Serial: serial})
}

// TakeDynamicTemp requests one fresh temperature reading for serial.
func (m *Manager) TakeDynamicTemp(gatewayID string, serial int) bool {
	return m.SendMessage(gatewayID, gatewayproto.TakeDynTemp{Serial: serial})
}

// TakeDynamicBatt requests one fresh battery reading for serial.
func (m *Manager) TakeDynamicBatt(gatewayID string, serial int) bool {
	return m.SendMessage(gatewayID, gatewayproto.TakeDynBatt{Serial: serial})
}

// GetDynamicReadings requests vibration reading history.
func (m *Manager) GetDynamicReadings(gatewayID string, query gatewayproto.HistoryQuery) bool {
	return m.SendMessage(gatewayID, gatewayproto.GetDynReadings{HistoryQuery: query})
}

// GetDynamicTemps requests temperature reading history.
func (m *Manager) GetDynamicTemps(gatewayID string, query gatewayproto.HistoryQuery) bool {
	return m.SendMessage(gatewayID, gatewayproto.GetDynTemps{HistoryQuery: query})
}

// GetDynamicBatts requests battery reading history.
func (m *Manager) GetDynamicBatts(gatewayID string, query gatewayproto.HistoryQuery) bool {
	return m.SendMessage(gatewayID, gatewayproto.GetDynBatts{HistoryQuery: query})
}

// GetConnectedSensors sends GET_DYN, the sensor list/snapshot request
// (spec.md §4.1's table names this operation but routes it through GET_DYN,
// not GET_DYN_CONNECTED).
func (m *Manager) GetConnectedSensors(gatewayID string) bool {
	return m.SendMessage(gatewayID, gatewayproto.GetDyn{})
}

// On subscribes handler to kind across every gateway's session and returns
// an unsubscribe function.
func (m *Manager) On(kind EventKind, handler EventHandler) Unsubscribe {
	return m.events.on(kind, handler)
}

// Stats returns the current SessionStats snapshot for gatewayID.
func (m *Manager) Stats(gatewayID string) (SessionStats, bool) {
	s, ok := m.existingSession(gatewayID)
	if !ok {
		return SessionStats{}, false
	}
	var stats SessionStats
	s.submitVoid(func(sess *Session) { stats = sess.stats })
	return stats, true
}

// State returns the current ConnectionState for gatewayID.
func (m *Manager) State(gatewayID string) (ConnectionState, bool) {
	s, ok := m.existingSession(gatewayID)
	if !ok {
		return StateDisconnected, false
	}
	var state ConnectionState
	s.submitVoid(func(sess *Session) { state = sess.state })
	return state, true
}

// LastError returns gatewayID's most recently recorded error, if any.
func (m *Manager) LastError(gatewayID string) *gatewayproto.Error {
	s, ok := m.existingSession(gatewayID)
	if !ok {
		return nil
	}
	var lastErr *gatewayproto.Error
	s.submitVoid(func(sess *Session) { lastErr = sess.lastError })
	return lastErr
}

// Cleanup tears down every session (spec.md §4.1's explicit shutdown).
func (m *Manager) Cleanup() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.submit(func(sess *Session) bool { return sess.handleDisconnect("cleanup") })
		s.stop()
	}
}
