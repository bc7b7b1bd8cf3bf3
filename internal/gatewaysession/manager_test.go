package gatewaysession

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensemesh/gatewayclient/internal/config"
	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
	"github.com/sensemesh/gatewayclient/internal/readingstore"
	"github.com/sensemesh/gatewayclient/internal/registry"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxReconnectAttempts:      5,
		ReconnectDelayMs:          10,
		ReconnectBackoffFactor:    2,
		KeepAliveIntervalMs:       30000,
		HandshakeTimeoutMs:        2000,
		PostOpenLoginDelayMs:      0,
		PostLoginSubscribeDelayMs: 0,
	}
}

func testDescriptor() gatewayproto.GatewayDescriptor {
	return gatewayproto.GatewayDescriptor{ID: "gw1", URL: "ws://gateway.local/ws", Username: "user@example.com", Password: "hunter2"}
}

func newTestManager(t *testing.T, dialer Dialer) (*Manager, *readingstore.Store) {
	t.Helper()
	cfg := testConfig()
	store := readingstore.NewStore()
	reg := registry.NewStaticRegistry(testDescriptor())
	return NewManager(cfg, store, reg, dialer), store
}

func envelopeFrame(t *testing.T, typ gatewayproto.MessageType, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	env := gatewayproto.Envelope{Type: typ, From: "SERV", Data: data}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func decodeSentTypes(t *testing.T, frames [][]byte) []gatewayproto.MessageType {
	t.Helper()
	out := make([]gatewayproto.MessageType, 0, len(frames))
	for _, f := range frames {
		var env gatewayproto.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env.Type)
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func waitForDialCount(t *testing.T, d *fakeDialer, n int, timeout time.Duration) {
	t.Helper()
	waitFor(t, timeout, func() bool { return d.dials() >= n })
}

func waitForState(t *testing.T, m *Manager, gatewayID string, want ConnectionState, timeout time.Duration) {
	t.Helper()
	waitFor(t, timeout, func() bool {
		s, ok := m.State(gatewayID)
		return ok && s == want
	})
}

// Scenario 1 (spec.md §8): happy-path connect sends exactly POST_LOGIN,
// then POST_SUB_CHANGES and GET_DYN once login succeeds.
func TestManager_HappyPathConnectSequence(t *testing.T) {
	dialer := newFakeDialer()
	mgr, _ := newTestManager(t, dialer)

	ok := mgr.Connect(context.Background(), "gw1")
	require.True(t, ok)

	waitForDialCount(t, dialer, 1, time.Second)
	conn := dialer.lastConn()
	require.NotNil(t, conn)

	waitForState(t, mgr, "gw1", StateAuthenticating, time.Second)
	waitFor(t, time.Second, func() bool { return len(conn.Sent()) >= 1 })
	require.Equal(t, []gatewayproto.MessageType{gatewayproto.TypePostLogin}, decodeSentTypes(t, conn.Sent()))

	conn.pushServerFrame(envelopeFrame(t, gatewayproto.TypeRtnLogin, gatewayproto.RtnLogin{
		Email: "user@example.com", Success: true,
	}))

	waitForState(t, mgr, "gw1", StateAuthenticated, time.Second)
	waitFor(t, time.Second, func() bool { return len(conn.Sent()) >= 3 })

	require.Equal(t, []gatewayproto.MessageType{
		gatewayproto.TypePostLogin,
		gatewayproto.TypePostSubChanges,
		gatewayproto.TypeGetDyn,
	}, decodeSentTypes(t, conn.Sent()))
}

// Scenario 2: an RTN_LOGIN with Success=false drives the session to Error
// then Disconnected, with LastError carrying "Authentication failed", and
// no further outbound frames sent afterward (B1).
func TestManager_AuthenticationFailure(t *testing.T) {
	dialer := newFakeDialer()
	mgr, _ := newTestManager(t, dialer)

	require.True(t, mgr.Connect(context.Background(), "gw1"))
	waitForDialCount(t, dialer, 1, time.Second)
	conn := dialer.lastConn()

	waitForState(t, mgr, "gw1", StateAuthenticating, time.Second)

	conn.pushServerFrame(envelopeFrame(t, gatewayproto.TypeRtnLogin, gatewayproto.RtnLogin{
		Email: "user@example.com", Success: false,
	}))

	waitForState(t, mgr, "gw1", StateDisconnected, time.Second)

	lastErr := mgr.LastError("gw1")
	require.NotNil(t, lastErr)
	require.Equal(t, gatewayproto.KindAuthError, lastErr.Kind)
	require.Contains(t, lastErr.Error(), "Authentication failed")

	sentAfter := conn.Sent()
	require.Equal(t, []gatewayproto.MessageType{gatewayproto.TypePostLogin}, decodeSentTypes(t, sentAfter))
}

// Scenario 3: a send requested before the socket has even opened is queued
// and drains in strict order once the gate opens (I2, I3).
func TestManager_QueuedSendBeforeOpenDrainsInOrder(t *testing.T) {
	dialer := newFakeDialer()
	dialer.gate = make(chan struct{})
	mgr, _ := newTestManager(t, dialer)

	require.True(t, mgr.Connect(context.Background(), "gw1"))

	// The socket hasn't opened yet (dial is parked on the gate), so this
	// request can only be sitting in the queue right now.
	require.True(t, mgr.TakeDynamicReading("gw1", 42))

	close(dialer.gate)
	waitForDialCount(t, dialer, 1, time.Second)
	conn := dialer.lastConn()
	require.NotNil(t, conn)

	waitForState(t, mgr, "gw1", StateAuthenticating, time.Second)
	conn.pushServerFrame(envelopeFrame(t, gatewayproto.TypeRtnLogin, gatewayproto.RtnLogin{
		Email: "user@example.com", Success: true,
	}))

	waitForState(t, mgr, "gw1", StateAuthenticated, time.Second)
	waitFor(t, time.Second, func() bool { return len(conn.Sent()) >= 4 })

	require.Equal(t, []gatewayproto.MessageType{
		gatewayproto.TypePostLogin,
		gatewayproto.TypePostSubChanges,
		gatewayproto.TypeGetDyn,
		gatewayproto.TypeTakeDynReading,
	}, decodeSentTypes(t, conn.Sent()))
}

// Scenario 4: inbound RTN_DYN_BATTS upserts into the reading store, reachable
// through the Manager/Session plumbing rather than calling the store
// directly (readingstore's own tests cover the store in isolation).
func TestManager_InboundBatteryReadingReachesStore(t *testing.T) {
	dialer := newFakeDialer()
	mgr, store := newTestManager(t, dialer)

	require.True(t, mgr.Connect(context.Background(), "gw1"))
	waitForDialCount(t, dialer, 1, time.Second)
	conn := dialer.lastConn()
	waitForState(t, mgr, "gw1", StateAuthenticating, time.Second)

	conn.pushServerFrame(envelopeFrame(t, gatewayproto.TypeRtnLogin, gatewayproto.RtnLogin{
		Email: "user@example.com", Success: true,
	}))
	waitForState(t, mgr, "gw1", StateAuthenticated, time.Second)

	// RTN_DYN_BATTS carries its readings as a bare array directly in Data.
	conn.pushServerFrame(envelopeFrame(t, gatewayproto.TypeRtnDynBatts, []gatewayproto.BatteryReading{
		{ID: 1, Serial: "42", Time: "2026-07-31T00:00:00Z", Batt: 91},
	}))

	waitFor(t, time.Second, func() bool {
		return len(store.Battery("gw1")) == 1
	})
	for _, reading := range store.Battery("gw1") {
		require.Equal(t, 91, reading.Batt)
	}
}

// Scenario 5 / I5: with a reconnect budget of 2, an abnormal close after
// reaching Authenticated produces exactly two reconnect attempts at
// increasing backoff delays, after which the session settles into Error
// with no further attempt.
func TestManager_ReconnectBudgetExhausts(t *testing.T) {
	dialer := newFakeDialer()
	dialer.failAfter = 1 // first dial succeeds, every subsequent dial fails
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 2
	cfg.ReconnectDelayMs = 10
	cfg.ReconnectBackoffFactor = 2

	store := readingstore.NewStore()
	reg := registry.NewStaticRegistry(testDescriptor())
	mgr := NewManager(cfg, store, reg, dialer)

	require.True(t, mgr.Connect(context.Background(), "gw1"))
	waitForDialCount(t, dialer, 1, time.Second)
	conn := dialer.lastConn()
	waitForState(t, mgr, "gw1", StateAuthenticating, time.Second)

	conn.pushServerFrame(envelopeFrame(t, gatewayproto.TypeRtnLogin, gatewayproto.RtnLogin{
		Email: "user@example.com", Success: true,
	}))
	waitForState(t, mgr, "gw1", StateAuthenticated, time.Second)

	// Sever the connection abnormally; the reconnect attempts that follow
	// will each fail to dial (failAfter=1), so the state machine churns
	// Connecting -> Error on its own without any more server interaction.
	require.NoError(t, conn.Close())

	waitForState(t, mgr, "gw1", StateError, 2*time.Second)
	waitFor(t, time.Second, func() bool { return dialer.dials() >= 3 })

	stats, ok := mgr.Stats("gw1")
	require.True(t, ok)
	require.Equal(t, 2, stats.ReconnectCount)
	require.Equal(t, 3, dialer.dials())

	// Give any further (incorrect) reconnect attempt a chance to happen and
	// confirm the budget really is exhausted.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 3, dialer.dials())
	state, ok := mgr.State("gw1")
	require.True(t, ok)
	require.Equal(t, StateError, state)
}

// Explicit disconnect never schedules a reconnect, even from Authenticated.
func TestManager_ExplicitDisconnectDoesNotReconnect(t *testing.T) {
	dialer := newFakeDialer()
	mgr, _ := newTestManager(t, dialer)

	require.True(t, mgr.Connect(context.Background(), "gw1"))
	waitForDialCount(t, dialer, 1, time.Second)
	conn := dialer.lastConn()
	waitForState(t, mgr, "gw1", StateAuthenticating, time.Second)

	conn.pushServerFrame(envelopeFrame(t, gatewayproto.TypeRtnLogin, gatewayproto.RtnLogin{
		Email: "user@example.com", Success: true,
	}))
	waitForState(t, mgr, "gw1", StateAuthenticated, time.Second)

	require.True(t, mgr.Disconnect("gw1", "test teardown"))
	waitForState(t, mgr, "gw1", StateDisconnected, time.Second)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, dialer.dials())
}

func TestManager_ConnectWithUnknownGatewayFails(t *testing.T) {
	dialer := newFakeDialer()
	store := readingstore.NewStore()
	reg := registry.NewStaticRegistry()
	mgr := NewManager(testConfig(), store, reg, dialer)

	require.False(t, mgr.Connect(context.Background(), "missing-gateway"))
}
