package gatewaysession

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sensemesh/gatewayclient/internal/config"
	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
	"github.com/sensemesh/gatewayclient/internal/readingstore"
)

// SessionStats is the read-only, in-memory per-gateway snapshot
// supplementing spec.md's observability story (mirrors the teacher's
// HealthMonitor.GetStatus() pattern).
type SessionStats struct {
	ConnectedAt      time.Time
	AuthenticatedAt  time.Time
	FramesSent       int
	FramesReceived   int
	ReconnectCount   int
}

// sessionCommand runs on the session's own loop goroutine, the only
// goroutine allowed to mutate Session state (spec.md §5).
type sessionCommand struct {
	run func(*Session)
}

type inboundFrame struct {
	epoch int
	data  []byte
}

type openedNotice struct {
	epoch int
	conn  wsConn
}

type closedNotice struct {
	epoch int
	err   error
}

// Session is one gateway's connection lifecycle: state machine, socket,
// outbound queue, reconnect/keep-alive timers. All fields below this point
// are touched only from loop(); external callers go through commands.
type Session struct {
	gatewayID  string
	descriptor gatewayproto.GatewayDescriptor
	cfg        *config.Config
	store      *readingstore.Store
	dialer     Dialer
	events     *emitter

	state             ConnectionState
	conn              wsConn
	connEpoch         int
	queue             []queuedMessage
	lastError         *gatewayproto.Error
	reconnectAttempts int
	stats             SessionStats

	commands chan sessionCommand
	inbound  chan inboundFrame
	opened   chan openedNotice
	closed   chan closedNotice
	stopCh   chan struct{}

	reconnectTimer *time.Timer
	keepAlive      *time.Ticker

	log *slog.Logger
}

func newSession(gatewayID string, cfg *config.Config, store *readingstore.Store, dialer Dialer, events *emitter) *Session {
	s := &Session{
		gatewayID: gatewayID,
		cfg:       cfg,
		store:     store,
		dialer:    dialer,
		events:    events,
		state:     StateDisconnected,
		commands:  make(chan sessionCommand, 16),
		inbound:   make(chan inboundFrame, 64),
		opened:    make(chan openedNotice, 1),
		closed:    make(chan closedNotice, 1),
		stopCh:    make(chan struct{}),
		log:       slog.Default().With("gatewayId", gatewayID),
	}
	go s.loop()
	return s
}

// submit runs fn on the loop goroutine and blocks for its bool result.
func (s *Session) submit(fn func(*Session) bool) bool {
	result := make(chan bool, 1)
	select {
	case s.commands <- sessionCommand{run: func(sess *Session) { result <- fn(sess) }}:
	case <-s.stopCh:
		return false
	}
	select {
	case ok := <-result:
		return ok
	case <-s.stopCh:
		return false
	}
}

// submitVoid is submit for commands with no meaningful result.
func (s *Session) submitVoid(fn func(*Session)) {
	done := make(chan struct{}, 1)
	select {
	case s.commands <- sessionCommand{run: func(sess *Session) { fn(sess); done <- struct{}{} }}:
	case <-s.stopCh:
		return
	}
	select {
	case <-done:
	case <-s.stopCh:
	}
}

func (s *Session) loop() {
	for {
		var reconnectC <-chan time.Time
		if s.reconnectTimer != nil {
			reconnectC = s.reconnectTimer.C
		}
		var keepAliveC <-chan time.Time
		if s.keepAlive != nil {
			keepAliveC = s.keepAlive.C
		}

		select {
		case cmd := <-s.commands:
			cmd.run(s)

		case frame := <-s.inbound:
			if frame.epoch == s.connEpoch {
				s.handleInboundRaw(frame.data)
			}

		case o := <-s.opened:
			if o.epoch == s.connEpoch {
				s.handleSocketOpened(o.conn)
			}

		case c := <-s.closed:
			if c.epoch == s.connEpoch {
				s.handleSocketClosed(c.err)
			}

		case <-reconnectC:
			s.reconnectTimer = nil
			s.attemptReconnectNow()

		case <-keepAliveC:
			s.checkKeepAlive()

		case <-s.stopCh:
			return
		}
	}
}

func (s *Session) stop() {
	close(s.stopCh)
}

func (s *Session) nextEpoch() int {
	s.connEpoch++
	return s.connEpoch
}

func (s *Session) setState(next ConnectionState) {
	if next == s.state {
		return
	}
	prev := s.state
	s.state = next
	s.events.emit(s.gatewayID, EventStatusChange, StatusChangePayload{From: prev, To: next})
}

// handleConnect implements Manager.Connect's per-session half: idempotent
// when already underway, otherwise dials and transitions to Connecting.
func (s *Session) handleConnect(descriptor gatewayproto.GatewayDescriptor) bool {
	if s.state.hasSocket() {
		return true // idempotent, spec.md §4.1
	}
	s.descriptor = descriptor
	s.setState(StateConnecting)

	epoch := s.nextEpoch()
	go s.dialAndPump(descriptor.URL, epoch)
	return true
}

func (s *Session) dialAndPump(url string, epoch int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout())
	defer cancel()

	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		s.closed <- closedNotice{epoch: epoch, err: err}
		return
	}
	s.opened <- openedNotice{epoch: epoch, conn: conn}

	// Liveness window: any inbound frame (data or pong) pushes the deadline
	// out again. Silence for two keep-alive intervals means the transport is
	// dead even though TCP hasn't noticed yet, mirroring the teacher's
	// pongWait/pingInterval read-deadline pattern.
	deadline := 2 * s.cfg.KeepAliveInterval()
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})
	_ = conn.SetReadDeadline(time.Now().Add(deadline))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.closed <- closedNotice{epoch: epoch, err: err}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		s.inbound <- inboundFrame{epoch: epoch, data: data}
	}
}

func (s *Session) handleSocketOpened(conn wsConn) {
	s.conn = conn
	s.reconnectAttempts = 0
	s.stats.ConnectedAt = time.Now()
	s.setState(StateConnected)
	s.events.emit(s.gatewayID, EventConnected, nil)

	s.keepAlive = time.NewTicker(s.cfg.KeepAliveInterval())

	epoch := s.connEpoch
	delay := s.cfg.PostOpenLoginDelay()
	if delay <= 0 {
		// Already running on the loop goroutine; calling startLogin directly
		// (rather than through submitVoid, which would deadlock re-entering
		// the loop) is what makes a zero delay usable from tests.
		s.startLogin(epoch)
	} else {
		time.AfterFunc(delay, func() { s.submitVoid(func(sess *Session) { sess.startLogin(epoch) }) })
	}
}

func (s *Session) startLogin(epoch int) {
	if epoch != s.connEpoch || s.state != StateConnected {
		return
	}
	s.setState(StateAuthenticating)
	// Sent directly rather than through handleSendMessage/s.queue: POST_LOGIN
	// must reach the wire ahead of anything an application caller already
	// queued while Connecting (scenario "queued send before auth"), and the
	// gate is already known open for it in Authenticating.
	s.sendControl(gatewayproto.PostLogin{
		Email:    s.descriptor.Username,
		Password: s.descriptor.Password,
	})
}

// sendControl writes a session-internal protocol message straight to the
// wire, bypassing s.queue. Used only for the POST_LOGIN/POST_SUB_CHANGES/
// GET_DYN handshake messages the session itself sends in direct response to
// a state transition, which must reach the gateway ahead of any
// already-queued application-level send (spec.md §8 scenario 3).
func (s *Session) sendControl(msg gatewayproto.RequestMessage) {
	qm := queuedMessage{id: uuid.NewString(), msg: msg}
	if err := s.writeFrame(qm); err != nil {
		s.lastError = gatewayproto.NewError(gatewayproto.KindSendError, "writing %s: %v", msg.MessageType(), err)
		s.events.emit(s.gatewayID, EventError, s.lastError)
	}
}

func (s *Session) handleSocketClosed(err error) {
	prev := s.state
	s.conn = nil
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}

	if prev == StateConnecting {
		s.lastError = gatewayproto.NewError(gatewayproto.KindTransportError, "connect failed: %v", err)
		s.events.emit(s.gatewayID, EventError, s.lastError)
		s.setState(StateError)
		s.scheduleReconnectIfBudget()
		return
	}

	_, reconnect := applyEvent(prev, eventSocketClose)
	s.setState(StateDisconnected)
	s.events.emit(s.gatewayID, EventDisconnected, DisconnectedPayload{Reason: errString(err)})

	if reconnect {
		s.scheduleReconnectIfBudget()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Session) scheduleReconnectIfBudget() {
	if s.reconnectAttempts >= s.cfg.MaxReconnectAttempts {
		return
	}
	delay := time.Duration(float64(s.cfg.ReconnectDelayMs)*math.Pow(s.cfg.ReconnectBackoffFactor, float64(s.reconnectAttempts))) * time.Millisecond
	s.reconnectAttempts++
	s.stats.ReconnectCount++
	s.reconnectTimer = time.NewTimer(delay)
}

func (s *Session) attemptReconnectNow() {
	s.setState(StateConnecting)
	epoch := s.nextEpoch()
	go s.dialAndPump(s.descriptor.URL, epoch)
}

// handleDisconnect tears the session down to Disconnected: cancels timers,
// closes the socket, and empties the queue (spec.md §4.1).
func (s *Session) handleDisconnect(reason string) bool {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.queue = nil
	s.nextEpoch() // invalidate any in-flight reader/dial goroutine from the old connection

	prev := s.state
	s.setState(StateDisconnected)
	if prev != StateDisconnected {
		s.events.emit(s.gatewayID, EventDisconnected, DisconnectedPayload{Reason: reason})
	}
	return true
}

// checkKeepAlive fires every KeepAliveInterval on the session loop and sends
// a WebSocket ping frame (spec.md §4.1, §9 Open Question 3: liveness is
// transport-ping-only, no application-level heartbeat message). The
// matching read-deadline/pong-handler side lives in dialAndPump, on the
// reader goroutine.
func (s *Session) checkKeepAlive() {
	if s.conn == nil {
		if s.keepAlive != nil {
			s.keepAlive.Stop()
			s.keepAlive = nil
		}
		return
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.log.Warn("failed to send keep-alive ping", "error", err)
	}
}

// isReadyFor implements the send gate of spec.md §4.1: POST_LOGIN is ready
// in {Connected, Authenticating}; every other message needs
// {Connected, Authenticated}.
func (s *Session) isReadyFor(t gatewayproto.MessageType) bool {
	if t == gatewayproto.TypePostLogin {
		return s.state == StateConnected || s.state == StateAuthenticating
	}
	return s.state == StateConnected || s.state == StateAuthenticated
}

// queuedMessage pairs an outbound request with an internally generated
// correlation ID, used only for log correlation across the enqueue/drain
// split (the wire frame itself carries no request ID).
type queuedMessage struct {
	id  string
	msg gatewayproto.RequestMessage
}

// handleSendMessage enqueues msg and immediately attempts to drain the
// queue, which sends msg right away when the gate is open.
func (s *Session) handleSendMessage(msg gatewayproto.RequestMessage) bool {
	if !gatewayproto.IsRequestType(msg.MessageType()) {
		s.lastError = gatewayproto.NewError(gatewayproto.KindSendError, "not a request type: %s", msg.MessageType())
		s.events.emit(s.gatewayID, EventError, s.lastError)
		return false
	}
	qm := queuedMessage{id: uuid.NewString(), msg: msg}
	s.log.Debug("enqueued outbound message", "requestId", qm.id, "type", msg.MessageType())
	s.queue = append(s.queue, qm)
	s.drainQueue()
	return true
}

func (s *Session) writeFrame(qm queuedMessage) error {
	raw, err := gatewayproto.EncodeRequest(qm.msg)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return err
	}
	s.stats.FramesSent++
	s.log.Debug("sent outbound message", "requestId", qm.id, "type", qm.msg.MessageType())
	return nil
}

// drainQueue re-evaluates the send gate per message in order, stopping at
// the first message that isn't ready or fails to send, so ordering (I3) is
// preserved and the queue only ever shrinks on drain (I2).
func (s *Session) drainQueue() {
	i := 0
	for i < len(s.queue) {
		qm := s.queue[i]
		if s.conn == nil || !s.isReadyFor(qm.msg.MessageType()) {
			break
		}
		if err := s.writeFrame(qm); err != nil {
			s.lastError = gatewayproto.NewError(gatewayproto.KindSendError, "writing %s: %v", qm.msg.MessageType(), err)
			s.events.emit(s.gatewayID, EventError, s.lastError)
			break
		}
		i++
	}
	s.queue = s.queue[i:]
}

// handleInboundRaw decodes one inbound frame and routes it through the
// dispatch table, per spec.md §4.2.
func (s *Session) handleInboundRaw(raw []byte) {
	env, payload, err := gatewayproto.DecodeInbound(raw)
	if err != nil {
		kind := gatewayproto.KindSchemaError
		if env == nil {
			kind = gatewayproto.KindParseError
		}
		s.lastError = gatewayproto.NewError(kind, "%v", err)
		s.events.emit(s.gatewayID, EventError, s.lastError)
		return
	}

	s.stats.FramesReceived++
	s.events.emit(s.gatewayID, EventMessage, MessagePayload{Envelope: env, Payload: payload})

	if payload == nil {
		return
	}

	if handler, ok := dispatchTable[env.Type]; ok {
		handler(s, env, payload)
	}
}
