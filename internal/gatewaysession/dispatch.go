package gatewaysession

import (
	"time"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

// dispatchHandler processes one decoded inbound response/notification on
// the session's loop goroutine. Kept beside Session (not inside
// gatewayproto) since dispatch touches session state; the codec package
// itself stays a pure parse/validate/serialize layer.
type dispatchHandler func(s *Session, env *gatewayproto.Envelope, payload interface{})

var dispatchTable = map[gatewayproto.MessageType]dispatchHandler{
	gatewayproto.TypeRtnLogin:             handleRtnLogin,
	gatewayproto.TypeRtnErr:               handleRtnErr,
	gatewayproto.TypeRtnDyn:               handleRtnDyn,
	gatewayproto.TypeRtnDynReadings:       handleRtnDynReadings,
	gatewayproto.TypeRtnDynTemps:          handleRtnDynTemps,
	gatewayproto.TypeRtnDynBatts:          handleRtnDynBatts,
	gatewayproto.TypeNotDynConn:           handleNotDynConn,
	gatewayproto.TypeNotDynReading:        handleNotDynReading,
	gatewayproto.TypeNotDynTemp:           handleNotDynTemp,
	gatewayproto.TypeNotDynBatt:           handleNotDynBatt,
	gatewayproto.TypeNotDynReadingStarted: handleNoStoreNotification,
	gatewayproto.TypeNotApConn:            handleNoStoreNotification,
}

func handleRtnLogin(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	login := payload.(gatewayproto.RtnLogin)
	if !login.Success {
		s.lastError = gatewayproto.NewError(gatewayproto.KindAuthError, "Authentication failed")
		s.events.emit(s.gatewayID, EventError, s.lastError)
		s.setState(StateError)
		s.handleDisconnect("authentication failed")
		return
	}

	s.reconnectAttempts = 0
	s.stats.AuthenticatedAt = time.Now()
	s.setState(StateAuthenticated)
	s.events.emit(s.gatewayID, EventAuthenticated, login)

	epoch := s.connEpoch
	delay := s.cfg.PostLoginSubscribeDelay()
	if delay <= 0 {
		s.subscribeAndSnapshot(epoch)
	} else {
		time.AfterFunc(delay, func() { s.submitVoid(func(sess *Session) { sess.subscribeAndSnapshot(epoch) }) })
	}
}

func (s *Session) subscribeAndSnapshot(epoch int) {
	if epoch != s.connEpoch || s.state != StateAuthenticated {
		return
	}
	// Bypass s.queue the same way startLogin does: these two must land on
	// the wire immediately after POST_LOGIN and before anything an
	// application caller queued earlier while unauthenticated. Once they're
	// out, drain whatever the caller queued (now ready, since we're
	// Authenticated) in its original order.
	s.sendControl(gatewayproto.PostSubChanges{})
	s.sendControl(gatewayproto.GetDyn{})
	s.drainQueue()
}

func handleRtnErr(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	rtnErr := payload.(gatewayproto.RtnErr)
	s.lastError = gatewayproto.NewError(gatewayproto.KindRemoteError, "%s: %s", rtnErr.Attempt, rtnErr.Error)
	s.events.emit(s.gatewayID, EventError, s.lastError)
}

func handleRtnDyn(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	rtnDyn := payload.(gatewayproto.RtnDyn)
	s.store.ReplaceSensors(s.gatewayID, rtnDyn.Sensors)
}

func handleRtnDynReadings(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	readings := payload.(gatewayproto.RtnDynReadings)
	for _, r := range readings.Detailed {
		s.store.UpsertVibrationDetailed(s.gatewayID, r)
	}
	for _, r := range readings.Simple {
		s.store.UpsertVibration(s.gatewayID, r)
	}
}

func handleRtnDynTemps(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	temps := payload.(gatewayproto.RtnDynTemps)
	for _, r := range temps.Readings {
		s.store.UpsertTemperature(s.gatewayID, r)
	}
}

func handleRtnDynBatts(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	batts := payload.(gatewayproto.RtnDynBatts)
	for _, r := range batts.Readings {
		s.store.UpsertBattery(s.gatewayID, r)
	}
}

// handleNotDynConn implements spec.md §4.2's auto-follow-up: a sensor that
// just came online gets one TAKE_DYN_TEMP immediately, then one
// TAKE_DYN_BATT roughly 500ms later.
func handleNotDynConn(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	notif := payload.(gatewayproto.NotDynConn)
	if !bool(notif.Connected) {
		return
	}
	s.handleSendMessage(gatewayproto.TakeDynTemp{Serial: notif.Serial})

	epoch := s.connEpoch
	serial := notif.Serial
	time.AfterFunc(500*time.Millisecond, func() {
		s.submitVoid(func(sess *Session) {
			if epoch != sess.connEpoch {
				return
			}
			sess.handleSendMessage(gatewayproto.TakeDynBatt{Serial: serial})
		})
	})
}

func handleNotDynReading(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	notif := payload.(gatewayproto.NotDynReading)
	for _, entry := range notif.Readings {
		if entry.Detailed != nil {
			s.store.UpsertVibrationDetailed(s.gatewayID, *entry.Detailed)
		} else if entry.Simple != nil {
			s.store.UpsertVibration(s.gatewayID, *entry.Simple)
		}
	}
}

func handleNotDynTemp(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	notif := payload.(gatewayproto.NotDynTemp)
	for _, r := range notif.Readings {
		s.store.UpsertTemperature(s.gatewayID, r)
	}
}

func handleNotDynBatt(s *Session, _ *gatewayproto.Envelope, payload interface{}) {
	notif := payload.(gatewayproto.NotDynBatt)
	for _, r := range notif.Readings {
		s.store.UpsertBattery(s.gatewayID, r)
	}
}

// handleNoStoreNotification covers NOT_DYN_READING_STARTED and NOT_AP_CONN:
// both are delivered purely via the generic message event emitted in
// handleInboundRaw, so there is nothing further to do here.
func handleNoStoreNotification(_ *Session, _ *gatewayproto.Envelope, _ interface{}) {}
