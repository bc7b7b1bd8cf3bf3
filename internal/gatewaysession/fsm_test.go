package gatewaysession

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyEvent_HappyPathSequence(t *testing.T) {
	state := StateDisconnected

	state, _ = applyEvent(state, eventConnect)
	require.Equal(t, StateConnecting, state)

	state, _ = applyEvent(state, eventSocketOpen)
	require.Equal(t, StateConnected, state)

	state, _ = applyEvent(state, eventLoginStart)
	require.Equal(t, StateAuthenticating, state)

	state, _ = applyEvent(state, eventLoginSuccess)
	require.Equal(t, StateAuthenticated, state)
}

func TestApplyEvent_AuthFailureIsTerminalUntilReconnect(t *testing.T) {
	state, reconnect := applyEvent(StateAuthenticating, eventLoginFailure)
	require.Equal(t, StateError, state)
	require.False(t, reconnect)

	state, _ = applyEvent(state, eventConnect)
	require.Equal(t, StateConnecting, state)
}

func TestApplyEvent_CloseAfterAuthenticatedSchedulesReconnect(t *testing.T) {
	state, reconnect := applyEvent(StateAuthenticated, eventSocketClose)
	require.Equal(t, StateDisconnected, state)
	require.True(t, reconnect)
}

func TestApplyEvent_CloseWhileAuthenticatingDoesNotScheduleReconnect(t *testing.T) {
	state, reconnect := applyEvent(StateAuthenticating, eventSocketClose)
	require.Equal(t, StateDisconnected, state)
	require.False(t, reconnect)
}

func TestApplyEvent_DisconnectAlwaysGoesToDisconnected(t *testing.T) {
	for _, s := range []ConnectionState{StateConnecting, StateConnected, StateAuthenticating, StateAuthenticated, StateError} {
		next, reconnect := applyEvent(s, eventDisconnect)
		require.Equal(t, StateDisconnected, next)
		require.False(t, reconnect)
	}
}

func TestHasSocket_MatchesInvariantI1(t *testing.T) {
	require.False(t, StateDisconnected.hasSocket())
	require.False(t, StateError.hasSocket())
	require.True(t, StateConnecting.hasSocket())
	require.True(t, StateConnected.hasSocket())
	require.True(t, StateAuthenticating.hasSocket())
	require.True(t, StateAuthenticated.hasSocket())
}
