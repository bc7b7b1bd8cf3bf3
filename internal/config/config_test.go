package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsApplyWithoutConfigFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxReconnectAttempts)
	require.Equal(t, 1000, cfg.ReconnectDelayMs)
	require.Equal(t, 1.5, cfg.ReconnectBackoffFactor)
	require.Equal(t, 300, cfg.PostOpenLoginDelayMs)
	require.Equal(t, 300, cfg.PostLoginSubscribeDelayMs)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("GATEWAYCLIENT_MAX_RECONNECT_ATTEMPTS", "9")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9, cfg.MaxReconnectAttempts)
}

func TestValidate_RejectsNonPositiveReconnectDelay(t *testing.T) {
	cfg := &Config{
		ReconnectDelayMs:       0,
		ReconnectBackoffFactor: 2,
		KeepAliveIntervalMs:    1000,
		HandshakeTimeoutMs:     1000,
	}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsSubUnityBackoffFactor(t *testing.T) {
	cfg := &Config{
		ReconnectDelayMs:       500,
		ReconnectBackoffFactor: 0.5,
		KeepAliveIntervalMs:    1000,
		HandshakeTimeoutMs:     1000,
	}
	require.Error(t, cfg.Validate())
}
