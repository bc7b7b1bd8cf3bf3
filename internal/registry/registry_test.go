package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

func TestStaticRegistry_GetAndList(t *testing.T) {
	r := NewStaticRegistry(gatewayproto.GatewayDescriptor{ID: "gw1", URL: "wss://gw1.example"})
	ctx := context.Background()

	d, err := r.Get(ctx, "gw1")
	require.NoError(t, err)
	require.Equal(t, "wss://gw1.example", d.URL)

	_, err = r.Get(ctx, "missing")
	require.Error(t, err)

	r.Put(gatewayproto.GatewayDescriptor{ID: "gw2", URL: "wss://gw2.example"})
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}
