package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	ctx := context.Background()

	client, err := Connect(ctx, "")
	require.NoError(t, err)
	require.Nil(t, client)

	_, err = Connect(ctx, "not a url")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	client, err = Connect(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NoError(t, client.Close())
}
