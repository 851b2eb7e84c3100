package nativetransport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SnowyCoder/wdht/pkg/types"
)

func TestTransport_DialAndExchange(t *testing.T) {
	serverID, err := types.RandomID()
	require.NoError(t, err)
	clientID, err := types.RandomID()
	require.NoError(t, err)

	server, err := Listen(serverID, "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Listen(clientID, "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serverInfo := types.NodeInfo{ID: serverID, Contact: server.LocalContact()}
	clientChan, err := client.Dial(ctx, serverInfo)
	require.NoError(t, err)
	defer clientChan.Close()

	var accepted types.ID
	select {
	case a := <-server.Accept():
		accepted = a.PeerID
		defer a.Channel.Close()
		go func() {
			msg, err := a.Channel.Recv(ctx)
			if err == nil {
				a.Channel.Send(ctx, append([]byte("echo:"), msg...))
			}
		}()
	case <-ctx.Done():
		t.Fatal("timed out waiting for accept")
	}
	assert.Equal(t, clientID, accepted)

	require.NoError(t, clientChan.Send(ctx, []byte("hi")))
	reply, err := clientChan.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(reply))

	remoteID, ok := clientChan.RemoteID()
	require.True(t, ok)
	assert.Equal(t, serverID, remoteID)
}

func TestTransport_DialUnreachable(t *testing.T) {
	clientID, err := types.RandomID()
	require.NoError(t, err)
	client, err := Listen(clientID, "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	target, err := types.RandomID()
	require.NoError(t, err)
	_, err = client.Dial(ctx, types.NodeInfo{ID: target, Contact: types.Contact{Kind: types.ContactNative, Addr: "127.0.0.1:1"}})
	assert.Error(t, err)
}
