package clienthub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	return dialTestServer(t, server)
}

func dialTestServer(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// the worker greets every new page with a ready message
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MsgReady, msg.Type)
	return conn
}

func TestPingPong(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	conn := dialTestHub(t, hub)

	require.NoError(t, conn.WriteJSON(Message{Type: MsgPing}))

	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, MsgPong, pong.Type)
	assert.NotEmpty(t, pong.Message)
	assert.Greater(t, pong.Timestamp, int64(0))
}

func TestClearUpdatesInvokesCallback(t *testing.T) {
	cleared := make(chan struct{}, 1)
	hub := NewHub(zerolog.Nop(), func() error {
		cleared <- struct{}{}
		return nil
	})
	conn := dialTestHub(t, hub)

	require.NoError(t, conn.WriteJSON(Message{Type: MsgClearUpdates}))

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("Clear callback was not invoked")
	}
}

func TestNetworkStatusIsDiagnosticOnly(t *testing.T) {
	cleared := make(chan struct{}, 1)
	hub := NewHub(zerolog.Nop(), func() error {
		cleared <- struct{}{}
		return nil
	})
	conn := dialTestHub(t, hub)

	online := false
	require.NoError(t, conn.WriteJSON(Message{Type: MsgNetworkStatus, IsOnline: &online}))

	// the channel must still be alive and no purge may have happened
	require.NoError(t, conn.WriteJSON(Message{Type: MsgPing}))
	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, MsgPong, pong.Type)

	select {
	case <-cleared:
		t.Fatal("Network status triggered a purge")
	default:
	}
}

func TestUnknownMessageIgnored(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	conn := dialTestHub(t, hub)

	require.NoError(t, conn.WriteJSON(Message{Type: "BOGUS"}))

	require.NoError(t, conn.WriteJSON(Message{Type: MsgPing}))
	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, MsgPong, pong.Type)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	first := dialTestServer(t, server)
	second := dialTestServer(t, server)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(Message{Type: MsgUpdateAvailable})

	for _, conn := range []*websocket.Conn{first, second} {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MsgUpdateAvailable, msg.Type)
	}
}

func TestCountTracksDisconnects(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	conn := dialTestServer(t, server)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
