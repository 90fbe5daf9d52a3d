package transport

import (
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebsocketPair(t *testing.T) (server, client *Websocket) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	accepted := make(chan *Websocket, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- NewWebsocket(conn, zerolog.Nop())
	}))
	t.Cleanup(srv.Close)

	raw, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	client = NewWebsocket(raw, zerolog.Nop())
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the server side")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func receiveOne(t *testing.T, ws *Websocket) Message {
	t.Helper()
	select {
	case msg := <-ws.Receive():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
		return Message{}
	}
}

func TestWebsocketFramingRoundTrip(t *testing.T) {
	server, client := newWebsocketPair(t)

	payload := []byte(`{"ver":1,"frame":7}`)
	require.NoError(t, client.SendMessage(42, ReliableOrdered, payload))
	msg := receiveOne(t, server)
	assert.Equal(t, uint8(42), msg.ID)
	assert.Equal(t, payload, msg.Payload)

	require.NoError(t, server.SendMessage(7, UnreliableUnordered, []byte("x")))
	msg = receiveOne(t, client)
	assert.Equal(t, uint8(7), msg.ID)
	assert.Equal(t, []byte("x"), msg.Payload)
}

func TestWebsocketClockSynchronizesFromPong(t *testing.T) {
	server, client := newWebsocketPair(t)

	// Both pumps ping immediately on start.
	require.Eventually(t, client.IsClockSynchronized, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, server.IsClockSynchronized, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, client.Ping(), time.Duration(0))

	// Only the round trip is measured; timelines map through unchanged.
	assert.Equal(t, 1.5, client.LocalToRemoteTime(1.5))
	assert.Equal(t, 1.5, client.RemoteToLocalTime(1.5))
}

func TestWebsocketPongMeasuresRoundTrip(t *testing.T) {
	ws := &Websocket{}

	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(time.Now().Add(-25*time.Millisecond).UnixNano()))
	ws.handlePong(string(stamp[:]))

	assert.True(t, ws.IsClockSynchronized())
	assert.GreaterOrEqual(t, ws.Ping(), 25*time.Millisecond)

	malformed := &Websocket{}
	malformed.handlePong("bogus")
	assert.False(t, malformed.IsClockSynchronized())
	assert.Zero(t, malformed.Ping())
}

func TestWebsocketUnreliableDropsWhenBacklogged(t *testing.T) {
	// No pumps, so the outbound buffer fills and stays full.
	ws := &Websocket{outbound: make(chan []byte, 1), closed: make(chan struct{})}

	require.NoError(t, ws.SendMessage(1, UnreliableUnordered, []byte("a")))
	require.NoError(t, ws.SendMessage(1, UnreliableUnordered, []byte("b")))
	require.NoError(t, ws.SendMessage(1, UnreliableOrdered, []byte("c")))
	assert.Equal(t, uint64(2), ws.DroppedSends.Load())

	data := <-ws.outbound
	assert.Equal(t, uint8(1), data[0])
	assert.Equal(t, []byte("a"), data[1:])
}

func TestWebsocketSendAfterClose(t *testing.T) {
	ws := &Websocket{outbound: make(chan []byte), closed: make(chan struct{})}
	close(ws.closed)

	assert.ErrorIs(t, ws.SendMessage(1, ReliableOrdered, nil), ErrConnectionClosed)
	assert.ErrorIs(t, ws.SendMessage(1, UnreliableUnordered, nil), ErrConnectionClosed)
}
