package transport

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 10 * time.Second
	pingInterval   = 2 * time.Second
	outboundBuffer = 64
	inboxBuffer    = 256
)

// ErrConnectionClosed is returned by SendMessage after Close.
var ErrConnectionClosed = errors.New("transport: connection closed")

// Websocket adapts a gorilla websocket to the Connection interface. A single
// writer goroutine owns the socket's write side; unreliable sends that would
// block are dropped instead, so a slow peer degrades to packet loss rather
// than stalling the tick loop.
//
// A websocket is a reliable ordered stream, so the reliable classes use it
// as-is and the unreliable classes differ only in their drop-not-block
// behavior on the local side.
//
// The writer pings the peer with the local send time; the echoed pong yields
// the round-trip estimate behind Ping and flips IsClockSynchronized.
type Websocket struct {
	conn *websocket.Conn
	log  zerolog.Logger

	outbound  chan []byte
	inbox     chan Message
	closeOnce sync.Once
	closed    chan struct{}

	ping         atomic.Int64 // nanoseconds
	synchronized atomic.Bool

	// DroppedSends counts unreliable payloads discarded because the
	// outbound buffer was full.
	DroppedSends atomic.Uint64
}

// NewWebsocket wraps an upgraded connection and starts its read and write
// pumps. The first ping goes out immediately, so the clock queries become
// meaningful one round trip after the connection is established.
func NewWebsocket(conn *websocket.Conn, log zerolog.Logger) *Websocket {
	ws := &Websocket{
		conn:     conn,
		log:      log,
		outbound: make(chan []byte, outboundBuffer),
		inbox:    make(chan Message, inboxBuffer),
		closed:   make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(appData string) error {
		ws.handlePong(appData)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go ws.writeLoop()
	go ws.readLoop()
	return ws
}

func (ws *Websocket) SendMessage(msgID uint8, packetType PacketType, payload []byte) error {
	data := make([]byte, 1+len(payload))
	data[0] = msgID
	copy(data[1:], payload)

	if packetType.Reliable() {
		select {
		case ws.outbound <- data:
			return nil
		case <-ws.closed:
			return ErrConnectionClosed
		}
	}

	select {
	case ws.outbound <- data:
	case <-ws.closed:
		return ErrConnectionClosed
	default:
		ws.DroppedSends.Add(1)
	}
	return nil
}

func (ws *Websocket) Receive() <-chan Message { return ws.inbox }

// IsClockSynchronized reports whether at least one ping has been answered,
// so Ping carries a real measurement.
func (ws *Websocket) IsClockSynchronized() bool { return ws.synchronized.Load() }

// The websocket never observes the peer's wall clock, only its own echoed
// ping stamps, so both timelines map through unchanged. Frame-level
// synchronization happens in the replication clock, fed by clock envelopes
// and the Ping estimate.

func (ws *Websocket) LocalToRemoteTime(seconds float64) float64 { return seconds }

func (ws *Websocket) RemoteToLocalTime(seconds float64) float64 { return seconds }

func (ws *Websocket) Ping() time.Duration { return time.Duration(ws.ping.Load()) }

func (ws *Websocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.closed)
		err = ws.conn.Close()
	})
	return err
}

func (ws *Websocket) String() string { return ws.conn.RemoteAddr().String() }

// handlePong derives the round-trip estimate from the send time echoed in
// the pong payload. Stamps that do not parse are ignored.
func (ws *Websocket) handlePong(appData string) {
	if len(appData) != 8 {
		return
	}
	sent := int64(binary.BigEndian.Uint64([]byte(appData)))
	rtt := time.Since(time.Unix(0, sent))
	if rtt < 0 {
		return
	}
	ws.ping.Store(int64(rtt))
	ws.synchronized.Store(true)
}

// writePing stamps the ping with the local send time so the pong handler
// can measure the round trip without a shared clock.
func (ws *Websocket) writePing() error {
	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(time.Now().UnixNano()))
	ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.conn.WriteMessage(websocket.PingMessage, stamp[:])
}

func (ws *Websocket) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	if err := ws.writePing(); err != nil {
		ws.Close()
		return
	}
	for {
		select {
		case data := <-ws.outbound:
			ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				ws.log.Debug().Err(err).Str("peer", ws.String()).Msg("write failed")
				ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.writePing(); err != nil {
				ws.log.Debug().Err(err).Str("peer", ws.String()).Msg("ping failed")
				ws.Close()
				return
			}
		case <-ws.closed:
			return
		}
	}
}

func (ws *Websocket) readLoop() {
	defer close(ws.inbox)
	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.log.Debug().Err(err).Str("peer", ws.String()).Msg("read failed")
			}
			ws.Close()
			return
		}
		if len(data) == 0 {
			continue
		}
		msg := Message{ID: data[0], Payload: data[1:]}
		select {
		case ws.inbox <- msg:
		case <-ws.closed:
			return
		}
	}
}
