// Package ws bridges SECoP clients connecting over WebSocket, per
// SPEC_FULL.md §10: text messages carry the same line protocol as the
// raw TCP transport one frame per message, while binary messages carry
// msgpack-encoded frames so blob-typed parameter payloads don't pay
// JSON's base64 tax. Replies go back in the encoding of the request;
// asynchronous updates queued on the session are always sent as text.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/vitalybin/frappy/pkg/secop/dispatch"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
	"github.com/vitalybin/frappy/pkg/secop/wire"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// msgpackFrame mirrors wire.Frame for the binary sub-protocol, since
// wire.Frame.Payload is a json.RawMessage and msgpack needs its own
// encoding of the payload value.
type msgpackFrame struct {
	Action    string `msgpack:"action"`
	Specifier string `msgpack:"specifier"`
	Payload   any    `msgpack:"payload"`
}

// Bridge upgrades incoming HTTP connections to WebSocket and relays
// frames to/from a dispatcher, the way the dispatcher's TCP listener
// does for raw sockets.
type Bridge struct {
	disp     *dispatch.Dispatcher
	log      seclog.Logger
	upgrader websocket.Upgrader
}

// New builds a Bridge feeding disp. CORS is left to the caller's HTTP
// router (adminhttp or a reverse proxy in front of it); the upgrader
// itself accepts any origin since SECoP has no browser-same-origin
// concept of its own.
func New(disp *dispatch.Dispatcher) *Bridge {
	return &Bridge{
		disp: disp,
		log:  seclog.Named("transport.ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler, upgrading the request and running
// the bridge loop until the client disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	b.handle(r.Context(), conn)
}

func (b *Bridge) handle(ctx context.Context, conn *websocket.Conn) {
	sess := dispatch.NewSession()
	b.disp.AddSession(sess)
	defer b.disp.RemoveSession(sess)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.writeLoop(connCtx, conn, sess)
	}()

	b.readLoop(connCtx, conn, sess)
	sess.Close()
	cancel()
	wg.Wait()
}

// readLoop reads one WebSocket message at a time, treating text
// messages as a single line-protocol frame and binary messages as a
// msgpack-encoded frame.
func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn, sess *dispatch.Session) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame wire.Frame
		binary := msgType == websocket.BinaryMessage
		if binary {
			var mf msgpackFrame
			if err := msgpack.Unmarshal(data, &mf); err != nil {
				b.sendParseError(ctx, conn, sess, binary, err)
				continue
			}
			payload, encErr := wire.MarshalPayload(mf.Payload)
			if encErr != nil {
				b.sendParseError(ctx, conn, sess, binary, encErr)
				continue
			}
			frame = wire.Frame{Action: mf.Action, Specifier: mf.Specifier, Payload: payload}
		} else {
			var parseErr error
			frame, parseErr = wire.Parse(string(data))
			if parseErr != nil {
				b.sendParseError(ctx, conn, sess, binary, parseErr)
				continue
			}
		}

		for _, reply := range b.disp.HandleFrame(ctx, sess, frame) {
			if err := b.writeFrame(conn, reply, binary); err != nil {
				return
			}
		}
	}
}

func (b *Bridge) sendParseError(ctx context.Context, conn *websocket.Conn, sess *dispatch.Session, binary bool, err error) {
	reply := dispatch.HandleParseError("", err)
	_ = b.writeFrame(conn, reply, binary)
}

// writeLoop drains sess.Out directly onto the WebSocket connection,
// sending periodic pings to keep intermediary proxies from idling the
// connection out.
func (b *Bridge) writeLoop(ctx context.Context, conn *websocket.Conn, sess *dispatch.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-sess.Out:
			if !ok {
				return
			}
			if err := b.writeFrame(conn, frame, false); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeFrame encodes frame as text or, when the originating message was
// binary, as a msgpack-encoded frame.
func (b *Bridge) writeFrame(conn *websocket.Conn, frame wire.Frame, binary bool) error {
	if !binary {
		return conn.WriteMessage(websocket.TextMessage, []byte(wire.Encode(frame)))
	}
	var payload any
	if len(frame.Payload) > 0 {
		if err := unmarshalAny(frame.Payload, &payload); err != nil {
			return err
		}
	}
	data, err := msgpack.Marshal(msgpackFrame{Action: frame.Action, Specifier: frame.Specifier, Payload: payload})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// unmarshalAny decodes a json.RawMessage payload into an untyped any,
// the same shape msgpack.Marshal expects for the binary sub-protocol.
func unmarshalAny(raw json.RawMessage, out *any) error {
	return json.Unmarshal(raw, out)
}
