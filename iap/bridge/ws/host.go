// Package ws hosts the websocket endpoint a native store shell connects
// to. It implements bridge.Transport: requests are correlated by id,
// unsolicited frames are surfaced as notifications.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/iap/bridge"
	"github.com/moonbird-apps/iap-server/model"
)

const (
	writeWait  = 20 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 512 << 10
)

// ErrNotConnected is returned by Invoke while no shell is connected.
var ErrNotConnected = errors.New("native bridge is not connected")

// frame is the single wire frame shape. Requests carry id+method+params,
// responses id+ok+data/error, notifications event+payload.
type frame struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK    *bool           `json:"ok,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *model.IAPError `json:"error,omitempty"`

	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type result struct {
	data json.RawMessage
	err  error
}

type pendingCall struct {
	conn *websocket.Conn
	ch   chan result
}

// Host accepts exactly one native shell connection at a time; a new
// connection replaces the old one and fails its in-flight calls. Serve
// it on the route the shell dials, and hand it to bridge.New as the
// transport.
type Host struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	handlerMu sync.RWMutex
	notify    bridge.NotificationHandler

	nextID atomic.Uint64

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu *sync.Mutex // write lock of the current connection

	pendingMu sync.Mutex
	pending   map[uint64]pendingCall
}

// NewHost returns an unconnected host.
func NewHost(log *zap.Logger) *Host {
	return &Host{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pending: make(map[uint64]pendingCall),
	}
}

// ServeHTTP upgrades the request to a websocket and installs it as the
// active shell connection.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade bridge connection", zap.Error(err))
		return
	}

	h.mu.Lock()
	old := h.conn
	if old != nil {
		_ = old.Close()
	}
	h.conn = conn
	h.writeMu = &sync.Mutex{}
	h.mu.Unlock()

	if old != nil {
		// Calls in flight on the replaced connection will never be
		// answered.
		h.failPending(old, iap.NewError(iap.CodeIo, "bridge connection replaced"))
	}

	h.log.Info("Native bridge connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.pingLoop(conn)
	go h.readLoop(conn)
}

// Connected reports whether a shell is currently attached.
func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// SetNotificationHandler implements bridge.Transport.
func (h *Host) SetNotificationHandler(handler bridge.NotificationHandler) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.notify = handler
}

// Invoke implements bridge.Transport. It blocks until the shell answers
// the frame, the connection dies, or ctx is done.
func (h *Host) Invoke(ctx context.Context, method string, args any, reply any) error {
	h.mu.Lock()
	conn, writeMu := h.conn, h.writeMu
	h.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	params, err := json.Marshal(args)
	if err != nil {
		return errors.Wrapf(err, "marshalling %s params", method)
	}

	id := h.nextID.Add(1)
	ch := make(chan result, 1)

	h.pendingMu.Lock()
	h.pending[id] = pendingCall{conn: conn, ch: ch}
	h.pendingMu.Unlock()

	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
	}()

	request := frame{
		ID:     id,
		Method: method,
		Params: params,
	}

	writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(request)
	writeMu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "writing %s frame", method)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if reply == nil || len(res.data) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.data, reply); err != nil {
			return errors.Wrapf(err, "decoding %s result", method)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.Lock()
		alive := h.conn == conn
		h.mu.Unlock()
		if !alive {
			return
		}
		_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	}
}

func (h *Host) readLoop(conn *websocket.Conn) {
	defer h.dropConn(conn)

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			h.log.Warn("Dropping unparseable bridge frame", zap.Error(err))
			continue
		}

		switch {
		case f.Event != "":
			h.dispatchNotification(f.Event, f.Payload)
		case f.ID != 0:
			h.resolve(f)
		default:
			h.log.Warn("Dropping bridge frame with no id or event")
		}
	}
}

func (h *Host) dispatchNotification(event string, payload json.RawMessage) {
	h.handlerMu.RLock()
	notify := h.notify
	h.handlerMu.RUnlock()

	if notify == nil {
		h.log.Warn("No notification handler installed", zap.String("event", event))
		return
	}
	notify(event, payload)
}

func (h *Host) resolve(f frame) {
	h.pendingMu.Lock()
	call, ok := h.pending[f.ID]
	delete(h.pending, f.ID)
	h.pendingMu.Unlock()

	if !ok {
		h.log.Warn("Dropping response for unknown call", zap.Uint64("id", f.ID))
		return
	}

	switch {
	case f.Error != nil:
		call.ch <- result{err: iap.FromWire(*f.Error)}
	case f.OK != nil && !*f.OK:
		call.ch <- result{err: iap.NewError(iap.CodeInternal, "collaborator reported failure without error payload")}
	default:
		call.ch <- result{data: f.Data}
	}
}

func (h *Host) dropConn(conn *websocket.Conn) {
	_ = conn.Close()

	h.mu.Lock()
	current := h.conn == conn
	if current {
		h.conn = nil
		h.writeMu = nil
	}
	h.mu.Unlock()

	if current {
		h.log.Info("Native bridge disconnected")
	}
	h.failPending(conn, iap.NewError(iap.CodeIo, "bridge connection lost"))
}

func (h *Host) failPending(conn *websocket.Conn, err error) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	for id, call := range h.pending {
		if call.conn != conn {
			continue
		}
		call.ch <- result{err: err}
		delete(h.pending, id)
	}
}
