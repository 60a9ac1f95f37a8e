package wire

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PingInterval and LivenessTimeout implement the 5s/10s heartbeat
// contract shared by every peer type.
const (
	PingInterval    = 5 * time.Second
	LivenessTimeout = 10 * time.Second
	writeWait       = 2 * time.Second
)

// EncodeDuration packs elapsed as the spec's 12-byte
// (seconds uint64 BE, nanos uint32 BE) ping/pong payload.
func EncodeDuration(elapsed time.Duration) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[0:8], uint64(elapsed/time.Second))
	binary.BigEndian.PutUint32(buf[8:12], uint32(elapsed%time.Second))
	return buf
}

// DecodeDuration reverses EncodeDuration. Payloads of any other length
// are accepted by callers but their duration is ignored, per spec; this
// function only needs to handle the 12-byte case.
func DecodeDuration(payload []byte) (time.Duration, bool) {
	if len(payload) != 12 {
		return 0, false
	}
	secs := binary.BigEndian.Uint64(payload[0:8])
	nanos := binary.BigEndian.Uint32(payload[8:12])
	return time.Duration(secs)*time.Second + time.Duration(nanos), true
}

// Writer serializes every write to one websocket connection, satisfying
// gorilla's rule that at most one goroutine may call the connection's
// write methods (WriteMessage/WriteControl) at a time. The ping loop,
// the echoed-pong handler, and application-frame writers all go through
// the same Writer for a given connection.
type Writer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWriter wraps conn for serialized writing.
func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{conn: conn}
}

// WriteBinary sends payload as one or more tagged binary frames, holding
// the writer's lock for the duration of the (possibly chunked) write.
func (w *Writer) WriteBinary(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriteBinary(w.conn, payload)
}

// WriteControl sends a control frame (ping/pong/close) under the same
// lock as WriteBinary.
func (w *Writer) WriteControl(messageType int, data []byte, deadline time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(messageType, data, deadline)
}

// Heartbeat tracks one connection's origin instant and last-inbound-
// activity instant, and drives the 5s ping loop. origin and hb are read
// from the ping-loop goroutine and written from the connection's read
// goroutine on every inbound frame, so both are guarded by mu.
type Heartbeat struct {
	mu     sync.Mutex
	origin time.Time
	hb     time.Time
}

// NewHeartbeat starts a heartbeat clock at now.
func NewHeartbeat(now time.Time) *Heartbeat {
	return &Heartbeat{origin: now, hb: now}
}

// Touch refreshes the last-inbound-activity instant.
func (h *Heartbeat) Touch(now time.Time) {
	h.mu.Lock()
	h.hb = now
	h.mu.Unlock()
}

// Expired reports whether now is more than LivenessTimeout past the last
// inbound activity.
func (h *Heartbeat) Expired(now time.Time) bool {
	h.mu.Lock()
	hb := h.hb
	h.mu.Unlock()
	return now.Sub(hb) > LivenessTimeout
}

// SendPing writes a ping control frame whose payload encodes elapsed time
// since this heartbeat's origin.
func (h *Heartbeat) SendPing(w *Writer, now time.Time) error {
	h.mu.Lock()
	origin := h.origin
	h.mu.Unlock()
	payload := EncodeDuration(now.Sub(origin))
	return w.WriteControl(websocket.PingMessage, payload, now.Add(writeWait))
}

// InstallHandlers wires gorilla's ping/pong control-frame callbacks to
// this heartbeat: an inbound ping is echoed as a pong carrying the same
// payload (through w, so it serializes with every other write on conn)
// and refreshes hb; an inbound pong also refreshes hb.
func (h *Heartbeat) InstallHandlers(conn *websocket.Conn, w *Writer) {
	conn.SetPingHandler(func(appData string) error {
		h.Touch(time.Now())
		deadline := time.Now().Add(writeWait)
		return w.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	})
	conn.SetPongHandler(func(appData string) error {
		h.Touch(time.Now())
		return nil
	})
}

// RunPingLoop sends a ping every PingInterval and reports liveness
// failure on the returned channel (closed once, then the goroutine
// exits) when hb goes stale. Callers should also call Touch on every
// inbound application frame since a pong is not the only kind of
// activity that counts.
func (h *Heartbeat) RunPingLoop(w *Writer, done <-chan struct{}) <-chan struct{} {
	dead := make(chan struct{})
	go func() {
		defer close(dead)
		ticker := time.NewTicker(PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				if h.Expired(now) {
					return
				}
				if err := h.SendPing(w, now); err != nil {
					return
				}
			}
		}
	}()
	return dead
}
