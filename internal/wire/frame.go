// Package wire implements pud's application-level framing and heartbeat
// discipline on top of github.com/gorilla/websocket. gorilla already
// reassembles wire-level WebSocket fragmentation into one ReadMessage
// payload; the chunking here is a second, application-level envelope
// that splits any oversized encoded message across several independent
// binary WebSocket messages, tagged First/Continue/Last, exactly as
// documented for pud's transport.
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// MaxSingleFrame is the largest payload sent as one kindSingle-tagged
// frame before chunking kicks in.
const MaxSingleFrame = 65536

// kind tags each outbound binary WebSocket message with its role in the
// application-level continuation sequence.
type kind byte

const (
	kindFirst kind = iota
	kindContinue
	kindLast
	kindSingle
)

// ErrProtocolViolation marks a discarded frame: a text frame, or a stray
// continuation with no frame in progress.
var ErrProtocolViolation = errors.New("wire: protocol violation")

// WriteBinary sends payload as one or more tagged binary WebSocket
// frames, chunking automatically if payload exceeds MaxSingleFrame.
func WriteBinary(conn *websocket.Conn, payload []byte) error {
	if len(payload) <= MaxSingleFrame {
		return writeTagged(conn, kindSingle, payload)
	}

	for offset := 0; offset < len(payload); offset += MaxSingleFrame {
		end := offset + MaxSingleFrame
		if end > len(payload) {
			end = len(payload)
		}
		var k kind
		switch {
		case offset == 0:
			k = kindFirst
		case end == len(payload):
			k = kindLast
		default:
			k = kindContinue
		}
		if err := writeTagged(conn, k, payload[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

func writeTagged(conn *websocket.Conn, k kind, chunk []byte) error {
	buf := make([]byte, 0, len(chunk)+1)
	buf = append(buf, byte(k))
	buf = append(buf, chunk...)
	return conn.WriteMessage(websocket.BinaryMessage, buf)
}

// Reassembler accumulates FirstBinary/Continue/Last sequences into
// complete application messages. It is not safe for concurrent use; each
// connection's read loop owns one.
type Reassembler struct {
	buf        bytes.Buffer
	inProgress bool
}

// Feed processes one inbound WebSocket message (messageType, data as
// returned by conn.ReadMessage). It returns a complete payload and true
// when a message has just finished reassembling. Text frames and stray
// continuations are reported via ErrProtocolViolation (callers should log
// and continue reading, per spec; the connection itself stays up).
func (r *Reassembler) Feed(messageType int, data []byte) ([]byte, bool, error) {
	if messageType != websocket.BinaryMessage {
		return nil, false, fmt.Errorf("%w: non-binary frame", ErrProtocolViolation)
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%w: empty frame", ErrProtocolViolation)
	}

	k := kind(data[0])
	chunk := data[1:]

	switch k {
	case kindSingle:
		if r.inProgress {
			return nil, false, fmt.Errorf("%w: single frame mid-continuation", ErrProtocolViolation)
		}
		return chunk, true, nil

	case kindFirst:
		r.buf.Reset()
		r.buf.Write(chunk)
		r.inProgress = true
		return nil, false, nil

	case kindContinue:
		if !r.inProgress {
			return nil, false, fmt.Errorf("%w: continue with no frame in progress", ErrProtocolViolation)
		}
		r.buf.Write(chunk)
		return nil, false, nil

	case kindLast:
		if !r.inProgress {
			return nil, false, fmt.Errorf("%w: last with no frame in progress", ErrProtocolViolation)
		}
		r.buf.Write(chunk)
		out := make([]byte, r.buf.Len())
		copy(out, r.buf.Bytes())
		r.buf.Reset()
		r.inProgress = false
		return out, true, nil

	default:
		return nil, false, fmt.Errorf("%w: unknown frame kind %d", ErrProtocolViolation, k)
	}
}
