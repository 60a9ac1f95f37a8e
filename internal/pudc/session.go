package pudc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyhorde/pud-go/internal/protocol"
	"github.com/rustyhorde/pud-go/internal/wire"
)

// Request is the one administrative request a CLI invocation sends,
// named by its server-facing frame type and payload.
type Request struct {
	Type    string
	Payload any
}

// Run connects to the manager endpoint at serverURL as name, performs the
// Initialize handshake, sends req, and renders every frame the server
// sends back until a terminal frame (see frameIsTerminal) arrives or the
// connection closes. It returns whether any
// rendered frame counted as a success, for the caller's exit code.
func Run(ctx context.Context, serverURL, name string, req Request, renderer *Renderer) (bool, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return false, fmt.Errorf("parsing server url: %w", err)
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	writer := wire.NewWriter(conn)
	hb := wire.NewHeartbeat(time.Now())
	hb.InstallHandlers(conn, writer)

	if err := sendFrame(writer, protocol.TypeInitialize, nil); err != nil {
		return false, fmt.Errorf("sending initialize: %w", err)
	}

	sentRequest := false
	var reassembler wire.Reassembler
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return renderer.Success(), nil
		}
		complete, ok, err := reassembler.Feed(msgType, data)
		if err != nil {
			continue
		}
		if !ok {
			continue
		}

		var env protocol.EnvelopeRaw
		if err := json.Unmarshal(complete, &env); err != nil {
			continue
		}

		if !sentRequest && env.Type == protocol.TypeInitialize {
			if err := sendFrame(writer, req.Type, req.Payload); err != nil {
				return false, fmt.Errorf("sending request: %w", err)
			}
			sentRequest = true
			continue
		}

		if err := renderer.Render(env); err != nil {
			continue
		}

		if frameIsTerminal(env) {
			return renderer.Success(), nil
		}
	}
}

func sendFrame(writer *wire.Writer, msgType string, payload any) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	return writer.WriteBinary(data)
}

// frameIsTerminal reports whether env is the last frame this CLI
// invocation expects, so it can close and exit rather than wait for the
// server to drop the connection.
func frameIsTerminal(env protocol.EnvelopeRaw) bool {
	switch env.Type {
	case protocol.TypeReload, protocol.TypeWorkersList, protocol.TypeSchedules:
		return true
	case protocol.TypeQueryReturn:
		var p protocol.QueryReturnPayload
		if err := protocol.Decode(env, &p); err != nil {
			return false
		}
		return p.Done
	default:
		return false
	}
}
