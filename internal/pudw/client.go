package pudw

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rustyhorde/pud-go/internal/protocol"
	"github.com/rustyhorde/pud-go/internal/wire"
)

// Backoff constants for reconnection.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2
)

// calculateBackoff returns the delay before connection attempt number
// attempt (0-based), growing exponentially up to maxBackoff.
func calculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= backoffFactor
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ClientConfig configures a worker's connection to the server.
type ClientConfig struct {
	ServerURL string
	Name      string
}

// Client is a worker's reconnecting connection to the server. Each
// successful connection gets a fresh Scheduler, so a reconnect always
// starts from a clean schedule install; a server-driven Reload reuses the
// scheduler, whose Initialize tears down the previous install.
type Client struct {
	cfg ClientConfig
}

// NewClient creates a client for the given configuration.
func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg}
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := c.connect(ctx)
		if err != nil {
			delay := calculateBackoff(attempt)
			log.Printf("pudw: connect failed: %v, retrying in %v", err, delay)
			attempt++
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
				continue
			}
		}

		attempt = 0
		log.Printf("pudw: connected to %s", c.cfg.ServerURL)
		if err := c.run(ctx, conn); err != nil {
			log.Printf("pudw: disconnected: %v", err)
		}
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	q := u.Query()
	q.Set("name", c.cfg.Name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

// run drives one connection until it drops, racing the heartbeat
// monitor against the read loop and returning whichever ends first.
func (c *Client) run(ctx context.Context, conn *websocket.Conn) error {
	now := time.Now()
	writer := wire.NewWriter(conn)
	hb := wire.NewHeartbeat(now)
	hb.InstallHandlers(conn, writer)
	done := make(chan struct{})
	defer close(done)
	dead := hb.RunPingLoop(writer, done)

	scheduler := NewScheduler(func(b []byte) {
		if err := writer.WriteBinary(b); err != nil {
			log.Printf("pudw: write: %v", err)
		}
	})
	defer scheduler.cancelIfArmed()

	if err := c.sendInitializeRequest(writer); err != nil {
		return fmt.Errorf("sending initialize request: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Closing the connection unblocks readLoop's ReadMessage, so
		// Wait returns as soon as either side ends.
		defer conn.Close()
		select {
		case <-dead:
			return fmt.Errorf("heartbeat expired")
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	g.Go(func() error {
		return c.readLoop(gctx, conn, writer, scheduler)
	})
	return g.Wait()
}

func (c *Client) sendInitializeRequest(writer *wire.Writer) error {
	data, err := protocol.Marshal(protocol.TypeInitialize, nil)
	if err != nil {
		return err
	}
	return writer.WriteBinary(data)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, writer *wire.Writer, scheduler *Scheduler) error {
	var reassembler wire.Reassembler
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		complete, ok, err := reassembler.Feed(msgType, data)
		if err != nil {
			log.Printf("pudw: reassembling frame: %v", err)
			continue
		}
		if !ok {
			continue
		}
		c.handle(complete, writer, scheduler)
	}
}

func (c *Client) handle(raw []byte, writer *wire.Writer, scheduler *Scheduler) {
	var env protocol.EnvelopeRaw
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("pudw: invalid envelope: %v", err)
		return
	}

	switch env.Type {
	case protocol.TypeInitialize:
		var p protocol.InitializePayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("pudw: %v", err)
			return
		}
		scheduler.Initialize(p.Commands, p.Schedules)

	case protocol.TypeReload:
		if err := c.sendInitializeRequest(writer); err != nil {
			log.Printf("pudw: re-requesting initialize: %v", err)
		}

	case protocol.TypeSchedules:
		var p protocol.SchedulesToWorkerPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("pudw: %v", err)
			return
		}
		reply := protocol.WorkerSchedulesPayload{
			ManagerID: p.ManagerID,
			Schedules: scheduler.CurrentSchedules(),
		}
		data, err := protocol.Marshal(protocol.TypeSchedules, reply)
		if err != nil {
			log.Printf("pudw: marshaling schedules reply: %v", err)
			return
		}
		if err := writer.WriteBinary(data); err != nil {
			log.Printf("pudw: writing schedules reply: %v", err)
		}

	default:
		log.Printf("pudw: unhandled message type %q", env.Type)
	}
}

// cancelIfArmed tears down any running schedule goroutines when the
// connection that owns this scheduler ends.
func (s *Scheduler) cancelIfArmed() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
