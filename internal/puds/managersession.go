package puds

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rustyhorde/pud-go/internal/archive"
	"github.com/rustyhorde/pud-go/internal/protocol"
	"github.com/rustyhorde/pud-go/internal/wire"
)

// ManagerSession is the server-side half of one manager (CLI)
// connection. A manager issues exactly one admin request per connection
// and then disconnects once it has its answer.
type ManagerSession struct {
	id uuid.UUID
	ip string

	conn   *websocket.Conn
	router *Router
	arc    *archive.Archive

	sendCh chan []byte
}

// NewManagerSession registers a new manager connection with router.
func NewManagerSession(conn *websocket.Conn, ip, name string, router *Router, arc *archive.Archive) *ManagerSession {
	sendCh := make(chan []byte, outboxSize)
	id := router.Connect("manager", ip, name, sendCh)
	return &ManagerSession{
		id:     id,
		ip:     ip,
		conn:   conn,
		router: router,
		arc:    arc,
		sendCh: sendCh,
	}
}

// Run drives the manager session until the connection closes or the
// heartbeat expires. Serving the request does not end the session; the
// manager closes the connection once it has its answer.
func (s *ManagerSession) Run() {
	defer func() {
		s.router.Disconnect("manager", s.id)
		s.conn.Close()
	}()

	writer := wire.NewWriter(s.conn)
	hb := wire.NewHeartbeat(time.Now())
	hb.InstallHandlers(s.conn, writer)
	done := make(chan struct{})
	defer close(done)
	dead := hb.RunPingLoop(writer, done)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range s.sendCh {
			if err := writer.WriteBinary(msg); err != nil {
				log.Printf("puds: writing to manager %s: %v", s.id, err)
				return
			}
		}
	}()

	reassembler := &wire.Reassembler{}
	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			mt, data, err := s.conn.ReadMessage()
			if err != nil {
				return
			}
			hb.Touch(time.Now())
			payload, complete, err := reassembler.Feed(mt, data)
			if err != nil {
				log.Printf("puds: manager %s: %v", s.id, err)
				continue
			}
			if !complete {
				continue
			}
			s.handle(payload)
		}
	}()

	select {
	case <-dead:
	case <-readErr:
	}
}

func (s *ManagerSession) handle(raw []byte) {
	var env protocol.EnvelopeRaw
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("puds: manager %s sent malformed envelope: %v", s.id, err)
		return
	}

	switch env.Type {
	case protocol.TypeInitialize:
		s.router.ManagerInitialize(s.id)

	case protocol.TypeReload:
		s.router.ManagerReload(s.id, defaultReload)

	case protocol.TypeListWorkers:
		s.router.ManagerListWorkers(s.id)

	case protocol.TypeSchedules:
		var p protocol.SchedulesRequestPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		s.router.ManagerSchedules(s.id, p.WorkerName)

	case protocol.TypeQuery:
		var p protocol.QueryPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		docs, err := s.arc.Query("manager query", p.Text)
		if err != nil {
			log.Printf("puds: query from manager %s: %v", s.id, err)
			docs = nil
		}
		s.router.ManagerQuery(s.id, docs)

	default:
		log.Printf("puds: manager %s sent unknown message type %q", s.id, env.Type)
	}
}
