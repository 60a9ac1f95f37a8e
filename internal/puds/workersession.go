package puds

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rustyhorde/pud-go/internal/archive"
	"github.com/rustyhorde/pud-go/internal/domain"
	"github.com/rustyhorde/pud-go/internal/protocol"
	"github.com/rustyhorde/pud-go/internal/wire"
)

// WorkerSession is the server-side half of one worker's connection: it
// registers with the router, streams job output into per-job documents,
// and appends finished jobs to that worker's archive collection.
type WorkerSession struct {
	id   uuid.UUID
	name string
	ip   string

	conn   *websocket.Conn
	router *Router
	arc    *archive.Archive

	sendCh chan []byte
	jobs   map[uuid.UUID]*domain.JobDocument
}

// NewWorkerSession registers a new worker connection with router and
// ensures its archive collection exists.
func NewWorkerSession(conn *websocket.Conn, ip, name string, router *Router, arc *archive.Archive) *WorkerSession {
	sendCh := make(chan []byte, outboxSize)
	id := router.Connect("worker", ip, name, sendCh)
	if err := arc.EnsureCollection(name); err != nil {
		log.Printf("puds: ensuring archive collection for worker %s: %v", name, err)
	}
	return &WorkerSession{
		id:     id,
		name:   name,
		ip:     ip,
		conn:   conn,
		router: router,
		arc:    arc,
		sendCh: sendCh,
		jobs:   make(map[uuid.UUID]*domain.JobDocument),
	}
}

// Run drives the worker session's writer and reader until the
// connection closes or the heartbeat expires, then deregisters it.
func (s *WorkerSession) Run() {
	defer func() {
		s.router.Disconnect("worker", s.id)
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
				log.Printf("puds: writing to worker %s: %v", s.id, err)
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
				log.Printf("puds: worker %s: %v", s.id, err)
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

func (s *WorkerSession) handle(raw []byte) {
	var env protocol.EnvelopeRaw
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("puds: worker %s sent malformed envelope: %v", s.id, err)
		return
	}

	switch env.Type {
	case protocol.TypeInitialize:
		s.router.WorkerInitialize(s.id, s.name)

	case protocol.TypeText:
		var p protocol.TextPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		log.Printf("puds: worker %s (%s): %s", s.name, s.id, p.Text)

	case protocol.TypeJobStart:
		var p protocol.JobStartPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		s.jobs[p.ID] = &domain.JobDocument{
			WorkerID:   s.id,
			WorkerName: s.name,
			JobID:      p.ID,
			JobName:    p.Name,
			StartTime:  time.Now().UTC(),
		}

	case protocol.TypeStdout:
		var p protocol.LinePayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		if doc, ok := s.jobs[p.ID]; ok {
			doc.Stdout = append(doc.Stdout, p.Line)
		} else {
			log.Printf("puds: stdout for unknown job %s on worker %s", p.ID, s.id)
		}

	case protocol.TypeStderr:
		var p protocol.LinePayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		if doc, ok := s.jobs[p.ID]; ok {
			doc.Stderr = append(doc.Stderr, p.Line)
		} else {
			log.Printf("puds: stderr for unknown job %s on worker %s", p.ID, s.id)
		}

	case protocol.TypeStatus:
		var p protocol.StatusPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		if doc, ok := s.jobs[p.ID]; ok {
			doc.Status = p.Code
		} else {
			log.Printf("puds: status for unknown job %s on worker %s", p.ID, s.id)
		}

	case protocol.TypeJobEnd:
		var p protocol.JobEndPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		doc, ok := s.jobs[p.ID]
		if !ok {
			log.Printf("puds: jobEnd for unknown job %s on worker %s", p.ID, s.id)
			return
		}
		doc.EndTime = time.Now().UTC()
		if err := s.arc.Append(*doc); err != nil {
			log.Printf("puds: archiving job %s: %v", p.ID, err)
		}
		delete(s.jobs, p.ID)

	case protocol.TypeSchedules:
		var p protocol.WorkerSchedulesPayload
		if err := protocol.Decode(env, &p); err != nil {
			log.Printf("puds: %v", err)
			return
		}
		s.router.DeliverSchedulesToManager(p.ManagerID, s.name, p.Schedules)

	default:
		log.Printf("puds: worker %s sent unknown message type %q", s.id, env.Type)
	}
}

// RemoteIP extracts the caller's address, preferring X-Forwarded-For.
func RemoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}

// NameParam reads the "name" query parameter, defaulting to "Unknown".
func NameParam(r *http.Request) string {
	name := r.URL.Query().Get("name")
	if name == "" {
		return "Unknown"
	}
	return name
}
