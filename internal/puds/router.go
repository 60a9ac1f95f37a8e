// Package puds implements the server side of pud: the router that owns
// the worker and manager registries, and the per-connection sessions
// that translate WebSocket frames into router messages.
package puds

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rustyhorde/pud-go/internal/config"
	"github.com/rustyhorde/pud-go/internal/domain"
	"github.com/rustyhorde/pud-go/internal/protocol"
)

// outboxSize bounds each peer's per-connection send queue. The router
// blocks on a full queue rather than silently drop messages addressed to
// a known id; only messages for an id missing from the registries are
// dropped, by the handlers that look the id up before calling sendTo.
const outboxSize = 64

// Router is the single server-wide coordinator. All registry mutation
// happens inside its run loop; callers never touch the maps directly,
// only send typed requests on the inbox, matching the single-threaded
// message-loop model used throughout pud's core.
type Router struct {
	inbox chan routerRequest

	workers  map[uuid.UUID]domain.WorkerEntry
	managers map[uuid.UUID]domain.ManagerEntry
	seq      uint64

	cfg     *config.ServerConfig
	cfgPath string
}

// NewRouter creates a router seeded with cfg, loaded from cfgPath (used
// again on Reload).
func NewRouter(cfg *config.ServerConfig, cfgPath string) *Router {
	return &Router{
		inbox:    make(chan routerRequest, 256),
		workers:  make(map[uuid.UUID]domain.WorkerEntry),
		managers: make(map[uuid.UUID]domain.ManagerEntry),
		cfg:      cfg,
		cfgPath:  cfgPath,
	}
}

// routerRequest is the envelope for everything sent to the router's
// inbox; apply is invoked on the router goroutine only.
type routerRequest struct {
	apply func(*Router)
}

// Run drains the inbox until it is closed. Call from exactly one
// goroutine, started by the server at startup.
func (r *Router) Run() {
	for req := range r.inbox {
		req.apply(r)
	}
}

// Close stops Run once the inbox drains.
func (r *Router) Close() {
	close(r.inbox)
}

func (r *Router) do(fn func(*Router)) {
	done := make(chan struct{})
	r.inbox <- routerRequest{apply: func(rt *Router) {
		fn(rt)
		close(done)
	}}
	<-done
}

func (r *Router) nextSeq() uint64 {
	r.seq++
	return r.seq
}

// Connect registers a freshly accepted connection and returns its id.
// kind is "worker" or "manager".
func (r *Router) Connect(kind, ip, name string, sendTo chan<- []byte) uuid.UUID {
	var id uuid.UUID
	r.do(func(rt *Router) {
		id = uuid.New()
		entry := domain.WorkerEntry{
			ID:          id,
			Name:        name,
			IP:          ip,
			ConnectedAt: time.Now(),
			Seq:         rt.nextSeq(),
			SendTo:      sendTo,
		}
		switch kind {
		case "worker":
			rt.workers[id] = entry
			rt.broadcastStatus(fmt.Sprintf("worker joined: %s", id), &id)
		case "manager":
			rt.managers[id] = domain.ManagerEntry(entry)
			rt.broadcastStatus(fmt.Sprintf("manager joined: %s", id), &id)
		}
		rt.broadcastCount()
	})
	return id
}

// Disconnect removes id from its registry (idempotent) and broadcasts
// the updated counts.
func (r *Router) Disconnect(kind string, id uuid.UUID) {
	r.do(func(rt *Router) {
		switch kind {
		case "worker":
			delete(rt.workers, id)
			rt.broadcastStatus(fmt.Sprintf("worker left: %s", id), nil)
		case "manager":
			delete(rt.managers, id)
			rt.broadcastStatus(fmt.Sprintf("manager left: %s", id), nil)
		}
		rt.broadcastCount()
	})
}

// WorkerInitialize computes the effective command table and schedule
// list for a worker and pushes Initialize directly to it.
func (r *Router) WorkerInitialize(id uuid.UUID, name string) {
	r.do(func(rt *Router) {
		entry, ok := rt.workers[id]
		if !ok {
			log.Printf("puds: initialize for unknown worker %s", id)
			return
		}
		commands := domain.MergeOverrides(rt.cfg.DefaultCommands(), rt.cfg.OverrideCommands(name))
		schedules := rt.cfg.WorkerSchedules(name)
		rt.sendTo(entry.SendTo, protocol.TypeInitialize, protocol.InitializePayload{
			Commands:  commands,
			Schedules: schedules,
		})
	})
}

// DeliverSchedulesToManager forwards a worker's schedule dump to the
// manager that asked for it.
func (r *Router) DeliverSchedulesToManager(managerID uuid.UUID, workerName string, schedules []domain.Schedule) {
	r.do(func(rt *Router) {
		m, ok := rt.managers[managerID]
		if !ok {
			log.Printf("puds: schedules reply for unknown manager %s", managerID)
			return
		}
		rt.sendTo(m.SendTo, protocol.TypeSchedules, protocol.SchedulesReplyPayload{
			Name:      workerName,
			Schedules: schedules,
		})
	})
}

// ManagerInitialize acknowledges a manager's Initialize handshake.
func (r *Router) ManagerInitialize(id uuid.UUID) {
	r.do(func(rt *Router) {
		m, ok := rt.managers[id]
		if !ok {
			return
		}
		rt.sendTo(m.SendTo, protocol.TypeInitialize, nil)
	})
}

// ReloadFunc reloads the on-disk configuration. Injected so tests can
// stub it without touching the filesystem.
type ReloadFunc func(path string) (*config.ServerConfig, error)

// ManagerReload rereads cfgPath via reload, keeping the previous config
// on failure, replies Reload(success) to the requesting manager, and
// broadcasts Reload to every worker regardless of outcome (workers
// re-Initialize against whatever config ends up current).
func (r *Router) ManagerReload(id uuid.UUID, reload ReloadFunc) {
	r.do(func(rt *Router) {
		newCfg, err := reload(rt.cfgPath)
		success := err == nil
		if success {
			rt.cfg = newCfg
		} else {
			log.Printf("puds: reload of %s failed, keeping previous config: %v", rt.cfgPath, err)
		}

		if m, ok := rt.managers[id]; ok {
			rt.sendTo(m.SendTo, protocol.TypeReload, protocol.ReloadPayload{Success: success})
		}
		for _, w := range rt.workers {
			rt.sendTo(w.SendTo, protocol.TypeReload, nil)
		}
	})
}

// AutoReload rereads cfgPath and broadcasts Reload to every worker if it
// changed successfully, without a manager to answer. Used by the config
// file watcher for hot reload outside of an explicit manager request.
func (r *Router) AutoReload(reload ReloadFunc) {
	r.do(func(rt *Router) {
		newCfg, err := reload(rt.cfgPath)
		if err != nil {
			log.Printf("puds: auto-reload of %s failed, keeping previous config: %v", rt.cfgPath, err)
			return
		}
		rt.cfg = newCfg
		for _, w := range rt.workers {
			rt.sendTo(w.SendTo, protocol.TypeReload, nil)
		}
	})
}

// ManagerListWorkers replies with a snapshot of the worker registry.
func (r *Router) ManagerListWorkers(id uuid.UUID) {
	r.do(func(rt *Router) {
		m, ok := rt.managers[id]
		if !ok {
			return
		}
		snapshot := make(map[uuid.UUID]protocol.WorkerSummary, len(rt.workers))
		for wid, w := range rt.workers {
			snapshot[wid] = protocol.WorkerSummary{IP: w.IP, Name: w.Name}
		}
		rt.sendTo(m.SendTo, protocol.TypeWorkersList, protocol.WorkersListPayload{Workers: snapshot})
	})
}

// ManagerSchedules finds the first worker named workerName and asks it
// to report its schedules, tagging the request with id so the reply can
// be routed back. If no such worker is connected, it replies
// immediately with an empty schedule list.
func (r *Router) ManagerSchedules(id uuid.UUID, workerName string) {
	r.do(func(rt *Router) {
		m, ok := rt.managers[id]
		if !ok {
			return
		}
		w, found := rt.firstWorkerNamed(workerName)
		if !found {
			rt.sendTo(m.SendTo, protocol.TypeSchedules, protocol.SchedulesReplyPayload{
				Name:      workerName,
				Schedules: nil,
			})
			return
		}
		rt.sendTo(w.SendTo, protocol.TypeSchedules, protocol.SchedulesToWorkerPayload{ManagerID: id})
	})
}

// firstWorkerNamed returns the lowest-sequence worker registered under
// name; ties are broken by registration order, per spec §4.6/§9 (name
// collisions resolve to the first match).
func (r *Router) firstWorkerNamed(name string) (domain.WorkerEntry, bool) {
	var best domain.WorkerEntry
	found := false
	for _, w := range r.workers {
		if w.Name != name {
			continue
		}
		if !found || w.Seq < best.Seq {
			best = w
			found = true
		}
	}
	return best, found
}

// ManagerQuery streams docs back to the requesting manager as a series
// of QueryReturn frames, the last (and only, if docs is empty) carrying
// Done=true.
func (r *Router) ManagerQuery(id uuid.UUID, docs []domain.JobDocument) {
	r.do(func(rt *Router) {
		m, ok := rt.managers[id]
		if !ok {
			return
		}
		if len(docs) == 0 {
			rt.sendTo(m.SendTo, protocol.TypeQueryReturn, protocol.QueryReturnPayload{Done: true})
			return
		}
		for i, doc := range docs {
			rt.sendTo(m.SendTo, protocol.TypeQueryReturn, protocol.QueryReturnPayload{
				Stdout:    doc.Stdout,
				Stderr:    doc.Stderr,
				Status:    doc.Status,
				StartTime: doc.StartTime.Format(time.RFC3339Nano),
				EndTime:   doc.EndTime.Format(time.RFC3339Nano),
				Done:      i == len(docs)-1,
			})
		}
	})
}

func (r *Router) sendTo(ch chan<- []byte, msgType string, payload any) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		log.Printf("puds: marshaling %s: %v", msgType, err)
		return
	}
	ch <- data
}

// broadcastStatus sends a Status text to every worker and manager except
// skip (if non-nil). Matches §4.6's "convertible into both client
// unions" policy: Status exists in both variant sets.
func (r *Router) broadcastStatus(text string, skip *uuid.UUID) {
	r.broadcast(protocol.TypeStatus, protocol.TextPayload{Text: text}, skip)
}

func (r *Router) broadcastCount() {
	total := len(r.workers) + len(r.managers)
	r.broadcast(protocol.TypeStatus, protocol.TextPayload{Text: fmt.Sprintf("%d peers connected", total)}, nil)
}

func (r *Router) broadcast(msgType string, payload any, skip *uuid.UUID) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		log.Printf("puds: marshaling broadcast %s: %v", msgType, err)
		return
	}
	for id, w := range r.workers {
		if skip != nil && id == *skip {
			continue
		}
		w.SendTo <- data
	}
	for id, m := range r.managers {
		if skip != nil && id == *skip {
			continue
		}
		m.SendTo <- data
	}
}
