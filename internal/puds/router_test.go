package puds

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rustyhorde/pud-go/internal/config"
	"github.com/rustyhorde/pud-go/internal/protocol"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	cfg := config.DefaultServerConfig()
	cfg.Default["ls"] = config.CommandConfig{Cmd: "ls /"}
	r := NewRouter(cfg, "/nonexistent/puds.toml")
	go r.Run()
	t.Cleanup(r.Close)
	return r
}

func recvEnvelope(t *testing.T, ch <-chan []byte) protocol.EnvelopeRaw {
	t.Helper()
	select {
	case data := <-ch:
		var env protocol.EnvelopeRaw
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decoding envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return protocol.EnvelopeRaw{}
}

func TestConnectAssignsIDAndBroadcastsStatus(t *testing.T) {
	r := newTestRouter(t)
	ch := make(chan []byte, 16)
	id := r.Connect("worker", "10.0.0.1", "alpha", ch)
	if id == uuid.Nil {
		t.Fatal("expected non-nil id")
	}
	// The joining peer is skipped in the join announcement but still
	// receives the subsequent count broadcast.
	env := recvEnvelope(t, ch)
	if env.Type != protocol.TypeStatus {
		t.Fatalf("got %s, want status", env.Type)
	}
	var p protocol.TextPayload
	if err := protocol.Decode(env, &p); err != nil {
		t.Fatal(err)
	}
	if p.Text != "1 peers connected" {
		t.Errorf("got %q", p.Text)
	}
}

func TestBroadcastSkipsJoiningPeer(t *testing.T) {
	r := newTestRouter(t)
	ch1 := make(chan []byte, 16)
	r.Connect("worker", "10.0.0.1", "alpha", ch1)
	<-ch1 // count broadcast from its own join

	ch2 := make(chan []byte, 16)
	beta := r.Connect("worker", "10.0.0.2", "beta", ch2)

	// alpha should see a "joined" status for beta, then a count of 2;
	// beta itself must not receive its own join announcement.
	env := recvEnvelope(t, ch1)
	var p protocol.TextPayload
	if err := protocol.Decode(env, &p); err != nil {
		t.Fatal(err)
	}
	if p.Text != "worker joined: "+beta.String() {
		t.Errorf("got %q", p.Text)
	}

	env = recvEnvelope(t, ch2)
	if err := protocol.Decode(env, &p); err != nil {
		t.Fatal(err)
	}
	if p.Text != "2 peers connected" {
		t.Errorf("beta's first message should be the count broadcast, got %q", p.Text)
	}
}

func TestManagerListWorkersSnapshotsRegistry(t *testing.T) {
	r := newTestRouter(t)
	wch := make(chan []byte, 16)
	r.Connect("worker", "10.0.0.1", "alpha", wch)
	<-wch

	mch := make(chan []byte, 16)
	mid := r.Connect("manager", "10.0.0.9", "cli", mch)
	<-mch // count broadcast

	r.ManagerListWorkers(mid)
	env := recvEnvelope(t, mch)
	if env.Type != protocol.TypeWorkersList {
		t.Fatalf("got %s", env.Type)
	}
	var p protocol.WorkersListPayload
	if err := protocol.Decode(env, &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Workers) != 1 {
		t.Fatalf("got %d workers, want 1", len(p.Workers))
	}
	for _, w := range p.Workers {
		if w.Name != "alpha" || w.IP != "10.0.0.1" {
			t.Errorf("unexpected worker summary %+v", w)
		}
	}
}

func TestManagerSchedulesUnknownWorkerRepliesEmpty(t *testing.T) {
	r := newTestRouter(t)
	mch := make(chan []byte, 16)
	mid := r.Connect("manager", "10.0.0.9", "cli", mch)
	<-mch

	r.ManagerSchedules(mid, "gamma")
	env := recvEnvelope(t, mch)
	if env.Type != protocol.TypeSchedules {
		t.Fatalf("got %s", env.Type)
	}
	var p protocol.SchedulesReplyPayload
	if err := protocol.Decode(env, &p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "gamma" || len(p.Schedules) != 0 {
		t.Errorf("got %+v", p)
	}
}

func TestWorkerInitializeMergesOverrides(t *testing.T) {
	cfg := config.DefaultServerConfig()
	cfg.Default["ls"] = config.CommandConfig{Cmd: "ls /"}
	cfg.Overrides["alpha"] = map[string]config.CommandConfig{"ls": {Cmd: "ls /tmp"}}
	r := NewRouter(cfg, "/nonexistent/puds.toml")
	go r.Run()
	t.Cleanup(r.Close)

	wch := make(chan []byte, 16)
	id := r.Connect("worker", "10.0.0.1", "alpha", wch)
	<-wch

	r.WorkerInitialize(id, "alpha")
	env := recvEnvelope(t, wch)
	if env.Type != protocol.TypeInitialize {
		t.Fatalf("got %s", env.Type)
	}
	var p protocol.InitializePayload
	if err := protocol.Decode(env, &p); err != nil {
		t.Fatal(err)
	}
	if p.Commands["ls"].Cmd != "ls /tmp" {
		t.Errorf("got %+v", p.Commands)
	}
}

func TestManagerQueryEmptyDocsYieldsSingleDoneFrame(t *testing.T) {
	r := newTestRouter(t)
	mch := make(chan []byte, 16)
	mid := r.Connect("manager", "10.0.0.9", "cli", mch)
	<-mch

	r.ManagerQuery(mid, nil)
	env := recvEnvelope(t, mch)
	var p protocol.QueryReturnPayload
	if err := protocol.Decode(env, &p); err != nil {
		t.Fatal(err)
	}
	if !p.Done {
		t.Error("expected done=true on empty query result")
	}
}
