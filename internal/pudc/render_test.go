package pudc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rustyhorde/pud-go/internal/protocol"
)

func envelopeFor(t *testing.T, msgType string, payload any) protocol.EnvelopeRaw {
	t.Helper()
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		t.Fatal(err)
	}
	var env protocol.EnvelopeRaw
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	return env
}

func TestRenderWorkersListSortsByName(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	idA, idB := uuid.New(), uuid.New()
	env := envelopeFor(t, protocol.TypeWorkersList, protocol.WorkersListPayload{
		Workers: map[uuid.UUID]protocol.WorkerSummary{
			idA: {Name: "zeta", IP: "10.0.0.9"},
			idB: {Name: "alpha", IP: "10.0.0.1"},
		},
	})
	if err := r.Render(env); err != nil {
		t.Fatal(err)
	}
	if !r.Success() {
		t.Error("expected success")
	}

	out := buf.String()
	alphaIdx := strings.Index(out, "alpha")
	zetaIdx := strings.Index(out, "zeta")
	if alphaIdx == -1 || zetaIdx == -1 || alphaIdx > zetaIdx {
		t.Errorf("expected alpha before zeta, got:\n%s", out)
	}
}

func TestRenderReloadFailure(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	env := envelopeFor(t, protocol.TypeReload, protocol.ReloadPayload{Success: false})
	if err := r.Render(env); err != nil {
		t.Fatal(err)
	}
	if r.Success() {
		t.Error("expected no success on reload failure")
	}
}

func TestRenderQueryReturnEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	env := envelopeFor(t, protocol.TypeQueryReturn, protocol.QueryReturnPayload{Done: true})
	if err := r.Render(env); err != nil {
		t.Fatal(err)
	}
	if !r.Success() {
		t.Error("expected success on empty query result")
	}
	if !strings.Contains(buf.String(), "no rows") {
		t.Errorf("got %q", buf.String())
	}
}
