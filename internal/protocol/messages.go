// Package protocol defines the wire messages exchanged between pud's
// three peer types. Every application frame is a JSON envelope with a
// string type discriminator and a deferred-decode payload, so receivers
// can dispatch on Type before committing to a concrete Go type.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rustyhorde/pud-go/internal/domain"
)

// Envelope wraps an outbound message with its type discriminator.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EnvelopeRaw is the inbound counterpart: Payload is left undecoded until
// the caller knows which concrete type Type names.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal encodes msgType/payload as a JSON envelope.
func Marshal(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}

// Manager client -> manager session
const (
	TypeInitialize  = "initialize"
	TypeReload      = "reload"
	TypeListWorkers = "listWorkers"
	TypeSchedules   = "schedules"
	TypeQuery       = "query"
)

// Worker client -> worker session
const (
	TypeText     = "text"
	TypeJobStart = "jobStart"
	TypeJobEnd   = "jobEnd"
	TypeStdout   = "stdout"
	TypeStderr   = "stderr"
	TypeStatus   = "status"
)

// Server -> manager client (additional to TypeInitialize/TypeReload/TypeSchedules)
const (
	TypeWorkersList = "workersList"
	TypeQueryReturn = "queryReturn"
)

// ReloadPayload carries the success flag on Server -> manager Reload
// replies; the worker-bound Reload carries no payload.
type ReloadPayload struct {
	Success bool `json:"success"`
}

// SchedulesRequestPayload is the manager's "dump schedules for this
// worker" request.
type SchedulesRequestPayload struct {
	WorkerName string `json:"workerName"`
}

// SchedulesToWorkerPayload is the server's "report your schedules back
// to this manager" request, sent to a worker.
type SchedulesToWorkerPayload struct {
	ManagerID uuid.UUID `json:"managerId"`
}

// QueryPayload is the manager's raw archive query request.
type QueryPayload struct {
	Text string `json:"text"`
}

// JobStartPayload announces a freshly forked command.
type JobStartPayload struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// JobEndPayload announces a reaped command.
type JobEndPayload struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// LinePayload carries one line of a job's stdout or stderr.
type LinePayload struct {
	ID   uuid.UUID `json:"id"`
	Line string    `json:"line"`
}

// StatusPayload carries a job's exit code.
type StatusPayload struct {
	ID   uuid.UUID `json:"id"`
	Code int32     `json:"code"`
}

// TextPayload carries a worker's free-text status line.
type TextPayload struct {
	Text string `json:"text"`
}

// WorkerSchedulesPayload is what a worker sends back to the server after
// being asked for its schedules, addressed to a manager by ManagerID.
type WorkerSchedulesPayload struct {
	ManagerID uuid.UUID         `json:"managerId"`
	Schedules []domain.Schedule `json:"schedules"`
}

// InitializePayload is the server's command-table + schedule push to a
// worker, computed by overlaying overrides onto defaults.
type InitializePayload struct {
	Commands  domain.CommandTable `json:"commands"`
	Schedules []domain.Schedule   `json:"schedules"`
}

// WorkerSummary is one entry of a WorkersList reply.
type WorkerSummary struct {
	IP   string `json:"ip"`
	Name string `json:"name"`
}

// WorkersListPayload answers ListWorkers.
type WorkersListPayload struct {
	Workers map[uuid.UUID]WorkerSummary `json:"workers"`
}

// SchedulesReplyPayload answers a manager's Schedules(name) request.
type SchedulesReplyPayload struct {
	Name      string            `json:"name"`
	Schedules []domain.Schedule `json:"schedules"`
}

// QueryReturnPayload streams one archived job document back to a
// manager; Done is true only on the final frame of the stream (and is
// the sole frame, with empty slices, when the query matched nothing).
type QueryReturnPayload struct {
	Stdout    []string `json:"stdout"`
	Stderr    []string `json:"stderr"`
	Status    int32    `json:"status"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Done      bool     `json:"done"`
}

// Decode unmarshals raw's payload into dst, the concrete type named by
// raw.Type, returning an error naming raw.Type if the payload does not
// decode into dst. An empty payload leaves dst unchanged. Fields that do
// not match dst are ignored, so a payload of another variant is not
// detected.
func Decode(raw EnvelopeRaw, dst any) error {
	if len(raw.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.Payload, dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w", raw.Type, err)
	}
	return nil
}
