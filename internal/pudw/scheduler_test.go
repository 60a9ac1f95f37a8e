package pudw

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rustyhorde/pud-go/internal/domain"
	"github.com/rustyhorde/pud-go/internal/protocol"
)

type capturedFrame struct {
	Type    string
	Payload json.RawMessage
}

func newCapturingScheduler(t *testing.T) (*Scheduler, func() []capturedFrame) {
	t.Helper()
	var mu sync.Mutex
	var frames []capturedFrame
	s := NewScheduler(func(b []byte) {
		var env protocol.EnvelopeRaw
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("decoding frame: %v", err)
		}
		mu.Lock()
		frames = append(frames, capturedFrame{Type: env.Type, Payload: env.Payload})
		mu.Unlock()
	})
	return s, func() []capturedFrame {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedFrame, len(frames))
		copy(out, frames)
		return out
	}
}

func waitFor(t *testing.T, get func() []capturedFrame, minCount int) []capturedFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := get()
		if len(frames) >= minCount {
			return frames
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", minCount, len(get()))
	return nil
}

func TestSchedulerCurrentSchedulesRoundTrips(t *testing.T) {
	s, _ := newCapturingScheduler(t)
	schedules := []domain.Schedule{
		{Kind: domain.ScheduleMonotonic, Monotonic: &domain.Monotonic{OnBoot: time.Hour, OnActive: time.Hour, Cmds: []string{"noop"}}},
	}
	s.Initialize(domain.CommandTable{"noop": {Name: "noop", Cmd: "true"}}, schedules)
	defer s.cancel()

	got := s.CurrentSchedules()
	if len(got) != 1 || got[0].Kind != domain.ScheduleMonotonic {
		t.Fatalf("got %+v", got)
	}
}

func TestSchedulerMonotonicRunsOnBoot(t *testing.T) {
	s, get := newCapturingScheduler(t)
	s.Initialize(domain.CommandTable{"echo": {Name: "echo", Cmd: "echo hi"}}, []domain.Schedule{
		{Kind: domain.ScheduleMonotonic, Monotonic: &domain.Monotonic{OnBoot: 0, OnActive: time.Hour, Cmds: []string{"echo"}}},
	})
	defer s.cancel()

	frames := waitFor(t, get, 4) // jobStart, stdout (or text), status, jobEnd
	sawStart, sawEnd := false, false
	for _, f := range frames {
		if f.Type == protocol.TypeJobStart {
			sawStart = true
		}
		if f.Type == protocol.TypeJobEnd {
			sawEnd = true
		}
	}
	if !sawStart || !sawEnd {
		t.Errorf("expected jobStart and jobEnd frames, got %+v", frames)
	}
}

func TestSchedulerUnknownCommandIsSkipped(t *testing.T) {
	s, get := newCapturingScheduler(t)
	s.commands = domain.CommandTable{}
	s.runCommands(context.Background(), []string{"missing"})
	time.Sleep(20 * time.Millisecond)
	if len(get()) != 0 {
		t.Errorf("expected no frames for an unresolvable command, got %+v", get())
	}
}

func TestSchedulerExecuteWithoutShellFails(t *testing.T) {
	old := os.Getenv("SHELL")
	os.Unsetenv("SHELL")
	defer os.Setenv("SHELL", old)

	s, get := newCapturingScheduler(t)
	s.execute(context.Background(), domain.Command{Name: "echo", Cmd: "echo hi"})

	// Frames go through the outbound queue's drainer, so wait for them.
	frames := waitFor(t, get, 4)
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4 (jobStart, text, status, jobEnd)", len(frames))
	}
	if frames[0].Type != protocol.TypeJobStart {
		t.Errorf("frame 0: got %s", frames[0].Type)
	}
	if frames[len(frames)-1].Type != protocol.TypeJobEnd {
		t.Errorf("last frame: got %s", frames[len(frames)-1].Type)
	}
}
