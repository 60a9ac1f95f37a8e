// Package pudw implements the worker side of pud: a local scheduler
// that installs monotonic and realtime schedules against a command
// table, an executor that runs each command's shell invocation and
// streams its output, and a reconnecting client that carries both over
// the wire to the server.
package pudw

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rustyhorde/pud-go/internal/calendar"
	"github.com/rustyhorde/pud-go/internal/domain"
	"github.com/rustyhorde/pud-go/internal/protocol"
)

// Scheduler holds the worker's current command table and installed
// schedules, and runs commands at the moments those schedules dictate.
// Cancellation of a previous install is realized as a cooperative
// context cancellation token rather than the mutex+condvar pair of the
// reference implementation: exec.CommandContext already kills the
// running child when the token fires, and tick loops select on Done().
type Scheduler struct {
	mu        sync.Mutex
	commands  domain.CommandTable
	schedules []domain.Schedule
	cancel    context.CancelFunc

	queue *OutboundQueue
}

// NewScheduler creates a scheduler that hands serialized outbound
// frames to send (normally a function writing to the worker's
// websocket connection).
func NewScheduler(send func([]byte)) *Scheduler {
	return &Scheduler{queue: NewOutboundQueue(send)}
}

// CurrentSchedules returns the schedule list installed by the most
// recent Initialize, for reporting back via a Schedules request.
func (s *Scheduler) CurrentSchedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Schedule, len(s.schedules))
	copy(out, s.schedules)
	return out
}

// Initialize tears down any previously installed schedules, replaces
// the command table, and arms the new schedule list.
func (s *Scheduler) Initialize(commands domain.CommandTable, schedules []domain.Schedule) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.commands = commands
	s.schedules = schedules
	s.mu.Unlock()

	var realtime []domain.Realtime
	var matchers []calendar.Matcher
	for _, sched := range schedules {
		switch sched.Kind {
		case domain.ScheduleMonotonic:
			if sched.Monotonic == nil {
				continue
			}
			go s.runMonotonic(ctx, *sched.Monotonic)
		case domain.ScheduleRealtime:
			if sched.Realtime == nil {
				continue
			}
			m, err := calendar.Parse(sched.Realtime.OnCalendar)
			if err != nil {
				log.Printf("pudw: invalid calendar %q: %v", sched.Realtime.OnCalendar, err)
				continue
			}
			matchers = append(matchers, m)
			realtime = append(realtime, *sched.Realtime)
		}
	}
	if len(matchers) > 0 {
		go s.runRealtime(ctx, matchers, realtime)
	}
}

func (s *Scheduler) runMonotonic(ctx context.Context, m domain.Monotonic) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.OnBoot):
	}
	s.runCommands(ctx, m.Cmds)

	if m.OnActive <= 0 {
		return
	}
	ticker := time.NewTicker(m.OnActive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCommands(ctx, m.Cmds)
		}
	}
}

func (s *Scheduler) runRealtime(ctx context.Context, matchers []calendar.Matcher, scheds []domain.Realtime) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for i, m := range matchers {
				if m.Matches(now) {
					go s.runCommands(ctx, scheds[i].Cmds)
				}
			}
		}
	}
}

// runCommands runs names sequentially against the current command
// table, skipping and logging any name that no longer resolves.
func (s *Scheduler) runCommands(ctx context.Context, names []string) {
	s.mu.Lock()
	commands := s.commands
	s.mu.Unlock()

	for _, name := range names {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cmd, ok := commands[name]
		if !ok {
			log.Printf("pudw: command %q not found in current table, skipping", name)
			continue
		}
		s.execute(ctx, cmd)
	}
}

func (s *Scheduler) emit(msgType string, payload any) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		log.Printf("pudw: marshaling %s: %v", msgType, err)
		return
	}
	s.queue.Push(data)
}

// execute forks $SHELL -c cmd.Cmd, streaming its stdout/stderr line by
// line and bracketing the run with JobStart/Status/JobEnd frames.
func (s *Scheduler) execute(ctx context.Context, cmd domain.Command) {
	jobID := uuid.New()
	s.emit(protocol.TypeJobStart, protocol.JobStartPayload{ID: jobID, Name: cmd.Name})

	shell := os.Getenv("SHELL")
	if shell == "" {
		s.emit(protocol.TypeText, protocol.TextPayload{Text: "SHELL is not set, cannot run " + cmd.Name})
		s.emit(protocol.TypeStatus, protocol.StatusPayload{ID: jobID, Code: -1})
		s.emit(protocol.TypeJobEnd, protocol.JobEndPayload{ID: jobID, Name: cmd.Name})
		return
	}

	execCmd := exec.CommandContext(ctx, shell, "-c", cmd.Cmd)
	stdout, err := execCmd.StdoutPipe()
	if err != nil {
		s.failJob(jobID, cmd.Name, err)
		return
	}
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		s.failJob(jobID, cmd.Name, err)
		return
	}

	if err := execCmd.Start(); err != nil {
		s.failJob(jobID, cmd.Name, err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go s.streamLines(stdout, jobID, protocol.TypeStdout, &wg)
	go s.streamLines(stderr, jobID, protocol.TypeStderr, &wg)
	wg.Wait()

	code := 0
	if waitErr := execCmd.Wait(); waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.emit(protocol.TypeStatus, protocol.StatusPayload{ID: jobID, Code: int32(code)})
	s.emit(protocol.TypeJobEnd, protocol.JobEndPayload{ID: jobID, Name: cmd.Name})
}

func (s *Scheduler) failJob(jobID uuid.UUID, name string, err error) {
	s.emit(protocol.TypeText, protocol.TextPayload{Text: "job " + name + " failed to start: " + err.Error()})
	s.emit(protocol.TypeStatus, protocol.StatusPayload{ID: jobID, Code: -1})
	s.emit(protocol.TypeJobEnd, protocol.JobEndPayload{ID: jobID, Name: name})
}

func (s *Scheduler) streamLines(r io.Reader, jobID uuid.UUID, msgType string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.emit(msgType, protocol.LinePayload{ID: jobID, Line: scanner.Text()})
	}
}
