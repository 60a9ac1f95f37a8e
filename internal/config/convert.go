package config

import (
	"time"

	"github.com/rustyhorde/pud-go/internal/domain"
)

// DefaultCommands returns the [default.*] table as a domain.CommandTable.
func (c *ServerConfig) DefaultCommands() domain.CommandTable {
	out := make(domain.CommandTable, len(c.Default))
	for name, cmd := range c.Default {
		out[name] = domain.Command{Name: name, Cmd: cmd.Cmd}
	}
	return out
}

// OverrideCommands returns the [overrides.<workerName>.*] table for
// workerName as a domain.CommandTable, or an empty table if absent.
func (c *ServerConfig) OverrideCommands(workerName string) domain.CommandTable {
	table, ok := c.Overrides[workerName]
	if !ok {
		return domain.CommandTable{}
	}
	out := make(domain.CommandTable, len(table))
	for name, cmd := range table {
		out[name] = domain.Command{Name: name, Cmd: cmd.Cmd}
	}
	return out
}

// WorkerSchedules returns the [schedules.<workerName>] schedule list as
// domain.Schedule values, or nil if absent.
func (c *ServerConfig) WorkerSchedules(workerName string) []domain.Schedule {
	ws, ok := c.Schedules[workerName]
	if !ok {
		return nil
	}
	out := make([]domain.Schedule, 0, len(ws.Schedules))
	for _, sc := range ws.Schedules {
		switch {
		case sc.Realtime != nil:
			out = append(out, domain.Schedule{
				Kind: domain.ScheduleRealtime,
				Realtime: &domain.Realtime{
					OnCalendar: sc.Realtime.OnCalendar,
					Persistent: sc.Realtime.Persistent,
					Cmds:       sc.Realtime.Cmds,
				},
			})
		case sc.Monotonic != nil:
			out = append(out, domain.Schedule{
				Kind: domain.ScheduleMonotonic,
				Monotonic: &domain.Monotonic{
					OnBoot:   durationOf(sc.Monotonic.OnBootSec),
					OnActive: durationOf(sc.Monotonic.OnUnitActiveSec),
					Cmds:     sc.Monotonic.Cmds,
				},
			})
		}
	}
	return out
}

func durationOf(d DurationConfig) time.Duration {
	return time.Duration(d.Secs)*time.Second + time.Duration(d.Nanos)
}
