// Package pudc implements the manager-side CLI: connect, send one
// administrative request, render each reply frame, exit.
package pudc

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/rustyhorde/pud-go/internal/protocol"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// Renderer prints each server reply frame to w in the styled format
// documented for the manager CLI, and reports whether any frame it saw
// counts as a success (used to pick the process exit code).
type Renderer struct {
	w       io.Writer
	success bool
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Success reports whether at least one rendered frame was a success.
func (r *Renderer) Success() bool { return r.success }

// Render dispatches one envelope to the matching frame renderer.
func (r *Renderer) Render(env protocol.EnvelopeRaw) error {
	switch env.Type {
	case protocol.TypeStatus:
		var p protocol.TextPayload
		if err := protocol.Decode(env, &p); err != nil {
			return err
		}
		r.renderStatus(p)

	case protocol.TypeReload:
		var p protocol.ReloadPayload
		if err := protocol.Decode(env, &p); err != nil {
			return err
		}
		r.renderReload(p)

	case protocol.TypeWorkersList:
		var p protocol.WorkersListPayload
		if err := protocol.Decode(env, &p); err != nil {
			return err
		}
		r.renderWorkersList(p)

	case protocol.TypeSchedules:
		var p protocol.SchedulesReplyPayload
		if err := protocol.Decode(env, &p); err != nil {
			return err
		}
		r.renderSchedules(p)

	case protocol.TypeQueryReturn:
		var p protocol.QueryReturnPayload
		if err := protocol.Decode(env, &p); err != nil {
			return err
		}
		r.renderQueryReturn(p)

	default:
		fmt.Fprintln(r.w, dimmedStyle.Render("unrecognized frame: "+env.Type))
	}
	return nil
}

func (r *Renderer) renderStatus(p protocol.TextPayload) {
	fmt.Fprintln(r.w, dimmedStyle.Render(p.Text))
}

func (r *Renderer) renderReload(p protocol.ReloadPayload) {
	if p.Success {
		r.success = true
		fmt.Fprintln(r.w, successStyle.Render("reload: success"))
	} else {
		fmt.Fprintln(r.w, failureStyle.Render("reload: failed"))
	}
}

func (r *Renderer) renderWorkersList(p protocol.WorkersListPayload) {
	r.success = true
	if len(p.Workers) == 0 {
		fmt.Fprintln(r.w, warningStyle.Render("no workers connected"))
		return
	}

	type row struct {
		id   uuid.UUID
		ip   string
		name string
	}
	rows := make([]row, 0, len(p.Workers))
	namePad, ipPad := 0, 0
	for id, w := range p.Workers {
		rows = append(rows, row{id: id, ip: w.IP, name: w.Name})
		if len(w.Name) > namePad {
			namePad = len(w.Name)
		}
		if len(w.IP) > ipPad {
			ipPad = len(w.IP)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	fmt.Fprintln(r.w, titleStyle.Render("workers"))
	for _, row := range rows {
		fmt.Fprintf(r.w, "%-*s - %-*s (%s)\n", namePad, row.name, ipPad, row.ip, row.id)
	}
}

func (r *Renderer) renderSchedules(p protocol.SchedulesReplyPayload) {
	r.success = true
	fmt.Fprintln(r.w, titleStyle.Render("schedules: "+p.Name))
	if len(p.Schedules) == 0 {
		fmt.Fprintln(r.w, warningStyle.Render("  (none)"))
		return
	}
	for _, s := range p.Schedules {
		switch {
		case s.Monotonic != nil:
			fmt.Fprintf(r.w, "  monotonic onBoot=%s onActive=%s cmds=%v\n",
				s.Monotonic.OnBoot, s.Monotonic.OnActive, s.Monotonic.Cmds)
		case s.Realtime != nil:
			fmt.Fprintf(r.w, "  realtime onCalendar=%q persistent=%t cmds=%v\n",
				s.Realtime.OnCalendar, s.Realtime.Persistent, s.Realtime.Cmds)
		}
	}
}

func (r *Renderer) renderQueryReturn(p protocol.QueryReturnPayload) {
	if p.Done && p.StartTime == "" && p.EndTime == "" && len(p.Stdout) == 0 && len(p.Stderr) == 0 {
		r.success = true
		fmt.Fprintln(r.w, dimmedStyle.Render("(no rows)"))
		return
	}
	r.success = true
	fmt.Fprintf(r.w, "%s .. %s (status %d)\n", p.StartTime, p.EndTime, p.Status)
	for _, line := range p.Stdout {
		fmt.Fprintln(r.w, "  out: "+line)
	}
	for _, line := range p.Stderr {
		fmt.Fprintln(r.w, failureStyle.Render("  err: "+line))
	}
}
