package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyhorde/pud-go/internal/domain"
)

func TestLoadServerConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Actix.Port != 8443 {
		t.Errorf("got port %d, want 8443", cfg.Actix.Port)
	}
}

func TestLoadServerConfigOverridesDefaultCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "puds.toml")
	content := `
[default.ls]
cmd = "ls /"

[overrides.alpha.ls]
cmd = "ls /tmp"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	defaults := cfg.DefaultCommands()
	overrides := cfg.OverrideCommands("alpha")
	if defaults["ls"].Cmd != "ls /" {
		t.Errorf("got default ls=%q", defaults["ls"].Cmd)
	}
	if overrides["ls"].Cmd != "ls /tmp" {
		t.Errorf("got override ls=%q", overrides["ls"].Cmd)
	}

	merged := domain.MergeOverrides(defaults, overrides)
	if merged["ls"].Cmd != "ls /tmp" {
		t.Errorf("override should win, got %q", merged["ls"].Cmd)
	}

	beta := cfg.OverrideCommands("beta")
	mergedBeta := domain.MergeOverrides(defaults, beta)
	if mergedBeta["ls"].Cmd != "ls /" {
		t.Errorf("absent override should yield defaults verbatim, got %q", mergedBeta["ls"].Cmd)
	}
}

func TestWorkerSchedulesParsesMonotonicAndRealtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "puds.toml")
	content := `
[[schedules.alpha.schedules]]
[schedules.alpha.schedules.Realtime]
on_calendar = "*-*-* *:*:00"
persistent = false
cmds = ["t"]

[[schedules.alpha.schedules]]
[schedules.alpha.schedules.Monotonic]
on_boot_sec = { secs = 1, nanos = 0 }
on_unit_active_sec = { secs = 2, nanos = 0 }
cmds = ["echo"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	scheds := cfg.WorkerSchedules("alpha")
	if len(scheds) != 2 {
		t.Fatalf("got %d schedules, want 2", len(scheds))
	}
	if scheds[0].Kind != domain.ScheduleRealtime || scheds[0].Realtime.OnCalendar != "*-*-* *:*:00" {
		t.Errorf("unexpected realtime schedule: %+v", scheds[0])
	}
	if scheds[1].Kind != domain.ScheduleMonotonic || scheds[1].Monotonic.OnBoot.Seconds() != 1 {
		t.Errorf("unexpected monotonic schedule: %+v", scheds[1])
	}
}
