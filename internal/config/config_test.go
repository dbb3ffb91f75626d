package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOXTERM_PASSWORD", "secret")
	t.Setenv("BOXTERM_DATA_PATH", "/tmp/boxterm")
	Cfg = Settings{}

	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q", Cfg.ListenAddr)
	}
	if Cfg.SessionTTL != 12*time.Hour {
		t.Errorf("SessionTTL = %v", Cfg.SessionTTL)
	}
	if Cfg.MaxTerminalSessions != 20 || Cfg.ExecOutputLimit != 16000 {
		t.Errorf("limits = %d, %d", Cfg.MaxTerminalSessions, Cfg.ExecOutputLimit)
	}
	if got := Cfg.HistoryPath(); got != "/tmp/boxterm/history" {
		t.Errorf("HistoryPath = %q", got)
	}
	if got := Cfg.DatabaseFile(); got != "/tmp/boxterm/boxterm.db" {
		t.Errorf("DatabaseFile = %q", got)
	}
}

func TestLoadRequiresPassword(t *testing.T) {
	t.Setenv("BOXTERM_PASSWORD", "")
	Cfg = Settings{}
	if err := Load(); err == nil {
		t.Fatal("expected error without password")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	s := Settings{Password: "x", HistoryBackend: "mongo", Engine: "cli", TerminalMode: "auto", MaxTerminalSessions: 1, ExecWorkers: 1}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreateSpecProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	profile := `
memory: 512m
cpus: "1.5"
env:
  LANG: C.UTF-8
ports:
  - "8080:80"
`
	if err := os.WriteFile(path, []byte(profile), 0644); err != nil {
		t.Fatal(err)
	}

	s := Settings{Image: "alpine:3", ProfileFile: path}
	spec, err := s.CreateSpec()
	if err != nil {
		t.Fatalf("CreateSpec: %v", err)
	}
	if spec.Image != "alpine:3" {
		t.Errorf("Image = %q, want env value kept", spec.Image)
	}
	if spec.Memory != "512m" || spec.CPUs != "1.5" {
		t.Errorf("limits = %q, %q", spec.Memory, spec.CPUs)
	}
	if spec.Env["LANG"] != "C.UTF-8" || len(spec.Ports) != 1 {
		t.Errorf("spec = %+v", spec)
	}
}

func TestCreateSpecBadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	os.WriteFile(path, []byte("memory: [unclosed"), 0644)
	s := Settings{Image: "alpine:3", ProfileFile: path}
	if _, err := s.CreateSpec(); err == nil {
		t.Fatal("expected parse error")
	}
}
