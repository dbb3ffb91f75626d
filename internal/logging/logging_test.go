package logging

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestReadTailAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "boxterm.log")
	Init(path, "debug")
	defer Close()

	for i := 0; i < 5; i++ {
		log.Info().Int("n", i).Msg("line")
	}

	tail, err := ReadTail(2)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	lines := strings.Split(tail, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), tail)
	}
	if !strings.Contains(lines[1], `"n":4`) {
		t.Errorf("last line = %q", lines[1])
	}

	if err := Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	tail, err = ReadTail(10)
	if err != nil {
		t.Fatalf("ReadTail after clear: %v", err)
	}
	if tail != "" {
		t.Errorf("tail after clear = %q", tail)
	}
}

func TestReadTailMissingFile(t *testing.T) {
	mu.Lock()
	logPath = filepath.Join(t.TempDir(), "absent.log")
	mu.Unlock()

	tail, err := ReadTail(10)
	if err != nil || tail != "" {
		t.Fatalf("ReadTail = %q, %v", tail, err)
	}
}
