package execbridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gluk-w/boxterm/internal/apperr"
	"github.com/gluk-w/boxterm/internal/engine"
	"github.com/gluk-w/boxterm/internal/history"
)

func newTestBridge(t *testing.T, f *engine.Fake, opts ...Option) (*Bridge, history.Store) {
	t.Helper()
	store, err := history.New(history.StoreTypeFile, history.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return New(f, store, opts...), store
}

func TestRunRecordsTwoMessages(t *testing.T) {
	f := engine.NewFake()
	f.Put("demo", engine.StateRunning)
	b, store := newTestBridge(t, f)
	ctx := context.Background()

	res, err := b.Run(ctx, "demo", "echo hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 || res.Output != "hi" {
		t.Errorf("Run = %+v", res)
	}

	rec, _ := store.Load(ctx, "demo")
	if len(rec.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(rec.Messages))
	}
	if m := rec.Messages[0]; m.Role != history.RoleUser || m.Content != "echo hi" {
		t.Errorf("first = %+v", m)
	}
	if m := rec.Messages[1]; m.Role != history.RoleAssistant || m.Content != "hi" || m.ExitCode == nil || *m.ExitCode != 0 {
		t.Errorf("second = %+v", m)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	f := engine.NewFake()
	b, store := newTestBridge(t, f)
	ctx := context.Background()

	res, err := b.Run(ctx, "demo", "nosuchcmd")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 127 {
		t.Errorf("ExitCode = %d, want 127", res.ExitCode)
	}
	rec, _ := store.Load(ctx, "demo")
	if len(rec.Messages) != 2 || *rec.Messages[1].ExitCode != 127 {
		t.Errorf("messages = %+v", rec.Messages)
	}
}

func TestRunEngineFailure(t *testing.T) {
	f := engine.NewFake()
	f.ExecErr = errors.New("daemon unreachable")
	b, store := newTestBridge(t, f)
	ctx := context.Background()

	_, err := b.Run(ctx, "demo", "ls")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("kind = %v", apperr.KindOf(err))
	}

	rec, _ := store.Load(ctx, "demo")
	if len(rec.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(rec.Messages))
	}
	last := rec.Messages[1]
	if !strings.HasPrefix(last.Content, "error: ") || last.ExitCode == nil || *last.ExitCode != -1 {
		t.Errorf("failure message = %+v", last)
	}
}

func TestRunValidation(t *testing.T) {
	f := engine.NewFake()
	b, store := newTestBridge(t, f)
	ctx := context.Background()

	if _, err := b.Run(ctx, "bad name", "ls"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("bad name err = %v", err)
	}
	if _, err := b.Run(ctx, "demo", "   "); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty command err = %v", err)
	}
	if names, _ := store.ListNames(ctx); len(names) != 0 {
		t.Errorf("validation failures wrote history: %v", names)
	}
	if f.CountCalls("exec") != 0 {
		t.Error("engine called for invalid input")
	}
}

func TestRunSingleWorkerSerializes(t *testing.T) {
	f := engine.NewFake()
	var inFlight, peak int32
	f.ExecFunc = func(string, []string) (engine.ExecResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return engine.ExecResult{Output: "ok"}, nil
	}
	b, _ := newTestBridge(t, f, WithWorkers(1))

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := b.Run(context.Background(), name, "true"); err != nil {
				t.Errorf("Run: %v", err)
			}
		}(name)
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		limit int
		want  string
	}{
		{"plain", "  hello\n", 100, "hello"},
		{"ansi", "\x1b[31mred\x1b[0m text", 100, "red text"},
		{"empty", " \n\t ", 100, NoOutput},
		{"only escapes", "\x1b[2J\x1b[H", 100, NoOutput},
		{"exact", "abcde", 5, "abcde"},
		{"truncated", "abcdefgh", 5, "abcde" + TruncationMarker},
		{"multibyte", "ééééé", 3, "ééé" + TruncationMarker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.raw, tt.limit); got != tt.want {
				t.Errorf("Sanitize(%q, %d) = %q, want %q", tt.raw, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSanitizeDefaultBudget(t *testing.T) {
	got := Sanitize(strings.Repeat("x", DefaultOutputLimit+10), DefaultOutputLimit)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatal("missing truncation marker")
	}
	if n := len(strings.TrimSuffix(got, TruncationMarker)); n != DefaultOutputLimit {
		t.Errorf("kept %d chars, want %d", n, DefaultOutputLimit)
	}
}

func TestRunCompletesAfterCancel(t *testing.T) {
	// The runner honors its context the way os/exec does, so a canceled
	// context would cut the command short.
	slow := func(ctx context.Context, _ string, _ bool, _ ...string) (engine.RunResult, error) {
		select {
		case <-ctx.Done():
			return engine.RunResult{ExitCode: -1}, nil
		case <-time.After(150 * time.Millisecond):
			return engine.RunResult{Stdout: "finished\n", ExitCode: 0}, nil
		}
	}
	store, err := history.New(history.StoreTypeFile, history.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	b := New(engine.NewCLI("docker", slow), store)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := b.Run(ctx, "demo", "sleep 1; echo finished")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 || res.Output != "finished" {
		t.Errorf("Run = %+v, want exit 0 with output", res)
	}

	rec, _ := store.Load(context.Background(), "demo")
	if len(rec.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(rec.Messages))
	}
	if m := rec.Messages[1]; m.Content != "finished" || m.ExitCode == nil || *m.ExitCode != 0 {
		t.Errorf("recorded result = %+v", m)
	}
}
