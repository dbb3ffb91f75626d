package terminal

import (
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ErrClosed is returned when writing to a closed session.
var ErrClosed = errors.New("terminal session closed")

const outputBuffer = 64

// Session is one live terminal bridged to a container.
type Session struct {
	ID            string
	ContainerName string
	Mode          Mode
	CreatedAt     time.Time

	proc    Process
	manager *Manager

	mu       sync.Mutex
	cols     int
	rows     int
	exitCode int
	exitOK   bool

	output  chan []byte
	pumped  chan struct{}
	exited  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	closing atomic.Bool
	writeMu sync.Mutex
}

// Info is the listing view of a session.
type Info struct {
	ID            string    `json:"id"`
	ContainerName string    `json:"containerName"`
	Cols          int       `json:"cols"`
	Rows          int       `json:"rows"`
	Mode          Mode      `json:"mode"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *Session) Info() Info {
	cols, rows := s.Size()
	return Info{
		ID:            s.ID,
		ContainerName: s.ContainerName,
		Cols:          cols,
		Rows:          rows,
		Mode:          s.Mode,
		CreatedAt:     s.CreatedAt,
	}
}

func (s *Session) start() {
	go s.pump()
	go s.wait()
}

// pump forwards subprocess output in order, never splitting a UTF-8
// sequence across chunks.
func (s *Session) pump() {
	defer close(s.pumped)
	defer close(s.output)

	buf := make([]byte, 32*1024)
	var carry []byte
	for {
		n, err := s.proc.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			complete, rest := splitUTF8(data)
			carry = append([]byte(nil), rest...)
			if len(complete) > 0 && !s.send(append([]byte(nil), complete...)) {
				break
			}
		}
		if err != nil {
			break
		}
	}
	if len(carry) > 0 {
		s.send(carry)
	}
	<-s.exited
}

func (s *Session) send(chunk []byte) bool {
	select {
	case s.output <- chunk:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Session) wait() {
	err := s.proc.Wait()

	s.mu.Lock()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		s.exitCode, s.exitOK = 0, true
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		s.exitCode, s.exitOK = exitErr.ExitCode(), true
	}
	s.mu.Unlock()
	close(s.exited)

	s.manager.logger.Info().
		Str("session", s.ID).
		Str("container", s.ContainerName).
		Err(err).
		Msg("terminal process exited")

	// Give the reader a chance to drain before tearing down.
	select {
	case <-s.pumped:
	case <-time.After(s.manager.grace):
	}
	s.Close()
}

// Output delivers subprocess output chunks. It is closed once the output
// has ended and the process has exited.
func (s *Session) Output() <-chan []byte { return s.output }

// Done is closed when Close has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// ExitCode reports the exit status once the process exited on its own.
func (s *Session) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exitOK
}

func (s *Session) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Write forwards input to the subprocess.
func (s *Session) Write(data []byte) error {
	if s.closing.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.proc.Write(data)
	return err
}

// Resize records the clamped geometry and applies it to the live process
// when the strategy supports that. It returns the recorded size.
func (s *Session) Resize(cols, rows int) (int, int) {
	cols, rows = Clamp(cols, rows)
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()

	if err := s.proc.Resize(cols, rows); err != nil && !errors.Is(err, errResizeUnsupported) {
		s.manager.logger.Debug().Err(err).Str("session", s.ID).Msg("resize failed")
	}
	return cols, rows
}

// Close ends the session. It is safe to call more than once and from any
// goroutine; only the first call does the work. A running process gets
// SIGTERM, then SIGKILL after the grace period.
func (s *Session) Close() {
	if !s.closing.CompareAndSwap(false, true) {
		<-s.done
		return
	}
	defer close(s.done)

	s.manager.remove(s)

	select {
	case <-s.exited:
	default:
		s.proc.Signal(syscall.SIGTERM)
		select {
		case <-s.exited:
		case <-time.After(s.manager.grace):
			s.manager.logger.Warn().Str("session", s.ID).Msg("terminal process ignored SIGTERM, killing")
			s.proc.Kill()
			select {
			case <-s.exited:
			case <-time.After(s.manager.grace):
			}
		}
	}

	close(s.stop)
	s.proc.Close()
}
