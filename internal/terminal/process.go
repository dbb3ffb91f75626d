package terminal

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

var errResizeUnsupported = errors.New("resize not supported without a host pty")

// Process is a running bridging subprocess.
type Process interface {
	// Read returns combined stdout and stderr. io.EOF once output ends.
	io.Reader
	io.Writer
	// Resize changes the live terminal size where the strategy allows it.
	Resize(cols, rows int) error
	Signal(sig os.Signal) error
	Kill() error
	// Wait blocks until the process exits. It must be called once.
	Wait() error
	// Close releases the process's file descriptors.
	Close() error
}

// ptyProcess runs the command on a host pseudo-terminal.
type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

func startPTY(cmd *exec.Cmd, cols, rows int) (*ptyProcess, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, err
	}
	return &ptyProcess{cmd: cmd, ptmx: ptmx}, nil
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	n, err := p.ptmx.Read(b)
	// Linux reports EIO on the master once the slave side is gone.
	if err != nil && errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

func (p *ptyProcess) Write(b []byte) (int, error) { return p.ptmx.Write(b) }

func (p *ptyProcess) Resize(cols, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (p *ptyProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *ptyProcess) Kill() error                { return p.cmd.Process.Kill() }
func (p *ptyProcess) Wait() error                { return p.cmd.Wait() }
func (p *ptyProcess) Close() error               { return p.ptmx.Close() }

// pipeProcess runs the command with plain pipes. Output from stdout and
// stderr shares one pipe so their relative order is kept.
type pipeProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *os.File
}

func startPipe(cmd *exec.Cmd) (*pipeProcess, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = w
	stdin, err := cmd.StdinPipe()
	if err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	w.Close()
	return &pipeProcess{cmd: cmd, stdin: stdin, out: r}, nil
}

func (p *pipeProcess) Read(b []byte) (int, error)  { return p.out.Read(b) }
func (p *pipeProcess) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p *pipeProcess) Resize(int, int) error       { return errResizeUnsupported }
func (p *pipeProcess) Signal(sig os.Signal) error  { return p.cmd.Process.Signal(sig) }
func (p *pipeProcess) Kill() error                 { return p.cmd.Process.Kill() }
func (p *pipeProcess) Wait() error                 { return p.cmd.Wait() }

func (p *pipeProcess) Close() error {
	p.stdin.Close()
	return p.out.Close()
}
