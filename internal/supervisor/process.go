package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var ErrEmptyCommand = errors.New("supervisor: empty command")

// Launcher starts participant processes.
type Launcher interface {
	Launch(id string, argv []string, env []string) (*Process, error)
}

// ExecLauncher starts processes on the local host. Nil writers discard the
// child's output.
type ExecLauncher struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (l ExecLauncher) Launch(id string, argv []string, env []string) (*Process, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCommand, id)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start %s: %w", id, err)
	}
	p := &Process{
		ID:     id,
		Argv:   append([]string(nil), argv...),
		cmd:    cmd,
		exited: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// Process is one launched participant. The exit status is collected in the
// background so liveness checks never block.
type Process struct {
	ID   string
	Argv []string

	cmd      *exec.Cmd
	exited   chan struct{}
	exitCode int
	waitErr  error
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	p.exitCode = exitCode(err)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = err
	}
	close(p.exited)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return 1
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Alive reports whether the process has not yet exited.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Exited is closed once the process has exited and been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Wait blocks until the process exits or ctx is done. A non-zero exit is not
// an error.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.exited:
		return p.exitCode, p.waitErr
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Terminate sends SIGTERM, waits up to grace, then sends SIGKILL.
func (p *Process) Terminate(grace time.Duration) error {
	if !p.Alive() {
		return nil
	}
	if err := p.cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("supervisor: terminate %s: %w", p.ID, err)
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.exited:
		return nil
	case <-timer.C:
	}
	if err := p.cmd.Process.Signal(unix.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("supervisor: kill %s: %w", p.ID, err)
	}
	<-p.exited
	return nil
}
