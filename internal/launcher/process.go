package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Process is a spawned browser.
type Process struct {
	cmd    *exec.Cmd
	binary string

	errs chan error
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

// newProcess wraps a started command and begins reaping it.
func newProcess(cmd *exec.Cmd, binary string, onExit func(p *Process, err error)) *Process {
	p := &Process{
		cmd:    cmd,
		binary: binary,
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		if err != nil {
			p.errs <- fmt.Errorf("browser process %d ended unexpectedly: %w", cmd.Process.Pid, err)
		}
		close(p.errs)
		if onExit != nil {
			onExit(p, err)
		}
		close(p.done)
	}()

	return p
}

// Pid returns the OS process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Binary returns the executable that was spawned.
func (p *Process) Binary() string {
	return p.binary
}

// Errors delivers at most one error, if the process exits unsuccessfully,
// and is closed when the process exits.
func (p *Process) Errors() <-chan error {
	return p.errs
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and returns its exit error, if any.
func (p *Process) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Terminate kills the process and waits for it to be reaped. It is a
// no-op for a process that has already exited.
func (p *Process) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing browser process %d: %w", p.Pid(), err)
	}
	<-p.done
	return nil
}
