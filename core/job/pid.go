package job

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Status is how a process finished or paused.
type Status struct {
	// Code is the exit code, 128+signal for signalled processes.
	Code int
	// Signal is set when the process was killed or stopped by a signal.
	Signal syscall.Signal
	// Stopped is set when the process was paused rather than finished.
	Stopped bool
}

// Success returns true if the process exited with code 0.
func (s Status) Success() bool {
	return !s.Stopped && s.Code == 0
}

func (s Status) String() string {
	switch {
	case s.Stopped:
		return "Stopped"
	case s.Signal != 0:
		return unix.SignalName(s.Signal)
	case s.Code == 0:
		return "Done"
	default:
		return fmt.Sprintf("Exit %d", s.Code)
	}
}

func statusOf(ws unix.WaitStatus) Status {
	switch {
	case ws.Stopped():
		return Status{Stopped: true, Signal: ws.StopSignal(), Code: 128 + int(ws.StopSignal())}
	case ws.Signaled():
		return Status{Signal: ws.Signal(), Code: 128 + int(ws.Signal())}
	default:
		return Status{Code: ws.ExitStatus()}
	}
}

// ErrNotChild is returned when waiting on a process that isn't a child of
// the shell, or that was already waited on.
var ErrNotChild = errors.New("no such child process")

// Pid is a handle on a launched process. Pgid is non-zero when the process
// runs in its own process group, which then receives its signals.
type Pid struct {
	Pid  int
	Pgid int
}

func (p Pid) String() string {
	return fmt.Sprintf("%d", p.Pid)
}

// Wait blocks until the process exits or is stopped.
func (p Pid) Wait() (Status, error) {
	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(p.Pid, &ws, unix.WUNTRACED, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			return Status{}, fmt.Errorf("wait %d: %w", p.Pid, ErrNotChild)
		case err != nil:
			return Status{}, fmt.Errorf("wait %d: %w", p.Pid, err)
		}
		return statusOf(ws), nil
	}
}

// poll checks whether the process changed state without blocking. done is
// false while the process is still running.
func (p Pid) poll() (status Status, done bool, err error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(p.Pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
	switch {
	case err == unix.EINTR:
		return Status{}, false, nil
	case err == unix.ECHILD:
		return Status{}, false, fmt.Errorf("wait %d: %w", p.Pid, ErrNotChild)
	case err != nil:
		return Status{}, false, fmt.Errorf("wait %d: %w", p.Pid, err)
	case wpid == 0:
		return Status{}, false, nil
	}
	return statusOf(ws), true, nil
}

// Signal delivers sig to the process group if there is one, otherwise to
// the process.
func (p Pid) Signal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}
	target := p.Pid
	if p.Pgid > 0 {
		target = -p.Pgid
	}
	return unix.Kill(target, s)
}

// Restart resumes a stopped process.
func (p Pid) Restart() error {
	if err := p.Signal(unix.SIGCONT); err != nil {
		return fmt.Errorf("continue %d: %w", p.Pid, err)
	}
	return nil
}
