package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/josephlewis42/jsh/core/job"
	"github.com/josephlewis42/jsh/core/redirect"
	"golang.org/x/sys/unix"
)

// Chainer starts pipelines.
type Chainer struct {
	// Streams are inherited by stages that don't redirect or pipe them.
	Streams redirect.Streams
	// Env is the environment of every stage, nil means the shell's own.
	Env []string
	// KillOrphans terminates stages already running when a later stage of
	// the same pipeline fails to start.
	KillOrphans bool
}

// Process is a started pipeline.
type Process struct {
	// Pid is the terminal stage.
	Pid job.Pid
	// Members are all stages in order, including Pid.
	Members []job.Pid
	// Stdout and Stderr are the read ends of the terminal stage's captured
	// streams, nil when not captured.
	Stdout *os.File
	Stderr *os.File
}

// Others returns every member except the terminal stage.
func (p *Process) Others() []job.Pid {
	return p.Members[:len(p.Members)-1]
}

// Close releases the captured streams.
func (p *Process) Close() {
	for _, f := range []*os.File{p.Stdout, p.Stderr} {
		if f != nil {
			f.Close()
		}
	}
}

// Spawn starts each stage in order, connecting stage i's stdout to stage
// i+1's stdin, and returns without waiting. With capture set the terminal
// stage's stdout is piped back to the caller.
//
// Background pipelines get their own process group led by the first stage.
func (c *Chainer) Spawn(p *Pipeline, capture bool) (*Process, error) {
	if len(p.Stages) == 0 {
		return nil, &SpawnError{Err: ErrEmptyCommand}
	}

	resolver := &redirect.Resolver{Streams: c.Streams}
	proc := &Process{}
	var upstream *os.File
	pgid := 0

	fail := func(stage int, err error) (*Process, error) {
		if upstream != nil {
			upstream.Close()
		}
		if c.KillOrphans {
			for _, m := range proc.Members {
				m.Signal(unix.SIGTERM)
			}
		}
		return nil, &SpawnError{Stage: stage, Err: err, Orphans: proc.Members}
	}

	for i := range p.Stages {
		stage := &p.Stages[i]
		last := i == len(p.Stages)-1

		argv, err := stage.argv()
		if err != nil {
			return fail(i, err)
		}
		if argv[0] == "" {
			return fail(i, ErrEmptyCommand)
		}
		path, err := exec.LookPath(argv[0])
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				err = ErrCommandNotFound
			}
			return fail(i, fmt.Errorf("%s: %w", argv[0], err))
		}

		env, err := stage.environ(c.Env)
		if err != nil {
			return fail(i, err)
		}

		cmd := &exec.Cmd{Path: path, Args: argv, Env: env}
		applied, err := resolver.Apply(cmd, stage.Redirects, redirect.Options{
			Interior:   i > 0,
			PipeStdout: !last,
			Capture:    last && capture,
		})
		if err != nil {
			return fail(i, fmt.Errorf("%s: %w", argv[0], err))
		}

		var devNull *os.File
		if i > 0 {
			if upstream == nil {
				// The previous stage redirected its stdout elsewhere.
				if devNull, err = os.Open(os.DevNull); err != nil {
					applied.Abort()
					return fail(i, err)
				}
				cmd.Stdin = devNull
			} else {
				cmd.Stdin = upstream
			}
		}
		if p.Background {
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
		}

		err = cmd.Start()
		if devNull != nil {
			devNull.Close()
		}
		if err != nil {
			applied.Abort()
			return fail(i, fmt.Errorf("%s: %w", argv[0], err))
		}

		pid := job.Pid{Pid: cmd.Process.Pid}
		if p.Background {
			if pgid == 0 {
				pgid = pid.Pid
			}
			pid.Pgid = pgid
		}
		// The shell waits with wait4 so that stopped jobs are noticed.
		cmd.Process.Release()
		applied.Started()
		proc.Members = append(proc.Members, pid)

		if upstream != nil {
			upstream.Close()
		}
		upstream = applied.Stdout

		if last {
			proc.Pid = pid
			proc.Stdout, proc.Stderr = applied.Stdout, applied.Stderr
		}
	}

	return proc, nil
}

// Captured is the output of a pipeline run to completion.
type Captured struct {
	Stdout []byte
	Stderr []byte
	Status job.Status
	// Orphans are stages other than the terminal one, left for the caller
	// to reap.
	Orphans []job.Pid
}

// Capture runs the pipeline in the foreground and collects the terminal
// stage's output.
func (c *Chainer) Capture(p *Pipeline) (*Captured, error) {
	proc, err := c.Spawn(p, true)
	if err != nil {
		return nil, err
	}
	defer proc.Close()

	var stdout, stderr bytes.Buffer
	drainErr := redirect.Drain(reader(proc.Stdout), &stdout, reader(proc.Stderr), &stderr)

	status, err := proc.Pid.Wait()
	if err != nil {
		return nil, err
	}
	if drainErr != nil {
		return nil, drainErr
	}

	return &Captured{
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Status:  status,
		Orphans: proc.Others(),
	}, nil
}

func reader(f *os.File) io.Reader {
	if f == nil {
		return nil
	}
	return f
}
