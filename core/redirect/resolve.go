package redirect

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Options describe where the process sits in its pipeline.
type Options struct {
	// Interior is set when stdin is wired to the previous stage by the caller.
	Interior bool
	// PipeStdout sends stdout to a new pipe unless it is redirected.
	PipeStdout bool
	// Capture means the caller wants the output as text. Stdout is piped like
	// PipeStdout and, when only stdout is redirected, stderr is piped too.
	Capture bool
}

type destKind int

const (
	inherit destKind = iota
	file
	document
	outPipe
	errPipe
	// shared is the inherited file of another stream, set by n>&m.
	shared
)

type dest struct {
	kind destKind
	path string
	flag int
	from Stream
}

func (d dest) key() string {
	return fmt.Sprintf("%d:%s", d.flag, d.path)
}

// Resolver applies redirects to processes.
type Resolver struct {
	Streams Streams
}

// Applied holds the descriptors set up for a single process.
type Applied struct {
	// Heredoc is the content written to stdin once the process starts.
	Heredoc []byte
	// Stdout is the parent end of a piped stdout, nil if stdout isn't piped.
	Stdout *os.File
	// Stderr is the parent end of a piped stderr, nil if stderr isn't piped.
	Stderr *os.File

	heredocW  *os.File
	childEnds []io.Closer
	written   chan error
}

// Apply resolves redirects left to right and configures cmd's standard
// streams. When the command is interior, cmd.Stdin is left for the caller.
//
// Files named by more than one stream with the same mode are opened once and
// shared so both streams write through one descriptor.
func (r *Resolver) Apply(cmd *exec.Cmd, redirects []Redirect, opts Options) (*Applied, error) {
	var dests [3]dest
	var explicit [3]bool
	if opts.PipeStdout || opts.Capture {
		dests[Stdout] = dest{kind: outPipe}
	}

	var heredoc bytes.Buffer
	for _, rd := range redirects {
		if err := checkRedirect(rd, opts); err != nil {
			return nil, err
		}

		switch rd.Op {
		case Duplicate:
			dests[rd.Stream] = dests[rd.To]
			if dests[rd.To].kind == inherit {
				dests[rd.Stream] = dest{kind: shared, from: rd.To}
			}
		case Heredoc:
			content, err := rd.Target.Eval()
			if err != nil {
				return nil, err
			}
			if dests[Stdin].kind != document {
				heredoc.Reset()
			}
			heredoc.WriteString(content)
			dests[Stdin] = dest{kind: document}
		default:
			path, err := rd.Target.Eval()
			if err != nil {
				return nil, err
			}
			if path == "" {
				return nil, fmt.Errorf("%s: ambiguous redirect", rd)
			}
			if !filepath.IsAbs(path) && cmd.Dir != "" {
				path = filepath.Join(cmd.Dir, path)
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			dests[rd.Stream] = dest{kind: file, path: path, flag: openFlag(rd.Op)}
		}
		explicit[rd.Stream] = true
	}

	if opts.Capture && explicit[Stdout] && !explicit[Stderr] {
		dests[Stderr] = dest{kind: errPipe}
	}

	a := &Applied{}
	if err := a.materialize(cmd, r.Streams, dests, opts.Interior); err != nil {
		a.Abort()
		return nil, err
	}
	if dests[Stdin].kind == document {
		a.Heredoc = heredoc.Bytes()
	}
	return a, nil
}

func checkRedirect(rd Redirect, opts Options) error {
	switch rd.Op {
	case ReadFile, Heredoc:
		if rd.Stream != Stdin {
			return fmt.Errorf("%s: %w", rd, ErrUnsupported)
		}
		if opts.Interior {
			return ErrInteriorInput
		}
	case WriteFile, AppendFile:
		if rd.Stream != Stdout && rd.Stream != Stderr {
			return fmt.Errorf("%s: %w", rd, ErrUnsupported)
		}
	case Duplicate:
		if (rd.Stream != Stdout && rd.Stream != Stderr) || (rd.To != Stdout && rd.To != Stderr) {
			return fmt.Errorf("%s: %w", rd, ErrUnsupported)
		}
	default:
		return fmt.Errorf("%s: %w", rd, ErrUnsupported)
	}
	return nil
}

func openFlag(op Op) int {
	switch op {
	case WriteFile:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case AppendFile:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return os.O_RDONLY
	}
}

func (a *Applied) materialize(cmd *exec.Cmd, inherited Streams, dests [3]dest, interior bool) error {
	opened := make(map[string]*os.File)
	var outW, errW *os.File

	resolve := func(d dest, fallback *os.File) (*os.File, error) {
		switch d.kind {
		case file:
			if f, ok := opened[d.key()]; ok {
				return f, nil
			}
			f, err := os.OpenFile(d.path, d.flag, 0o644)
			if err != nil {
				return nil, err
			}
			opened[d.key()] = f
			a.childEnds = append(a.childEnds, f)
			return f, nil
		case outPipe:
			if outW == nil {
				pr, pw, err := os.Pipe()
				if err != nil {
					return nil, err
				}
				a.Stdout, outW = pr, pw
				a.childEnds = append(a.childEnds, pw)
			}
			return outW, nil
		case errPipe:
			if errW == nil {
				pr, pw, err := os.Pipe()
				if err != nil {
					return nil, err
				}
				a.Stderr, errW = pr, pw
				a.childEnds = append(a.childEnds, pw)
			}
			return errW, nil
		case document:
			pr, pw, err := os.Pipe()
			if err != nil {
				return nil, err
			}
			a.heredocW = pw
			a.childEnds = append(a.childEnds, pr)
			return pr, nil
		case shared:
			return inherited.stream(d.from), nil
		default:
			return fallback, nil
		}
	}

	if !interior {
		f, err := resolve(dests[Stdin], inherited.Stdin)
		if err != nil {
			return err
		}
		if f != nil {
			cmd.Stdin = f
		}
	}

	stdout, err := resolve(dests[Stdout], inherited.Stdout)
	if err != nil {
		return err
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}

	stderr, err := resolve(dests[Stderr], inherited.Stderr)
	if err != nil {
		return err
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}
	return nil
}

// Started releases the parent's copies of the child's descriptors and
// delivers any heredoc content. It must be called once the process started.
func (a *Applied) Started() {
	a.closeChildEnds()
	if a.heredocW == nil {
		return
	}

	// Pipe writes block once the buffer is full, so the content is written
	// from its own goroutine.
	a.written = make(chan error, 1)
	go func(w *os.File, content []byte) {
		_, err := w.Write(content)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		a.written <- err
	}(a.heredocW, a.Heredoc)
	a.heredocW = nil
}

// HeredocWritten returns a channel that receives the result of the heredoc
// write, or nil if there was no heredoc or the process hasn't started.
func (a *Applied) HeredocWritten() <-chan error {
	return a.written
}

// Abort closes every descriptor set up for a process that failed to start.
func (a *Applied) Abort() {
	a.closeChildEnds()
	for _, f := range []*os.File{a.heredocW, a.Stdout, a.Stderr} {
		if f != nil {
			f.Close()
		}
	}
	a.heredocW, a.Stdout, a.Stderr = nil, nil, nil
}

func (a *Applied) closeChildEnds() {
	for _, c := range a.childEnds {
		c.Close()
	}
	a.childEnds = nil
}

// Drain copies piped output to its destinations until both streams reach
// end of file. The stderr copier starts first and both run concurrently, so a
// child blocked on a full stderr pipe never stalls the stdout reader.
// Nil readers are skipped.
func Drain(stdout io.Reader, stdoutDst io.Writer, stderr io.Reader, stderrDst io.Writer) error {
	var g errgroup.Group
	if stderr != nil {
		g.Go(func() error {
			_, err := io.Copy(stderrDst, stderr)
			return err
		})
	}
	if stdout != nil {
		g.Go(func() error {
			_, err := io.Copy(stdoutDst, stdout)
			return err
		})
	}
	return g.Wait()
}
