// Package shell reads command lines, runs them as jobs and implements the
// shell builtins.
package shell

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/jsh/core/config"
	"github.com/josephlewis42/jsh/core/job"
	"github.com/josephlewis42/jsh/core/logger"
	"github.com/josephlewis42/jsh/core/pipeline"
	"github.com/josephlewis42/jsh/core/redirect"
	"github.com/josephlewis42/jsh/core/word"
)

const continuationPrompt = "> "

// Session is one run of the shell.
type Session struct {
	Reader LineReader
	Stdout io.Writer
	Stderr io.Writer

	Parser     *Parser
	Chainer    *pipeline.Chainer
	Jobs       *job.Table
	Foreground *job.ForegroundTracker
	Events     *logger.SessionLogger
	Color      *ColorPrinter

	// Prompt is the template shown before each line, see ExpandPrompt.
	Prompt string
	// NotifyDone prints background jobs as they finish.
	NotifyDone bool

	lastStatus job.Status
}

// NewSession creates a session configured by cfg. Commands inherit streams
// unless they redirect them.
func NewSession(cfg *config.Configuration, reader LineReader, streams redirect.Streams, events *logger.SessionLogger) *Session {
	s := &Session{
		Reader: reader,
		Stdout: streams.Stdout,
		Stderr: streams.Stderr,
		Chainer: &pipeline.Chainer{
			Streams:     streams,
			KillOrphans: cfg.KillOrphanedStages,
		},
		Jobs:       job.NewTable(),
		Foreground: &job.ForegroundTracker{},
		Events:     events,
		Color:      &ColorPrinter{Mode: cfg.Color, Out: streams.Stderr},
		Prompt:     cfg.Prompt,
		NotifyDone: cfg.NotifyDone,
	}
	s.Parser = &Parser{Aliases: cfg.Aliases, CmdSubst: s.substitute}
	return s
}

// Run reads and executes lines until the input ends or exit is called, and
// returns the shell's exit code.
func (s *Session) Run() int {
	s.record(logger.EventSessionStart, map[string]interface{}{"interactive": true})

	for {
		s.notify()

		stmts, err := s.read()
		switch {
		case err == io.EOF:
			return s.lastStatus.Code
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case err != nil:
			s.report("", err)
			continue
		}

		if code, exited := s.execute(stmts); exited {
			return code
		}
	}
}

// RunString executes src as if it had been typed. exited is set if src
// called exit.
func (s *Session) RunString(src string) (code int, exited bool) {
	stmts, err := s.Parser.Parse(src)
	if err != nil {
		s.report("", fmt.Errorf("parse error: %w", err))
		return 2, false
	}
	code, exited = s.execute(stmts)
	s.notify()
	return code, exited
}

// read returns the statements of the next complete input, reading more lines
// while a heredoc or quote is left open.
func (s *Session) read() ([]*Statement, error) {
	s.setPrompt(s.prompt())
	src, err := s.Reader.Readline()
	if err != nil {
		return nil, readError(err)
	}

	for {
		stmts, err := s.Parser.Parse(src)
		if err == nil {
			return stmts, nil
		}
		if !IsIncomplete(err) {
			return nil, fmt.Errorf("parse error: %w", err)
		}

		s.setPrompt(continuationPrompt)
		more, rerr := s.Reader.Readline()
		switch {
		case rerr == io.EOF:
			return nil, fmt.Errorf("parse error: %w", err)
		case rerr != nil:
			return nil, readError(rerr)
		}
		src += "\n" + more
	}
}

func readError(err error) error {
	if err == io.EOF || errors.Is(err, readline.ErrInterrupt) {
		return err
	}
	return fmt.Errorf("readline error: %w", err)
}

func (s *Session) setPrompt(prompt string) {
	if p, ok := s.Reader.(prompter); ok {
		p.SetPrompt(prompt)
	}
}

func (s *Session) execute(stmts []*Statement) (int, bool) {
	for _, st := range stmts {
		err := s.runStatement(st)

		var exit *ExitRequest
		switch {
		case errors.As(err, &exit):
			return exit.Code, true
		case err != nil:
			s.lastStatus = job.Status{Code: 1}
			if errors.Is(err, pipeline.ErrCommandNotFound) {
				s.lastStatus.Code = 127
			}
			s.report(st.text(), err)
		}
	}
	return s.lastStatus.Code, false
}

func (st *Statement) text() string {
	if st.Pipeline == nil {
		return ""
	}
	return st.Pipeline.Text
}

func (s *Session) runStatement(st *Statement) error {
	if st.Pipeline == nil {
		return s.assign(st.Assigns)
	}

	if builtin, ok := AllBuiltins[st.Name]; ok && st.Name != "" {
		stage := st.Pipeline.Stages[0]
		if len(stage.Redirects) > 0 && !redirectingBuiltins[st.Name] {
			return fmt.Errorf("%s: %w", st.Name, ErrBuiltinRedirect)
		}
		args, err := word.EvalAll(append([]word.Word{stage.Program}, stage.Args...))
		if err != nil {
			return err
		}

		j, err := builtin.Main(s, st, args)
		switch {
		case err != nil:
			return err
		case j != nil:
			return s.wait(j)
		default:
			s.lastStatus = job.Status{}
			return nil
		}
	}

	j, err := s.Start(st.Pipeline)
	if err != nil || j == nil {
		return err
	}
	return s.wait(j)
}

func (s *Session) assign(assigns []word.Word) error {
	values, err := word.EvalAll(assigns)
	if err != nil {
		return err
	}
	for _, kv := range values {
		key, value, _ := strings.Cut(kv, "=")
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	s.lastStatus = job.Status{}
	return nil
}

// Start spawns p and registers it as a job. Background jobs are announced
// and nil is returned; the foreground job is returned for the caller to wait
// on.
func (s *Session) Start(p *pipeline.Pipeline) (*job.Job, error) {
	proc, err := s.Chainer.Spawn(p, false)
	if err != nil {
		s.Jobs.Adopt(pipeline.Orphans(err)...)
		return nil, err
	}

	if p.Background {
		j := s.Jobs.RegisterBackground(proc.Pid, proc.Members, p.Text)
		fmt.Fprintf(s.Stdout, "Job %%%d (%d) has started.\n", j.ID, j.Pid.Pid)
		s.recordStart(j)
		s.lastStatus = job.Status{}
		return nil, nil
	}

	j, err := s.Jobs.RegisterForeground(proc.Pid, proc.Members, p.Text)
	if err != nil {
		s.Jobs.Adopt(proc.Members...)
		return nil, err
	}
	s.recordStart(j)
	return j, nil
}

// wait blocks on the foreground job with its pid marked for signal
// forwarding.
func (s *Session) wait(j *job.Job) error {
	status, err := s.Foreground.Track(j.Pid, func() (job.Status, error) {
		return s.Jobs.Wait(j)
	})
	if err != nil {
		return fmt.Errorf("wait %%%d: %w", j.ID, err)
	}

	s.lastStatus = status
	if status.Stopped {
		fmt.Fprintf(s.Stderr, "\n%s\n", j)
		return nil
	}
	s.recordFinish(j)
	return nil
}

// substitute runs the statements of $(...) and returns their output.
func (s *Session) substitute(stmts []*Statement) (string, error) {
	var out bytes.Buffer
	for _, st := range stmts {
		if st.Pipeline == nil {
			if err := s.assign(st.Assigns); err != nil {
				return "", err
			}
			continue
		}

		captured, err := s.Chainer.Capture(st.Pipeline)
		if err != nil {
			s.Jobs.Adopt(pipeline.Orphans(err)...)
			return "", err
		}
		s.Jobs.Adopt(captured.Orphans...)
		s.Stderr.Write(captured.Stderr)
		out.Write(captured.Stdout)
		s.lastStatus = captured.Status
	}
	return out.String(), nil
}

// notify reaps finished background jobs.
func (s *Session) notify() {
	for _, j := range s.Jobs.Reap() {
		if j.State == job.Exited {
			s.recordFinish(j)
		}
		if s.NotifyDone {
			fmt.Fprintf(s.Stderr, "[%d] %s %s\n", j.ID, s.Color.state(j), j.Command)
		}
	}
}

// report prints an error and continues.
func (s *Session) report(command string, err error) {
	fmt.Fprintf(s.Stderr, "%s %v\n", s.Color.Sprintf(ColorBoldRed, "jsh:"), err)
	s.record(logger.EventCommandError, map[string]interface{}{
		"command": command,
		"error":   err.Error(),
	})
}

func (s *Session) recordStart(j *job.Job) {
	s.record(logger.EventJobStarted, map[string]interface{}{
		"id":         j.ID,
		"pid":        j.Pid.Pid,
		"command":    j.Command,
		"background": j.Kind == job.Background,
		"stages":     len(j.Members),
	})
}

func (s *Session) recordFinish(j *job.Job) {
	s.record(logger.EventJobFinished, map[string]interface{}{
		"id":      j.ID,
		"command": j.Command,
		"status":  j.Status.String(),
		"code":    j.Status.Code,
	})
}

func (s *Session) record(event string, fields map[string]interface{}) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Record(event, fields); err != nil {
		fmt.Fprintf(s.Stderr, "jsh: event log: %v\n", err)
	}
}
