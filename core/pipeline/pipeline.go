// Package pipeline spawns chains of external commands connected by pipes.
package pipeline

import (
	"errors"
	"os"

	"github.com/josephlewis42/jsh/core/job"
	"github.com/josephlewis42/jsh/core/redirect"
	"github.com/josephlewis42/jsh/core/word"
)

// Stage is one external command in a pipeline.
type Stage struct {
	Program   word.Word
	Args      []word.Word
	Redirects []redirect.Redirect
	// Env holds KEY=value assignments added to the stage's environment.
	Env []word.Word
}

// argv evaluates the program name and arguments.
func (s *Stage) argv() ([]string, error) {
	if s.Program == nil {
		return nil, ErrEmptyCommand
	}
	return word.EvalAll(append([]word.Word{s.Program}, s.Args...))
}

// environ returns base with the stage's assignments appended.
func (s *Stage) environ(base []string) ([]string, error) {
	if len(s.Env) == 0 {
		return base, nil
	}
	extra, err := word.EvalAll(s.Env)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = os.Environ()
	}
	return append(append([]string(nil), base...), extra...), nil
}

// Pipeline is a chain of stages, each reading the previous one's stdout.
type Pipeline struct {
	Stages []Stage
	// Background is set when the shell shouldn't wait on the pipeline.
	Background bool
	// Text is the source the pipeline was parsed from, used in job listings.
	Text string
}

func (p *Pipeline) String() string {
	return p.Text
}

var (
	// ErrEmptyCommand is returned for stages without a program.
	ErrEmptyCommand = errors.New("empty command")

	// ErrCommandNotFound is returned when a program isn't found in $PATH.
	ErrCommandNotFound = errors.New("command not found")
)

// SpawnError is returned when a stage of a pipeline couldn't be started.
type SpawnError struct {
	// Stage is the index of the stage that failed.
	Stage int
	Err   error
	// Orphans are the stages that were already running when the failure
	// happened. They are signalled if the chainer kills orphans.
	Orphans []job.Pid
}

func (e *SpawnError) Error() string {
	return e.Err.Error()
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Orphans returns the processes left behind by a failed spawn, if any.
func Orphans(err error) []job.Pid {
	var spawnErr *SpawnError
	if errors.As(err, &spawnErr) {
		return spawnErr.Orphans
	}
	return nil
}

var _ error = (*SpawnError)(nil)
