package shell

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/josephlewis42/jsh/core/job"
	"github.com/josephlewis42/jsh/core/pipeline"
	"github.com/josephlewis42/jsh/core/word"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

// redirectingBuiltins may be given redirects, the rest run in the shell
// process and refuse them.
var redirectingBuiltins = map[string]bool{"cmd": true}

// ErrBuiltinRedirect is returned when redirects are given to a builtin that
// runs inside the shell.
var ErrBuiltinRedirect = errors.New("builtins don't support redirection")

// ShellBuiltin is a command run by the shell itself. args includes the
// command name. A returned job is waited on in the foreground.
type ShellBuiltin interface {
	Main(s *Session, st *Statement, args []string) (*job.Job, error)
}

type ShellBuiltinFunc func(s *Session, st *Statement, args []string) (*job.Job, error)

func (f ShellBuiltinFunc) Main(s *Session, st *Statement, args []string) (*job.Job, error) {
	return f(s, st, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// ExitRequest is returned by the exit builtin to end the session.
type ExitRequest struct {
	Code int
}

func (e *ExitRequest) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// Exit quits the shell
func Exit(s *Session, st *Statement, args []string) (*job.Job, error) {
	cmd := &SimpleCommand{
		Use:   "exit [n]",
		Short: "Exit the shell with status n, or 0.",
	}

	return cmd.Run(args, s.Stdout, func(args []string) (*job.Job, error) {
		switch len(args) {
		case 0:
			return nil, &ExitRequest{}
		case 1:
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("exit: %s: numeric argument required", args[0])
			}
			return nil, &ExitRequest{Code: code}
		default:
			return nil, errors.New("exit: too many arguments")
		}
	})
}

// Cd is the cd shell builtin
func Cd(s *Session, st *Statement, args []string) (*job.Job, error) {
	cmd := &SimpleCommand{
		Use:   "cd [dir]",
		Short: "Change the working directory to dir, $HOME by default. - is the previous directory.",
	}

	return cmd.Run(args, s.Stdout, func(args []string) (*job.Job, error) {
		var dir string
		switch len(args) {
		case 0:
			dir = os.Getenv("HOME")
		case 1:
			dir = args[0]
		default:
			return nil, errors.New("cd: too many arguments")
		}

		printDir := false
		if dir == "-" {
			dir = os.Getenv("OLDPWD")
			if dir == "" {
				return nil, errors.New("cd: OLDPWD not set")
			}
			printDir = true
		}
		if dir == "" {
			return nil, errors.New("cd: HOME not set")
		}

		old, _ := os.Getwd()
		if err := os.Chdir(dir); err != nil {
			return nil, fmt.Errorf("cd: %w", err)
		}
		wd, err := os.Getwd()
		if err != nil {
			wd = dir
		}
		os.Setenv("OLDPWD", old)
		os.Setenv("PWD", wd)
		if printDir {
			fmt.Fprintln(s.Stdout, wd)
		}
		return nil, nil
	})
}

// Fg resumes a job and waits on it.
func Fg(s *Session, st *Statement, args []string) (*job.Job, error) {
	cmd := &SimpleCommand{
		Use:   "fg [%job]",
		Short: "Move a job to the foreground, the most recent one by default.",
	}

	return cmd.Run(args, s.Stdout, func(args []string) (*job.Job, error) {
		var id int
		switch len(args) {
		case 0:
			last, err := s.Jobs.Last()
			if err != nil {
				return nil, fmt.Errorf("fg: %w", err)
			}
			id = last.ID
		case 1:
			n, err := strconv.Atoi(strings.TrimPrefix(args[0], "%"))
			if err != nil {
				return nil, fmt.Errorf("fg: %s: %w", args[0], job.ErrNoSuchJob)
			}
			id = n
		default:
			return nil, errors.New("fg: too many arguments")
		}

		j, err := s.Jobs.Restart(id)
		if err != nil {
			return nil, fmt.Errorf("fg: %w", err)
		}
		fmt.Fprintln(s.Stdout, j.Command)
		return j, nil
	})
}

// Cmd runs an external program, skipping alias and builtin lookup.
func Cmd(s *Session, st *Statement, args []string) (*job.Job, error) {
	cmd := &SimpleCommand{
		Use:   "cmd NAME [ARG...]",
		Short: "Run the program NAME with the statement's redirects.",
	}

	return cmd.Run(args, s.Stdout, func(args []string) (*job.Job, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("cmd: %w", pipeline.ErrEmptyCommand)
		}

		stage := st.Pipeline.Stages[0]
		p := &pipeline.Pipeline{
			Stages: []pipeline.Stage{{
				Program:   word.Literal(args[0]),
				Args:      word.Literals(args[1:]...),
				Redirects: stage.Redirects,
				Env:       stage.Env,
			}},
			Background: st.Pipeline.Background,
			Text:       st.Pipeline.Text,
		}
		return s.Start(p)
	})
}

// Jobs lists the session's jobs.
func Jobs(s *Session, st *Statement, args []string) (*job.Job, error) {
	cmd := &SimpleCommand{
		Use:   "jobs [-l]",
		Short: "List active jobs.",
	}
	long := cmd.Flags().Bool('l', "list process ids")

	return cmd.Run(args, s.Stdout, func(args []string) (*job.Job, error) {
		for _, j := range s.Jobs.List() {
			if *long {
				fmt.Fprintf(s.Stdout, "[%d] %d %s %s\n", j.ID, j.Pid.Pid, s.Color.state(j), j.Command)
			} else {
				fmt.Fprintf(s.Stdout, "[%d] %s %s\n", j.ID, s.Color.state(j), j.Command)
			}
		}
		return nil, nil
	})
}

// Help lists the builtins or shows help for one of them.
func Help(s *Session, st *Statement, args []string) (*job.Job, error) {
	cmd := &SimpleCommand{
		Use:   "help [name]",
		Short: "Display information about builtin commands.",
	}

	return cmd.Run(args, s.Stdout, func(args []string) (*job.Job, error) {
		if len(args) > 0 {
			builtin, ok := AllBuiltins[args[0]]
			if !ok {
				return nil, fmt.Errorf("help: no help topics match %q", args[0])
			}
			return builtin.Main(s, st, []string{args[0], "--help"})
		}

		w := s.Stdout
		fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
		fmt.Fprintln(w, "Type `help name' to find out more about the function `name'.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Builtins:")
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Join(BuiltinNames(), "\n"))
		return nil, nil
	})
}

// BuiltinNames returns the registered builtins in alphabetical order.
func BuiltinNames() []string {
	var names []string
	for k := range AllBuiltins {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func init() {
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["fg"] = ShellBuiltinFunc(Fg)
	AllBuiltins["cmd"] = ShellBuiltinFunc(Cmd)
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
}
