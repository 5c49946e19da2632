package shell

import (
	"fmt"
	"io"

	getopt "github.com/pborman/getopt/v2"
	"github.com/josephlewis42/jsh/core/job"
)

// SimpleCommand parses a builtin's flags and prints its help.
type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string

	flags    *getopt.Set
	showHelp *bool
}

// Flags gets the command's flag set.
func (c *SimpleCommand) Flags() *getopt.Set {
	if c.flags == nil {
		c.flags = getopt.New()
	}

	return c.flags
}

// PrintHelp writes help for the command to the given writer.
func (c *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, c.Use)
	fmt.Fprintln(w, c.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	c.Flags().PrintOptions(w)
}

// Run parses args, including the command name, and calls callback with the
// remaining positional arguments. --help prints the help to stdout instead.
func (c *SimpleCommand) Run(args []string, stdout io.Writer, callback func(args []string) (*job.Job, error)) (*job.Job, error) {
	opts := c.Flags()
	if c.showHelp == nil {
		c.showHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	if err := opts.Getopt(args, nil); err != nil {
		return nil, &UsageError{Use: c.Use, Err: err}
	}

	if *c.showHelp {
		c.PrintHelp(stdout)
		return nil, nil
	}

	return callback(opts.Args())
}

// UsageError is returned when a builtin is called with bad arguments.
type UsageError struct {
	Use string
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%v (usage: %s)", e.Err, e.Use)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}
