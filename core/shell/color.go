package shell

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/josephlewis42/jsh/core/config"
	"github.com/josephlewis42/jsh/core/job"
	"golang.org/x/term"
)

var (
	ColorBoldGreen  = color.New(color.FgGreen, color.Bold)
	ColorBoldYellow = color.New(color.FgYellow, color.Bold)
	ColorBoldRed    = color.New(color.FgRed, color.Bold)
)

// ColorPrinter colors text depending on the configured mode and whether the
// output is a terminal.
type ColorPrinter struct {
	// Mode is one of always, auto or never.
	Mode string
	// Out is checked for a terminal in auto mode.
	Out io.Writer
}

func (c *ColorPrinter) ShouldColor() bool {
	if c == nil {
		return false
	}
	switch c.Mode {
	case config.ColorNever:
		return false
	case config.ColorAlways:
		return true
	default:
		f, ok := c.Out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
}

func (c *ColorPrinter) Sprintf(color *color.Color, format string, a ...interface{}) string {
	if c.ShouldColor() {
		// fatih/color disables itself when its own stdout isn't a terminal.
		color.EnableColor()
		return color.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}

// state colors a job state for listings.
func (c *ColorPrinter) state(j *job.Job) string {
	switch j.State {
	case job.Running:
		return c.Sprintf(ColorBoldGreen, "%s", "Running")
	case job.Stopped:
		return c.Sprintf(ColorBoldYellow, "%s", j.Status)
	default:
		return j.Status.String()
	}
}
