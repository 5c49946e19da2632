package shell

import (
	"bufio"
	"io"

	"github.com/abiosoft/readline"
)

// LineReader supplies input lines. It returns io.EOF when the input ends and
// readline.ErrInterrupt when the user abandons a line.
type LineReader interface {
	Readline() (string, error)
}

type prompter interface {
	SetPrompt(string)
}

var _ LineReader = (*readline.Instance)(nil)
var _ prompter = (*readline.Instance)(nil)

// NewReadlineReader creates an interactive line editor. History is saved to
// historyFile unless it's empty.
//
// TODO: readline keeps a goroutine reading stdin between calls, so it can
// take keystrokes meant for a foreground job. Pause it while a job runs.
func NewReadlineReader(stdin io.Reader, stdout, stderr io.Writer, historyFile string) (*readline.Instance, error) {
	cfg := &readline.Config{
		Stdin:           readline.NewCancelableStdin(stdin),
		Stdout:          stdout,
		Stderr:          stderr,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	return readline.NewEx(cfg)
}

// ScannerReader reads lines from a non-interactive source such as a pipe.
type ScannerReader struct {
	scanner *bufio.Scanner
}

// NewScannerReader reads lines from r.
func NewScannerReader(r io.Reader) *ScannerReader {
	return &ScannerReader{scanner: bufio.NewScanner(r)}
}

var _ LineReader = (*ScannerReader)(nil)

func (s *ScannerReader) Readline() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
