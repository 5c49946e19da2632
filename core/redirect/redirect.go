// Package redirect resolves a command's redirection directives into the
// standard streams of a process that has not been started yet.
package redirect

import (
	"errors"
	"fmt"
	"os"

	"github.com/josephlewis42/jsh/core/word"
)

// Stream is one of the three standard streams, numbered like its descriptor.
type Stream int

const (
	Stdin Stream = iota
	Stdout
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("fd%d", int(s))
	}
}

// Op is the kind of a redirect directive.
type Op int

const (
	// ReadFile connects the stream to a file opened for reading (<).
	ReadFile Op = iota
	// Heredoc feeds literal content to stdin (<<, <<-, <<<).
	Heredoc
	// WriteFile truncates a file and writes the stream to it (>).
	WriteFile
	// AppendFile appends the stream to a file (>>).
	AppendFile
	// Duplicate points the stream at the current destination of another (n>&m).
	Duplicate
)

func (o Op) String() string {
	switch o {
	case ReadFile:
		return "<"
	case Heredoc:
		return "<<"
	case WriteFile:
		return ">"
	case AppendFile:
		return ">>"
	case Duplicate:
		return ">&"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Redirect is one parsed redirection directive.
type Redirect struct {
	Op Op
	// Stream is the stream being redirected.
	Stream Stream
	// Target is the file path for file operations or the content of a heredoc.
	// It is unused for Duplicate.
	Target word.Word
	// To is the stream whose destination is copied by Duplicate.
	To Stream
}

func (r Redirect) String() string {
	if r.Op == Duplicate {
		return fmt.Sprintf("%d>&%d", r.Stream, r.To)
	}
	return fmt.Sprintf("%d%s", r.Stream, r.Op)
}

// From redirects stdin from the file at path.
func From(path word.Word) Redirect {
	return Redirect{Op: ReadFile, Stream: Stdin, Target: path}
}

// Here feeds content to stdin.
func Here(content word.Word) Redirect {
	return Redirect{Op: Heredoc, Stream: Stdin, Target: content}
}

// To truncates the file at path and sends the stream to it.
func To(s Stream, path word.Word) Redirect {
	return Redirect{Op: WriteFile, Stream: s, Target: path}
}

// AppendTo appends the stream to the file at path.
func AppendTo(s Stream, path word.Word) Redirect {
	return Redirect{Op: AppendFile, Stream: s, Target: path}
}

// Dup sends s wherever to currently points.
func Dup(s, to Stream) Redirect {
	return Redirect{Op: Duplicate, Stream: s, To: to}
}

var (
	// ErrInteriorInput is returned for input redirects on a pipeline stage
	// whose stdin is connected to the previous stage.
	ErrInteriorInput = errors.New("input redirect on a piped stage")

	// ErrUnsupported is returned for directives that don't make sense for the
	// stream they name, like reading into stdout.
	ErrUnsupported = errors.New("unsupported redirect")
)

// Streams holds the streams a process inherits when they aren't redirected.
type Streams struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// StdStreams returns the shell's own standard streams.
func StdStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (s Streams) stream(n Stream) *os.File {
	switch n {
	case Stdin:
		return s.Stdin
	case Stdout:
		return s.Stdout
	default:
		return s.Stderr
	}
}
