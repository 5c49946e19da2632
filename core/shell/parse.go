package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/josephlewis42/jsh/core/pipeline"
	"github.com/josephlewis42/jsh/core/redirect"
	"github.com/josephlewis42/jsh/core/word"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// ErrUnsupportedSyntax is returned for shell grammar the shell doesn't run,
// like && lists or compound commands.
var ErrUnsupportedSyntax = errors.New("unsupported syntax")

// Statement is one command of an input line.
type Statement struct {
	Pipeline *pipeline.Pipeline
	// Name is the literal program name of a single stage pipeline, used to
	// find builtins. It's empty if the name needs expanding.
	Name string
	// Assigns are KEY=value words of a statement without a command.
	Assigns []word.Word
}

// Parser turns input lines into statements.
type Parser struct {
	// Aliases replace the first word of a command.
	Aliases map[string]string
	// CmdSubst runs $(...) substitutions.
	CmdSubst func(stmts []*Statement) (string, error)
}

func (p *Parser) expandConfig() *expand.Config {
	return &expand.Config{
		Env: expand.ListEnviron(os.Environ()...),
		CmdSubst: func(w io.Writer, cs *syntax.CmdSubst) error {
			if p.CmdSubst == nil {
				return fmt.Errorf("command substitution: %w", ErrUnsupportedSyntax)
			}
			stmts, err := p.statements("", cs.Stmts)
			if err != nil {
				return err
			}
			out, err := p.CmdSubst(stmts)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, out)
			return err
		},
	}
}

// Parse parses src. Incomplete input such as an unterminated heredoc can be
// detected with syntax.IsIncomplete.
func (p *Parser) Parse(src string) ([]*Statement, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(src), "")
	if err != nil {
		return nil, err
	}
	return p.statements(src, file.Stmts)
}

// IsIncomplete reports whether err means more input is needed.
func IsIncomplete(err error) bool {
	return syntax.IsIncomplete(err)
}

func (p *Parser) statements(src string, stmts []*syntax.Stmt) ([]*Statement, error) {
	var out []*Statement
	for _, stmt := range stmts {
		st, err := p.statement(src, stmt)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (p *Parser) statement(src string, stmt *syntax.Stmt) (*Statement, error) {
	if stmt.Negated || stmt.Coprocess {
		return nil, unsupported(stmt)
	}

	if call, ok := stmt.Cmd.(*syntax.CallExpr); ok && len(call.Args) == 0 {
		if len(stmt.Redirs) > 0 || stmt.Background {
			return nil, unsupported(stmt)
		}
		assigns, err := p.assigns(call.Assigns)
		if err != nil {
			return nil, err
		}
		return &Statement{Assigns: assigns}, nil
	}

	stages, name, err := p.stages(stmt)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		Pipeline: &pipeline.Pipeline{
			Stages:     stages,
			Background: stmt.Background,
			Text:       sourceText(src, stmt),
		},
	}
	if len(stages) == 1 {
		st.Name = name
	}
	return st, nil
}

// stages flattens a chain of pipes into its stages, left to right. name is
// the literal program name of the first stage.
func (p *Parser) stages(stmt *syntax.Stmt) (stages []pipeline.Stage, name string, err error) {
	switch cmd := stmt.Cmd.(type) {
	case *syntax.BinaryCmd:
		if cmd.Op != syntax.Pipe && cmd.Op != syntax.PipeAll {
			return nil, "", fmt.Errorf("%s: %w", cmd.Op, ErrUnsupportedSyntax)
		}
		if len(stmt.Redirs) > 0 || cmd.X.Background || cmd.X.Negated || cmd.Y.Negated {
			return nil, "", unsupported(stmt)
		}

		left, name, err := p.stages(cmd.X)
		if err != nil {
			return nil, "", err
		}
		if cmd.Op == syntax.PipeAll {
			last := &left[len(left)-1]
			last.Redirects = append(last.Redirects, redirect.Dup(redirect.Stderr, redirect.Stdout))
		}

		right, _, err := p.stages(cmd.Y)
		if err != nil {
			return nil, "", err
		}
		return append(left, right...), name, nil

	case *syntax.CallExpr:
		stage, name, err := p.stage(cmd, stmt.Redirs)
		if err != nil {
			return nil, "", err
		}
		return []pipeline.Stage{stage}, name, nil

	default:
		return nil, "", unsupported(stmt)
	}
}

func (p *Parser) stage(call *syntax.CallExpr, redirs []*syntax.Redirect) (pipeline.Stage, string, error) {
	var stage pipeline.Stage
	if len(call.Args) == 0 {
		return stage, "", pipeline.ErrEmptyCommand
	}

	var words []word.Word
	name := call.Args[0].Lit()
	rest := call.Args
	if alias, ok := p.Aliases[name]; ok && name != "" {
		fields, err := shlex.Split(alias, true)
		if err != nil {
			return stage, "", fmt.Errorf("alias %s: %w", name, err)
		}
		if len(fields) == 0 {
			return stage, "", fmt.Errorf("alias %s: %w", name, pipeline.ErrEmptyCommand)
		}
		words = word.Literals(fields...)
		name = fields[0]
		rest = call.Args[1:]
	}
	for _, arg := range rest {
		words = append(words, p.word(arg))
	}
	stage.Program = words[0]
	stage.Args = words[1:]

	assigns, err := p.assigns(call.Assigns)
	if err != nil {
		return stage, "", err
	}
	stage.Env = assigns

	for _, rd := range redirs {
		converted, err := p.redirect(rd)
		if err != nil {
			return stage, "", err
		}
		stage.Redirects = append(stage.Redirects, converted...)
	}
	return stage, name, nil
}

func (p *Parser) assigns(assigns []*syntax.Assign) ([]word.Word, error) {
	var out []word.Word
	for _, as := range assigns {
		if as.Append || as.Naked || as.Index != nil || as.Array != nil || as.Name == nil {
			return nil, unsupported(as)
		}
		key, value := as.Name.Value, as.Value
		out = append(out, word.Func(func() (string, error) {
			if value == nil {
				return key + "=", nil
			}
			expanded, err := expand.Literal(p.expandConfig(), value)
			if err != nil {
				return "", err
			}
			return key + "=" + expanded, nil
		}))
	}
	return out, nil
}

// word defers expansion of w until the stage is spawned.
func (p *Parser) word(w *syntax.Word) word.Word {
	return word.Func(func() (string, error) {
		return expand.Literal(p.expandConfig(), w)
	})
}

func (p *Parser) redirect(rd *syntax.Redirect) ([]redirect.Redirect, error) {
	stream := redirect.Stdout
	switch rd.Op {
	case syntax.RdrIn, syntax.Hdoc, syntax.DashHdoc, syntax.WordHdoc, syntax.DplIn:
		stream = redirect.Stdin
	}
	if rd.N != nil {
		n, err := strconv.Atoi(rd.N.Value)
		if err != nil || n < 0 || n > 2 {
			return nil, fmt.Errorf("%s: bad file descriptor: %w", rd.N.Value, ErrUnsupportedSyntax)
		}
		stream = redirect.Stream(n)
	}

	switch rd.Op {
	case syntax.RdrIn:
		return []redirect.Redirect{{Op: redirect.ReadFile, Stream: stream, Target: p.word(rd.Word)}}, nil
	case syntax.RdrOut, syntax.ClbOut:
		return []redirect.Redirect{redirect.To(stream, p.word(rd.Word))}, nil
	case syntax.AppOut:
		return []redirect.Redirect{redirect.AppendTo(stream, p.word(rd.Word))}, nil
	case syntax.RdrAll:
		return []redirect.Redirect{
			redirect.To(redirect.Stdout, p.word(rd.Word)),
			redirect.Dup(redirect.Stderr, redirect.Stdout),
		}, nil
	case syntax.AppAll:
		return []redirect.Redirect{
			redirect.AppendTo(redirect.Stdout, p.word(rd.Word)),
			redirect.Dup(redirect.Stderr, redirect.Stdout),
		}, nil
	case syntax.DplOut:
		switch rd.Word.Lit() {
		case "1":
			return []redirect.Redirect{redirect.Dup(stream, redirect.Stdout)}, nil
		case "2":
			return []redirect.Redirect{redirect.Dup(stream, redirect.Stderr)}, nil
		}
		return nil, unsupported(rd)
	case syntax.Hdoc, syntax.DashHdoc:
		return []redirect.Redirect{{Op: redirect.Heredoc, Stream: stream, Target: p.document(rd)}}, nil
	case syntax.WordHdoc:
		arg := p.word(rd.Word)
		return []redirect.Redirect{{Op: redirect.Heredoc, Stream: stream, Target: word.Func(func() (string, error) {
			content, err := arg.Eval()
			return content + "\n", err
		})}}, nil
	default:
		return nil, unsupported(rd)
	}
}

// document expands a heredoc body. <<- strips leading tabs from each line.
func (p *Parser) document(rd *syntax.Redirect) word.Word {
	return word.Func(func() (string, error) {
		if rd.Hdoc == nil {
			return "", nil
		}
		doc, err := expand.Document(p.expandConfig(), rd.Hdoc)
		if err != nil || rd.Op != syntax.DashHdoc {
			return doc, err
		}

		lines := strings.Split(doc, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimLeft(line, "\t")
		}
		return strings.Join(lines, "\n"), nil
	})
}

func unsupported(node syntax.Node) error {
	return fmt.Errorf("column %d: %w", node.Pos().Col(), ErrUnsupportedSyntax)
}

func sourceText(src string, stmt *syntax.Stmt) string {
	start, end := int(stmt.Pos().Offset()), int(stmt.End().Offset())
	if start < 0 || end > len(src) || start >= end {
		return ""
	}
	return strings.TrimSpace(src[start:end])
}
