package redirect

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/josephlewis42/jsh/core/word"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run starts a shell script with the given redirects applied and waits for it.
// If the process stdout or stderr is piped the output is returned.
func run(t *testing.T, script string, reds []Redirect, opts Options) (stdout, stderr string) {
	t.Helper()

	r := &Resolver{}
	cmd := exec.Command("sh", "-c", script)
	applied, err := r.Apply(cmd, reds, opts)
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	applied.Started()

	var outBuf, errBuf bytes.Buffer
	require.NoError(t, Drain(nilIfNoFile(applied.Stdout), &outBuf, nilIfNoFile(applied.Stderr), &errBuf))
	require.NoError(t, cmd.Wait())
	return outBuf.String(), errBuf.String()
}

func nilIfNoFile(f *os.File) io.Reader {
	if f == nil {
		return nil
	}
	return f
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestApply_sameFileSharesHandle(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	script := `printf one; printf two >&2; printf three`

	run(t, script, []Redirect{
		To(Stdout, word.Literal(out)),
		To(Stderr, word.Literal(out)),
	}, Options{})

	assert.Equal(t, "onetwothree", readFile(t, out))
}

func TestApply_differentFiles(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	errPath := filepath.Join(dir, "err.txt")

	run(t, `printf out; printf err >&2`, []Redirect{
		To(Stdout, word.Literal(outPath)),
		To(Stderr, word.Literal(errPath)),
	}, Options{})

	assert.Equal(t, "out", readFile(t, outPath))
	assert.Equal(t, "err", readFile(t, errPath))
}

func TestApply_sameFileDifferentModes(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))

	run(t, `printf err >&2`, []Redirect{
		To(Stdout, word.Literal(out)),
		AppendTo(Stderr, word.Literal(out)),
	}, Options{})

	// Stdout truncated the file before stderr's independent append handle wrote.
	assert.Equal(t, "err", readFile(t, out))
}

func TestApply_appendKeepsEarlierOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")

	run(t, `printf 'first\n'`, []Redirect{To(Stdout, word.Literal(out))}, Options{})
	run(t, `printf 'second\n'`, []Redirect{AppendTo(Stdout, word.Literal(out))}, Options{})

	assert.Equal(t, "first\nsecond\n", readFile(t, out))
}

func TestApply_lastWins(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "second.txt")

	run(t, `printf hello`, []Redirect{
		To(Stdout, word.Literal(filepath.Join(dir, "first.txt"))),
		To(Stdout, word.Literal(second)),
	}, Options{})

	assert.Equal(t, "hello", readFile(t, second))
}

func TestApply_heredoc(t *testing.T) {
	cases := map[string]struct {
		docs []string
		want string
	}{
		"verbatim":        {[]string{"line one\n\tindented\nno newline"}, "line one\n\tindented\nno newline"},
		"empty":           {[]string{""}, ""},
		"accumulates":     {[]string{"a\n", "b\n"}, "a\nb\n"},
		"binary-friendly": {[]string{"\x00\x01\xff"}, "\x00\x01\xff"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			var reds []Redirect
			for _, doc := range tc.docs {
				reds = append(reds, Here(word.Literal(doc)))
			}

			stdout, _ := run(t, "cat", reds, Options{Capture: true})

			assert.Equal(t, tc.want, stdout)
		})
	}
}

func TestApply_fileReplacesHeredoc(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("from file"), 0o644))

	stdout, _ := run(t, "cat", []Redirect{
		Here(word.Literal("from heredoc")),
		From(word.Literal(in)),
	}, Options{Capture: true})

	assert.Equal(t, "from file", stdout)
}

func TestApply_interiorInput(t *testing.T) {
	for _, rd := range []Redirect{From(word.Literal("in.txt")), Here(word.Literal("doc"))} {
		t.Run(rd.String(), func(t *testing.T) {
			_, err := (&Resolver{}).Apply(exec.Command("cat"), []Redirect{rd}, Options{Interior: true})
			assert.ErrorIs(t, err, ErrInteriorInput)
		})
	}
}

func TestApply_unsupported(t *testing.T) {
	cases := map[string]Redirect{
		"dup-stdin":      Dup(Stdin, Stdout),
		"write-stdin":    To(Stdin, word.Literal("x")),
		"read-to-stdout": {Op: ReadFile, Stream: Stdout, Target: word.Literal("x")},
	}

	for tn, rd := range cases {
		t.Run(tn, func(t *testing.T) {
			_, err := (&Resolver{}).Apply(exec.Command("true"), []Redirect{rd}, Options{})
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestApply_openFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "missing", "bad.txt")

	cmd := exec.Command("true")
	applied, err := (&Resolver{}).Apply(cmd, []Redirect{
		To(Stdout, word.Literal(good)),
		To(Stderr, word.Literal(bad)),
	}, Options{})

	assert.Nil(t, applied)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply_evalFailure(t *testing.T) {
	failing := word.Func(func() (string, error) { return "", io.ErrUnexpectedEOF })

	_, err := (&Resolver{}).Apply(exec.Command("true"), []Redirect{To(Stdout, failing)}, Options{})

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestApply_capture(t *testing.T) {
	t.Run("stdout only", func(t *testing.T) {
		cmd := exec.Command("true")
		applied, err := (&Resolver{}).Apply(cmd, nil, Options{Capture: true})
		require.NoError(t, err)
		defer applied.Abort()

		assert.NotNil(t, applied.Stdout)
		assert.Nil(t, applied.Stderr, "stderr stays inherited when nothing is redirected")
	})

	t.Run("stdout redirected pipes stderr", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out.txt")

		stdout, stderr := run(t, `printf out; printf err >&2`, []Redirect{
			To(Stdout, word.Literal(out)),
		}, Options{Capture: true})

		assert.Equal(t, "", stdout)
		assert.Equal(t, "err", stderr)
		assert.Equal(t, "out", readFile(t, out))
	})

	t.Run("stderr redirected", func(t *testing.T) {
		errPath := filepath.Join(t.TempDir(), "err.txt")

		stdout, stderr := run(t, `printf out; printf err >&2`, []Redirect{
			To(Stderr, word.Literal(errPath)),
		}, Options{Capture: true})

		assert.Equal(t, "out", stdout)
		assert.Equal(t, "", stderr)
		assert.Equal(t, "err", readFile(t, errPath))
	})
}

func TestApply_duplicateOrder(t *testing.T) {
	t.Run("file then dup", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out.txt")

		stdout, _ := run(t, `printf out; printf err >&2`, []Redirect{
			To(Stdout, word.Literal(out)),
			Dup(Stderr, Stdout),
		}, Options{Capture: true})

		assert.Equal(t, "", stdout)
		assert.Equal(t, "outerr", readFile(t, out))
	})

	t.Run("dup then file", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out.txt")

		stdout, _ := run(t, `printf out; printf err >&2`, []Redirect{
			Dup(Stderr, Stdout),
			To(Stdout, word.Literal(out)),
		}, Options{Capture: true})

		assert.Equal(t, "err", stdout, "stderr keeps the captured pipe stdout had")
		assert.Equal(t, "out", readFile(t, out))
	})
}

func TestApply_duplicateInherited(t *testing.T) {
	dir := t.TempDir()
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)
	defer stderr.Close()

	r := &Resolver{Streams: Streams{Stdout: stdout, Stderr: stderr}}
	cmd := exec.Command("sh", "-c", `printf out; printf err >&2`)
	applied, err := r.Apply(cmd, []Redirect{Dup(Stderr, Stdout)}, Options{})
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	applied.Started()
	require.NoError(t, cmd.Wait())

	assert.Equal(t, "outerr", readFile(t, stdout.Name()))
	assert.Equal(t, "", readFile(t, stderr.Name()))
}

func TestDrain(t *testing.T) {
	var out, errOut bytes.Buffer

	err := Drain(strings.NewReader("stdout"), &out, strings.NewReader("stderr"), &errOut)

	assert.NoError(t, err)
	assert.Equal(t, "stdout", out.String())
	assert.Equal(t, "stderr", errOut.String())
}

func TestDrain_large(t *testing.T) {
	// Both streams exceed a pipe buffer, so reading one to completion before
	// touching the other would deadlock.
	script := `i=0; while [ $i -lt 2000 ]; do printf '%064d\n' $i; printf '%064d\n' $i >&2; i=$((i+1)); done`
	cmd := exec.Command("sh", "-c", script)
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	errR, errW, err := os.Pipe()
	require.NoError(t, err)
	cmd.Stdout, cmd.Stderr = outW, errW
	require.NoError(t, cmd.Start())
	outW.Close()
	errW.Close()

	var out, errOut bytes.Buffer
	require.NoError(t, Drain(outR, &out, errR, &errOut))
	require.NoError(t, cmd.Wait())

	assert.Equal(t, 2000*65, out.Len())
	assert.Equal(t, 2000*65, errOut.Len())
}
