package shell

import (
	"testing"

	"github.com/josephlewis42/jsh/core/redirect"
	"github.com/josephlewis42/jsh/core/word"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, p *Parser, src string) *Statement {
	t.Helper()
	stmts, err := p.Parse(src)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return stmts[0]
}

func evalWords(t *testing.T, words ...word.Word) []string {
	t.Helper()
	out, err := word.EvalAll(words)
	require.NoError(t, err)
	return out
}

func TestParser_Parse_stages(t *testing.T) {
	cases := map[string]struct {
		src        string
		wantStages [][]string
		wantName   string
		background bool
	}{
		"simple": {
			src:        "echo hello world",
			wantStages: [][]string{{"echo", "hello", "world"}},
			wantName:   "echo",
		},
		"pipe": {
			src:        "printf x | sort | uniq -c",
			wantStages: [][]string{{"printf", "x"}, {"sort"}, {"uniq", "-c"}},
		},
		"background": {
			src:        "sleep 1 &",
			wantStages: [][]string{{"sleep", "1"}},
			wantName:   "sleep",
			background: true,
		},
		"quoted": {
			src:        `printf '%s\n' "a b"`,
			wantStages: [][]string{{"printf", `%s\n`, "a b"}},
			wantName:   "printf",
		},
		"expanded name": {
			src:        `"$JSH_NO_SUCH_VAR"printf x`,
			wantStages: [][]string{{"printf", "x"}},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			st := parseOne(t, &Parser{}, tc.src)

			require.NotNil(t, st.Pipeline)
			var got [][]string
			for _, stage := range st.Pipeline.Stages {
				got = append(got, evalWords(t, append([]word.Word{stage.Program}, stage.Args...)...))
			}
			assert.Equal(t, tc.wantStages, got)
			assert.Equal(t, tc.wantName, st.Name)
			assert.Equal(t, tc.background, st.Pipeline.Background)
			assert.Equal(t, tc.src, st.Pipeline.Text)
		})
	}
}

func TestParser_Parse_pipeAll(t *testing.T) {
	st := parseOne(t, &Parser{}, "make |& less")

	stages := st.Pipeline.Stages
	require.Len(t, stages, 2)
	require.Len(t, stages[0].Redirects, 1)
	assert.Equal(t, redirect.Duplicate, stages[0].Redirects[0].Op)
	assert.Equal(t, redirect.Stderr, stages[0].Redirects[0].Stream)
	assert.Equal(t, redirect.Stdout, stages[0].Redirects[0].To)
	assert.Empty(t, stages[1].Redirects)
}

func TestParser_Parse_redirects(t *testing.T) {
	cases := map[string]struct {
		src  string
		want []string
	}{
		"read":          {"cat < in.txt", []string{"stdin < in.txt"}},
		"write":         {"ls > out.txt", []string{"stdout > out.txt"}},
		"clobber":       {"ls >| out.txt", []string{"stdout > out.txt"}},
		"append":        {"ls >> out.txt", []string{"stdout >> out.txt"}},
		"stderr":        {"ls 2> err.txt", []string{"stderr > err.txt"}},
		"dup":           {"ls 2>&1", []string{"stderr >& stdout"}},
		"all":           {"ls &> all.txt", []string{"stdout > all.txt", "stderr >& stdout"}},
		"append all":    {"ls &>> all.txt", []string{"stdout >> all.txt", "stderr >& stdout"}},
		"herestring":    {"cat <<< hi", []string{"stdin << hi\n"}},
		"ordered":       {"ls > a.txt 2>&1 > b.txt", []string{"stdout > a.txt", "stderr >& stdout", "stdout > b.txt"}},
		"explicit fd 1": {"ls 1> out.txt", []string{"stdout > out.txt"}},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			st := parseOne(t, &Parser{}, tc.src)

			var got []string
			for _, rd := range st.Pipeline.Stages[0].Redirects {
				got = append(got, describeRedirect(t, rd))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func describeRedirect(t *testing.T, rd redirect.Redirect) string {
	t.Helper()
	if rd.Op == redirect.Duplicate {
		return rd.Stream.String() + " >& " + rd.To.String()
	}
	target, err := rd.Target.Eval()
	require.NoError(t, err)
	return rd.Stream.String() + " " + rd.Op.String() + " " + target
}

func TestParser_Parse_heredoc(t *testing.T) {
	t.Setenv("JSH_GREETING", "hello")

	cases := map[string]struct {
		src  string
		want string
	}{
		"expanded": {"cat <<EOF\n$JSH_GREETING world\nEOF\n", "hello world\n"},
		"quoted":   {"cat <<'EOF'\n$JSH_GREETING world\nEOF\n", "$JSH_GREETING world\n"},
		"dash":     {"cat <<-EOF\n\t\tindented\n\tEOF\n", "indented\n"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			st := parseOne(t, &Parser{}, tc.src)

			rds := st.Pipeline.Stages[0].Redirects
			require.Len(t, rds, 1)
			assert.Equal(t, redirect.Heredoc, rds[0].Op)
			got, err := rds[0].Target.Eval()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParser_Parse_assigns(t *testing.T) {
	t.Setenv("JSH_BASE", "base")

	t.Run("assignment only", func(t *testing.T) {
		st := parseOne(t, &Parser{}, "A=1 B=$JSH_BASE C=")

		assert.Nil(t, st.Pipeline)
		assert.Equal(t, []string{"A=1", "B=base", "C="}, evalWords(t, st.Assigns...))
	})

	t.Run("command prefix", func(t *testing.T) {
		st := parseOne(t, &Parser{}, "A=1 env")

		require.NotNil(t, st.Pipeline)
		assert.Equal(t, "env", st.Name)
		assert.Equal(t, []string{"A=1"}, evalWords(t, st.Pipeline.Stages[0].Env...))
	})
}

func TestParser_Parse_alias(t *testing.T) {
	p := &Parser{Aliases: map[string]string{"ll": "ls -l 'my dir'"}}

	st := parseOne(t, p, "ll -a | cat")

	stage := st.Pipeline.Stages[0]
	assert.Equal(t, []string{"ls", "-l", "my dir", "-a"}, evalWords(t, append([]word.Word{stage.Program}, stage.Args...)...))
	assert.Equal(t, []string{"cat"}, evalWords(t, st.Pipeline.Stages[1].Program))
}

func TestParser_Parse_commandSubstitution(t *testing.T) {
	var ran []string
	p := &Parser{CmdSubst: func(stmts []*Statement) (string, error) {
		for _, st := range stmts {
			ran = append(ran, st.Name)
		}
		return "sub\n", nil
	}}

	st := parseOne(t, p, "echo $(hostname)")

	assert.Empty(t, ran, "substitutions run when the stage is spawned")
	assert.Equal(t, []string{"echo", "sub"}, evalWords(t, append([]word.Word{st.Pipeline.Stages[0].Program}, st.Pipeline.Stages[0].Args...)...))
	assert.Equal(t, []string{"hostname"}, ran)
}

func TestParser_Parse_multiple(t *testing.T) {
	stmts, err := (&Parser{}).Parse("cd /tmp; ls\npwd")

	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Equal(t, "cd", stmts[0].Name)
	assert.Equal(t, "ls", stmts[1].Name)
	assert.Equal(t, "pwd", stmts[2].Name)
}

func TestParser_Parse_errors(t *testing.T) {
	cases := map[string]struct {
		src         string
		unsupported bool
		incomplete  bool
	}{
		"and list":         {src: "true && false", unsupported: true},
		"or list":          {src: "true || false", unsupported: true},
		"subshell":         {src: "(ls)", unsupported: true},
		"if":               {src: "if true; then ls; fi", unsupported: true},
		"negated":          {src: "! ls", unsupported: true},
		"high fd":          {src: "ls 3> out.txt", unsupported: true},
		"unclosed heredoc": {src: "cat <<EOF\nline", incomplete: true},
		"unclosed quote":   {src: "echo 'abc", incomplete: true},
		"bad syntax":       {src: "ls )"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			_, err := (&Parser{}).Parse(tc.src)

			require.Error(t, err)
			if tc.unsupported {
				assert.ErrorIs(t, err, ErrUnsupportedSyntax)
			}
			assert.Equal(t, tc.incomplete, IsIncomplete(err))
		})
	}
}
