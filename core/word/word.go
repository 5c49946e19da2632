// Package word holds tokens that are evaluated lazily when a command is
// spawned rather than when it is parsed.
package word

// Word is a program name, argument or redirect target that may need expansion
// before use.
type Word interface {
	Eval() (string, error)
}

// Literal is a word that needs no expansion.
type Literal string

var _ Word = Literal("")

// Eval implements Word.Eval.
func (l Literal) Eval() (string, error) {
	return string(l), nil
}

// Func adapts a function to a Word.
type Func func() (string, error)

var _ Word = (Func)(nil)

// Eval implements Word.Eval.
func (f Func) Eval() (string, error) {
	return f()
}

// Literals converts plain strings to words.
func Literals(values ...string) []Word {
	out := make([]Word, len(values))
	for i, v := range values {
		out[i] = Literal(v)
	}
	return out
}

// EvalAll evaluates every word in order, stopping at the first failure.
func EvalAll(words []Word) ([]string, error) {
	out := make([]string, 0, len(words))
	for _, w := range words {
		s, err := w.Eval()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
