package word

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ExampleEvalAll() {
	out, err := EvalAll(Literals("printf", "%s\n", "hello"))
	fmt.Printf("%q %v\n", out, err)

	// Output: ["printf" "%s\n" "hello"] <nil>
}

func TestEvalAll_stopsAtFirstError(t *testing.T) {
	bad := errors.New("bad substitution")
	calls := 0
	counting := Func(func() (string, error) {
		calls++
		return "x", nil
	})

	out, err := EvalAll([]Word{counting, Func(func() (string, error) { return "", bad }), counting})

	assert.ErrorIs(t, err, bad)
	assert.Nil(t, out)
	assert.Equal(t, 1, calls, "words after the failure must not be evaluated")
}
