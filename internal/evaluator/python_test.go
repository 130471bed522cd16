package evaluator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/pyrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const learnerPython = `x = 5

def double(n):
    return n * 2

name = input()
greeting = "Hello " + name
`

func initPython(t *testing.T, opts domain.InitOptions) *Python {
	t.Helper()
	ev := NewPython(pyrt.StarlarkLoader(quiet()), quiet())
	t.Cleanup(ev.Close)
	require.NoError(t, ev.Init(context.Background(), opts))
	return ev
}

func TestPythonPasses(t *testing.T) {
	ev := initPython(t, domain.InitOptions{
		Source: learnerPython,
		Code:   domain.Code{Contents: learnerPython},
	})

	tests := []string{
		"({ input: ['Ada'], test: () => assert.equal(runPython('double(x)'), 10) })",
		"({ input: ['Ada'], test: () => assert.equal(runPython('greeting'), 'Hello Ada') })",
		"({ input: ['Ada'], test: () => assert.equal(runPython('__name__'), '__main__') })",
		"({ input: ['Ada'], test: () => assert.equal(runPython('_code'), code) })",
		"({ input: ['Ada'], test: async () => { await new Promise(r => setTimeout(r, 5)); assert.equal(runPython('x'), 5); } })",
		"assert(true)",
	}
	for _, test := range tests {
		requirePass(t, ev, test)
	}
}

func TestPythonTestStringMustHaveTest(t *testing.T) {
	ev := initPython(t, domain.InitOptions{Source: "x = 1"})

	for _, test := range []string{"null", "({ input: [] })"} {
		v := ev.RunTest(context.Background(), test)
		require.NotNil(t, v.Fail, test)
		assert.Equal(t, errNoTestProperty, v.Fail.Message)
	}
}

func TestPythonInputExhaustion(t *testing.T) {
	ev := initPython(t, domain.InitOptions{Source: learnerPython})

	v := ev.RunTest(context.Background(), "({ test: () => {} })")
	require.NotNil(t, v.Fail)
	assert.Equal(t, "StopIteration", v.Fail.Type)
}

func TestPythonErrorsCarryType(t *testing.T) {
	ev := initPython(t, domain.InitOptions{Source: "y = undefined_name"})

	v := ev.RunTest(context.Background(), "({ test: () => {} })")
	require.NotNil(t, v.Fail)
	assert.Equal(t, "NameError", v.Fail.Type)

	ev = initPython(t, domain.InitOptions{Source: "x = 1"})
	v = ev.RunTest(context.Background(), "({ test: () => runPython('1 // 0') })")
	require.NotNil(t, v.Fail)
	assert.Equal(t, "ZeroDivisionError", v.Fail.Type)
}

func TestPythonFreshGlobalsPerTest(t *testing.T) {
	ev := initPython(t, domain.InitOptions{Source: "x = 1"})

	requirePass(t, ev, "({ test: () => runPython('leak = 1') })")
	requirePass(t, ev, "({ test: () => assert.throws(() => runPython('leak')) })")
}

func TestPythonRuntimeLoadedOnce(t *testing.T) {
	var loads atomic.Int32
	load := func(ctx context.Context) (pyrt.Runtime, error) {
		loads.Add(1)
		return pyrt.NewStarlark(quiet()), nil
	}
	ev := NewPython(load, quiet())
	t.Cleanup(ev.Close)

	require.NoError(t, ev.Init(context.Background(), domain.InitOptions{Source: "x = 1"}))
	require.NoError(t, ev.Init(context.Background(), domain.InitOptions{Source: "x = 2"}))
	requirePass(t, ev, "({ test: () => assert.equal(runPython('x'), 2) })")
	assert.EqualValues(t, 1, loads.Load())
}

func TestPythonLoadFailureFailsInit(t *testing.T) {
	ev := NewPython(func(context.Context) (pyrt.Runtime, error) {
		return nil, errors.New("no interpreter")
	}, quiet())

	err := ev.Init(context.Background(), domain.InitOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no interpreter")
}
