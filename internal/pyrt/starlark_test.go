package pyrt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScope(t *testing.T) Scope {
	t.Helper()
	rt := NewStarlark(nil)
	t.Cleanup(func() { _ = rt.Close() })
	scope, err := rt.NewScope(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close() })
	return scope
}

func TestRunReturnsTrailingExpression(t *testing.T) {
	scope := newScope(t)
	ctx := context.Background()

	out, err := scope.Run(ctx, "x = 2\ny = x * 21\ny")
	require.NoError(t, err)
	assert.Equal(t, int64(42), out)

	out, err = scope.Run(ctx, "def add(a, b):\n    return a + b\n")
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = scope.Run(ctx, "[add(1, 2), {'k': 'v'}, None]")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), map[string]any{"k": "v"}, nil}, out)
}

func TestGlobalsPersistWithinScope(t *testing.T) {
	scope := newScope(t)
	ctx := context.Background()

	require.NoError(t, scope.Set(ctx, "__name__", "__main__"))
	_, err := scope.Run(ctx, "items = []\nfor i in range(3):\n    items.append(i)\n")
	require.NoError(t, err)

	out, err := scope.Run(ctx, "items.append(__name__)\nitems")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0), int64(1), int64(2), "__main__"}, out)
}

func TestScopesAreIsolated(t *testing.T) {
	rt := NewStarlark(nil)
	ctx := context.Background()

	a, err := rt.NewScope(ctx)
	require.NoError(t, err)
	b, err := rt.NewScope(ctx)
	require.NoError(t, err)

	_, err = a.Run(ctx, "secret = 1")
	require.NoError(t, err)

	_, err = b.Run(ctx, "secret")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "NameError", pe.Type)
}

func TestInputReplaysThenStops(t *testing.T) {
	scope := newScope(t)
	ctx := context.Background()

	require.NoError(t, scope.SetInput(ctx, []string{"ada", "lovelace"}))
	out, err := scope.Run(ctx, "first = input('name? ')\nlast = input()\nfirst + ' ' + last")
	require.NoError(t, err)
	assert.Equal(t, "ada lovelace", out)

	_, err = scope.Run(ctx, "input()")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "StopIteration", pe.Type)
}

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined name", "print(nope)", "NameError"},
		{"syntax", "def broken(:\n", "SyntaxError"},
		{"zero division", "1 // 0", "ZeroDivisionError"},
		{"index", "[1][5]", "IndexError"},
		{"key", "{}['missing']", "KeyError"},
		{"attribute", "'s'.nope()", "AttributeError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := newScope(t)
			_, err := scope.Run(context.Background(), tt.src)
			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Type)
			assert.NotEmpty(t, pe.Message)
		})
	}
}

func TestRunIsCancelledWithContext(t *testing.T) {
	scope := newScope(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := scope.Run(ctx, "while True:\n    pass\n")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFiles(t *testing.T) {
	rt := NewStarlark(nil)
	ctx := context.Background()

	require.NoError(t, rt.WriteFile(ctx, UserCodePath, "x = 1\n"))
	data, err := rt.ReadFile(ctx, UserCodePath)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", data)

	_, err = rt.ReadFile(ctx, "/missing.py")
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "FileNotFoundError", pe.Type)

	require.NoError(t, rt.Close())
	_, err = rt.NewScope(ctx)
	assert.Error(t, err)
}
