package pyrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

func init() {
	// Learner code is ordinary Python, not build configuration.
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
}

// Starlark is an in-process Runtime built on the Starlark interpreter. It
// speaks a Python dialect: no classes, imports or exceptions, but enough for
// the functions, loops and collections most exercises use.
type Starlark struct {
	logger *slog.Logger

	mu     sync.Mutex
	files  map[string]string
	closed bool
}

var _ Runtime = (*Starlark)(nil)

// NewStarlark returns a ready runtime.
func NewStarlark(logger *slog.Logger) *Starlark {
	if logger == nil {
		logger = slog.Default()
	}
	return &Starlark{logger: logger.With("runtime", "starlark"), files: make(map[string]string)}
}

// StarlarkLoader returns a Loader that builds a Starlark runtime.
func StarlarkLoader(logger *slog.Logger) Loader {
	return func(context.Context) (Runtime, error) {
		return NewStarlark(logger), nil
	}
}

func (r *Starlark) NewScope(ctx context.Context) (Scope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errClosed
	}
	return &starlarkScope{rt: r, globals: make(starlark.StringDict)}, nil
}

func (r *Starlark) WriteFile(ctx context.Context, name, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed
	}
	r.files[name] = data
	return nil
}

func (r *Starlark) ReadFile(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[name]
	if !ok {
		return "", &Error{Type: "FileNotFoundError", Message: fmt.Sprintf("No such file or directory: '%s'", name)}
	}
	return data, nil
}

func (r *Starlark) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.files = nil
	return nil
}

// thread returns an interpreter thread that is cancelled along with ctx.
func (r *Starlark) thread(ctx context.Context) (*starlark.Thread, func() bool) {
	t := &starlark.Thread{
		Name: "pyrt",
		Print: func(_ *starlark.Thread, msg string) {
			r.logger.Debug("print", "output", msg)
		},
	}
	stop := context.AfterFunc(ctx, func() {
		t.Cancel(context.Cause(ctx).Error())
	})
	return t, stop
}

var errClosed = errors.New("runtime closed")

type starlarkScope struct {
	rt *Starlark

	mu      sync.Mutex
	globals starlark.StringDict
}

func (s *starlarkScope) Set(ctx context.Context, name string, value any) error {
	v, err := toStarlark(value)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[name] = v
	return nil
}

func (s *starlarkScope) SetInput(ctx context.Context, inputs []string) error {
	var (
		mu   sync.Mutex
		next int
	)
	input := starlark.NewBuiltin("input", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(inputs) {
			return nil, &Error{Type: "StopIteration"}
		}
		next++
		return starlark.String(inputs[next-1]), nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals["input"] = input
	return nil
}

func (s *starlarkScope) Run(ctx context.Context, src string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.globals == nil {
		return nil, errClosed
	}

	f, err := syntax.Parse("<exec>", src, 0)
	if err != nil {
		return nil, convertError(err)
	}

	// A trailing expression is evaluated on its own so its value can be
	// handed back, the way an interactive prompt would.
	var last syntax.Expr
	if n := len(f.Stmts); n > 0 {
		if stmt, ok := f.Stmts[n-1].(*syntax.ExprStmt); ok {
			last = stmt.X
			f.Stmts = f.Stmts[:n-1]
		}
	}

	prog, err := starlark.FileProgram(f, s.globals.Has)
	if err != nil {
		return nil, convertError(err)
	}

	thread, stop := s.rt.thread(ctx)
	defer stop()

	globals, err := prog.Init(thread, s.globals)
	for name, v := range globals {
		s.globals[name] = v
	}
	if err != nil {
		return nil, convertError(err)
	}
	if last == nil {
		return nil, nil
	}

	v, err := starlark.EvalExpr(thread, last, s.globals)
	if err != nil {
		return nil, convertError(err)
	}
	return toGo(v), nil
}

func (s *starlarkScope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals = nil
	return nil
}

func convertError(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var ee *starlark.EvalError
	if errors.As(err, &ee) {
		return &Error{Type: classify(ee.Msg), Message: ee.Msg, Traceback: ee.Backtrace()}
	}

	var se syntax.Error
	if errors.As(err, &se) {
		return &Error{Type: "SyntaxError", Message: se.Msg, Traceback: se.Error()}
	}

	var re resolve.ErrorList
	if errors.As(err, &re) && len(re) > 0 {
		typ := "SyntaxError"
		if strings.HasPrefix(re[0].Msg, "undefined:") {
			typ = "NameError"
		}
		return &Error{Type: typ, Message: re[0].Msg, Traceback: re.Error()}
	}

	return &Error{Type: classify(err.Error()), Message: err.Error()}
}

// classify maps interpreter messages onto the Python exception class a
// learner would have seen.
func classify(msg string) string {
	switch {
	case strings.Contains(msg, "StopIteration"):
		return "StopIteration"
	case strings.Contains(msg, "cancelled"):
		return "KeyboardInterrupt"
	case strings.Contains(msg, "undefined:"), strings.Contains(msg, "referenced before assignment"):
		return "NameError"
	case strings.Contains(msg, "has no .") && strings.Contains(msg, "field or method"):
		return "AttributeError"
	case strings.Contains(msg, "out of range"):
		return "IndexError"
	case strings.Contains(msg, "not in dict"):
		return "KeyError"
	case strings.Contains(msg, "by zero"):
		return "ZeroDivisionError"
	case strings.Contains(msg, "unknown binary op"),
		strings.Contains(msg, "not callable"),
		strings.Contains(msg, "missing argument"),
		strings.Contains(msg, "unexpected keyword"),
		strings.Contains(msg, "got "),
		strings.Contains(msg, "want "):
		return "TypeError"
	}
	return "RuntimeError"
}

func toStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case string:
		return starlark.String(x), nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float64:
		return starlark.Float(x), nil
	case []string:
		elems := make([]starlark.Value, len(x))
		for i, s := range x {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems), nil
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

func toGo(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			key := item[0].String()
			if s, ok := item[0].(starlark.String); ok {
				key = string(s)
			}
			out[key] = toGo(item[1])
		}
		return out
	case starlark.Iterable:
		var out []any
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			out = append(out, toGo(elem))
		}
		if out == nil {
			out = []any{}
		}
		return out
	}
	return v.String()
}
