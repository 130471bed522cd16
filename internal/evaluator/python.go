package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/pyrt"
	"github.com/dop251/goja"
)

const errNoTestProperty = "Test string did not evaluate to an object with the 'test' property"

// Python runs Python exercises. Test strings are still JavaScript: they
// evaluate to {input?, test} and test() inspects the learner's globals
// through runPython.
type Python struct {
	logger *slog.Logger
	load   pyrt.Loader

	mu      sync.Mutex
	rt      pyrt.Runtime
	opts    *domain.InitOptions
	current *jsLoop
}

var _ domain.Evaluator = (*Python)(nil)

// NewPython returns an evaluator that loads its runtime with load on first
// Init.
func NewPython(load pyrt.Loader, logger *slog.Logger) *Python {
	if logger == nil {
		logger = slog.Default()
	}
	return &Python{load: load, logger: logger.With("evaluator", domain.KindPython)}
}

// Init loads the runtime if needed and captures opts. The runtime is kept
// across inits; loading it is the slow part.
func (e *Python) Init(ctx context.Context, opts domain.InitOptions) error {
	if _, err := e.runtime(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.opts = &opts
	e.mu.Unlock()
	return nil
}

func (e *Python) runtime(ctx context.Context) (pyrt.Runtime, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rt != nil {
		return e.rt, nil
	}
	rt, err := e.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load python runtime: %w", err)
	}
	e.rt = rt
	return rt, nil
}

// discard drops a runtime that may have been left mid-execution.
func (e *Python) discard(rt pyrt.Runtime) {
	e.mu.Lock()
	if e.rt == rt {
		e.rt = nil
	}
	e.mu.Unlock()
	if err := rt.Close(); err != nil {
		e.logger.Warn("Failed to close python runtime", "error", err)
	}
}

// RunTest runs one test against fresh globals, which are dropped afterwards.
func (e *Python) RunTest(ctx context.Context, test string) domain.Verdict {
	e.mu.Lock()
	opts := e.opts
	e.mu.Unlock()
	if opts == nil {
		return domain.Failed(errNotInitialized.Error())
	}

	rt, err := e.runtime(ctx)
	if err != nil {
		return domain.Failed(err.Error())
	}
	scope, err := rt.NewScope(ctx)
	if err != nil {
		e.discard(rt)
		return domain.Failed(fmt.Sprintf("failed to create python globals: %v", err))
	}
	defer func() {
		if err := scope.Close(); err != nil {
			e.logger.Warn("Failed to drop python globals", "error", err)
		}
	}()

	loop := newLoop()
	e.mu.Lock()
	e.current = loop
	e.mu.Unlock()
	defer func() {
		loop.stop()
		e.mu.Lock()
		if e.current == loop {
			e.current = nil
		}
		e.mu.Unlock()
	}()

	thrown, err := loop.settle(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return e.run(ctx, vm, rt, scope, *opts, test)
	})
	if err != nil {
		if ctx.Err() != nil {
			e.discard(rt)
		}
		return domain.Failed("test interrupted: " + err.Error())
	}
	return Normalize(thrown, e.logger)
}

func (e *Python) run(ctx context.Context, vm *goja.Runtime, rt pyrt.Runtime, scope pyrt.Scope, opts domain.InitOptions, test string) (goja.Value, error) {
	exec, err := Scope{
		Code:             opts.Code.Contents,
		EditableContents: opts.Code.EditableContents,
		Extra:            map[string]any{"runPython": runPython(ctx, vm, scope)},
	}.install(vm, e.logger)
	if err != nil {
		return nil, err
	}

	v, err := exec.expr(test)
	if err != nil {
		return nil, err
	}

	// Anything that is not an object is a plain JavaScript test whose
	// assertions already ran.
	if goja.IsNull(v) {
		return nil, errors.New(errNoTestProperty)
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return goja.Undefined(), nil
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return goja.Undefined(), nil
	}
	if obj.Get("test") == nil {
		return nil, errors.New(errNoTestProperty)
	}
	testFn, callable := goja.AssertFunction(obj.Get("test"))

	var inputs []string
	if in := obj.Get("input"); defined(in) {
		if err := vm.ExportTo(in, &inputs); err != nil {
			return nil, fmt.Errorf("input must be a list of strings: %w", err)
		}
	}

	if err := scope.Set(ctx, "__name__", "__main__"); err != nil {
		return nil, err
	}
	if err := scope.SetInput(ctx, inputs); err != nil {
		return nil, err
	}

	// The learner's code is handed to tests as a string, read back from the
	// runtime's own filesystem.
	if err := rt.WriteFile(ctx, pyrt.UserCodePath, opts.Code.Contents); err != nil {
		return nil, err
	}
	code, err := rt.ReadFile(ctx, pyrt.UserCodePath)
	if err != nil {
		return nil, err
	}
	if err := scope.Set(ctx, "_code", code); err != nil {
		return nil, err
	}

	if _, err := scope.Run(ctx, opts.Source); err != nil {
		return nil, err
	}

	if !callable {
		return nil, errors.New("test is not a function")
	}
	return testFn(goja.Undefined())
}

// Interrupt aborts the JavaScript half of the running test.
func (e *Python) Interrupt(reason any) {
	e.mu.Lock()
	loop := e.current
	e.mu.Unlock()
	if loop != nil {
		loop.interrupt(reason)
	}
}

// Close releases the cached runtime.
func (e *Python) Close() {
	e.mu.Lock()
	rt := e.rt
	e.rt = nil
	e.mu.Unlock()
	if rt != nil {
		_ = rt.Close()
	}
}

// runPython runs src against the test's globals and returns the value of a
// trailing expression. Python exceptions surface as JavaScript errors
// carrying the exception class in type.
func runPython(ctx context.Context, vm *goja.Runtime, scope pyrt.Scope) func(string) goja.Value {
	return func(src string) goja.Value {
		out, err := scope.Run(ctx, src)
		if err != nil {
			panic(pythonError(vm, err))
		}
		return vm.ToValue(out)
	}
}

func pythonError(vm *goja.Runtime, err error) goja.Value {
	var pe *pyrt.Error
	if !errors.As(err, &pe) {
		return vm.NewGoError(err)
	}
	obj, cerr := vm.New(vm.Get("Error"), vm.ToValue(pe.Error()))
	if cerr != nil {
		return vm.NewGoError(err)
	}
	_ = obj.Set("type", pe.Type)
	if pe.Traceback != "" {
		_ = obj.Set("stack", pe.Traceback)
	}
	return obj
}
