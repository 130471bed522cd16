package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/dop251/goja"
)

var errNotInitialized = errors.New("evaluator not initialized")

// JavaScript evaluates plain JavaScript tests the way a background worker
// does: every test gets a brand new runtime, the learner source is run into
// it first, then the test runs as an async function body.
type JavaScript struct {
	logger *slog.Logger

	mu        sync.Mutex
	opts      *domain.InitOptions
	source    *goja.Program
	sourceErr error
	current   *jsLoop
}

var _ domain.Evaluator = (*JavaScript)(nil)

// NewJavaScript returns an evaluator waiting for Init.
func NewJavaScript(logger *slog.Logger) *JavaScript {
	if logger == nil {
		logger = slog.Default()
	}
	return &JavaScript{logger: logger.With("evaluator", domain.KindWorker)}
}

// Init captures the options and compiles the learner source once. A source
// that does not compile is not an init failure: tests still run, just
// without it.
func (e *JavaScript) Init(ctx context.Context, opts domain.InitOptions) error {
	source, err := goja.Compile("source.js", opts.Source, false)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = &opts
	e.source = source
	e.sourceErr = err
	return nil
}

// RunTest runs one test in a fresh runtime.
func (e *JavaScript) RunTest(ctx context.Context, test string) domain.Verdict {
	e.mu.Lock()
	opts, source, sourceErr := e.opts, e.source, e.sourceErr
	e.mu.Unlock()

	if opts == nil {
		return domain.Failed(errNotInitialized.Error())
	}

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

	scope := Scope{Code: opts.Code.Contents, EditableContents: opts.Code.EditableContents}

	thrown, err := loop.settle(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		exec, err := scope.install(vm, e.logger)
		if err != nil {
			return nil, err
		}

		// A source that throws before finishing leaves whatever it defined
		// so far; the test then decides the verdict on its own.
		switch {
		case sourceErr != nil:
			e.logger.Warn("Learner source does not compile", "error", sourceErr)
		case source != nil:
			if _, err := exec.program(source); err != nil {
				e.logger.Debug("Learner source threw", "error", err)
			}
		}

		return exec.expr(wrapAsync(test))
	})
	if err != nil {
		return domain.Failed("test interrupted: " + err.Error())
	}
	return Normalize(thrown, e.logger)
}

// Interrupt aborts the test that is currently running, if any.
func (e *JavaScript) Interrupt(reason any) {
	e.mu.Lock()
	loop := e.current
	e.mu.Unlock()
	if loop != nil {
		loop.interrupt(reason)
	}
}

// wrapAsync makes a test body awaitable. The newline keeps a trailing line
// comment from swallowing the closing brace.
func wrapAsync(test string) string {
	return "(async () => {" + test + ";\n})();"
}
